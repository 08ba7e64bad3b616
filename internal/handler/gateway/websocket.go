package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/topup-bot/internal/model/chat"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
)

const (
	conversationPrefix = "ws:"
	readTimeout        = 60 * time.Second
	pingInterval       = 54 * time.Second
	writeTimeout       = 10 * time.Second
)

// Submitter 把事件交给按会话排队的调度器。
type Submitter interface {
	Submit(ev chat.Event, out chat.Responder, done func(error)) error
}

// WebSocketHandler WebSocket聊天网关
type WebSocketHandler struct {
	dispatcher Submitter
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewWebSocketHandler 创建WebSocket网关
func NewWebSocketHandler(dispatcher Submitter) *WebSocketHandler {
	return &WebSocketHandler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: slog.Default().With(slog.String("component", "websocket")),
	}
}

// RegisterRoutes 注册WebSocket路由，未携带会话ID时自动分配
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/ws/{conversationID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string `json:"type"`
	Payload   string `json:"payload"`
	MessageID string `json:"messageId"`
}

type outgoingMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Data           any    `json:"data,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// conn 串行化对同一连接的写入，调度器和读循环会并发写。
type conn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

var errConnClosed = errors.New("websocket connection closed")

func (c *conn) writeJSON(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.ws.Close()
	}
}

// responder 把状态机输出渲染为 effect 消息。
type responder struct {
	conn           *conn
	conversationID string
}

func (r *responder) Send(_ context.Context, effect chat.Effect) error {
	if effect.Kind == chat.EffectOptions && effect.MessageID == "" {
		effect.MessageID = uuid.NewString()
	}
	return r.conn.writeJSON(outgoingMessage{
		Type:           "effect",
		ConversationID: r.conversationID,
		Data:           effect,
		Timestamp:      time.Now().Unix(),
	})
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "conversationID"))
	if id == "" {
		id = uuid.NewString()
	}
	conversationID := conversationPrefix + id

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &conn{ws: ws}
	defer c.close()

	h.logger.Info("connection opened", slog.String("conversation", conversationID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, c)

	out := &responder{conn: c, conversationID: conversationID}
	h.send(c, outgoingMessage{
		Type:           "connected",
		ConversationID: conversationID,
		Timestamp:      time.Now().Unix(),
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read failed",
					slog.String("conversation", conversationID),
					slog.String("error", err.Error()),
				)
			}
			h.logger.Info("connection closed", slog.String("conversation", conversationID))
			return
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(c, out, conversationID, msg)
	}
}

func (h *WebSocketHandler) handleMessage(c *conn, out *responder, conversationID string, msg inboundMessage) {
	kind, ok := eventKind(msg.Type)
	if !ok {
		h.sendError(c, conversationID, "unsupported message type")
		return
	}

	ev := chat.Event{
		ConversationID: conversationID,
		Kind:           kind,
		Payload:        msg.Payload,
		MessageID:      msg.MessageID,
		ReceivedAt:     time.Now().UTC(),
	}

	done := func(err error) {
		if err == nil {
			return
		}
		if text := topupService.RejectionText(err, kind); text != "" {
			h.sendError(c, conversationID, text)
		}
		if !isRejection(err) {
			h.logger.Error("handle event failed",
				slog.String("conversation", conversationID),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := h.dispatcher.Submit(ev, out, done); err != nil {
		h.sendError(c, conversationID, "service is shutting down")
	}
}

func eventKind(messageType string) (chat.EventKind, bool) {
	switch kind := chat.EventKind(messageType); kind {
	case chat.EventStart, chat.EventReset, chat.EventText, chat.EventSelection:
		return kind, true
	default:
		return "", false
	}
}

func isRejection(err error) bool {
	return errors.Is(err, topupService.ErrNoSession) ||
		errors.Is(err, topupService.ErrOutOfSequence) ||
		errors.Is(err, topupService.ErrInvalidAccountID) ||
		errors.Is(err, topupService.ErrInvalidVoucher)
}

func (h *WebSocketHandler) send(c *conn, msg outgoingMessage) {
	if err := c.writeJSON(msg); err != nil && !errors.Is(err, errConnClosed) {
		h.logger.Warn("write failed", slog.String("type", msg.Type), slog.String("error", err.Error()))
	}
}

func (h *WebSocketHandler) sendError(c *conn, conversationID, message string) {
	h.send(c, outgoingMessage{
		Type:           "error",
		ConversationID: conversationID,
		Data:           map[string]string{"message": message},
		Timestamp:      time.Now().Unix(),
	})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
