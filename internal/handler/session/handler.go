package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/topup-bot/internal/model/topup"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
	"github.com/zhouzirui/topup-bot/pkg/utils"
)

// 只开放 websocket 会话，Telegram 会话 ID 可被猜测。
const queryablePrefix = "ws:"

// Handler 会话状态查询处理器
type Handler struct {
	store *topupService.Store
}

// New 创建会话处理器
func New(store *topupService.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{conversationID}", h.handleGetSession)
}

// Status 是会话查询接口的返回体，不含账号与支付信息
type Status struct {
	ConversationID string      `json:"conversationId"`
	Stage          topup.Stage `json:"stage"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// handleGetSession 返回会话当前阶段，执行中的会话不等待锁
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if !strings.HasPrefix(conversationID, queryablePrefix) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	session, ok, err := h.store.Peek(conversationID)
	if errors.Is(err, topupService.ErrSessionBusy) {
		utils.RespondJSON(w, http.StatusConflict, Status{
			ConversationID: conversationID,
			Stage:          topup.StageExecuting,
		})
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, Status{
		ConversationID: session.ConversationID,
		Stage:          session.Stage,
		CreatedAt:      session.CreatedAt,
	})
}
