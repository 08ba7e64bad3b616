package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/chat"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
)

const conversationPrefix = "tg:"

// API 是机器人用到的 Telegram 接口子集，*tgbotapi.BotAPI 满足该接口。
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Submitter 把事件交给按会话排队的调度器。
type Submitter interface {
	Submit(ev chat.Event, out chat.Responder, done func(error)) error
}

// Tracker 报告会话是否有充值正在执行。
type Tracker interface {
	Executing(conversationID string) bool
}

// Bot 通过长轮询把 Telegram 更新转换为聊天事件
type Bot struct {
	api         API
	dispatcher  Submitter
	tracker     Tracker
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New 创建 Telegram 网关
func New(api API, dispatcher Submitter, tracker Tracker, pollTimeout time.Duration) *Bot {
	return &Bot{
		api:         api,
		dispatcher:  dispatcher,
		tracker:     tracker,
		pollTimeout: pollTimeout,
		logger:      slog.Default().With(slog.String("component", "telegram")),
	}
}

// Connect 用令牌登录机器人账号
func Connect(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// Run 持续拉取更新直到 ctx 结束
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(b.pollTimeout / time.Second)

	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("polling for updates", slog.Int("timeout_seconds", cfg.Timeout))

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(update.Message)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	ev := chat.Event{
		ConversationID: conversationID(chatID),
		MessageID:      strconv.Itoa(msg.MessageID),
		ReceivedAt:     msg.Time().UTC(),
	}

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		ev.Kind = chat.EventStart
	case msg.IsCommand() && msg.Command() == "cancel":
		ev.Kind = chat.EventReset
	case msg.IsCommand():
		return
	default:
		ev.Kind = chat.EventText
		ev.Payload = strings.TrimSpace(msg.Text)
	}

	out := &responder{api: b.api, chatID: chatID}
	b.submit(ev, out, func(err error) {
		// 等待金额或支付选择时的文字输入直接忽略。
		if ev.Kind == chat.EventText && errors.Is(err, topupService.ErrOutOfSequence) {
			return
		}
		if text := topupService.RejectionText(err, ev.Kind); text != "" {
			if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
				b.logger.Warn("send rejection failed", slog.Int64("chat", chatID), slog.String("error", err.Error()))
			}
		}
	})
}

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.answer(query.ID, "")
		return
	}

	chatID := query.Message.Chat.ID
	ev := chat.Event{
		ConversationID: conversationID(chatID),
		Kind:           chat.EventSelection,
		Payload:        query.Data,
		MessageID:      strconv.Itoa(query.Message.MessageID),
		ReceivedAt:     time.Now().UTC(),
	}

	// 充值执行期间的点击不排队，立即应答。
	if b.tracker.Executing(ev.ConversationID) {
		b.answer(query.ID, topupService.RejectionText(topupService.ErrOutOfSequence, ev.Kind))
		return
	}

	out := &responder{api: b.api, chatID: chatID}
	b.submit(ev, out, func(err error) {
		b.answer(query.ID, topupService.RejectionText(err, ev.Kind))
	})
}

func (b *Bot) submit(ev chat.Event, out chat.Responder, reply func(error)) {
	done := func(err error) {
		if err != nil && !isRejection(err) {
			b.logger.Error("handle event failed",
				slog.String("conversation", ev.ConversationID),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
		reply(err)
	}
	if err := b.dispatcher.Submit(ev, out, done); err != nil {
		b.logger.Warn("submit failed", slog.String("conversation", ev.ConversationID), slog.String("error", err.Error()))
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn("answer callback failed", slog.String("error", err.Error()))
	}
}

func isRejection(err error) bool {
	return errors.Is(err, topupService.ErrNoSession) ||
		errors.Is(err, topupService.ErrOutOfSequence) ||
		errors.Is(err, topupService.ErrInvalidAccountID) ||
		errors.Is(err, topupService.ErrInvalidVoucher)
}

func conversationID(chatID int64) string {
	return conversationPrefix + strconv.FormatInt(chatID, 10)
}

// responder 把状态机输出发送到一个聊天
type responder struct {
	api    API
	chatID int64
}

func (r *responder) Send(_ context.Context, effect chat.Effect) error {
	msg, err := render(r.chatID, effect)
	if err != nil {
		return err
	}
	if _, err := r.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send %s: %w", effect.Kind, err)
	}
	return nil
}

// render 把 effect 转换为 Telegram 请求
func render(chatID int64, effect chat.Effect) (tgbotapi.Chattable, error) {
	switch effect.Kind {
	case chat.EffectPrompt:
		return tgbotapi.NewMessage(chatID, effect.Text), nil
	case chat.EffectOptions:
		msg := tgbotapi.NewMessage(chatID, effect.Text)
		msg.ReplyMarkup = keyboard(effect.Options)
		return msg, nil
	case chat.EffectEditPrompt:
		messageID, err := strconv.Atoi(effect.MessageID)
		if err != nil {
			// 无法定位原消息时改为发送新消息。
			msg := tgbotapi.NewMessage(chatID, effect.Text)
			if len(effect.Options) > 0 {
				msg.ReplyMarkup = keyboard(effect.Options)
			}
			return msg, nil
		}
		if len(effect.Options) > 0 {
			return tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, effect.Text, keyboard(effect.Options)), nil
		}
		return tgbotapi.NewEditMessageText(chatID, messageID, effect.Text), nil
	case chat.EffectPhoto:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "photo.png", Bytes: effect.Photo})
		photo.Caption = effect.Text
		return photo, nil
	default:
		return nil, fmt.Errorf("unsupported effect kind %q", effect.Kind)
	}
}

// keyboard 每个选项占一行
func keyboard(options []catalog.Option) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Code)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
