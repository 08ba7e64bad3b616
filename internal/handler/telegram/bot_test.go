package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/chat"
	"github.com/zhouzirui/topup-bot/internal/model/topup"
	"github.com/zhouzirui/topup-bot/internal/service/purchase"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
)

type fakeAPI struct {
	mu       sync.Mutex
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	stopped  bool
	nextID   int
	notify   chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16), notify: make(chan struct{}, 64), nextID: 100}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	f.notify <- struct{}{}
	return tgbotapi.Message{MessageID: id}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telegram call")
	}
}

func (f *fakeAPI) lastSent(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) lastRequest(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests")
	}
	return f.requests[len(f.requests)-1]
}

type stubExecutor struct {
	outcome topup.Outcome
}

func (e stubExecutor) Execute(context.Context, purchase.Request) topup.Outcome {
	return e.outcome
}

// gatedExecutor blocks each attempt until release is closed.
type gatedExecutor struct {
	release chan struct{}
}

func (e gatedExecutor) Execute(context.Context, purchase.Request) topup.Outcome {
	<-e.release
	return topup.KnownFailure{Reason: "Invalid serial"}
}

func startBot(t *testing.T, outcome topup.Outcome) *fakeAPI {
	t.Helper()
	return startBotWith(t, stubExecutor{outcome: outcome})
}

func startBotWith(t *testing.T, executor topupService.Executor) *fakeAPI {
	t.Helper()
	api := newFakeAPI()
	svc := topupService.NewService(topupService.NewStore(), catalog.Default(), executor)
	dispatcher := topupService.NewDispatcher(context.Background(), svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(api, dispatcher, svc, time.Second).Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
		dispatcher.Close(context.Background())
	})
	return api
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Date:      int(time.Now().Unix()),
	}
	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(chatID int64, messageID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		Data:    data,
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestBotPurchaseFlow(t *testing.T) {
	api := startBot(t, topup.KnownFailure{Reason: "Invalid serial"})

	api.updates <- textUpdate(7, "/start")
	api.wait(t)
	if msg, ok := api.lastSent(t).(tgbotapi.MessageConfig); !ok || msg.ChatID != 7 {
		t.Fatalf("expected welcome message, got %#v", api.lastSent(t))
	}

	api.updates <- textUpdate(7, "12345678")
	api.wait(t)
	amounts, ok := api.lastSent(t).(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected amount keyboard, got %#v", api.lastSent(t))
	}
	markup, ok := amounts.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) != 9 {
		t.Fatalf("expected 9 amount rows, got %#v", amounts.ReplyMarkup)
	}

	api.updates <- callbackUpdate(7, 55, "amount_25")
	api.wait(t)
	api.wait(t)
	edit, ok := api.lastSent(t).(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 55 || edit.ReplyMarkup == nil || len(edit.ReplyMarkup.InlineKeyboard) != 2 {
		t.Fatalf("expected edit with payment keyboard, got %#v", api.lastSent(t))
	}
	if answer, ok := api.lastRequest(t).(tgbotapi.CallbackConfig); !ok || answer.Text != "" {
		t.Fatalf("expected silent callback answer, got %#v", api.lastRequest(t))
	}

	api.updates <- callbackUpdate(7, 55, "pay_unipin")
	api.wait(t)
	api.wait(t)

	api.updates <- textUpdate(7, "BD123456789012+ABCD-EFGH-IJKL-MNOP")
	api.wait(t)
	api.wait(t)
	final, ok := api.lastSent(t).(tgbotapi.MessageConfig)
	if !ok || final.Text != "Failed: Invalid serial" {
		t.Fatalf("expected failure reason, got %#v", api.lastSent(t))
	}
}

func TestBotAnswersCallbackDuringAttempt(t *testing.T) {
	release := make(chan struct{})
	api := startBotWith(t, gatedExecutor{release: release})
	defer close(release)

	api.updates <- textUpdate(7, "/start")
	api.wait(t)
	api.updates <- textUpdate(7, "12345678")
	api.wait(t)
	api.updates <- callbackUpdate(7, 55, "amount_25")
	api.wait(t)
	api.wait(t)
	api.updates <- callbackUpdate(7, 55, "pay_unipin")
	api.wait(t)
	api.wait(t)

	api.updates <- textUpdate(7, "BD123456789012+ABCD-EFGH-IJKL-MNOP")
	api.wait(t)
	if msg, ok := api.lastSent(t).(tgbotapi.MessageConfig); !ok || msg.Text == "" {
		t.Fatalf("expected processing notice, got %#v", api.lastSent(t))
	}

	api.updates <- callbackUpdate(7, 55, "amount_50")
	api.wait(t)
	answer, ok := api.lastRequest(t).(tgbotapi.CallbackConfig)
	if !ok || answer.CallbackQueryID != "cb-amount_50" || answer.Text != "Invalid action or out of sequence" {
		t.Fatalf("expected immediate out-of-sequence answer, got %#v", api.lastRequest(t))
	}
}

func TestBotCallbackWithoutSession(t *testing.T) {
	api := startBot(t, topup.Success{Proof: []byte("png")})

	api.updates <- callbackUpdate(9, 3, "amount_25")
	api.wait(t)

	answer, ok := api.lastRequest(t).(tgbotapi.CallbackConfig)
	if !ok || answer.Text != "Please start with /start" {
		t.Fatalf("expected start-over toast, got %#v", api.lastRequest(t))
	}
}

func TestBotTextWithoutSession(t *testing.T) {
	api := startBot(t, topup.Success{Proof: []byte("png")})

	api.updates <- textUpdate(9, "hello")
	api.wait(t)

	msg, ok := api.lastSent(t).(tgbotapi.MessageConfig)
	if !ok || msg.Text != "Please use /start to begin." {
		t.Fatalf("expected start-over message, got %#v", api.lastSent(t))
	}
}

func TestRenderEffects(t *testing.T) {
	options := catalog.Default().PaymentMethods()

	photo, err := render(1, chat.Effect{Kind: chat.EffectPhoto, Text: "caption", Photo: []byte("png")})
	if err != nil {
		t.Fatalf("render photo: %v", err)
	}
	if cfg, ok := photo.(tgbotapi.PhotoConfig); !ok || cfg.Caption != "caption" {
		t.Fatalf("unexpected photo config %#v", photo)
	}

	edit, err := render(1, chat.Effect{Kind: chat.EffectEditPrompt, Text: "t", MessageID: "12"})
	if err != nil {
		t.Fatalf("render edit: %v", err)
	}
	if cfg, ok := edit.(tgbotapi.EditMessageTextConfig); !ok || cfg.MessageID != 12 || cfg.ReplyMarkup != nil {
		t.Fatalf("unexpected edit config %#v", edit)
	}

	fallback, err := render(1, chat.Effect{Kind: chat.EffectEditPrompt, Text: "t", Options: options, MessageID: "abc"})
	if err != nil {
		t.Fatalf("render fallback: %v", err)
	}
	if _, ok := fallback.(tgbotapi.MessageConfig); !ok {
		t.Fatalf("expected new message when message id is not numeric, got %#v", fallback)
	}

	if _, err := render(1, chat.Effect{Kind: "voice"}); err == nil {
		t.Fatal("expected error for unsupported effect")
	}

	markup := keyboard(options)
	if len(markup.InlineKeyboard) != 2 || *markup.InlineKeyboard[1][0].CallbackData != "pay_upcard" {
		t.Fatalf("unexpected keyboard %#v", markup)
	}
}
