// Package topup runs the per-conversation purchase flow: it validates input
// stage by stage, hands the collected fields to the purchase executor and
// turns the outcome into the final chat message.
package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/chat"
	"github.com/zhouzirui/topup-bot/internal/model/topup"
	"github.com/zhouzirui/topup-bot/internal/model/voucher"
	"github.com/zhouzirui/topup-bot/internal/service/purchase"
)

var (
	ErrNoSession        = errors.New("no live session")
	ErrOutOfSequence    = errors.New("event out of sequence")
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrInvalidVoucher   = errors.New("invalid voucher")
)

const minAccountIDLength = 8

// Executor performs one purchase attempt.
type Executor interface {
	Execute(ctx context.Context, req purchase.Request) topup.Outcome
}

// Service is the conversation state machine.
type Service struct {
	store        *Store
	catalog      catalog.Store
	executor     Executor
	welcomeImage []byte
	logger       *slog.Logger

	mu        sync.Mutex
	executing map[string]struct{}
}

// Option customises a Service.
type Option func(*Service)

// WithWelcomeImage makes the start trigger answer with a photo.
func WithWelcomeImage(image []byte) Option {
	return func(s *Service) {
		s.welcomeImage = image
	}
}

// NewService wires the state machine to its store, catalog and executor.
func NewService(store *Store, options catalog.Store, executor Executor, opts ...Option) *Service {
	s := &Service{
		store:     store,
		catalog:   options,
		executor:  executor,
		logger:    slog.Default().With(slog.String("component", "topup")),
		executing: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Executing reports whether a purchase attempt is running for conversationID.
// It does not wait for the conversation's lease.
func (s *Service) Executing(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.executing[conversationID]
	return ok
}

func (s *Service) setExecuting(conversationID string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running {
		s.executing[conversationID] = struct{}{}
		return
	}
	delete(s.executing, conversationID)
}

// Store exposes the session store for inspection.
func (s *Service) Store() *Store {
	return s.store
}

// Handle applies one event to its conversation. It returns nil after a
// transition, ErrInvalidAccountID or ErrInvalidVoucher after re-prompting,
// and ErrNoSession or ErrOutOfSequence when the gateway must reject the event
// itself. Rejections never mutate the session.
func (s *Service) Handle(ctx context.Context, ev chat.Event, out chat.Responder) error {
	if ev.ConversationID == "" {
		return errors.New("conversation id is required")
	}

	lease, err := s.store.Acquire(ctx, ev.ConversationID)
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	defer lease.Release()

	switch ev.Kind {
	case chat.EventStart:
		lease.Put(topup.NewSession(ev.ConversationID))
		return s.welcome(ctx, ev, out)
	case chat.EventReset:
		if lease.Session() == nil {
			return ErrNoSession
		}
		lease.Delete()
		return deliver(ctx, out, prompt(ev.ConversationID, resetText))
	}

	session := lease.Session()
	if session == nil {
		return ErrNoSession
	}

	switch session.Stage {
	case topup.StageAwaitingAccountID:
		return s.acceptAccountID(ctx, session, ev, out)
	case topup.StageAwaitingAmount:
		return s.acceptAmount(ctx, session, ev, out)
	case topup.StageAwaitingPayment:
		return s.acceptPayment(ctx, session, ev, out)
	case topup.StageAwaitingVoucher:
		return s.acceptVoucher(ctx, lease, session, ev, out)
	default:
		return ErrOutOfSequence
	}
}

func (s *Service) welcome(ctx context.Context, ev chat.Event, out chat.Responder) error {
	if len(s.welcomeImage) > 0 {
		return deliver(ctx, out, chat.Effect{
			ConversationID: ev.ConversationID,
			Kind:           chat.EffectPhoto,
			Text:           welcomeText,
			Photo:          s.welcomeImage,
		})
	}
	return deliver(ctx, out, prompt(ev.ConversationID, welcomeText))
}

func (s *Service) acceptAccountID(ctx context.Context, session *topup.Session, ev chat.Event, out chat.Responder) error {
	if ev.Kind != chat.EventText {
		return ErrOutOfSequence
	}

	accountID := strings.TrimSpace(ev.Payload)
	if !validAccountID(accountID) {
		if err := deliver(ctx, out, prompt(ev.ConversationID, invalidAccountText)); err != nil {
			return err
		}
		return ErrInvalidAccountID
	}

	session.AccountID = accountID
	session.Advance()

	return deliver(ctx, out, chat.Effect{
		ConversationID: ev.ConversationID,
		Kind:           chat.EffectOptions,
		Text:           fmt.Sprintf(accountReceivedText, accountID),
		Options:        s.catalog.Amounts(),
	})
}

func (s *Service) acceptAmount(ctx context.Context, session *topup.Session, ev chat.Event, out chat.Responder) error {
	if ev.Kind != chat.EventSelection {
		return ErrOutOfSequence
	}

	code, label, ok := s.catalog.LookupAmount(ev.Payload)
	if !ok {
		return ErrOutOfSequence
	}

	session.Amount = code
	session.AmountLabel = label
	session.Advance()

	return deliver(ctx, out, chat.Effect{
		ConversationID: ev.ConversationID,
		Kind:           chat.EffectEditPrompt,
		Text:           fmt.Sprintf(amountSelectedText, label),
		Options:        s.catalog.PaymentMethods(),
		MessageID:      ev.MessageID,
	})
}

func (s *Service) acceptPayment(ctx context.Context, session *topup.Session, ev chat.Event, out chat.Responder) error {
	if ev.Kind != chat.EventSelection {
		return ErrOutOfSequence
	}

	method, label, ok := s.catalog.LookupPayment(ev.Payload)
	if !ok {
		return ErrOutOfSequence
	}

	session.Payment = method
	session.PaymentLabel = label
	session.Advance()

	return deliver(ctx, out, chat.Effect{
		ConversationID: ev.ConversationID,
		Kind:           chat.EffectEditPrompt,
		Text:           fmt.Sprintf(paymentSelectedText, label),
		MessageID:      ev.MessageID,
	})
}

func (s *Service) acceptVoucher(ctx context.Context, lease *Lease, session *topup.Session, ev chat.Event, out chat.Responder) error {
	if ev.Kind != chat.EventText {
		return ErrOutOfSequence
	}

	raw := strings.TrimSpace(ev.Payload)
	if raw == "" {
		if err := deliver(ctx, out, prompt(ev.ConversationID, emptyVoucherText)); err != nil {
			return err
		}
		return ErrInvalidVoucher
	}

	code := voucher.Parse(raw)
	if err := code.Validate(); err != nil {
		if derr := deliver(ctx, out, prompt(ev.ConversationID, invalidVoucherText)); derr != nil {
			return derr
		}
		return fmt.Errorf("%w: %w", ErrInvalidVoucher, err)
	}

	session.Voucher = &code
	session.Advance()

	return s.execute(ctx, lease, session, out)
}

// execute runs the attempt and always discards the session afterwards.
func (s *Service) execute(ctx context.Context, lease *Lease, session *topup.Session, out chat.Responder) error {
	defer lease.Delete()

	s.setExecuting(session.ConversationID, true)
	defer s.setExecuting(session.ConversationID, false)

	if err := deliver(ctx, out, prompt(session.ConversationID, processingText)); err != nil {
		s.logger.Warn("failed to deliver processing notice",
			slog.String("conversation", session.ConversationID),
			slog.String("error", err.Error()),
		)
	}

	outcome := s.runExecutor(ctx, purchase.Request{
		AccountID: session.AccountID,
		Amount:    session.Amount,
		Payment:   session.Payment,
		Voucher:   *session.Voucher,
	})

	var final chat.Effect
	switch o := outcome.(type) {
	case topup.Success:
		session.Stage = topup.StageCompleted
		final = chat.Effect{
			ConversationID: session.ConversationID,
			Kind:           chat.EffectPhoto,
			Text:           fmt.Sprintf(successCaption, session.AccountID, session.AmountLabel, session.PaymentLabel),
			Photo:          o.Proof,
		}
	case topup.KnownFailure:
		session.Stage = topup.StageFailed
		final = prompt(session.ConversationID, fmt.Sprintf(knownFailureText, o.Reason))
	case topup.UnknownFailure:
		session.Stage = topup.StageFailed
		final = prompt(session.ConversationID, unknownFailureText)
	default:
		session.Stage = topup.StageFailed
		final = prompt(session.ConversationID, unknownFailureText)
	}

	s.logger.Info("conversation finished",
		slog.String("conversation", session.ConversationID),
		slog.String("stage", string(session.Stage)),
		slog.String("outcome", string(outcomeKind(outcome))),
	)

	return deliver(ctx, out, final)
}

// runExecutor folds executor panics and nil results into UnknownFailure.
func (s *Service) runExecutor(ctx context.Context, req purchase.Request) (outcome topup.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = topup.UnknownFailure{Class: topup.ClassAutomationFault, Cause: fmt.Sprintf("executor panic: %v", r)}
		}
	}()

	outcome = s.executor.Execute(ctx, req)
	if outcome == nil {
		outcome = topup.UnknownFailure{Class: topup.ClassAutomationFault, Cause: "executor returned no outcome"}
	}
	return outcome
}

func outcomeKind(outcome topup.Outcome) topup.OutcomeKind {
	if outcome == nil {
		return topup.KindUnknownFailure
	}
	return outcome.Kind()
}

func validAccountID(s string) bool {
	if len(s) < minAccountIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func prompt(conversationID, text string) chat.Effect {
	return chat.Effect{ConversationID: conversationID, Kind: chat.EffectPrompt, Text: text}
}

func deliver(ctx context.Context, out chat.Responder, effect chat.Effect) error {
	if out == nil {
		return nil
	}
	if err := out.Send(ctx, effect); err != nil {
		return fmt.Errorf("deliver %s: %w", effect.Kind, err)
	}
	return nil
}
