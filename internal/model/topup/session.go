package topup

import (
	"time"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/voucher"
)

// Stage is the position of a conversation in the purchase flow.
type Stage string

const (
	StageAwaitingAccountID Stage = "awaiting_account_id"
	StageAwaitingAmount    Stage = "awaiting_amount"
	StageAwaitingPayment   Stage = "awaiting_payment"
	StageAwaitingVoucher   Stage = "awaiting_voucher"
	StageExecuting         Stage = "executing"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
)

var nextStage = map[Stage]Stage{
	StageAwaitingAccountID: StageAwaitingAmount,
	StageAwaitingAmount:    StageAwaitingPayment,
	StageAwaitingPayment:   StageAwaitingVoucher,
	StageAwaitingVoucher:   StageExecuting,
}

// Next returns the single stage reachable from s by valid input.
// Executing ends in Completed or Failed and has no Next.
func (s Stage) Next() (Stage, bool) {
	next, ok := nextStage[s]
	return next, ok
}

// Terminal reports whether the session must be discarded at this stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Session is the in-memory progress of one conversation.
type Session struct {
	ConversationID string                `json:"conversationId"`
	Stage          Stage                 `json:"stage"`
	AccountID      string                `json:"accountId,omitempty"`
	Amount         catalog.AmountCode    `json:"amount,omitempty"`
	AmountLabel    string                `json:"amountLabel,omitempty"`
	Payment        catalog.PaymentMethod `json:"payment,omitempty"`
	PaymentLabel   string                `json:"paymentLabel,omitempty"`
	Voucher        *voucher.Code         `json:"-"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// NewSession starts a conversation at StageAwaitingAccountID.
func NewSession(conversationID string) *Session {
	return &Session{
		ConversationID: conversationID,
		Stage:          StageAwaitingAccountID,
		CreatedAt:      time.Now().UTC(),
	}
}

// Advance moves the session exactly one stage forward.
func (s *Session) Advance() bool {
	next, ok := s.Stage.Next()
	if !ok {
		return false
	}
	s.Stage = next
	return true
}
