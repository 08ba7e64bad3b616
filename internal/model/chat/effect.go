package chat

import (
	"context"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
)

// EffectKind classifies outbound effects a gateway renders.
type EffectKind string

const (
	EffectPrompt     EffectKind = "prompt"
	EffectOptions    EffectKind = "options"
	EffectPhoto      EffectKind = "photo"
	EffectEditPrompt EffectKind = "editPrompt"
)

// Effect is one message the user should see.
type Effect struct {
	ConversationID string           `json:"conversationId"`
	Kind           EffectKind       `json:"kind"`
	Text           string           `json:"text,omitempty"`
	Options        []catalog.Option `json:"options,omitempty"`
	Photo          []byte           `json:"photo,omitempty"`
	MessageID      string           `json:"messageId,omitempty"`
}

// Responder delivers effects for one conversation.
type Responder interface {
	Send(ctx context.Context, effect Effect) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, effect Effect) error

// Send calls f.
func (f ResponderFunc) Send(ctx context.Context, effect Effect) error {
	return f(ctx, effect)
}
