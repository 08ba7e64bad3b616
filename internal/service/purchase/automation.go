package purchase

import (
	"context"
	"time"
)

// Automation opens isolated browser sessions, one per purchase attempt.
type Automation interface {
	Open(ctx context.Context) (Page, error)
}

// Page drives a single isolated browser context. Every method honours the
// deadline of ctx. Close releases the context and must be called once.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string, keyDelay time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	TextContent(ctx context.Context, selector string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
