package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// ChromeOptions selects how browsers are obtained.
type ChromeOptions struct {
	Headless  bool
	ExecPath  string
	RemoteURL string
}

// Chrome implements Automation with chromedp. Launched browsers get one
// process per attempt; a remote browser gets one fresh browser context per
// attempt.
type Chrome struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	remote   bool
}

var _ Automation = (*Chrome)(nil)

// NewChrome prepares the allocator. No browser starts until Open.
func NewChrome(ctx context.Context, opts ChromeOptions) *Chrome {
	if opts.RemoteURL != "" {
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
		return &Chrome{allocCtx: allocCtx, cancel: cancel, remote: true}
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, execOpts...)
	return &Chrome{allocCtx: allocCtx, cancel: cancel}
}

// Open starts an isolated browser context. The first Run binds the browser
// lifetime to the tab context, so ctx only bounds the startup through a
// watchdog.
func (c *Chrome) Open(ctx context.Context) (Page, error) {
	var ctxOpts []chromedp.ContextOption
	if c.remote {
		ctxOpts = append(ctxOpts, chromedp.WithNewBrowserContext())
	}

	tabCtx, cancel := chromedp.NewContext(c.allocCtx, ctxOpts...)
	stop := context.AfterFunc(ctx, cancel)

	err := chromedp.Run(tabCtx)
	if !stop() {
		cancel()
		return nil, fmt.Errorf("start browser: %w", context.Cause(ctx))
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

// Close stops the allocator and every browser still attached to it.
func (c *Chrome) Close() {
	c.cancel()
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab while honouring the caller's deadline.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) WaitReady(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Type focuses the field and sends one key event per rune, pausing keyDelay
// between keys.
func (p *chromePage) Type(ctx context.Context, selector, text string, keyDelay time.Duration) error {
	actions := []chromedp.Action{chromedp.Focus(selector, chromedp.ByQuery)}
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)))
		if keyDelay > 0 {
			actions = append(actions, chromedp.Sleep(keyDelay))
		}
	}
	return p.run(ctx, actions...)
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (p *chromePage) TextContent(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.TextContent(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

// Screenshot captures the full page as PNG.
func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser context down gracefully, then drops the tab
// context regardless of the result.
func (p *chromePage) Close() error {
	defer p.cancel()

	err := chromedp.Cancel(p.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
