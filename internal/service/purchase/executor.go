// Package purchase drives the storefront through one top-up attempt and
// classifies what it observed.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/topup"
	"github.com/zhouzirui/topup-bot/internal/model/voucher"
)

// DefaultFailureReason is reported when the error marker carries no text.
const DefaultFailureReason = "Invalid serial or PIN or wrong item"

var (
	ErrUnknownAmount  = errors.New("amount is not in the catalog")
	ErrUnknownPayment = errors.New("payment method is not in the catalog")
)

// Options tunes the protocol. Zero durations fall back to DefaultOptions.
type Options struct {
	EntryURL           string
	StepTimeout        time.Duration
	PollInterval       time.Duration
	LoginTypingDelay   time.Duration
	VoucherTypingDelay time.Duration
	Selectors          Selectors
}

// DefaultOptions mirrors the live storefront.
func DefaultOptions() Options {
	return Options{
		EntryURL:           "https://shop.garena.my/app",
		StepTimeout:        10 * time.Second,
		PollInterval:       250 * time.Millisecond,
		LoginTypingDelay:   100 * time.Millisecond,
		VoucherTypingDelay: 50 * time.Millisecond,
		Selectors:          DefaultSelectors(),
	}
}

// Request holds the validated fields a conversation collected.
type Request struct {
	AccountID string
	Amount    catalog.AmountCode
	Payment   catalog.PaymentMethod
	Voucher   voucher.Code
}

// Executor runs single best-effort purchase attempts. It never retries.
type Executor struct {
	automation Automation
	catalog    catalog.Store
	opts       Options
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewExecutor builds an Executor over the given automation backend.
func NewExecutor(automation Automation, store catalog.Store, opts Options) *Executor {
	defaults := DefaultOptions()
	if opts.EntryURL == "" {
		opts.EntryURL = defaults.EntryURL
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaults.StepTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = defaults.Selectors
	}

	return &Executor{
		automation: automation,
		catalog:    store,
		opts:       opts,
		tracer:     otel.Tracer("github.com/zhouzirui/topup-bot/internal/service/purchase"),
		logger:     slog.Default().With(slog.String("component", "executor")),
	}
}

// stepError tags a protocol failure with the step and its class.
type stepError struct {
	step  string
	class topup.FailureClass
	err   error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// Execute performs one attempt. The browser context it opens is closed on
// every path, panics included, and every fault is folded into the outcome.
func (e *Executor) Execute(ctx context.Context, req Request) (outcome topup.Outcome) {
	attemptID := uuid.NewString()
	logger := e.logger.With(
		slog.String("attempt", attemptID),
		slog.String("amount", string(req.Amount)),
		slog.String("payment", string(req.Payment)),
	)

	ctx, span := e.tracer.Start(ctx, "purchase.execute", trace.WithAttributes(
		attribute.String("purchase.attempt_id", attemptID),
		attribute.String("purchase.amount", string(req.Amount)),
		attribute.String("purchase.payment", string(req.Payment)),
	))
	started := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("purchase.outcome", string(outcome.Kind())))
		if failure, ok := outcome.(topup.UnknownFailure); ok {
			span.SetAttributes(
				attribute.String("purchase.failure_class", string(failure.Class)),
				attribute.String("purchase.failure_step", failure.Step),
			)
			span.SetStatus(codes.Error, failure.Cause)
			logger.Warn("attempt failed without a definitive marker",
				slog.String("class", string(failure.Class)),
				slog.String("step", failure.Step),
				slog.String("cause", failure.Cause),
				slog.Duration("elapsed", time.Since(started)),
			)
		} else {
			logger.Info("attempt finished",
				slog.String("outcome", string(outcome.Kind())),
				slog.Duration("elapsed", time.Since(started)),
			)
		}
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			outcome = topup.UnknownFailure{
				Class: topup.ClassAutomationFault,
				Cause: fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	amountControl, paymentControl, err := e.controls(req)
	if err != nil {
		return topup.UnknownFailure{Class: topup.ClassInvalidRequest, Step: "validate", Cause: err.Error()}
	}

	openCtx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	page, err := e.automation.Open(openCtx)
	cancel()
	if err != nil {
		return topup.UnknownFailure{Class: topup.ClassResource, Step: "open", Cause: err.Error()}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Error("failed to release browser context", slog.String("error", cerr.Error()))
		}
	}()

	if err := e.drive(ctx, page, req, amountControl, paymentControl); err != nil {
		var se *stepError
		if errors.As(err, &se) {
			return topup.UnknownFailure{Class: se.class, Step: se.step, Cause: se.err.Error()}
		}
		return topup.UnknownFailure{Class: topup.ClassAutomationFault, Cause: err.Error()}
	}

	return e.awaitOutcome(ctx, page)
}

// controls resolves the request codes against the allow-list before any of
// them is used to address a page element.
func (e *Executor) controls(req Request) (string, string, error) {
	if _, _, ok := e.catalog.LookupAmount(string(req.Amount)); !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownAmount, req.Amount)
	}
	if _, _, ok := e.catalog.LookupPayment(string(req.Payment)); !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownPayment, req.Payment)
	}
	if err := req.Voucher.Validate(); err != nil {
		return "", "", fmt.Errorf("voucher: %w", err)
	}
	if req.AccountID == "" {
		return "", "", errors.New("account id is required")
	}

	sel := e.opts.Selectors
	return sel.AmountControl(req.Amount), sel.PaymentControl(req.Payment), nil
}

func (e *Executor) drive(ctx context.Context, page Page, req Request, amountControl, paymentControl string) error {
	sel := e.opts.Selectors

	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"navigate", func(ctx context.Context) error {
			return e.bounded(ctx, "navigate", func(ctx context.Context) error {
				return page.Navigate(ctx, e.opts.EntryURL)
			})
		}},
		{"login", func(ctx context.Context) error {
			if err := e.typeInto(ctx, page, sel.LoginInput, req.AccountID, e.opts.LoginTypingDelay); err != nil {
				return err
			}
			if err := e.click(ctx, page, sel.LoginButton); err != nil {
				return err
			}
			return e.waitFor(ctx, page, sel.LoginConfirmed)
		}},
		{"select_amount", func(ctx context.Context) error {
			if err := e.waitAndClick(ctx, page, amountControl); err != nil {
				return err
			}
			return e.waitAndClick(ctx, page, sel.ProceedPayment)
		}},
		{"select_payment", func(ctx context.Context) error {
			return e.waitAndClick(ctx, page, paymentControl)
		}},
		{"enter_voucher", func(ctx context.Context) error {
			if err := e.waitFor(ctx, page, sel.SerialInput); err != nil {
				return err
			}
			if err := e.typeInto(ctx, page, sel.SerialInput, req.Voucher.Serial, e.opts.VoucherTypingDelay); err != nil {
				return err
			}
			if err := e.waitFor(ctx, page, sel.PinInput); err != nil {
				return err
			}
			if err := e.typeInto(ctx, page, sel.PinInput, req.Voucher.Pin, e.opts.VoucherTypingDelay); err != nil {
				return err
			}
			return e.click(ctx, page, sel.Submit)
		}},
	}

	for _, step := range steps {
		stepCtx, span := e.tracer.Start(ctx, "purchase."+step.name)
		err := step.run(stepCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step.name)
			span.End()
			return classify(ctx, step.name, err)
		}
		span.End()
	}

	return nil
}

// classify maps a step error to a failure class. A wait that ran out of time
// while the attempt itself was still live means the UI contract broke.
func classify(ctx context.Context, step string, err error) error {
	class := topup.ClassAutomationFault
	if errors.Is(err, errControlMissing) && ctx.Err() == nil {
		class = topup.ClassContractViolation
	}
	return &stepError{step: step, class: class, err: err}
}

var errControlMissing = errors.New("control did not appear in time")

func (e *Executor) bounded(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	return e.boundedFor(ctx, e.opts.StepTimeout, what, fn)
}

func (e *Executor) boundedFor(ctx context.Context, timeout time.Duration, what string, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := fn(stepCtx); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (e *Executor) waitFor(ctx context.Context, page Page, selector string) error {
	return e.bounded(ctx, "wait "+selector, func(ctx context.Context) error {
		err := page.WaitReady(ctx, selector)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", errControlMissing, err)
		}
		return err
	})
}

func (e *Executor) click(ctx context.Context, page Page, selector string) error {
	return e.bounded(ctx, "click "+selector, func(ctx context.Context) error {
		return page.Click(ctx, selector)
	})
}

func (e *Executor) waitAndClick(ctx context.Context, page Page, selector string) error {
	if err := e.waitFor(ctx, page, selector); err != nil {
		return err
	}
	return e.click(ctx, page, selector)
}

// typeInto leaves room for the key delays on top of the step timeout.
func (e *Executor) typeInto(ctx context.Context, page Page, selector, text string, keyDelay time.Duration) error {
	timeout := e.opts.StepTimeout + time.Duration(len(text))*keyDelay
	return e.boundedFor(ctx, timeout, "type "+selector, func(ctx context.Context) error {
		return page.Type(ctx, selector, text, keyDelay)
	})
}

// awaitOutcome races the success marker against the error marker for one
// step timeout, then looks for a lingering error marker once more.
func (e *Executor) awaitOutcome(ctx context.Context, page Page) topup.Outcome {
	sel := e.opts.Selectors

	ctx, span := e.tracer.Start(ctx, "purchase.await_outcome")
	defer span.End()

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
poll:
	for {
		found, err := page.Exists(waitCtx, sel.SuccessMarker)
		if err != nil {
			lastErr = err
		} else if found {
			return e.captureProof(ctx, page)
		}

		found, err = page.Exists(waitCtx, sel.ErrorMarker)
		if err != nil {
			lastErr = err
		} else if found {
			return e.knownFailure(ctx, page)
		}

		select {
		case <-waitCtx.Done():
			break poll
		case <-ticker.C:
		}
	}

	if ctx.Err() != nil {
		return topup.UnknownFailure{Class: topup.ClassAutomationFault, Step: "await_outcome", Cause: ctx.Err().Error()}
	}

	checkCtx, cancelCheck := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancelCheck()

	found, err := page.Exists(checkCtx, sel.ErrorMarker)
	if err == nil && found {
		return e.knownFailure(ctx, page)
	}
	if err != nil {
		lastErr = err
	}

	cause := "no success or error marker before timeout"
	if lastErr != nil {
		cause = fmt.Sprintf("%s (last error: %v)", cause, lastErr)
	}
	return topup.UnknownFailure{Class: topup.ClassNoMarker, Step: "await_outcome", Cause: cause}
}

func (e *Executor) captureProof(ctx context.Context, page Page) topup.Outcome {
	shotCtx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()

	proof, err := page.Screenshot(shotCtx)
	if err != nil {
		return topup.UnknownFailure{Class: topup.ClassAutomationFault, Step: "screenshot", Cause: err.Error()}
	}
	if len(proof) == 0 {
		return topup.UnknownFailure{Class: topup.ClassAutomationFault, Step: "screenshot", Cause: "empty screenshot"}
	}
	return topup.Success{Proof: proof}
}

func (e *Executor) knownFailure(ctx context.Context, page Page) topup.Outcome {
	textCtx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()

	text, err := page.TextContent(textCtx, e.opts.Selectors.ErrorMarker)
	if err != nil {
		e.logger.Debug("error marker text unreadable", slog.String("error", err.Error()))
	}

	reason := strings.TrimSpace(text)
	if reason == "" {
		reason = DefaultFailureReason
	}
	return topup.KnownFailure{Reason: reason}
}
