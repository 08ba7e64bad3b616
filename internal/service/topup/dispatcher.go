package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhouzirui/topup-bot/internal/model/chat"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Handler processes one event for its conversation.
type Handler interface {
	Handle(ctx context.Context, ev chat.Event, out chat.Responder) error
}

// Dispatcher runs events for each conversation in arrival order, one at a
// time, while different conversations proceed in parallel. Gateways submit
// and return immediately, so a long purchase attempt never blocks
// receiving updates.
type Dispatcher struct {
	ctx     context.Context
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	mailboxes map[string][]job
	closed    bool
	wg        sync.WaitGroup
}

type job struct {
	ev   chat.Event
	out  chat.Responder
	done func(error)
}

// NewDispatcher binds handler to ctx. Work keeps running when the submitting
// gateway goes away and stops only when ctx ends.
func NewDispatcher(ctx context.Context, handler Handler) *Dispatcher {
	return &Dispatcher{
		ctx:       ctx,
		handler:   handler,
		logger:    slog.Default().With(slog.String("component", "dispatcher")),
		mailboxes: make(map[string][]job),
	}
}

// Submit queues ev behind earlier events of the same conversation. done, if
// set, receives the result of Handle.
func (d *Dispatcher) Submit(ev chat.Event, out chat.Responder, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	id := ev.ConversationID
	queue, running := d.mailboxes[id]
	d.mailboxes[id] = append(queue, job{ev: ev, out: out, done: done})
	if !running {
		d.wg.Add(1)
		go d.drain(id)
	}
	return nil
}

// drain runs queued jobs for id and exits once its mailbox is empty.
func (d *Dispatcher) drain(id string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.mailboxes[id]
		if len(queue) == 0 {
			delete(d.mailboxes, id)
			d.mu.Unlock()
			return
		}
		next := queue[0]
		d.mailboxes[id] = queue[1:]
		d.mu.Unlock()

		err := d.run(next)
		if next.done != nil {
			next.done(err)
		}
	}
}

func (d *Dispatcher) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				slog.String("conversation", j.ev.ConversationID),
				slog.Any("panic", r),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler.Handle(d.ctx, j.ev, j.out)
}

// Close stops accepting events and waits for queued ones to finish or for
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
