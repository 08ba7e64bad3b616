package topup

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/topup-bot/internal/model/topup"
)

// Store keeps at most one live Session per conversation in memory. All
// access to a conversation goes through a Lease, so two operations on the
// same conversation never overlap.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	lock    chan struct{}
	refs    int
	session *topup.Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Lease is exclusive access to one conversation's slot until Release.
type Lease struct {
	store    *Store
	id       string
	slot     *slot
	released bool
}

// Acquire waits until no other lease is held for conversationID.
func (s *Store) Acquire(ctx context.Context, conversationID string) (*Lease, error) {
	s.mu.Lock()
	sl, ok := s.slots[conversationID]
	if !ok {
		sl = &slot{lock: make(chan struct{}, 1)}
		s.slots[conversationID] = sl
	}
	sl.refs++
	s.mu.Unlock()

	select {
	case sl.lock <- struct{}{}:
		return &Lease{store: s, id: conversationID, slot: sl}, nil
	case <-ctx.Done():
		s.mu.Lock()
		s.unref(conversationID, sl)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// unref drops the slot once nobody waits on it and it holds no session.
// Callers hold s.mu.
func (s *Store) unref(id string, sl *slot) {
	sl.refs--
	if sl.refs == 0 && sl.session == nil {
		delete(s.slots, id)
	}
}

// Session returns the live session or nil.
func (l *Lease) Session() *topup.Session {
	return l.slot.session
}

// Put replaces the live session.
func (l *Lease) Put(session *topup.Session) {
	l.slot.session = session
}

// Delete discards the live session, if any.
func (l *Lease) Delete() {
	l.slot.session = nil
}

// Release gives up the lease. Calling it more than once is a no-op.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true

	<-l.slot.lock

	l.store.mu.Lock()
	l.store.unref(l.id, l.slot)
	l.store.mu.Unlock()
}

// Get returns a copy of the live session for conversationID.
func (s *Store) Get(ctx context.Context, conversationID string) (topup.Session, bool, error) {
	lease, err := s.Acquire(ctx, conversationID)
	if err != nil {
		return topup.Session{}, false, err
	}
	defer lease.Release()

	if lease.Session() == nil {
		return topup.Session{}, false, nil
	}
	return *lease.Session(), true, nil
}

// ErrSessionBusy is returned by Peek while another lease is held.
var ErrSessionBusy = errors.New("session is busy")

// Peek returns a copy of the live session without waiting. It fails with
// ErrSessionBusy while a lease is held, which covers a running attempt.
func (s *Store) Peek(conversationID string) (topup.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[conversationID]
	if !ok {
		return topup.Session{}, false, nil
	}

	select {
	case sl.lock <- struct{}{}:
	default:
		return topup.Session{}, false, ErrSessionBusy
	}
	defer func() { <-sl.lock }()

	if sl.session == nil {
		return topup.Session{}, false, nil
	}
	return *sl.session, true, nil
}

// Len reports how many conversations have a live session or a pending lease.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
