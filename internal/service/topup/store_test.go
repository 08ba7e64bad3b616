package topup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/topup-bot/internal/model/topup"
)

func TestStoreLeaseIsExclusivePerConversation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := store.Acquire(waitCtx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lease to block, got %v", err)
	}

	other, err := store.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("other conversation must not block: %v", err)
	}
	other.Release()

	acquired := make(chan *Lease, 1)
	go func() {
		lease, err := store.Acquire(ctx, "a")
		if err != nil {
			t.Errorf("acquire after release: %v", err)
			close(acquired)
			return
		}
		acquired <- lease
	}()

	first.Release()
	select {
	case lease := <-acquired:
		if lease != nil {
			lease.Release()
		}
	case <-time.After(time.Second):
		t.Fatal("lease was not handed over after release")
	}
}

func TestStorePutGetDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lease.Put(topup.NewSession("a"))
	lease.Session().AccountID = "12345678"
	lease.Release()
	lease.Release()

	session, ok, err := store.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected live session, ok=%v err=%v", ok, err)
	}
	if session.AccountID != "12345678" {
		t.Fatalf("unexpected account id %q", session.AccountID)
	}

	session.AccountID = "changed"
	again, _, _ := store.Get(ctx, "a")
	if again.AccountID != "12345678" {
		t.Fatal("Get must return a copy")
	}

	lease, _ = store.Acquire(ctx, "a")
	lease.Delete()
	lease.Release()

	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("expected session to be deleted")
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d slots", store.Len())
	}
}

func TestStoreCancelledAcquireDropsSlot(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	held, err := store.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := store.Acquire(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	held.Release()

	if store.Len() != 0 {
		t.Fatalf("expected no slots left, got %d", store.Len())
	}
}

func TestStorePeekDoesNotWait(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, ok, err := store.Peek("a"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	lease, err := store.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lease.Put(topup.NewSession("a"))

	if _, _, err := store.Peek("a"); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy while leased, got %v", err)
	}
	lease.Release()

	session, ok, err := store.Peek("a")
	if err != nil || !ok {
		t.Fatalf("peek after release: ok=%v err=%v", ok, err)
	}
	if session.Stage != topup.StageAwaitingAccountID {
		t.Fatalf("unexpected stage %s", session.Stage)
	}

	again, err := store.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("peek must leave the slot unlocked: %v", err)
	}
	again.Release()
}
