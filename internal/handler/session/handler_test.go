package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/topup-bot/internal/model/topup"
	"github.com/zhouzirui/topup-bot/internal/model/voucher"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
)

func setupRouter(t *testing.T) (*chi.Mux, *topupService.Store) {
	t.Helper()
	store := topupService.NewStore()
	r := chi.NewRouter()
	New(store).RegisterRoutes(r)
	return r, store
}

func putSession(t *testing.T, store *topupService.Store, id string, stage topup.Stage) {
	t.Helper()
	lease, err := store.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s := topup.NewSession(id)
	s.AccountID = "98765432"
	s.Stage = stage
	code := voucher.Parse("BD123456789012+ABCD-EFGH-IJKL-MNOP")
	s.Voucher = &code
	lease.Put(s)
	lease.Release()
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	if resp := get(r, "/sessions/ws:unknown"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGetSessionReportsStageOnly(t *testing.T) {
	r, store := setupRouter(t)
	putSession(t, store, "ws:conv-1", topup.StageAwaitingVoucher)

	resp := get(r, "/sessions/ws:conv-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	for _, secret := range []string{"98765432", "ABCDEFGH", "accountId", "amount", "payment"} {
		if strings.Contains(resp.Body.String(), secret) {
			t.Fatalf("response exposes %q: %s", secret, resp.Body.String())
		}
	}

	var body Status
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stage != topup.StageAwaitingVoucher || body.ConversationID != "ws:conv-1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestGetSessionHidesTelegramConversations(t *testing.T) {
	r, store := setupRouter(t)
	putSession(t, store, "tg:424242", topup.StageAwaitingVoucher)

	resp := get(r, "/sessions/tg:424242")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for telegram conversation, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "98765432") {
		t.Fatalf("telegram session leaked: %s", resp.Body.String())
	}
}

func TestGetSessionDoesNotWaitForRunningAttempt(t *testing.T) {
	r, store := setupRouter(t)
	putSession(t, store, "ws:busy", topup.StageAwaitingVoucher)

	lease, err := store.Acquire(context.Background(), "ws:busy")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lease.Session().Stage = topup.StageExecuting
	defer lease.Release()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- get(r, "/sessions/ws:busy") }()

	select {
	case resp := <-done:
		if resp.Code != http.StatusConflict {
			t.Fatalf("expected 409 while the lease is held, got %d", resp.Code)
		}
		var body Status
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Stage != topup.StageExecuting {
			t.Fatalf("expected executing, got %s", body.Stage)
		}
	case <-time.After(time.Second):
		t.Fatal("request blocked on the held lease")
	}
}
