package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/topup"
	"github.com/zhouzirui/topup-bot/internal/service/purchase"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, purchase.Request) topup.Outcome {
	return topup.UnknownFailure{Class: topup.ClassNoMarker}
}

func TestRouterRoutes(t *testing.T) {
	store := topupService.NewStore()
	svc := topupService.NewService(store, catalog.Default(), noopExecutor{})
	dispatcher := topupService.NewDispatcher(context.Background(), svc)
	defer dispatcher.Close(context.Background())

	router := NewRouter(catalog.Default(), store, dispatcher)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/catalog", http.StatusOK},
		{http.MethodGet, "/api/sessions/ws:nobody", http.StatusNotFound},
		{http.MethodOptions, "/api/catalog", http.StatusNoContent},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}
