package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/topup-bot/internal/handler/catalog"
	"github.com/zhouzirui/topup-bot/internal/handler/gateway"
	"github.com/zhouzirui/topup-bot/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/topup-bot/internal/middleware"
	catalogModel "github.com/zhouzirui/topup-bot/internal/model/catalog"
	topupService "github.com/zhouzirui/topup-bot/internal/service/topup"
	"github.com/zhouzirui/topup-bot/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(options catalogModel.Store, sessions *topupService.Store, dispatcher gateway.Submitter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		catalog.New(options).RegisterRoutes(api)
		session.New(sessions).RegisterRoutes(api)

		// Websocket chat gateway
		gateway.NewWebSocketHandler(dispatcher).RegisterRoutes(api)
	})

	return r
}
