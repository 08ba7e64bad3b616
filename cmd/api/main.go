package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/topup-bot/internal/config"
	"github.com/zhouzirui/topup-bot/internal/handler"
	"github.com/zhouzirui/topup-bot/internal/handler/telegram"
	"github.com/zhouzirui/topup-bot/internal/logging"
	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/service/purchase"
	"github.com/zhouzirui/topup-bot/internal/service/topup"
	"github.com/zhouzirui/topup-bot/internal/telemetry"
)

const drainTimeout = 90 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Log); err != nil {
		slog.Error("failed to configure logging", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if envErr != nil {
		slog.Warn("failed to load .env file, continuing with system environment variables only", slog.String("error", envErr.Error()))
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	// Attempts in flight keep running after a shutdown signal until drained.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	chrome := purchase.NewChrome(workCtx, cfg.Chrome.ChromeOptions())
	defer chrome.Close()

	options := catalog.Default()
	executor := purchase.NewExecutor(chrome, options, cfg.Storefront.ExecutorOptions())

	var svcOpts []topup.Option
	if path := cfg.Bot.WelcomeImagePath; path != "" {
		image, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read welcome image, sending text only", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			svcOpts = append(svcOpts, topup.WithWelcomeImage(image))
		}
	}

	sessions := topup.NewStore()
	svc := topup.NewService(sessions, options, executor, svcOpts...)
	dispatcher := topup.NewDispatcher(workCtx, svc)

	router := handler.NewRouter(options, sessions, dispatcher)

	var bot *telegram.Bot
	if cfg.Telegram.Enabled() {
		api, err := telegram.Connect(cfg.Telegram.Token, cfg.Telegram.Debug)
		if err != nil {
			return err
		}
		slog.Info("telegram bot authorised", slog.String("account", api.Self.UserName))
		bot = telegram.New(api, dispatcher, svc, cfg.Telegram.PollTimeout)
	} else {
		slog.Info("BOT_TOKEN not set, telegram gateway disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return startServer(gctx, cfg.Server, router)
	})
	if bot != nil {
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		slog.Warn("abandoning unfinished conversations", slog.String("error", err.Error()))
	}

	return runErr
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("top-up bot listening", slog.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
