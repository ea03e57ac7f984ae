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

	"sapex/backend/internal/api/handler"
	"sapex/backend/internal/app"
	"sapex/backend/internal/config"
	"sapex/backend/internal/localization"
	"sapex/backend/internal/observability"
	"sapex/backend/internal/studyroom"
	"sapex/backend/internal/supporthub"
	"sapex/backend/internal/telegram"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("backend stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	slog.Info("starting sapex backend", "backend", cfg.Backend, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	store, closeStore, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// 2. Hub, matcher and the optional Telegram relay
	hub := supporthub.NewManagerService(store)
	matcher := supporthub.NewMatcherService(store, cfg.MatchInterval)
	auth := handler.NewAuth(cfg.JWTSecret, cfg.TokenTTL)

	var bot *telegram.BotService
	if cfg.TelegramToken != "" {
		loc, err := localization.NewLocalizer()
		if err != nil {
			return err
		}
		bot, err = telegram.NewBotService(cfg.TelegramToken, store, loc, auth)
		if err != nil {
			return err
		}
	} else {
		slog.Info("TELEGRAM_BOT_TOKEN not set, telegram relay disabled")
	}

	// 3. HTTP
	meets := studyroom.NewService(cfg.CalendarCredentials, cfg.CalendarID)
	h := handler.NewHandler(hub, matcher, meets, auth)
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return matcher.Run(gctx) })
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
