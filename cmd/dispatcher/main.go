// Command dispatcher runs the Application Store owner and orchestration
// process (spec §4.3, C3): HTTP intake, result drain, and the maintenance
// sweep, all talking to the worker process only through the broker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/config"
	"jobmate/orchestrator/internal/dispatcher"
	"jobmate/orchestrator/internal/hitl"
	"jobmate/orchestrator/internal/notify"
	"jobmate/orchestrator/internal/security"
	"jobmate/orchestrator/internal/store"
)

func main() {
	setupLogger()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("dispatcher: config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("dispatcher: database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	st := store.New(pool)

	b, err := broker.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("dispatcher: broker connect failed", "err", err)
		os.Exit(1)
	}
	defer b.Close()

	key, err := security.DecodeKey(cfg.EncryptionKey)
	if err != nil {
		slog.Error("dispatcher: decode encryption key failed", "err", err)
		os.Exit(1)
	}
	box, err := security.NewBox(key)
	if err != nil {
		slog.Error("dispatcher: init encryption box failed", "err", err)
		os.Exit(1)
	}

	var sms *notify.SMSGateway
	if cfg.TwilioAccountSID != "" {
		sms = notify.NewSMSGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.SMSFrom)
		go notify.NewConsumer(b, sms, st).Run(ctx)
	}

	d := dispatcher.New(st, b, box, sms, nil, nil, cfg)

	var webhook *hitl.Controller
	publicURL := os.Getenv("SMS_WEBHOOK_URL")
	if sms != nil {
		webhook = hitl.New(st, b, sms, d, publicURL)
	}

	handler := dispatcher.NewHandler(d, webhookOrNil(webhook))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		slog.Info("dispatcher: listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("dispatcher: http server failed", "err", err)
		}
	}()

	runDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(runDone)
	}()

	<-ctx.Done()
	slog.Info("dispatcher: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("dispatcher: http shutdown failed", "err", err)
	}
	<-runDone

	slog.Info("dispatcher: shutdown complete")
}

// webhookOrNil avoids passing a typed-nil *hitl.Controller into the
// dispatcher.SMSWebhook interface, which would compare non-nil.
func webhookOrNil(c *hitl.Controller) dispatcher.SMSWebhook {
	if c == nil {
		return nil
	}
	return c
}

func setupLogger() {
	var handler slog.Handler
	opts := &slog.HandlerOptions{}
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("service", "dispatcher")
	slog.SetDefault(logger)
}
