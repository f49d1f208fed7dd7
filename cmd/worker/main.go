// Command worker runs the Automation Worker process (spec §4.4, C4): one
// browser session at a time, driven entirely by job_application tasks
// consumed from the broker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/config"
	"jobmate/orchestrator/internal/worker"
	"jobmate/orchestrator/internal/worker/browser"
)

func main() {
	setupLogger()

	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("worker: config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broker.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("worker: broker connect failed", "err", err)
		os.Exit(1)
	}
	defer b.Close()

	factory, err := browser.NewPlaywrightFactory()
	if err != nil {
		slog.Error("worker: playwright launch failed", "err", err)
		os.Exit(1)
	}
	defer factory.Close()

	runner := worker.NewRunner(b, factory, nil, cfg)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-ctx.Done():
		slog.Info("worker: shutdown signal received, waiting for current task", "grace", 60*time.Second)
		select {
		case <-done:
		case <-time.After(60 * time.Second):
			slog.Warn("worker: grace period exceeded, exiting anyway")
		}
	case err := <-done:
		if err != nil && err != context.Canceled {
			slog.Error("worker: run loop exited with error", "err", err)
			os.Exit(2)
		}
	}

	slog.Info("worker: shutdown complete")
}

func setupLogger() {
	var handler slog.Handler
	opts := &slog.HandlerOptions{}
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("service", "worker")
	slog.SetDefault(logger)
}
