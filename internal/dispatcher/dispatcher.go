// Package dispatcher implements the Dispatcher (spec §4.3, C3): the only
// component that writes to the Application Store. It runs three concurrent
// loops — trigger intake, result drain, maintenance — plus the HTTP surface
// of spec §6.1, grounded on tracker-service/internal/kanban's handler
// layout and discovery-service/internal/scheduler's cron-driven sweep.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"jobmate/orchestrator/internal/blob"
	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/config"
	"jobmate/orchestrator/internal/domain"
	"jobmate/orchestrator/internal/llm"
	"jobmate/orchestrator/internal/notify"
	"jobmate/orchestrator/internal/security"
	"jobmate/orchestrator/internal/store"
)

// Dispatcher wires the store, broker, and outbound clients together. All
// three loops (Run methods below) share these dependencies but never share
// mutable state beyond them — every Application row lock lives entirely
// inside a single store call (spec §5 "no operation may hold a row lock
// across an external call").
type Dispatcher struct {
	Store   *store.Store
	Broker  *broker.Broker
	Box     *security.Box
	Scorer  llm.Scorer  // may be nil; /jobs/rank then answers 501
	Blob    blob.Store  // may be nil; resume/cover-letter URLs pass through unresolved
	SMS     *notify.SMSGateway
	Cfg     *config.Dispatcher
}

// New constructs a Dispatcher. Scorer and Blob are optional (spec §1: LLM
// and blob backends are out of scope, callers may wire nil).
func New(st *store.Store, b *broker.Broker, box *security.Box, sms *notify.SMSGateway, scorer llm.Scorer, blobStore blob.Store, cfg *config.Dispatcher) *Dispatcher {
	return &Dispatcher{Store: st, Broker: b, Box: box, Scorer: scorer, Blob: blobStore, SMS: sms, Cfg: cfg}
}

// enqueueNotification publishes a send_notification task. The dispatcher
// never calls the SMS gateway inline (spec §4.3 result drain).
func (d *Dispatcher) enqueueNotification(ctx context.Context, profileID, message string) {
	_, err := d.Broker.Publish(ctx, domain.TaskSendNotification, domain.SendNotificationPayload{
		ProfileID: profileID,
		Message:   message,
	}, 0)
	if err != nil {
		slog.Error("dispatcher: enqueue send_notification failed", "profile_id", profileID, "err", err)
	}
}

// Run starts the drain and maintenance loops (trigger intake runs inside
// the HTTP handlers) and blocks until ctx is cancelled, honoring the
// SIGTERM drain contract of spec §5: intake stops accepting new HTTP
// work at the http.Server level (owned by cmd/dispatcher), drain keeps
// consuming for up to 30s after cancellation, maintenance simply stops.
func (d *Dispatcher) Run(ctx context.Context) {
	go d.runDrainLoop(ctx)
	go d.runMaintenanceLoop(ctx)
	<-ctx.Done()
	slog.Info("dispatcher: shutting down, draining result queues", "grace", 30*time.Second)
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.drainOnce(drainCtx)
}
