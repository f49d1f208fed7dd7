package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const heartbeatFreshness = 120 * time.Second

// runMaintenanceLoop schedules the stale-SUBMITTING sweep (spec §4.3.3) on
// a cron.Cron, grounded on discovery-service/internal/scheduler's use of
// robfig/cron for its periodic scraping sweep.
func (d *Dispatcher) runMaintenanceLoop(ctx context.Context) {
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() { d.sweepStale(ctx) }); err != nil {
		slog.Error("dispatcher: schedule maintenance sweep failed", "err", err)
		return
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
}

// sweepStale finds Applications stuck in SUBMITTING past d.Cfg.StaleAfter
// with no recent worker heartbeat, transitions them to ERROR, and retries
// them if the dispatcher-level attempts budget is not exhausted.
func (d *Dispatcher) sweepStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-d.Cfg.StaleAfter)
	stale, err := d.Store.FindStaleSubmitting(ctx, cutoff)
	if err != nil {
		slog.Error("dispatcher: sweep stale query failed", "err", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	hb, err := d.Broker.LastHeartbeat(ctx, "automation")
	if err != nil {
		slog.Error("dispatcher: sweep heartbeat lookup failed", "err", err)
		return
	}
	workerAlive := hb != nil && time.Since(hb.Timestamp) < heartbeatFreshness

	for i := range stale {
		app := &stale[i]
		if workerAlive {
			// A live worker may simply still be inside its step ceiling on
			// this task; only applications with a stale heartbeat AND a
			// stale row are treated as abandoned.
			continue
		}

		if _, err := d.Store.FailPermanently(ctx, app.ID, "worker lost"); err != nil {
			slog.Error("dispatcher: mark worker-lost failed", "application_id", app.ID, "err", err)
			continue
		}

		if app.Attempts >= d.Cfg.MaxRetries {
			slog.Warn("dispatcher: retry budget exhausted, leaving application in ERROR", "application_id", app.ID, "attempts", app.Attempts)
			d.enqueueNotification(ctx, app.ProfileID, "Your application for \""+app.ID+"\" failed after repeated attempts and needs manual review.")
			continue
		}

		if _, err := d.Store.RetryFromError(ctx, app.ID); err != nil {
			slog.Error("dispatcher: retry from error failed", "application_id", app.ID, "err", err)
			continue
		}
		if _, _, err := d.TriggerApplication(ctx, app.ProfileID, app.RoleID); err != nil {
			slog.Error("dispatcher: retry re-trigger failed", "application_id", app.ID, "err", err)
		}
	}
}
