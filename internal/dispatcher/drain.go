package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"jobmate/orchestrator/internal/apperrors"
	"jobmate/orchestrator/internal/domain"
)

// runDrainLoop implements result drain (spec §4.3.2): long-poll
// update_job_status and approval_request, apply the transition, and enqueue
// a user notification. Per-application ordering is enforced with a short
// mutex keyed by application_id (spec §5 "the dispatcher MUST drain one
// message at a time per application"); handling itself runs on its own
// goroutine so a slow handler for one application never blocks polling for
// the next message.
func (d *Dispatcher) runDrainLoop(ctx context.Context) {
	locks := newAppLockTable()
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return
		}
		d.drainStep(ctx, locks, &wg)
	}
}

func (d *Dispatcher) drainStep(ctx context.Context, locks *appLockTable, wg *sync.WaitGroup) {
	task, err := d.Broker.Consume(ctx, domain.TaskUpdateJobStatus, 2*time.Second)
	if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		slog.Error("dispatcher: consume update_job_status failed", "err", err)
	}
	if task != nil {
		wg.Add(1)
		go func() { defer wg.Done(); d.handleUpdateJobStatus(ctx, task, locks) }()
		return
	}

	task, err = d.Broker.Consume(ctx, domain.TaskApprovalRequest, 2*time.Second)
	if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		slog.Error("dispatcher: consume approval_request failed", "err", err)
	}
	if task != nil {
		wg.Add(1)
		go func() { defer wg.Done(); d.handleApprovalRequest(ctx, task, locks) }()
	}
}

func (d *Dispatcher) handleUpdateJobStatus(ctx context.Context, task *domain.QueueTask, locks *appLockTable) {
	payload, err := domain.DecodeUpdateJobStatusPayload(task.Payload)
	if err != nil {
		slog.Error("dispatcher: dead-lettering malformed update_job_status", "task_id", task.ID, "err", err)
		return
	}

	unlock := locks.Lock(payload.ApplicationID)
	defer unlock()

	app, err := d.Store.ApplyUpdateJobStatus(ctx, payload)
	var valErr *apperrors.ValidationError
	if errors.As(err, &valErr) {
		slog.Error("dispatcher: dead-lettering update_job_status", "task_id", task.ID, "err", err)
		return
	}
	if errors.Is(err, apperrors.ErrAlreadyTerminal) {
		// P3: redelivery for a terminal Application is a no-op — already
		// logged by the store, no notification re-sent.
		return
	}
	if err != nil {
		slog.Error("dispatcher: apply update_job_status failed", "task_id", task.ID, "err", err)
		return
	}

	switch payload.Status {
	case domain.JobStatusApplied:
		d.enqueueNotification(ctx, app.ProfileID, "Your application for \""+app.ID+"\" was submitted successfully.")
	case domain.JobStatusFailed:
		d.enqueueNotification(ctx, app.ProfileID, "Your application for \""+app.ID+"\" could not be submitted: "+payload.ErrorMessage)
	case domain.JobStatusNeedsUserInfo:
		d.enqueueNotification(ctx, app.ProfileID, "Your application for \""+app.ID+"\" needs more information. Reply to the earlier request or check status.")
	}
}

func (d *Dispatcher) handleApprovalRequest(ctx context.Context, task *domain.QueueTask, locks *appLockTable) {
	payload, err := domain.DecodeApprovalRequestPayload(task.Payload)
	if err != nil {
		slog.Error("dispatcher: dead-lettering malformed approval_request", "task_id", task.ID, "err", err)
		return
	}

	unlock := locks.Lock(payload.ApplicationID)
	defer unlock()

	app, err := d.Store.ApplyApprovalRequest(ctx, payload, payload.CurrentState)
	if errors.Is(err, apperrors.ErrForbiddenTransition) {
		slog.Warn("dispatcher: approval_request for application not eligible for WAITING_APPROVAL", "application_id", payload.ApplicationID)
		return
	}
	if err != nil {
		slog.Error("dispatcher: apply approval_request failed", "task_id", task.ID, "err", err)
		return
	}

	d.enqueueNotification(ctx, app.ProfileID, "One of your applications needs your input: "+payload.Question+" Reply to this text with your answer.")
}

// drainOnce runs bounded drain iterations against a fresh context deadline,
// used during the SIGTERM grace window (spec §5) instead of the unbounded
// runDrainLoop.
func (d *Dispatcher) drainOnce(ctx context.Context) {
	locks := newAppLockTable()
	var wg sync.WaitGroup
	defer wg.Wait()

	for ctx.Err() == nil {
		d.drainStep(ctx, locks, &wg)
	}
}

// appLockTable hands out per-application_id mutexes, created lazily and
// never removed — the table's lifetime is one dispatcher process, and the
// application_id keyspace is bounded by the store, not by memory pressure
// concerns this exercise needs to solve.
type appLockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAppLockTable() *appLockTable {
	return &appLockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *appLockTable) Lock(applicationID string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[applicationID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[applicationID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
