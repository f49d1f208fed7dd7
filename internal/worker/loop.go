// Package worker implements the Automation Worker (spec §4.4, C4): a
// bounded agentic loop that drives one browser.Session per job_application
// task through page classification, field filling, and custom-question
// resolution, then reports exactly one terminal outcome.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobmate/orchestrator/internal/apperrors"
	"jobmate/orchestrator/internal/blob"
	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/config"
	"jobmate/orchestrator/internal/domain"
	"jobmate/orchestrator/internal/worker/browser"
)

// Runner consumes job_application tasks and drives them to a terminal
// outcome. Credentials arrive already decrypted inside the task payload
// (the dispatcher performs decryption before publish, spec §4.3) so the
// worker never touches internal/security directly.
type Runner struct {
	broker      *broker.Broker
	factory     browser.Factory
	screenshots blob.Store // nil disables screenshot capture on approval halts
	cfg         *config.Worker
}

// NewRunner wires the queue, browser factory, and screenshot store
// together. screenshots may be nil, in which case approval_request
// payloads carry no screenshot_url.
func NewRunner(b *broker.Broker, factory browser.Factory, screenshots blob.Store, cfg *config.Worker) *Runner {
	return &Runner{broker: b, factory: factory, screenshots: screenshots, cfg: cfg}
}

// Run blocks, consuming job_application tasks until ctx is cancelled.
// Shutdown honors spec §5: no new consume once ctx is done, current task
// finishes within its own step ceiling.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.publishHeartbeat(context.Background(), "shutting_down", "")
			return ctx.Err()
		default:
		}

		task, err := r.broker.Consume(ctx, domain.TaskJobApplication, 5*time.Second)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			slog.Error("worker: consume failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			r.publishHeartbeat(ctx, "idle", "")
			continue
		}

		r.publishHeartbeat(ctx, "busy", task.ID)
		r.processWithRetry(context.WithoutCancel(ctx), task)
	}
}

func (r *Runner) publishHeartbeat(ctx context.Context, status, inFlight string) {
	if err := r.broker.PublishHeartbeat(ctx, "automation", broker.Heartbeat{
		Timestamp:    time.Now().UTC(),
		Status:       status,
		InFlightTask: inFlight,
	}); err != nil {
		slog.Warn("worker: publish heartbeat failed", "err", err)
	}
}

// processWithRetry implements worker-level retry (spec §4.4.4): transient
// errors re-publish with exponential backoff min(2^retries, 30)s up to
// MaxRetries, after which the task is failed permanently.
func (r *Runner) processWithRetry(ctx context.Context, task *domain.QueueTask) {
	outcome, err := r.processTask(ctx, task)
	if err == nil {
		r.publishOutcome(ctx, task, outcome)
		return
	}

	var taskErr *apperrors.TaskExecutionError
	if !errors.As(err, &taskErr) {
		slog.Error("worker: non-retriable error", "task_id", task.ID, "err", err)
		r.publishFailure(ctx, task, err.Error())
		return
	}

	if task.Retries >= r.cfg.MaxRetries {
		slog.Warn("worker: retry budget exhausted", "task_id", task.ID, "retries", task.Retries)
		r.publishFailure(ctx, task, taskErr.Error())
		return
	}

	backoff := time.Duration(minInt(1<<uint(task.Retries), 30)) * time.Second
	slog.Info("worker: retrying after transient failure", "task_id", task.ID, "backoff", backoff, "err", taskErr)
	time.Sleep(backoff)
	if err := r.broker.Requeue(ctx, task); err != nil {
		slog.Error("worker: requeue failed", "task_id", task.ID, "err", err)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// withSubAttempts retries a single step's action up to NAttempts times
// before letting the failure propagate to processTask's step-level handling
// (spec §4.4 item 1: "up to N_attempts sub-attempts" per top-level step).
// Only the sub-attempt loop retries in place; exhausting it still surfaces
// as one *apperrors.TaskExecutionError for that step, subject to the
// worker-level retry/backoff policy in processWithRetry.
func (r *Runner) withSubAttempts(ctx context.Context, step string, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.cfg.NAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == r.cfg.NAttempts-1 {
			break
		}
		slog.Warn("worker: sub-attempt failed, retrying", "step", step, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return err
}

// outcome is the worker's terminal disposition for one task (spec §4.4.3).
type outcome struct {
	kind             string // success|needs_approval
	confirmationText string
	question         string
	screenshotURL    string
	stateBlob        string
}

// processTask runs the bounded agentic loop for a single task. It never
// returns a bare error for a page/action failure — those are wrapped as
// *apperrors.TaskExecutionError so processWithRetry can apply the retry
// policy; anything else (malformed payload) is a hard ValidationError.
func (r *Runner) processTask(ctx context.Context, task *domain.QueueTask) (*outcome, error) {
	payload, err := domain.DecodeJobApplicationPayload(task.Payload)
	if err != nil {
		return nil, &apperrors.ValidationError{Msg: err.Error()}
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepCeiling)
	defer cancel()

	session, err := r.factory.Open(stepCtx, payload.ResumeFrom)
	if err != nil {
		return nil, &apperrors.TaskExecutionError{Step: "open_session", Err: err}
	}
	defer session.Close(context.Background())

	if payload.ResumeFrom == "" {
		if err := session.Navigate(stepCtx, payload.JobURL); err != nil {
			return nil, &apperrors.TaskExecutionError{Step: "navigate", Err: err}
		}
	}

	for step := 0; step < r.cfg.NSteps; step++ {
		select {
		case <-stepCtx.Done():
			return nil, &apperrors.TaskExecutionError{Step: "timeout", Err: stepCtx.Err()}
		default:
		}

		var kind browser.PageKind
		if err := r.withSubAttempts(stepCtx, "classify", func() (err error) {
			kind, err = session.Classify(stepCtx)
			return err
		}); err != nil {
			return nil, &apperrors.TaskExecutionError{Step: "classify", Err: err}
		}

		switch kind {
		case browser.PageJobDescription:
			if err := r.withSubAttempts(stepCtx, "click_apply", func() error {
				return session.ClickApply(stepCtx)
			}); err != nil {
				return nil, &apperrors.TaskExecutionError{Step: "click_apply", Err: err}
			}

		case browser.PageLogin:
			if payload.Credentials == nil {
				return nil, &apperrors.TaskExecutionError{Step: "login", Err: fmt.Errorf("login required but no credentials supplied")}
			}
			if err := r.withSubAttempts(stepCtx, "login", func() error {
				return session.Authenticate(stepCtx, payload.Credentials.Username, payload.Credentials.Password)
			}); err != nil {
				return nil, &apperrors.TaskExecutionError{Step: "login", Err: err}
			}

		case browser.PageApplicationForm:
			var needsApproval *string
			if err := r.withSubAttempts(stepCtx, "fill_form", func() (err error) {
				needsApproval, err = r.fillForm(stepCtx, session, payload)
				return err
			}); err != nil {
				return nil, &apperrors.TaskExecutionError{Step: "fill_form", Err: err}
			}
			if needsApproval != nil {
				return r.buildApprovalOutcome(stepCtx, session, *needsApproval)
			}
			if err := r.withSubAttempts(stepCtx, "advance", func() error {
				return session.Advance(stepCtx)
			}); err != nil {
				return nil, &apperrors.TaskExecutionError{Step: "advance", Err: err}
			}

		case browser.PageMultiStep:
			if err := r.withSubAttempts(stepCtx, "advance_multi_step", func() error {
				return session.Advance(stepCtx)
			}); err != nil {
				return nil, &apperrors.TaskExecutionError{Step: "advance_multi_step", Err: err}
			}

		case browser.PageConfirmation:
			var text string
			if err := r.withSubAttempts(stepCtx, "extract_confirmation", func() (err error) {
				text, err = session.ExtractConfirmation(stepCtx)
				return err
			}); err != nil {
				return nil, &apperrors.TaskExecutionError{Step: "extract_confirmation", Err: err}
			}
			return &outcome{kind: "success", confirmationText: text}, nil

		case browser.PageUnknown:
			return nil, &apperrors.TaskExecutionError{Step: "classify", Err: fmt.Errorf("page did not match any known kind")}
		}
	}

	return nil, &apperrors.TaskExecutionError{Step: "step_budget", Err: fmt.Errorf("exceeded %d steps without reaching a terminal page", r.cfg.NSteps)}
}

// fillForm fills every standard field it can map and answers every custom
// question it can classify deterministically. It returns a non-nil
// question string the instant one question cannot be answered — the
// worker MUST NOT retain the session past that point except to capture the
// approval snapshot (spec §4.4.2c, §4.4.3).
func (r *Runner) fillForm(ctx context.Context, session browser.Session, payload domain.JobApplicationPayload) (*string, error) {
	fields, err := session.Fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate fields: %w", err)
	}

	for _, f := range fields {
		if f.IsPassword {
			continue // credentials are handled by the login branch only
		}

		if f.Kind == "file" {
			if err := r.attachUpload(ctx, session, f, payload); err != nil {
				return nil, err
			}
			continue
		}

		if value, ok := mapStandardField(f.Label, payload.UserData); ok {
			if err := session.Fill(ctx, f.Name, value); err != nil {
				return nil, fmt.Errorf("fill field %q: %w", f.Label, err)
			}
			continue
		}

		if !f.Required {
			continue
		}

		answer, ok := classifyQuestion(f.Label, payload.CustomAnswers, payload.UserData)
		if !ok {
			return &f.Label, nil
		}
		slog.Info("worker: answered custom question", "question", f.Label, "confidence", answer.Confidence)
		if err := session.Fill(ctx, f.Name, answer.Answer); err != nil {
			return nil, fmt.Errorf("fill custom answer %q: %w", f.Label, err)
		}
	}
	return nil, nil
}

func (r *Runner) attachUpload(ctx context.Context, session browser.Session, f browser.Field, payload domain.JobApplicationPayload) error {
	l := f.Label
	switch {
	case containsAny(l, "resume", "cv"):
		if payload.UserData.ResumeURL == "" {
			return nil
		}
		return session.UploadFile(ctx, f.Name, "resume.pdf", []byte(payload.UserData.ResumeURL))
	case containsAny(l, "cover letter"):
		if payload.UserData.CoverLetterURL == "" {
			return nil
		}
		return session.UploadFile(ctx, f.Name, "cover_letter.pdf", []byte(payload.UserData.CoverLetterURL))
	}
	return nil
}

func containsAny(s string, substrs ...string) bool {
	l := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

// buildApprovalOutcome captures a screenshot (redacted rules apply before
// this point — password pages never reach fillForm) and serialized state
// for a needsApproval halt.
func (r *Runner) buildApprovalOutcome(ctx context.Context, session browser.Session, question string) (*outcome, error) {
	stateBlob, err := session.Serialize(ctx)
	if err != nil {
		return nil, &apperrors.TaskExecutionError{Step: "serialize", Err: err}
	}

	var screenshotURL string
	if r.screenshots != nil {
		shot, err := session.Screenshot(ctx)
		if err != nil {
			slog.Warn("worker: screenshot failed for approval outcome", "err", err)
		} else {
			url, err := r.screenshots.Put(ctx, fmt.Sprintf("approvals/%d.png", time.Now().UTC().UnixNano()), "image/png", shot)
			if err != nil {
				slog.Warn("worker: screenshot upload failed", "err", err)
			} else {
				screenshotURL = url
			}
		}
	}

	return &outcome{
		kind:          "needs_approval",
		question:      question,
		stateBlob:     stateBlob,
		screenshotURL: screenshotURL,
	}, nil
}

func (r *Runner) publishOutcome(ctx context.Context, task *domain.QueueTask, o *outcome) {
	var payload domain.JobApplicationPayload
	_ = json.Unmarshal(task.Payload, &payload)

	switch o.kind {
	case "success":
		now := time.Now().UTC().Format(time.RFC3339)
		r.publishUpdate(ctx, payload.ApplicationID, domain.UpdateJobStatusPayload{
			ApplicationID: payload.ApplicationID,
			JobID:         payload.JobID,
			Status:        domain.JobStatusApplied,
			Notes:         o.confirmationText,
			SubmittedAt:   now,
		})
	case "needs_approval":
		r.publishUpdate(ctx, payload.ApplicationID, domain.UpdateJobStatusPayload{
			ApplicationID: payload.ApplicationID,
			JobID:         payload.JobID,
			Status:        domain.JobStatusWaitingApproval,
		})
		r.publishApproval(ctx, domain.ApprovalRequestPayload{
			ApplicationID: payload.ApplicationID,
			JobID:         payload.JobID,
			Question:      o.question,
			CurrentState:  o.stateBlob,
			ScreenshotURL: o.screenshotURL,
		})
	}
}

func (r *Runner) publishFailure(ctx context.Context, task *domain.QueueTask, message string) {
	var payload domain.JobApplicationPayload
	_ = json.Unmarshal(task.Payload, &payload)
	r.publishUpdate(ctx, payload.ApplicationID, domain.UpdateJobStatusPayload{
		ApplicationID: payload.ApplicationID,
		JobID:         payload.JobID,
		Status:        domain.JobStatusFailed,
		ErrorMessage:  message,
	})
}

func (r *Runner) publishUpdate(ctx context.Context, appID string, p domain.UpdateJobStatusPayload) {
	if _, err := r.broker.Publish(ctx, domain.TaskUpdateJobStatus, p, 0); err != nil {
		slog.Error("worker: publish update_job_status failed", "application_id", appID, "err", err)
	}
}

func (r *Runner) publishApproval(ctx context.Context, p domain.ApprovalRequestPayload) {
	if _, err := r.broker.Publish(ctx, domain.TaskApprovalRequest, p, 0); err != nil {
		slog.Error("worker: publish approval_request failed", "application_id", p.ApplicationID, "err", err)
	}
}
