package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/config"
	"jobmate/orchestrator/internal/domain"
	"jobmate/orchestrator/internal/worker/browser"
)

// fakeSession is a scripted browser.Session double. kinds is consumed one
// classification per Classify call; the last entry repeats once exhausted.
type fakeSession struct {
	kinds        []browser.PageKind
	kindIdx      int
	fields       []browser.Field
	closeCalled  bool
	confirmation string
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeSession) Classify(ctx context.Context) (browser.PageKind, error) {
	if f.kindIdx >= len(f.kinds) {
		return f.kinds[len(f.kinds)-1], nil
	}
	k := f.kinds[f.kindIdx]
	f.kindIdx++
	return k, nil
}

func (f *fakeSession) Fields(ctx context.Context) ([]browser.Field, error) { return f.fields, nil }
func (f *fakeSession) Fill(ctx context.Context, fieldName, value string) error { return nil }
func (f *fakeSession) UploadFile(ctx context.Context, fieldName, filename string, content []byte) error {
	return nil
}
func (f *fakeSession) Select(ctx context.Context, fieldName, value string) error { return nil }
func (f *fakeSession) ClickApply(ctx context.Context) error                     { return nil }
func (f *fakeSession) Authenticate(ctx context.Context, username, password string) error {
	return nil
}
func (f *fakeSession) Advance(ctx context.Context) error { return nil }
func (f *fakeSession) ExtractConfirmation(ctx context.Context) (string, error) {
	return f.confirmation, nil
}
func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
func (f *fakeSession) Serialize(ctx context.Context) (string, error)  { return "state-blob", nil }
func (f *fakeSession) Close(ctx context.Context) error                { f.closeCalled = true; return nil }

type fakeFactory struct {
	session *fakeSession
	err     error
}

func (f *fakeFactory) Open(ctx context.Context, resumeFrom string) (browser.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeBlobStore struct{ url string }

func (s *fakeBlobStore) Put(ctx context.Context, key, contentType string, content []byte) (string, error) {
	return s.url, nil
}

func newTestRunnerBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return broker.New(rdb)
}

func testWorkerConfig() *config.Worker {
	return &config.Worker{
		MaxRetries:       2,
		StagehandTimeout: time.Second,
		StepCeiling:      5 * time.Second,
		NSteps:           10,
		NAttempts:        3,
		HeartbeatEvery:   time.Second,
	}
}

func mustPublishTask(t *testing.T, b *broker.Broker, payload domain.JobApplicationPayload, retries int) *domain.QueueTask {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &domain.QueueTask{
		ID:        "task-1",
		Type:      domain.TaskJobApplication,
		Payload:   raw,
		Retries:   retries,
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessTaskSuccessOnConfirmation(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{
		kinds:        []browser.PageKind{browser.PageJobDescription, browser.PageConfirmation},
		confirmation: "Reference #12345",
	}
	r := NewRunner(b, &fakeFactory{session: session}, nil, testWorkerConfig())

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-1",
		JobID:         "job-1",
		JobURL:        "https://example.com/job/1",
	}, 0)

	out, err := r.processTask(context.Background(), task)
	if err != nil {
		t.Fatalf("processTask: %v", err)
	}
	if out.kind != "success" {
		t.Errorf("kind = %q, want success", out.kind)
	}
	if out.confirmationText != "Reference #12345" {
		t.Errorf("confirmationText = %q", out.confirmationText)
	}
	if !session.closeCalled {
		t.Error("expected session.Close to be called")
	}
}

func TestProcessTaskHaltsForApprovalOnUnansweredQuestion(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{
		kinds: []browser.PageKind{browser.PageApplicationForm},
		fields: []browser.Field{
			{Label: "Do you require visa sponsorship?", Name: "sponsor", Kind: "text", Required: true},
		},
	}
	store := &fakeBlobStore{url: "https://blobs.example.com/shot.png"}
	r := NewRunner(b, &fakeFactory{session: session}, store, testWorkerConfig())

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-2",
		JobID:         "job-2",
		JobURL:        "https://example.com/job/2",
	}, 0)

	out, err := r.processTask(context.Background(), task)
	if err != nil {
		t.Fatalf("processTask: %v", err)
	}
	if out.kind != "needs_approval" {
		t.Fatalf("kind = %q, want needs_approval", out.kind)
	}
	if out.question != "Do you require visa sponsorship?" {
		t.Errorf("question = %q", out.question)
	}
	if out.stateBlob != "state-blob" {
		t.Errorf("stateBlob = %q", out.stateBlob)
	}
	if out.screenshotURL != store.url {
		t.Errorf("screenshotURL = %q, want %q", out.screenshotURL, store.url)
	}
}

func TestProcessTaskFillsStandardFieldsAndAdvances(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{
		kinds: []browser.PageKind{browser.PageApplicationForm, browser.PageConfirmation},
		fields: []browser.Field{
			{Label: "Email", Name: "email", Kind: "email", Required: true},
			{Label: "Password", Name: "pw", Kind: "password", Required: true, IsPassword: true},
		},
		confirmation: "done",
	}
	r := NewRunner(b, &fakeFactory{session: session}, nil, testWorkerConfig())

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-3",
		JobID:         "job-3",
		JobURL:        "https://example.com/job/3",
		UserData:      domain.UserData{Email: "ada@example.com"},
	}, 0)

	out, err := r.processTask(context.Background(), task)
	if err != nil {
		t.Fatalf("processTask: %v", err)
	}
	if out.kind != "success" {
		t.Errorf("kind = %q, want success", out.kind)
	}
}

func TestProcessTaskUnknownPageIsTaskExecutionError(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{kinds: []browser.PageKind{browser.PageUnknown}}
	r := NewRunner(b, &fakeFactory{session: session}, nil, testWorkerConfig())

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-4",
		JobID:         "job-4",
		JobURL:        "https://example.com/job/4",
	}, 0)

	_, err := r.processTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected an error for an unclassifiable page")
	}
}

func TestProcessTaskExceedsStepBudget(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{kinds: []browser.PageKind{browser.PageMultiStep}}
	cfg := testWorkerConfig()
	cfg.NSteps = 3
	r := NewRunner(b, &fakeFactory{session: session}, nil, cfg)

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-5",
		JobID:         "job-5",
		JobURL:        "https://example.com/job/5",
	}, 0)

	_, err := r.processTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected a step-budget error")
	}
}

func TestProcessWithRetryRequeuesOnTransientFailure(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{kinds: []browser.PageKind{browser.PageUnknown}}
	cfg := testWorkerConfig()
	cfg.MaxRetries = 3
	r := NewRunner(b, &fakeFactory{session: session}, nil, cfg)

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-6",
		JobID:         "job-6",
		JobURL:        "https://example.com/job/6",
	}, 0)

	r.processWithRetry(context.Background(), task)

	requeued, err := b.Consume(context.Background(), domain.TaskJobApplication, time.Second)
	if err != nil {
		t.Fatalf("consume requeued task: %v", err)
	}
	if requeued == nil {
		t.Fatal("expected the task to be requeued after a transient failure")
	}
	if requeued.Retries != 1 {
		t.Errorf("retries = %d, want 1", requeued.Retries)
	}
}

func TestProcessWithRetryFailsPermanentlyWhenBudgetExhausted(t *testing.T) {
	b := newTestRunnerBroker(t)
	session := &fakeSession{kinds: []browser.PageKind{browser.PageUnknown}}
	cfg := testWorkerConfig()
	cfg.MaxRetries = 1
	r := NewRunner(b, &fakeFactory{session: session}, nil, cfg)

	task := mustPublishTask(t, b, domain.JobApplicationPayload{
		ApplicationID: "app-7",
		JobID:         "job-7",
		JobURL:        "https://example.com/job/7",
	}, 1)

	r.processWithRetry(context.Background(), task)

	update, err := b.Consume(context.Background(), domain.TaskUpdateJobStatus, time.Second)
	if err != nil {
		t.Fatalf("consume update_job_status: %v", err)
	}
	if update == nil {
		t.Fatal("expected an update_job_status publish for the permanent failure")
	}
	p, err := domain.DecodeUpdateJobStatusPayload(update.Payload)
	if err != nil {
		t.Fatalf("decode update payload: %v", err)
	}
	if p.Status != domain.JobStatusFailed {
		t.Errorf("status = %q, want failed", p.Status)
	}
}
