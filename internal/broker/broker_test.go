package broker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/domain"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return broker.New(rdb)
}

// L1: publish(T, p); consume(T) returns a task whose payload == p and
// type == T.
func TestPublishConsumeRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	payload := domain.JobApplicationPayload{ApplicationID: "app-1", JobURL: "https://example.com/job/1"}
	taskID, err := b.Publish(ctx, domain.TaskJobApplication, payload, 0)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if taskID == "" {
		t.Fatal("expected non-empty task id")
	}

	task, err := b.Consume(ctx, domain.TaskJobApplication, 0)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if task == nil {
		t.Fatal("expected a task, got nil")
	}
	if task.Type != domain.TaskJobApplication {
		t.Errorf("type = %q, want %q", task.Type, domain.TaskJobApplication)
	}

	var got domain.JobApplicationPayload
	if err := json.Unmarshal(task.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got != payload {
		t.Errorf("payload = %+v, want %+v", got, payload)
	}
}

func TestConsumeEmptyQueueReturnsNil(t *testing.T) {
	b := newTestBroker(t)
	task, err := b.Consume(context.Background(), domain.TaskJobApplication, 0)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil task from empty queue, got %+v", task)
	}
}

func TestFIFOOrderingWithinSamePriority(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := b.Publish(ctx, domain.TaskSendNotification, map[string]int{"i": i}, 0)
		if err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	for i := 0; i < 5; i++ {
		task, err := b.Consume(ctx, domain.TaskSendNotification, 0)
		if err != nil {
			t.Fatalf("Consume %d: %v", i, err)
		}
		if task == nil {
			t.Fatalf("Consume %d: expected task, got nil", i)
		}
		if task.ID != ids[i] {
			t.Errorf("Consume %d: id = %q, want %q (FIFO violated)", i, task.ID, ids[i])
		}
	}
}

func TestPriorityDequeuesBeforeLowerPriority(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	lowID, err := b.Publish(ctx, domain.TaskSendNotification, map[string]string{"who": "low"}, 0)
	if err != nil {
		t.Fatalf("Publish low: %v", err)
	}
	highID, err := b.Publish(ctx, domain.TaskSendNotification, map[string]string{"who": "high"}, 10)
	if err != nil {
		t.Fatalf("Publish high: %v", err)
	}

	first, err := b.Consume(ctx, domain.TaskSendNotification, 0)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if first.ID != highID {
		t.Errorf("first dequeued = %q, want higher-priority %q", first.ID, highID)
	}

	second, err := b.Consume(ctx, domain.TaskSendNotification, 0)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if second.ID != lowID {
		t.Errorf("second dequeued = %q, want %q", second.ID, lowID)
	}
}

func TestPublishRejectsUnknownType(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.Publish(context.Background(), domain.TaskType("bogus"), map[string]int{}, 0)
	if err == nil {
		t.Fatal("expected error for unknown queue type")
	}
}

// L3-adjacent: a published result can be read back by task_id; GetResult
// for a task_id with no stored result returns nil.
func TestPublishResultAndGet(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	if err := b.PublishResult(ctx, "t1", map[string]string{"status": "applied"}); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}
	raw, err := b.GetResult(ctx, "t1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if raw == nil {
		t.Fatal("expected result, got nil")
	}

	missing, err := b.GetResult(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing result, got %s", missing)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	hb := broker.Heartbeat{Timestamp: time.Now().UTC(), Status: "ok", InFlightTask: "t-42"}
	if err := b.PublishHeartbeat(ctx, "automation", hb); err != nil {
		t.Fatalf("PublishHeartbeat: %v", err)
	}

	got, err := b.LastHeartbeat(ctx, "automation")
	if err != nil {
		t.Fatalf("LastHeartbeat: %v", err)
	}
	if got == nil {
		t.Fatal("expected heartbeat, got nil")
	}
	if got.Status != "ok" || got.InFlightTask != "t-42" {
		t.Errorf("heartbeat = %+v, want status=ok in_flight=t-42", got)
	}
}

func TestLastHeartbeatMissingReturnsNil(t *testing.T) {
	b := newTestBroker(t)
	got, err := b.LastHeartbeat(context.Background(), "unknown-service")
	if err != nil {
		t.Fatalf("LastHeartbeat: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestRequeueIncrementsRetriesAndReQueues(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Publish(ctx, domain.TaskJobApplication, map[string]string{"a": "1"}, 0)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	task, err := b.Consume(ctx, domain.TaskJobApplication, 0)
	if err != nil || task == nil {
		t.Fatalf("Consume: %v", err)
	}

	if err := b.Requeue(ctx, task); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if task.Retries != 1 {
		t.Errorf("Retries = %d, want 1", task.Retries)
	}

	again, err := b.Consume(ctx, domain.TaskJobApplication, 0)
	if err != nil || again == nil {
		t.Fatalf("Consume after requeue: %v", err)
	}
	if again.Retries != 1 {
		t.Errorf("requeued task Retries = %d, want 1", again.Retries)
	}
}

func TestQueueStatsCountsAllEnumeratedQueues(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	if _, err := b.Publish(ctx, domain.TaskJobApplication, map[string]int{}, 0); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := b.Publish(ctx, domain.TaskApprovalRequest, map[string]int{}, 0); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stats, err := b.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats[domain.TaskJobApplication] != 1 {
		t.Errorf("job_application count = %d, want 1", stats[domain.TaskJobApplication])
	}
	if stats[domain.TaskApprovalRequest] != 1 {
		t.Errorf("approval_request count = %d, want 1", stats[domain.TaskApprovalRequest])
	}
	if stats[domain.TaskUpdateJobStatus] != 0 {
		t.Errorf("update_job_status count = %d, want 0", stats[domain.TaskUpdateJobStatus])
	}
}
