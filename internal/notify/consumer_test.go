package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/domain"
)

type fakePrefs struct {
	phone string
}

func (f fakePrefs) GetPreferences(ctx context.Context, profileID string) (map[string]string, error) {
	if f.phone == "" {
		return map[string]string{}, nil
	}
	return map[string]string{"phone": f.phone}, nil
}

func TestConsumerHandleSendsSMS(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotBody = r.FormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	gw := NewSMSGateway("AC123", "token", "+15551234567")
	gw.baseURL = srv.URL

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.New(rdb)

	c := NewConsumer(b, gw, fakePrefs{phone: "+15559876543"})

	_, err := b.Publish(context.Background(), domain.TaskSendNotification,
		domain.SendNotificationPayload{ProfileID: "p1", Message: "✅ Applied to Acme — XYZ"}, 0)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	task, err := b.Consume(context.Background(), domain.TaskSendNotification, 0)
	if err != nil || task == nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := c.handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gotBody != "✅ Applied to Acme — XYZ" {
		t.Errorf("gateway received body %q", gotBody)
	}
}

func TestConsumerHandleMissingPhoneErrors(t *testing.T) {
	gw := NewSMSGateway("AC123", "token", "+15551234567")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.New(rdb)
	c := NewConsumer(b, gw, fakePrefs{})

	task := &domain.QueueTask{
		Type:    domain.TaskSendNotification,
		Payload: mustJSON(t, domain.SendNotificationPayload{ProfileID: "p1", Message: "hi"}),
	}
	if err := c.handle(context.Background(), task); err == nil {
		t.Fatal("expected error when profile has no phone on file")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
