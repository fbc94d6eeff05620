package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/wpphook/internal/bus"
	"go.uber.org/zap"
)

func TestBroadcastReachesPushSubscribers(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("push.", 10)
	defer unsub()

	n := New(b, "", zap.NewNop())
	n.Broadcast("status", StatusPayload{Status: "connected"})

	select {
	case evt := <-ch:
		if evt.Kind != "push.status" {
			t.Errorf("kind = %q, want push.status", evt.Kind)
		}
		payload, ok := evt.Payload.(StatusPayload)
		if !ok {
			t.Fatalf("payload type = %T, want StatusPayload", evt.Payload)
		}
		if payload.Status != "connected" {
			t.Errorf("status = %q, want connected", payload.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for push event")
	}
}

func TestDeliverEnvelope(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(bus.New(), srv.URL, zap.NewNop())
	n.Deliver(context.Background(), EventMessageSent, map[string]any{
		"message_id":   "ABC123",
		"phone_number": "5585999000000",
	})

	if got.EventType != EventMessageSent {
		t.Errorf("event_type = %q, want %q", got.EventType, EventMessageSent)
	}
	if got.Timestamp <= 0 {
		t.Error("timestamp missing from envelope")
	}
	data, ok := got.Data.(map[string]any)
	if !ok {
		t.Fatalf("data type = %T, want object", got.Data)
	}
	if data["message_id"] != "ABC123" {
		t.Errorf("data.message_id = %v, want ABC123", data["message_id"])
	}
}

func TestDeliverSwallowsServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(bus.New(), srv.URL, zap.NewNop())
	// Must not panic, must not retry.
	n.Deliver(context.Background(), EventMessageReceived, map[string]any{"message_id": "m1"})

	if c := calls.Load(); c != 1 {
		t.Errorf("delivery attempts = %d, want exactly 1 (no retries)", c)
	}
}

func TestDeliverSwallowsNetworkFailure(t *testing.T) {
	// Unreachable endpoint: Deliver must return without error.
	n := New(bus.New(), "http://127.0.0.1:1/hook", zap.NewNop())
	n.Deliver(context.Background(), EventMessageRead, map[string]any{"message_id": "m1"})
}

func TestDeliverDisabledWithoutURL(t *testing.T) {
	n := New(bus.New(), "", zap.NewNop())
	// No URL configured: a no-op, not a failure.
	n.Deliver(context.Background(), EventMessageSent, map[string]any{"message_id": "m1"})
}
