package stream

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEvaluationEvent(t *testing.T) {
	t.Parallel()

	evt := NewEvaluationEvent("org-1", "rec-123", 85, 1, "ALLOW")
	if evt.Type != TypeEvaluation || evt.OrgID != "org-1" {
		t.Fatalf("event = %+v", evt)
	}
	if evt.At == "" {
		t.Fatal("expected timestamp")
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["record_id"] != "rec-123" || payload["verdict"] != "ALLOW" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPublishIsOrgScoped(t *testing.T) {
	t.Parallel()

	h := NewHub()
	mine, cancelMine := h.Subscribe("org-1", 4)
	defer cancelMine()
	other, cancelOther := h.Subscribe("org-2", 4)
	defer cancelOther()

	h.Publish(NewUsageEvent("org-1", 10, 1000))

	select {
	case evt := <-mine:
		if evt.Type != TypeUsage {
			t.Fatalf("expected usage event, got %q", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-other:
		t.Fatalf("org-2 received org-1 event %q", evt.Type)
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	h := NewHub()
	_, cancel := h.Subscribe("org-1", 1)
	cancel()
	// Must not panic on repeated calls.
	cancel()
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	h := NewHub()
	events, cancel := h.Subscribe("org-1", 1)
	defer cancel()

	h.Publish(NewPackEvent(TypePackEnabled, "org-1", "us-fed-hipaa"))
	h.Publish(NewPackEvent(TypePackDisabled, "org-1", "us-fed-hipaa"))

	select {
	case evt := <-events:
		if evt.Type != TypePackEnabled {
			t.Fatalf("expected first event to remain in buffer, got %q", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first event")
	}

	select {
	case evt := <-events:
		t.Fatalf("did not expect second buffered event, got %q", evt.Type)
	default:
	}
}
