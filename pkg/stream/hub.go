// Package stream fans evaluation activity out to portal websocket clients
// and, when configured, to a Kafka topic for downstream analytics.
package stream

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	TypeEvaluation   = "evaluation.completed"
	TypeUsage        = "usage.updated"
	TypePackEnabled  = "pack.enabled"
	TypePackDisabled = "pack.disabled"
)

// Event is one portal-visible activity item. Events are scoped to the
// organization that produced them; subscribers never see other tenants.
type Event struct {
	Type  string          `json:"type"`
	OrgID string          `json:"org_id"`
	At    string          `json:"at"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newEvent(eventType, orgID string, data interface{}) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, OrgID: orgID, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// NewEvaluationEvent announces a completed evaluation. Only the score
// metadata travels on the stream; the AI output stays in the record store.
func NewEvaluationEvent(orgID, recordID string, lumenScore, tier int, verdict string) Event {
	return newEvent(TypeEvaluation, orgID, map[string]interface{}{
		"record_id":   recordID,
		"lumen_score": lumenScore,
		"tier":        tier,
		"verdict":     verdict,
	})
}

// NewUsageEvent announces the period counter after a billed evaluation.
func NewUsageEvent(orgID string, used, limit int) Event {
	return newEvent(TypeUsage, orgID, map[string]interface{}{
		"evaluations_this_month": used,
		"evaluations_limit":      limit,
	})
}

func NewPackEvent(eventType, orgID, packID string) Event {
	return newEvent(eventType, orgID, map[string]interface{}{"pack_id": packID})
}

type subscriber struct {
	orgID string
	ch    chan Event
}

// Hub is an in-process fan-out of events to per-organization subscribers.
// Slow subscribers drop events rather than stalling publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[*subscriber]struct{}{}}
}

// FirehoseOrg subscribes to every organization's events. Only internal
// consumers (the Kafka sink) use it; portal subscriptions always name a
// single organization.
const FirehoseOrg = "*"

// Subscribe registers a listener for one organization's events. The returned
// cancel func closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(orgID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	sub := &subscriber{orgID: orgID, ch: make(chan Event, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.orgID != FirehoseOrg && sub.orgID != evt.OrgID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}
