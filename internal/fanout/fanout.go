// Package fanout delivers state-change events to connected observers. Delivery
// is best-effort: a failed sink is dropped and the remaining recipients still
// receive the event. Events are cache-invalidation signals only; the true
// state is always re-fetchable through a state query.
package fanout

import (
	"sync"

	"invaudit/internal/metrics"
)

// Event kinds sent over the hub. The reply vocabulary of the wire protocol
// plus the dashboard-wide notifications.
const (
	EventRegistered       = "registered"
	EventScannerConnected = "scanner_connected"
	EventZoneAssigned     = "zone_assigned"
	EventScanResult       = "scan_result"
	EventNewScan          = "new_scan"
	EventZoneList         = "zone_list"
	EventZoneListAll      = "zone_list_dashboard"
	EventUpdate           = "update"
	EventState            = "state_snapshot"
	EventError            = "error"
	EventSessionStarted   = "session_started"
	EventSessionFinalized = "session_finalized"
	EventCatalogLoaded    = "catalog_loaded"
	EventBaselineLoaded   = "baseline_loaded"
	EventItemUpdated      = "item_updated"
	EventItemDeleted      = "item_deleted"
	EventZoneRenamed      = "zone_renamed"
	EventZoneDeleted      = "zone_deleted"
	EventCleared          = "cleared"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ErrorEvent builds the standard error reply.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Data: map[string]string{"message": msg}}
}

// Sink receives events for one connection. Send must be safe for concurrent
// use; returning an error marks the sink dead.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

func (f SinkFunc) Send(ev Event) error { return f(ev) }

// Subscriber is one attached connection, optionally bound to a scanner
// identity after registration.
type Subscriber struct {
	hub       *Hub
	sink      Sink
	scannerID string
}

// Bind associates the subscriber with a registered scanner so it receives
// targeted events.
func (s *Subscriber) Bind(scannerID string) {
	s.hub.mu.Lock()
	s.scannerID = scannerID
	s.hub.mu.Unlock()
}

// Close detaches the subscriber from the hub.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

// Hub fans events out to subscribers. It never calls back into the state
// engine; callers hand it values already computed while the state lock was
// held.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	metrics *metrics.Registry // optional
}

func NewHub(m *metrics.Registry) *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{}), metrics: m}
}

func (h *Hub) Subscribe(sink Sink) *Subscriber {
	sub := &Subscriber{hub: h, sink: sink}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) send(sub *Subscriber, ev Event) {
	if err := sub.sink.Send(ev); err != nil {
		sub.Close()
		if h.metrics != nil {
			h.metrics.BroadcastsDropped.Inc()
		}
		return
	}
	if h.metrics != nil {
		h.metrics.BroadcastsSent.Inc()
	}
}

// Broadcast delivers ev to every subscriber.
func (h *Hub) Broadcast(ev Event) {
	for _, sub := range h.snapshot() {
		h.send(sub, ev)
	}
}

// SendTo delivers ev only to subscribers bound to scannerID.
func (h *Hub) SendTo(scannerID string, ev Event) {
	for _, sub := range h.snapshot() {
		h.mu.Lock()
		match := sub.scannerID == scannerID
		h.mu.Unlock()
		if match {
			h.send(sub, ev)
		}
	}
}

// Bound returns the distinct scanner ids currently bound to a subscriber.
// The engine uses this to precompute per-scanner zone lists.
func (h *Hub) Bound() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for s := range h.subs {
		if s.scannerID == "" {
			continue
		}
		if _, ok := seen[s.scannerID]; ok {
			continue
		}
		seen[s.scannerID] = struct{}{}
		ids = append(ids, s.scannerID)
	}
	return ids
}
