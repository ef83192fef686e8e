package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"invaudit/internal/engine"
	"invaudit/internal/fanout"
	"invaudit/internal/ingest"
	"invaudit/internal/wire"
)

type server struct {
	engine *engine.Engine
	hub    *fanout.Hub
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrForbiddenZone):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrZoneNotFound),
		errors.Is(err, engine.ErrScannerNotFound),
		errors.Is(err, engine.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotRegistered),
		errors.Is(err, engine.ErrNoZoneSelected),
		errors.Is(err, wire.ErrMalformed):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleMessage is the device entry point: one wire message in, the direct
// reply out. Broadcasts ride the event stream, not this response.
func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg wire.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	reply := wire.Dispatch(s.engine, msg)
	status := http.StatusOK
	if reply.Type == fanout.EventError {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, reply)
}

// eventStreamBuffer bounds how far a slow consumer may fall behind before it
// is dropped.
const eventStreamBuffer = 64

var errSlowConsumer = errors.New("event stream buffer full")

// eventStream queues events for one streaming connection. Send only enqueues;
// the handler goroutine owns every write to the ResponseWriter, so the hub
// can never touch a connection net/http has already torn down.
type eventStream struct {
	ch chan fanout.Event
}

func (s *eventStream) Send(ev fanout.Event) error {
	select {
	case s.ch <- ev:
		return nil
	default:
		return errSlowConsumer
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev fanout.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, body); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleEvents attaches one server-sent-events subscriber to the hub. A
// ?scannerId= query binds the stream to a registered scanner so it receives
// targeted zone lists; on disconnect the scanner is marked offline. Events
// are drained from the subscriber's queue here until the client goes away; a
// queue overflow errors the Send and the hub detaches the subscriber.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	stream := &eventStream{ch: make(chan fanout.Event, eventStreamBuffer)}
	sub := s.hub.Subscribe(stream)
	defer sub.Close()

	scannerID := r.URL.Query().Get("scannerId")
	if scannerID != "" {
		sub.Bind(scannerID)
		defer s.engine.MarkDisconnected(scannerID)
	}

	// Prime the stream so a late joiner does not wait for the next mutation.
	if err := writeEvent(w, flusher, fanout.Event{Type: fanout.EventState, Data: s.engine.Summary()}); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-stream.ch:
			if err := writeEvent(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Summary())
}

func (s *server) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"zones": s.engine.ListAllZones()})
}

func (s *server) handleItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.engine.GlobalItemLog()})
}

func (s *server) handleItemEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID          string  `json:"id"`
		Description *string `json:"description"`
		Quantity    *int64  `json:"quantity"`
		ZoneID      string  `json:"zoneId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	item, err := s.engine.EditItem(req.ID, req.Description, req.Quantity, req.ZoneID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (s *server) handleItemDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	if err := s.engine.DeleteItem(req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleZoneRename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ZoneID string `json:"zoneId"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	if err := s.engine.RenameZone(req.ZoneID, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *server) handleZoneDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ZoneID string `json:"zoneId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	if err := s.engine.DeleteZone(req.ZoneID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Label string `json:"label"`
	}
	// Body is optional; an empty label gets a dated default.
	_ = json.NewDecoder(r.Body).Decode(&req)
	session := s.engine.StartSession(req.Label)
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (s *server) handleSessionFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": s.engine.FinalizeSession()})
}

func (s *server) handleCatalogLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var sheet ingest.Sheet
	if err := json.NewDecoder(r.Body).Decode(&sheet); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	entries, stats := ingest.Catalog(sheet)
	if stats.PositionalFallbacks > 0 {
		log.Printf("catalog load used positional fallback for %d rows", stats.PositionalFallbacks)
	}
	s.engine.LoadCatalog(entries)
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleBaselineLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var sheet ingest.Sheet
	if err := json.NewDecoder(r.Body).Decode(&sheet); err != nil {
		writeError(w, fmt.Errorf("%w: %v", wire.ErrMalformed, err))
		return
	}
	entries, stats := ingest.Baseline(sheet)
	if stats.PositionalFallbacks > 0 {
		log.Printf("baseline load used positional fallback for %d rows", stats.PositionalFallbacks)
	}
	s.engine.LoadBaseline(entries)
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Reconciliation())
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
