package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"invaudit/internal/engine"
	"invaudit/internal/fanout"
)

type recordingSink struct {
	events []fanout.Event
}

func (r *recordingSink) Send(ev fanout.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestEventStream_SendNeverBlocks(t *testing.T) {
	stream := &eventStream{ch: make(chan fanout.Event, 2)}
	for i := 0; i < 2; i++ {
		if err := stream.Send(fanout.Event{Type: fanout.EventUpdate}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	// A full queue errors instead of blocking, so the hub drops the
	// subscriber rather than stalling the fan-out.
	if err := stream.Send(fanout.Event{Type: fanout.EventUpdate}); !errors.Is(err, errSlowConsumer) {
		t.Fatalf("expected errSlowConsumer, got %v", err)
	}
}

func TestHandleEvents_StreamsAndSurvivesClientTeardown(t *testing.T) {
	hub := fanout.NewHub(nil)
	eng := engine.New(engine.Config{Notifier: hub})
	srv := &server{engine: eng, hub: hub}

	ts := httptest.NewServer(http.HandlerFunc(srv.handleEvents))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	// The stream opens with a state snapshot.
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read prime event: %v", err)
	}
	if !strings.HasPrefix(line, "event: "+fanout.EventState) {
		t.Fatalf("prime event line: %q", line)
	}

	// Tear the client down mid-stream, then keep mutating. Broadcasts that
	// race the teardown must neither panic nor stop delivery to the
	// remaining subscribers.
	cancel()
	resp.Body.Close()

	healthy := &recordingSink{}
	hub.Subscribe(healthy)
	for i := 0; i < 50; i++ {
		eng.RegisterScanner(fmt.Sprintf("auditor %d", i))
		if i == 0 {
			// Give the handler a chance to observe the canceled context so
			// broadcasts overlap its teardown.
			time.Sleep(10 * time.Millisecond)
		}
	}
	if len(healthy.events) == 0 {
		t.Fatalf("healthy subscriber received nothing after client teardown")
	}
}
