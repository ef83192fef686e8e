package snapshot

import (
	"context"
	"log"
	"time"

	"invaudit/internal/metrics"
)

// Saver is the write-behind persistence worker. Request is called after every
// state-mutating operation; requests arriving while a save is in flight
// coalesce into one. A periodic tick covers both idle-time durability and
// retry after a failed save. The snapshot copy is taken by src, which holds
// the state lock only for the duration of the copy.
type Saver struct {
	store    Store
	src      func() SessionSnapshot
	interval time.Duration
	reqs     chan struct{}
	metrics  *metrics.Registry // optional
}

func NewSaver(store Store, src func() SessionSnapshot, interval time.Duration, m *metrics.Registry) *Saver {
	return &Saver{
		store:    store,
		src:      src,
		interval: interval,
		reqs:     make(chan struct{}, 1),
		metrics:  m,
	}
}

// Request schedules a save without blocking the caller.
func (s *Saver) Request() {
	select {
	case s.reqs <- struct{}{}:
	default:
	}
}

// Run loops until ctx is done, then performs one final save.
func (s *Saver) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.save()
			return
		case <-s.reqs:
			s.save()
		case <-ticker.C:
			s.save()
		}
	}
}

func (s *Saver) save() {
	snap := s.src()
	if err := s.store.Save(snap); err != nil {
		// Non-fatal: the next tick retries.
		log.Printf("snapshot save failed: %v", err)
		if s.metrics != nil {
			s.metrics.SnapshotFailures.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.SnapshotSaves.Inc()
	}
}
