package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	ScansTotal        prometheus.Counter
	ScansUnknown      prometheus.Counter
	JournalAppended   prometheus.Counter
	JournalFailures   prometheus.Counter
	BroadcastsSent    prometheus.Counter
	BroadcastsDropped prometheus.Counter
	SnapshotSaves     prometheus.Counter
	SnapshotFailures  prometheus.Counter
	ConnectedScanners prometheus.Gauge
	ActiveZones       prometheus.Gauge
	ReconcileSeconds  prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	scans := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_scans_total"})
	scansUnknown := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_scans_unknown_product_total"})
	journalAppended := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_journal_appended_total"})
	journalFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_journal_failures_total"})
	sent := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_broadcasts_sent_total"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_broadcasts_dropped_total"})
	saves := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_snapshot_saves_total"})
	saveFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_snapshot_failures_total"})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{Name: "audit_connected_scanners"})
	activeZones := prometheus.NewGauge(prometheus.GaugeOpts{Name: "audit_active_zones"})
	reconcile := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_reconcile_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(scans, scansUnknown, journalAppended, journalFailures,
		sent, dropped, saves, saveFailures, connected, activeZones, reconcile)
	return &Registry{
		reg:               r,
		ScansTotal:        scans,
		ScansUnknown:      scansUnknown,
		JournalAppended:   journalAppended,
		JournalFailures:   journalFailures,
		BroadcastsSent:    sent,
		BroadcastsDropped: dropped,
		SnapshotSaves:     saves,
		SnapshotFailures:  saveFailures,
		ConnectedScanners: connected,
		ActiveZones:       activeZones,
		ReconcileSeconds:  reconcile,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
