package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"invaudit/internal/engine"
	"invaudit/internal/fanout"
	"invaudit/internal/journal"
	"invaudit/internal/metrics"
	"invaudit/internal/snapshot"
)

// Config holds CLI flags for the coordinator daemon.
type Config struct {
	HTTPAddr         string
	SnapshotBackend  string // file|pebble|redis
	SnapshotDir      string
	PebbleDir        string
	RedisAddr        string
	RedisKey         string
	SnapshotInterval int
	JournalSink      string // none|file|kafka|both
	JournalDir       string
	KafkaBootstrap   string
	TopicJournal     string
	ReplaySource     string // none|file|kafka
}

func main() {
	cfg := readFlags()
	if err := run(cfg); err != nil {
		log.Fatalf("auditd failed: %v", err)
	}
}

func readFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.HTTPAddr, "http", ":8080", "http listen address")
	flag.StringVar(&cfg.SnapshotBackend, "snapshot-backend", "file", "snapshot backend: file|pebble|redis")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", "./data", "directory for file snapshots")
	flag.StringVar(&cfg.PebbleDir, "pebble-dir", "./data/pebble", "pebble data directory")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address for the redis backend")
	flag.StringVar(&cfg.RedisKey, "redis-key", "invaudit:session", "redis key for the snapshot document")
	flag.IntVar(&cfg.SnapshotInterval, "snapshot-interval", 5, "periodic snapshot interval in seconds")
	flag.StringVar(&cfg.JournalSink, "journal-sink", "file", "scan journal sink: none|file|kafka|both")
	flag.StringVar(&cfg.JournalDir, "journal-dir", "./data/journal", "directory for the file journal")
	flag.StringVar(&cfg.KafkaBootstrap, "kafka-bootstrap", "", "kafka bootstrap servers, e.g. localhost:9092")
	flag.StringVar(&cfg.TopicJournal, "topic-journal", "invaudit.scans", "kafka topic for the scan journal")
	flag.StringVar(&cfg.ReplaySource, "replay-source", "file", "journal replay source at startup: none|file|kafka")
	flag.Parse()
	return cfg
}

func newStore(cfg Config) (snapshot.Store, func(), error) {
	switch cfg.SnapshotBackend {
	case "pebble":
		ps, err := snapshot.NewPebbleStore(cfg.PebbleDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init pebble: %w", err)
		}
		return ps, func() { _ = ps.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rs := snapshot.NewRedisStore(client, cfg.RedisKey)
		return rs, func() { _ = client.Close() }, nil
	default:
		fs, err := snapshot.NewFilesystemStore(cfg.SnapshotDir, "session.json")
		if err != nil {
			return nil, nil, fmt.Errorf("init file store: %w", err)
		}
		return fs, func() {}, nil
	}
}

func newJournal(cfg Config) (journal.Writer, string, error) {
	var writers []journal.Writer
	journalPath := ""
	if cfg.JournalSink == "file" || cfg.JournalSink == "both" {
		fw, err := journal.NewFileWriter(cfg.JournalDir, "scans.jsonl")
		if err != nil {
			return nil, "", fmt.Errorf("init journal file: %w", err)
		}
		journalPath = fw.Path()
		writers = append(writers, fw)
	}
	if (cfg.JournalSink == "kafka" || cfg.JournalSink == "both") && cfg.KafkaBootstrap != "" {
		writers = append(writers, journal.NewKafkaWriter(cfg.KafkaBootstrap, cfg.TopicJournal))
	}
	switch len(writers) {
	case 0:
		return nil, journalPath, nil
	case 1:
		return writers[0], journalPath, nil
	default:
		return journal.NewMultiWriter(writers...), journalPath, nil
	}
}

func run(cfg Config) error {
	log.Printf("starting auditd backend=%s journal=%s interval=%ds", cfg.SnapshotBackend, cfg.JournalSink, cfg.SnapshotInterval)

	store, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	jw, journalPath, err := newJournal(cfg)
	if err != nil {
		return err
	}
	if journalPath == "" {
		journalPath = filepath.Join(cfg.JournalDir, "scans.jsonl")
	}

	mreg := metrics.NewRegistry()
	hub := fanout.NewHub(mreg)

	var saver *snapshot.Saver
	eng := engine.New(engine.Config{
		Notifier: hub,
		Journal:  jw,
		Persist: func() {
			if saver != nil {
				saver.Request()
			}
		},
		Metrics: mreg,
	})

	// Crash recovery: restore the latest snapshot, then replay journal
	// entries newer than the snapshot's sequence.
	snap, found, err := store.Load()
	if err != nil {
		log.Printf("snapshot load failed, starting empty: %v", err)
	} else if found {
		eng.Restore(snap)
		log.Printf("restored session snapshot (journalSeq=%d, items=%d)", snap.JournalSeq, len(snap.Items))
		switch cfg.ReplaySource {
		case "file":
			res := journal.ReplayFile(journalPath, snap.JournalSeq, eng.ApplyJournalEntry)
			if res.Error != nil {
				log.Printf("journal replay failed: %v", res.Error)
			} else if res.Applied > 0 || res.Skipped > 0 {
				log.Printf("journal replay: applied=%d skipped=%d", res.Applied, res.Skipped)
			}
		case "kafka":
			if cfg.KafkaBootstrap != "" {
				brokers := strings.Split(cfg.KafkaBootstrap, ",")
				res := journal.ReplayKafka(brokers, cfg.TopicJournal, snap.JournalSeq, eng.ApplyJournalEntry)
				if res.Error != nil {
					log.Printf("journal replay failed: %v", res.Error)
				} else {
					log.Printf("journal replay: applied=%d skipped=%d", res.Applied, res.Skipped)
				}
			}
		}
	}

	saver = snapshot.NewSaver(store, eng.Snapshot, time.Duration(cfg.SnapshotInterval)*time.Second, mreg)
	saverCtx, stopSaver := context.WithCancel(context.Background())
	saverDone := make(chan struct{})
	go func() {
		defer close(saverDone)
		saver.Run(saverCtx)
	}()

	srv := &server{engine: eng, hub: hub}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", srv.handleMessage)
	mux.HandleFunc("/api/events", srv.handleEvents)
	mux.HandleFunc("/api/state", srv.handleState)
	mux.HandleFunc("/api/zones", srv.handleZones)
	mux.HandleFunc("/api/items", srv.handleItems)
	mux.HandleFunc("/api/item/edit", srv.handleItemEdit)
	mux.HandleFunc("/api/item/delete", srv.handleItemDelete)
	mux.HandleFunc("/api/zone/rename", srv.handleZoneRename)
	mux.HandleFunc("/api/zone/delete", srv.handleZoneDelete)
	mux.HandleFunc("/api/session/new", srv.handleSessionNew)
	mux.HandleFunc("/api/session/finalize", srv.handleSessionFinalize)
	mux.HandleFunc("/api/catalog/load", srv.handleCatalogLoad)
	mux.HandleFunc("/api/baseline/load", srv.handleBaselineLoad)
	mux.HandleFunc("/api/reconciliation", srv.handleReconciliation)
	mux.HandleFunc("/api/reset", srv.handleReset)
	mux.Handle("/metrics", mreg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("auditd listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	// Stop the saver last; it writes one final snapshot on the way out.
	stopSaver()
	<-saverDone
	log.Println("auditd stopped")
	return nil
}
