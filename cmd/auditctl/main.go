// Command auditctl inspects persisted audit state offline. It loads the
// latest session snapshot from the chosen backend, optionally replays the
// scan journal over it, and prints the session summary and the
// reconciliation report without touching a running daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"invaudit/internal/engine"
	"invaudit/internal/journal"
	"invaudit/internal/reconcile"
	"invaudit/internal/snapshot"
)

func main() {
	var (
		backend    = flag.String("snapshot-backend", "file", "snapshot backend: file|pebble|redis")
		dir        = flag.String("snapshot-dir", "./data", "directory for file snapshots")
		pebbleDir  = flag.String("pebble-dir", "./data/pebble", "pebble data directory")
		redisAddr  = flag.String("redis-addr", "localhost:6379", "redis address for the redis backend")
		redisKey   = flag.String("redis-key", "invaudit:session", "redis key for the snapshot document")
		journalDir = flag.String("journal-dir", "./data/journal", "directory for the file journal")
		replay     = flag.Bool("replay", true, "replay the file journal over the snapshot")
		format     = flag.String("format", "text", "output format: text|json")
	)
	flag.Parse()

	store, closeStore, err := openStore(*backend, *dir, *pebbleDir, *redisAddr, *redisKey)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	snap, found, err := store.Load()
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}
	if !found {
		fmt.Println("no snapshot found")
		os.Exit(1)
	}

	eng := engine.New(engine.Config{})
	eng.Restore(snap)

	if *replay {
		path := filepath.Join(*journalDir, "scans.jsonl")
		res := journal.ReplayFile(path, snap.JournalSeq, eng.ApplyJournalEntry)
		if res.Error != nil {
			log.Fatalf("journal replay: %v", res.Error)
		}
		if res.Applied > 0 {
			fmt.Fprintf(os.Stderr, "replayed %d journal entries (skipped %d)\n", res.Applied, res.Skipped)
		}
	}

	summary := eng.Summary()
	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}
	printText(summary)
}

func openStore(backend, dir, pebbleDir, redisAddr, redisKey string) (snapshot.Store, func(), error) {
	switch backend {
	case "pebble":
		ps, err := snapshot.NewPebbleStore(pebbleDir)
		if err != nil {
			return nil, nil, err
		}
		return ps, func() { _ = ps.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return snapshot.NewRedisStore(client, redisKey), func() { _ = client.Close() }, nil
	default:
		fs, err := snapshot.NewFilesystemStore(dir, "session.json")
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func printText(s engine.StateSummary) {
	if s.Session != nil {
		fmt.Printf("session: %s (%s)\n", s.Session.Label, s.Session.ID)
		if s.Session.EndedAt != nil {
			fmt.Printf("  finalized at %s\n", s.Session.EndedAt.Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Println("session: none")
	}
	fmt.Printf("items scanned: %d across %d products (%d not in catalog)\n",
		s.TotalItems, s.UniqueProducts, s.NotInCatalog)
	fmt.Printf("zones: %d total, %d active\n", s.TotalZones, s.ActiveZones)
	fmt.Printf("catalog: %d entries, baseline: %d entries\n", s.CatalogSize, s.BaselineSize)

	rep := s.Reconciliation
	if !rep.HasBaseline {
		fmt.Println("reconciliation: no baseline loaded")
		return
	}
	fmt.Printf("progress: %d%% (%d of %d units)\n", rep.Progress, rep.TotalScanned, rep.TotalExpected)
	fmt.Printf("shortages: %d products, $%.2f\n", rep.ShortageCount, rep.ShortageCost)
	printRecords(rep.Shortages)
	fmt.Printf("overages: %d products, $%.2f\n", rep.OverageCount, rep.OverageCost)
	printRecords(rep.Overages)
	fmt.Printf("net cost delta: $%.2f\n", rep.CostDelta)
}

func printRecords(recs []reconcile.Record) {
	for _, r := range recs {
		fmt.Printf("  %-16s %-32s expected=%d scanned=%d diff=%+d cost=$%.2f\n",
			r.ProductID, r.Description, r.Expected, r.Scanned, r.Difference, r.TotalCost)
	}
}
