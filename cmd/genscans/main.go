// Command genscans produces synthetic scanner traffic for load and recovery
// testing. It either writes wire messages to a jsonl file or drives a live
// daemon through its message endpoint, simulating several auditors working
// their own zones.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"invaudit/internal/wire"
)

func main() {
	var (
		count    = flag.Int("count", 200, "number of scan messages to generate")
		scanners = flag.Int("scanners", 3, "number of simulated scanners")
		output   = flag.String("output", "scans.jsonl", "output file for wire messages")
		target   = flag.String("target", "", "base URL of a running daemon; when set, messages are posted instead of written")
		seed     = flag.Int64("seed", 0, "random seed, 0 uses the clock")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	var err error
	if *target != "" {
		err = driveLive(rng, *target, *count, *scanners)
	} else {
		err = writeFile(rng, *output, *count, *scanners)
	}
	if err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

var products = []string{
	"7501000111110", "7501000222221", "7501000333332", "7501000444443",
	"7501000555554", "7501000666665", "7501000777776", "7501000888887",
}

var names = []string{"Ana", "Luis", "Marta", "Pedro", "Sofia", "Diego"}

func message(typ string, payload any) wire.Message {
	data, _ := json.Marshal(payload)
	return wire.Message{Type: typ, Data: data}
}

// writeFile emits a register and assign_zone prologue per scanner, then the
// scan stream. Scanner ids in the file are placeholders; a consumer replaying
// against a live daemon must substitute the ids returned by registration.
func writeFile(rng *rand.Rand, path string, count, scanners int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	ids := make([]string, scanners)
	for i := 0; i < scanners; i++ {
		ids[i] = fmt.Sprintf("scanner-%d", i+1)
		name := names[i%len(names)]
		if err := enc.Encode(message(wire.MsgRegister, wire.RegisterPayload{Name: name})); err != nil {
			return fmt.Errorf("encode register: %w", err)
		}
		assign := wire.AssignZonePayload{
			ScannerID: ids[i],
			ZoneID:    fmt.Sprintf("Z%d", i+1),
			ZoneName:  fmt.Sprintf("Aisle %d", i+1),
		}
		if err := enc.Encode(message(wire.MsgAssignZone, assign)); err != nil {
			return fmt.Errorf("encode assign_zone: %w", err)
		}
	}
	for i := 0; i < count; i++ {
		scan := wire.ScanPayload{
			ScannerID: ids[rng.Intn(scanners)],
			ProductID: products[rng.Intn(len(products))],
		}
		if err := enc.Encode(message(wire.MsgScan, scan)); err != nil {
			return fmt.Errorf("encode scan %d: %w", i+1, err)
		}
	}
	log.Printf("generated %d scans for %d scanners to %s", count, scanners, path)
	return nil
}

// driveLive registers real scanners against the daemon and streams scans at
// it, using the ids the daemon hands back.
func driveLive(rng *rand.Rand, base string, count, scanners int) error {
	client := &http.Client{Timeout: 10 * time.Second}

	ids := make([]string, scanners)
	for i := 0; i < scanners; i++ {
		name := names[i%len(names)]
		var reg wire.RegisteredPayload
		if err := post(client, base, message(wire.MsgRegister, wire.RegisterPayload{Name: name}), &reg); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		ids[i] = reg.ID
		assign := wire.AssignZonePayload{
			ScannerID: reg.ID,
			ZoneID:    fmt.Sprintf("Z%d", i+1),
			ZoneName:  fmt.Sprintf("Aisle %d", i+1),
		}
		if err := post(client, base, message(wire.MsgAssignZone, assign), nil); err != nil {
			return fmt.Errorf("assign zone for %s: %w", name, err)
		}
	}

	for i := 0; i < count; i++ {
		scan := wire.ScanPayload{
			ScannerID: ids[rng.Intn(scanners)],
			ProductID: products[rng.Intn(len(products))],
		}
		if err := post(client, base, message(wire.MsgScan, scan), nil); err != nil {
			return fmt.Errorf("scan %d: %w", i+1, err)
		}
	}
	log.Printf("sent %d scans from %d scanners to %s", count, scanners, base)
	return nil
}

func post(client *http.Client, base string, msg wire.Message, reply any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	resp, err := client.Post(base+"/api/message", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if reply == nil {
		return nil
	}
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, reply)
}
