package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"invaudit/internal/engine"
	"invaudit/internal/fanout"
)

func mustMessage(t *testing.T, typ string, payload any) Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Message{Type: typ, Data: data}
}

func errorMessage(t *testing.T, ev fanout.Event) string {
	t.Helper()
	if ev.Type != fanout.EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}
	data, ok := ev.Data.(map[string]string)
	if !ok {
		t.Fatalf("error data: %#v", ev.Data)
	}
	return data["message"]
}

func TestDispatch_RegisterAndScanFlow(t *testing.T) {
	e := engine.New(engine.Config{})

	reply := Dispatch(e, mustMessage(t, MsgRegister, RegisterPayload{Name: "ana"}))
	if reply.Type != fanout.EventRegistered {
		t.Fatalf("register reply: %+v", reply)
	}
	reg, ok := reply.Data.(RegisteredPayload)
	if !ok || reg.ID == "" || reg.Name != "Ana" {
		t.Fatalf("registered payload: %#v", reply.Data)
	}

	reply = Dispatch(e, mustMessage(t, MsgAssignZone, AssignZonePayload{ScannerID: reg.ID, ZoneID: "Z1", ZoneName: "Aisle 1"}))
	if reply.Type != fanout.EventZoneAssigned {
		t.Fatalf("assign reply: %+v", reply)
	}

	reply = Dispatch(e, mustMessage(t, MsgScan, ScanPayload{ScannerID: reg.ID, ProductID: "p1"}))
	if reply.Type != fanout.EventScanResult {
		t.Fatalf("scan reply: %+v", reply)
	}
	result, ok := reply.Data.(engine.ScanResult)
	if !ok || result.Item.Quantity != 1 {
		t.Fatalf("scan result: %#v", reply.Data)
	}

	reply = Dispatch(e, mustMessage(t, MsgGetZones, GetZonesPayload{ScannerID: reg.ID}))
	if reply.Type != fanout.EventZoneList {
		t.Fatalf("get_zones reply: %+v", reply)
	}

	reply = Dispatch(e, Message{Type: MsgGetState})
	if reply.Type != fanout.EventState {
		t.Fatalf("get_state reply: %+v", reply)
	}
	if _, ok := reply.Data.(engine.StateSummary); !ok {
		t.Fatalf("state payload: %#v", reply.Data)
	}
}

func TestDispatch_DomainErrorsBecomeErrorEvents(t *testing.T) {
	e := engine.New(engine.Config{})

	reply := Dispatch(e, mustMessage(t, MsgScan, ScanPayload{ScannerID: "ghost", ProductID: "p1"}))
	if msg := errorMessage(t, reply); msg != engine.ErrNotRegistered.Error() {
		t.Fatalf("error message: %q", msg)
	}

	ana := e.RegisterScanner("Ana")
	luis := e.RegisterScanner("Luis")
	if _, err := e.AssignZone(ana.ID, "Z1", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	reply = Dispatch(e, mustMessage(t, MsgAssignZone, AssignZonePayload{ScannerID: luis.ID, ZoneID: "Z1"}))
	if msg := errorMessage(t, reply); msg != engine.ErrForbiddenZone.Error() {
		t.Fatalf("error message: %q", msg)
	}
}

func TestDispatch_UnknownTypeIsMalformed(t *testing.T) {
	e := engine.New(engine.Config{})
	reply := Dispatch(e, Message{Type: "selfdestruct"})
	msg := errorMessage(t, reply)
	if !strings.Contains(msg, ErrMalformed.Error()) || !strings.Contains(msg, "selfdestruct") {
		t.Fatalf("error message: %q", msg)
	}
}

func TestDispatch_BadPayloadIsMalformed(t *testing.T) {
	e := engine.New(engine.Config{})
	reply := Dispatch(e, Message{Type: MsgRegister, Data: json.RawMessage(`{"name": 42}`)})
	if msg := errorMessage(t, reply); !strings.Contains(msg, ErrMalformed.Error()) {
		t.Fatalf("error message: %q", msg)
	}
}
