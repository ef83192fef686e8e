// Package wire is the message boundary between the transport layer and the
// engine. Inbound messages are a closed tagged variant; dispatch is
// exhaustive and an unknown tag is a malformed-input error, never a silent
// drop.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"invaudit/internal/engine"
	"invaudit/internal/fanout"
)

// Inbound message kinds.
const (
	MsgRegister   = "register"
	MsgAssignZone = "assign_zone"
	MsgScan       = "scan"
	MsgGetZones   = "get_zones"
	MsgGetState   = "get_state"
)

// ErrMalformed marks structurally invalid inbound messages.
var ErrMalformed = errors.New("malformed message")

// Message is one decoded client message.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type RegisterPayload struct {
	Name string `json:"name"`
}

type AssignZonePayload struct {
	ScannerID string `json:"scannerId"`
	ZoneID    string `json:"zoneId"`
	ZoneName  string `json:"zoneName,omitempty"`
}

type ScanPayload struct {
	ScannerID string `json:"scannerId"`
	ProductID string `json:"productId"`
}

type GetZonesPayload struct {
	ScannerID string `json:"scannerId"`
}

// RegisteredPayload is the direct reply to a register message.
type RegisteredPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dispatch routes one inbound message and returns the direct reply for the
// originating connection. Side-effect broadcasts happen inside the engine
// operations themselves.
func Dispatch(e *engine.Engine, msg Message) fanout.Event {
	switch msg.Type {
	case MsgRegister:
		var p RegisterPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return fanout.ErrorEvent(fmt.Sprintf("%v: bad register payload", ErrMalformed))
		}
		sc := e.RegisterScanner(p.Name)
		return fanout.Event{Type: fanout.EventRegistered, Data: RegisteredPayload{ID: sc.ID, Name: sc.Name}}

	case MsgAssignZone:
		var p AssignZonePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return fanout.ErrorEvent(fmt.Sprintf("%v: bad assign_zone payload", ErrMalformed))
		}
		state, err := e.AssignZone(p.ScannerID, p.ZoneID, p.ZoneName)
		if err != nil {
			return fanout.ErrorEvent(err.Error())
		}
		return fanout.Event{Type: fanout.EventZoneAssigned, Data: state}

	case MsgScan:
		var p ScanPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return fanout.ErrorEvent(fmt.Sprintf("%v: bad scan payload", ErrMalformed))
		}
		result, err := e.RecordScan(p.ScannerID, p.ProductID)
		if err != nil {
			return fanout.ErrorEvent(err.Error())
		}
		return fanout.Event{Type: fanout.EventScanResult, Data: result}

	case MsgGetZones:
		var p GetZonesPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return fanout.ErrorEvent(fmt.Sprintf("%v: bad get_zones payload", ErrMalformed))
		}
		zones := e.ListZonesFor(p.ScannerID)
		return fanout.Event{Type: fanout.EventZoneList, Data: map[string]any{"zones": zones}}

	case MsgGetState:
		return fanout.Event{Type: fanout.EventState, Data: e.Summary()}

	default:
		return fanout.ErrorEvent(fmt.Sprintf("%v: unknown message type %q", ErrMalformed, msg.Type))
	}
}
