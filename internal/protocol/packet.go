// Package protocol defines the packet format and types exchanged between two
// game peers.
//
// Every field on the wire is a 32-bit big-endian signed integer. A packet is
// a two-field header (total field count, type) followed by its payload.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies the kind of a packet.
type Type int32

// Packet type constants. The numeric values are part of the wire format.
const (
	TypeClose         Type = 0 // Closure handshake
	TypeReady         Type = 1 // Player finished setting up
	TypeShipPositions Type = 2 // Flattened (x, y) list of occupied squares
	TypeStrike        Type = 3 // One (x, y) target
	TypeStrikeResult  Type = 4 // (hit, x, y)
	TypeGameOver      Type = 5 // Single sentinel value
	TypeYourTurn      Type = 6 // Hands the turn to the peer
)

// HeaderFields is the number of header fields: TotalLength + Type.
const HeaderFields = 2

// Packets a peer would refuse to decode.
var (
	ErrTooLarge    = errors.New("protocol: packet exceeds the maximum length")
	ErrUnknownType = errors.New("protocol: unknown packet type")
)

// CLOSE packet flag values carried as the single payload field.
const (
	CloseRequest int32 = 0 // sender initiated the closure
	CloseAck     int32 = 1 // sender is answering a received CloseRequest
)

var typeNames = [...]string{
	TypeClose:         "CLOSE",
	TypeReady:         "READY",
	TypeShipPositions: "SHIP_POSITIONS",
	TypeStrike:        "STRIKE",
	TypeStrikeResult:  "STRIKE_RESULT",
	TypeGameOver:      "GAME_OVER",
	TypeYourTurn:      "YOUR_TURN",
}

// Valid reports whether t is one of the known packet types.
func (t Type) Valid() bool {
	return t >= TypeClose && int(t) < len(typeNames)
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int32(t))
	}
	return typeNames[t]
}

// Packet is an immutable typed message. Build it with New (or one of the
// helpers in game.go) or obtain it from Decode.
type Packet struct {
	typ     Type
	payload []int32
}

// Validate reports whether p can be sent to a peer: its type must be known
// and its total length must not exceed MaxFields.
func (p *Packet) Validate() error {
	if !p.typ.Valid() {
		return fmt.Errorf("%w %d", ErrUnknownType, int32(p.typ))
	}
	if p.Len() > MaxFields {
		return fmt.Errorf("%w: %d fields, limit %d", ErrTooLarge, p.Len(), MaxFields)
	}
	return nil
}

// New creates a packet of the given type. The payload is copied, so later
// changes to the caller's slice do not affect the packet.
func New(typ Type, payload ...int32) *Packet {
	p := &Packet{typ: typ}
	if len(payload) > 0 {
		p.payload = make([]int32, len(payload))
		copy(p.payload, payload)
	}
	return p
}

// NewClose creates a CLOSE packet carrying flag (CloseRequest or CloseAck).
func NewClose(flag int32) *Packet {
	return New(TypeClose, flag)
}

// Type returns the packet type.
func (p *Packet) Type() Type { return p.typ }

// Len returns the total field count, header included.
func (p *Packet) Len() int { return HeaderFields + len(p.payload) }

// Payload returns a copy of the packet fields. With includeHeader the
// result starts with the two header fields [Len, Type].
func (p *Packet) Payload(includeHeader bool) []int32 {
	if !includeHeader {
		out := make([]int32, len(p.payload))
		copy(out, p.payload)
		return out
	}
	out := make([]int32, 0, p.Len())
	out = append(out, int32(p.Len()), int32(p.typ))
	return append(out, p.payload...)
}

// Field returns payload field i, or 0 when i is out of range.
func (p *Packet) Field(i int) int32 {
	if i < 0 || i >= len(p.payload) {
		return 0
	}
	return p.payload[i]
}

// CloseFlag returns the flag of a CLOSE packet. A CLOSE packet without a
// payload counts as a request.
func (p *Packet) CloseFlag() int32 {
	if len(p.payload) == 0 {
		return CloseRequest
	}
	return p.payload[0]
}

// Equal reports whether p and q have the same type and payload.
func (p *Packet) Equal(q *Packet) bool {
	if p == nil || q == nil {
		return p == q
	}
	if p.typ != q.typ || len(p.payload) != len(q.payload) {
		return false
	}
	for i := range p.payload {
		if p.payload[i] != q.payload[i] {
			return false
		}
	}
	return true
}

func (p *Packet) String() string {
	var b strings.Builder
	b.WriteString(p.typ.String())
	b.WriteByte('[')
	for i, v := range p.payload {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", v)
	}
	b.WriteByte(']')
	return b.String()
}
