package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/1ureka/salvo/internal/protocol"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for all packet types with various payload sizes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	big := make([]int32, 4096)
	for i := range big {
		big[i] = int32(i*7919) - 1<<20
	}

	testCases := []struct {
		name    string
		typ     protocol.Type
		payload []int32
	}{
		{"CLOSE request", protocol.TypeClose, []int32{protocol.CloseRequest}},
		{"CLOSE ack", protocol.TypeClose, []int32{protocol.CloseAck}},
		{"READY with sentinel", protocol.TypeReady, []int32{1}},
		{"SHIP_POSITIONS with pairs", protocol.TypeShipPositions, []int32{0, 0, 0, 1, 0, 2, 9, 9}},
		{"STRIKE", protocol.TypeStrike, []int32{3, 7}},
		{"STRIKE_RESULT", protocol.TypeStrikeResult, []int32{1, 3, 7}},
		{"GAME_OVER with negative value", protocol.TypeGameOver, []int32{-1}},
		{"YOUR_TURN with empty payload", protocol.TypeYourTurn, nil},
		{"extreme values", protocol.TypeStrike, []int32{-2147483648, 2147483647}},
		{"large payload", protocol.TypeShipPositions, big},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pkt := protocol.New(tc.typ, tc.payload...)

			decoded, err := protocol.Decode(protocol.Encode(pkt))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Type() != tc.typ {
				t.Errorf("Type mismatch: got %v, want %v", decoded.Type(), tc.typ)
			}
			if decoded.Len() != protocol.HeaderFields+len(tc.payload) {
				t.Errorf("Len mismatch: got %d, want %d", decoded.Len(), protocol.HeaderFields+len(tc.payload))
			}
			if !decoded.Equal(pkt) {
				t.Errorf("Payload mismatch: got %v, want %v", decoded.Payload(false), tc.payload)
			}
		})
	}
}

// TestEncodeStrikeBytes pins the wire format against a known byte vector.
func TestEncodeStrikeBytes(t *testing.T) {
	want := []byte{
		0x00, 0x00, 0x00, 0x04,
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x07,
	}

	got := protocol.Encode(protocol.New(protocol.TypeStrike, 3, 7))
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode mismatch:\n got % x\nwant % x", got, want)
	}

	pkt, err := protocol.Decode(want)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkt.Type() != protocol.TypeStrike || pkt.Len() != 4 {
		t.Fatalf("got type=%v len=%d, want STRIKE len=4", pkt.Type(), pkt.Len())
	}
	if p := pkt.Payload(false); len(p) != 2 || p[0] != 3 || p[1] != 7 {
		t.Fatalf("payload = %v, want [3 7]", p)
	}
}

// TestEncodeNegativeField verifies two's complement encoding of signed fields.
func TestEncodeNegativeField(t *testing.T) {
	got := protocol.Encode(protocol.New(protocol.TypeGameOver, -1))
	want := []byte{0, 0, 0, 3, 0, 0, 0, 5, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode mismatch:\n got % x\nwant % x", got, want)
	}
}

// TestDecodeRejectsMalformed verifies that Decode returns a *DecodeError for
// every malformed input.
func TestDecodeRejectsMalformed(t *testing.T) {
	strike := protocol.Encode(protocol.New(protocol.TypeStrike, 3, 7))

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"not a multiple of four", []byte{0, 0, 0, 2, 0, 0, 0}},
		{"header only length field", []byte{0, 0, 0, 2}},
		{"truncated by one field", strike[:12]},
		{"truncated by one byte", strike[:15]},
		{"trailing field", append(append([]byte{}, strike...), 0, 0, 0, 0)},
		{"declared length below header", []byte{0, 0, 0, 1, 0, 0, 0, 1}},
		{"declared length too large", []byte{0x7F, 0xFF, 0xFF, 0xFF, 0, 0, 0, 1}},
		{"unknown type", []byte{0, 0, 0, 2, 0, 0, 0, 42}},
		{"negative type", []byte{0, 0, 0, 2, 0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.data)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var decErr *protocol.DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("Expected *DecodeError, got %T (%v)", err, err)
			}
			if decErr.Size != len(tc.data) {
				t.Errorf("DecodeError.Size = %d, want %d", decErr.Size, len(tc.data))
			}
		})
	}
}

// TestDecodeTruncatedPrefixes verifies that every proper prefix of a valid
// packet is rejected.
func TestDecodeTruncatedPrefixes(t *testing.T) {
	data := protocol.Encode(protocol.NewShipPositions([]protocol.Point{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}))
	for n := 0; n < len(data); n++ {
		if _, err := protocol.Decode(data[:n]); err == nil {
			t.Fatalf("Decode accepted a %d-byte prefix of a %d-byte packet", n, len(data))
		}
	}
}

// TestDecodeHeaderOnly verifies that a packet with exactly the header
// (no payload) is decoded successfully.
func TestDecodeHeaderOnly(t *testing.T) {
	pkt, err := protocol.Decode([]byte{0, 0, 0, 2, 0, 0, 0, 6})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkt.Type() != protocol.TypeYourTurn {
		t.Errorf("Type = %v, want YOUR_TURN", pkt.Type())
	}
	if pkt.Len() != protocol.HeaderFields {
		t.Errorf("Len = %d, want %d", pkt.Len(), protocol.HeaderFields)
	}
	if len(pkt.Payload(false)) != 0 {
		t.Errorf("Payload = %v, want empty", pkt.Payload(false))
	}
}

// TestValidateBounds checks that every packet Validate accepts survives a
// round trip, and that the first one past the limit is refused.
func TestValidateBounds(t *testing.T) {
	largest := protocol.New(protocol.TypeShipPositions, make([]int32, protocol.MaxFields-protocol.HeaderFields)...)
	if err := largest.Validate(); err != nil {
		t.Fatalf("Validate(largest) = %v", err)
	}
	got, err := protocol.Decode(protocol.Encode(largest))
	if err != nil {
		t.Fatalf("Decode(largest): %v", err)
	}
	if !got.Equal(largest) {
		t.Fatal("largest packet did not round-trip")
	}

	tooLarge := protocol.New(protocol.TypeShipPositions, make([]int32, protocol.MaxFields-protocol.HeaderFields+1)...)
	if err := tooLarge.Validate(); !errors.Is(err, protocol.ErrTooLarge) {
		t.Fatalf("Validate(tooLarge) = %v, want ErrTooLarge", err)
	}
	if _, err := protocol.Decode(protocol.Encode(tooLarge)); err == nil {
		t.Fatal("Decode accepted a packet Validate refuses")
	}

	if err := protocol.New(protocol.Type(42)).Validate(); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("Validate(Type(42)) = %v, want ErrUnknownType", err)
	}
	if err := protocol.New(protocol.Type(-1)).Validate(); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("Validate(Type(-1)) = %v, want ErrUnknownType", err)
	}
}
