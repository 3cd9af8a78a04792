package protocol

import (
	"encoding/binary"
	"fmt"
)

// WordSize is the byte width of every field on the wire.
const WordSize = 4

// MaxFields bounds the declared total field count of a single packet.
const MaxFields = 1 << 16

// DecodeError reports a malformed or truncated packet.
type DecodeError struct {
	Reason string
	Size   int // number of bytes that were offered to the decoder
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: cannot decode %d bytes: %s", e.Size, e.Reason)
}

func decodeErr(size int, format string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Size: size}
}

// Encode serializes a Packet: [Len, Type, payload...], each field a
// big-endian int32.
func Encode(pkt *Packet) []byte {
	buf := make([]byte, pkt.Len()*WordSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(pkt.Len()))
	binary.BigEndian.PutUint32(buf[4:8], uint32(pkt.typ))
	for i, v := range pkt.payload {
		off := (HeaderFields + i) * WordSize
		binary.BigEndian.PutUint32(buf[off:off+WordSize], uint32(v))
	}
	return buf
}

// Decode deserializes exactly one packet. The first field declares the
// total field count N, and data must hold exactly N fields.
func Decode(data []byte) (*Packet, error) {
	size := len(data)
	if size%WordSize != 0 {
		return nil, decodeErr(size, "length is not a multiple of %d", WordSize)
	}
	if size < HeaderFields*WordSize {
		return nil, decodeErr(size, "packet too short (need at least %d bytes)", HeaderFields*WordSize)
	}

	n, err := declaredFields(data)
	if err != nil {
		return nil, decodeErr(size, "%v", err)
	}
	switch {
	case size < n*WordSize:
		return nil, decodeErr(size, "truncated: header declares %d fields (%d bytes)", n, n*WordSize)
	case size > n*WordSize:
		return nil, decodeErr(size, "trailing data: header declares %d fields (%d bytes)", n, n*WordSize)
	}

	typ := Type(int32(binary.BigEndian.Uint32(data[4:8])))
	if !typ.Valid() {
		return nil, decodeErr(size, "unknown packet type %d", int32(typ))
	}

	pkt := &Packet{typ: typ}
	if n > HeaderFields {
		pkt.payload = make([]int32, n-HeaderFields)
		for i := range pkt.payload {
			off := (HeaderFields + i) * WordSize
			pkt.payload[i] = int32(binary.BigEndian.Uint32(data[off : off+WordSize]))
		}
	}
	return pkt, nil
}

// declaredFields reads and validates the total field count from the first
// word of data, which must hold at least WordSize bytes.
func declaredFields(data []byte) (int, error) {
	n := binary.BigEndian.Uint32(data[0:WordSize])
	if n < HeaderFields {
		return 0, fmt.Errorf("declared length %d is smaller than the header", n)
	}
	if n > MaxFields {
		return 0, fmt.Errorf("declared length %d exceeds %d fields", n, MaxFields)
	}
	return int(n), nil
}
