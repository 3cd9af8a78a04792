package protocol

import "bytes"

// Decoder reassembles packets from a byte stream. A transport hands over
// arbitrary chunks; Feed buffers partial packets until the length declared
// in their header is available.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns an empty stream decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data to the stream and returns every packet completed by it,
// in stream order.
//
// A header declaring an impossible length means the stream lost
// synchronization; the buffered bytes are discarded and a *DecodeError is
// returned together with the packets decoded before the bad header. A
// well-framed packet with an unknown type is skipped and also reported.
func (d *Decoder) Feed(data []byte) ([]*Packet, error) {
	d.buf.Write(data)

	var (
		packets  []*Packet
		firstErr error
	)
	for d.buf.Len() >= WordSize {
		n, err := declaredFields(d.buf.Bytes())
		if err != nil {
			dropped := d.buf.Len()
			d.buf.Reset()
			if firstErr == nil {
				firstErr = decodeErr(dropped, "stream out of sync: %v", err)
			}
			break
		}

		size := n * WordSize
		if d.buf.Len() < size {
			break // wait for the rest of this packet
		}

		pkt, err := Decode(d.buf.Next(size))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		packets = append(packets, pkt)
	}

	if d.buf.Len() == 0 {
		d.buf.Reset()
	}
	return packets, firstErr
}

// Buffered returns the number of bytes held for an incomplete packet.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}
