// Package wire implements the bancho binary packet framing and primitive
// encodings: a length-prefixed frame header plus little-endian scalar,
// string, and list primitives used by every packet payload.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned when a buffer ends mid-frame or mid-field.
var ErrTruncated = errors.New("wire: truncated")

// ErrOversize is returned when a decoded string exceeds the configured bound.
var ErrOversize = errors.New("wire: value exceeds maximum size")

const frameHeaderSize = 1 + 1 + 4

// DefaultMaxStringBytes bounds decoded string payloads (§4.A default 64 KiB).
const DefaultMaxStringBytes = 64 * 1024

// Packet is an immutable (kind, payload) pair as read off the wire.
type Packet struct {
	Kind    byte
	Payload []byte
}

// Writer accumulates framed packets into a single outbound byte stream.
// The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty frame writer.
func NewWriter() *Writer { return &Writer{} }

// WritePacket appends kind and payload framed as a single wire packet.
func (w *Writer) WritePacket(kind byte, payload []byte) {
	var hdr [frameHeaderSize]byte
	hdr[0] = kind
	hdr[1] = 0
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(payload)))
	w.buf = append(w.buf, hdr[:]...)
	w.buf = append(w.buf, payload...)
}

// WriteRaw appends already-framed packet bytes verbatim, for callers
// splicing packets produced elsewhere (e.g. a drained queue) into a single
// outbound stream without re-decoding them.
func (w *Writer) WriteRaw(framed []byte) {
	w.buf = append(w.buf, framed...)
}

// Bytes returns the accumulated frame stream.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports the number of bytes accumulated so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset discards accumulated bytes for reuse.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Reader lazily decodes a byte stream into a sequence of frames.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential frame decoding.
func NewReader(data []byte) *Reader { return &Reader{data: data} }

// Next returns the next packet in the stream, io.EOF once fully consumed,
// or ErrTruncated if a short trailing fragment remains.
func (r *Reader) Next() (Packet, error) {
	if r.pos == len(r.data) {
		return Packet{}, io.EOF
	}
	if len(r.data)-r.pos < frameHeaderSize {
		return Packet{}, ErrTruncated
	}
	kind := r.data[r.pos]
	length := binary.LittleEndian.Uint32(r.data[r.pos+2 : r.pos+6])
	start := r.pos + frameHeaderSize
	end := start + int(length)
	if end < start || end > len(r.data) {
		return Packet{}, ErrTruncated
	}
	r.pos = end
	return Packet{Kind: kind, Payload: r.data[start:end]}, nil
}

// ReadAll decodes every complete frame in data, returning ErrTruncated if a
// short trailing fragment remains after the last complete frame.
func ReadAll(data []byte) ([]Packet, error) {
	r := NewReader(data)
	var out []Packet
	for {
		p, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}
