package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PayloadWriter builds a single packet's payload bytes: primitives in wire
// order. Methods chain; check Err after the last call.
type PayloadWriter struct {
	buf         []byte
	maxStrBytes int
	err         error
}

// NewPayloadWriter returns an empty payload writer with the default string
// size bound.
func NewPayloadWriter() *PayloadWriter {
	return &PayloadWriter{maxStrBytes: DefaultMaxStringBytes}
}

// Bytes returns the accumulated payload.
func (w *PayloadWriter) Bytes() []byte { return w.buf }

// Err returns the first encoding error encountered, if any.
func (w *PayloadWriter) Err() error { return w.err }

func (w *PayloadWriter) U8(v uint8) *PayloadWriter {
	w.buf = append(w.buf, v)
	return w
}

func (w *PayloadWriter) Bool(v bool) *PayloadWriter {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *PayloadWriter) I16(v int16) *PayloadWriter { return w.U16(uint16(v)) }

func (w *PayloadWriter) U16(v uint16) *PayloadWriter {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *PayloadWriter) I32(v int32) *PayloadWriter { return w.U32(uint32(v)) }

func (w *PayloadWriter) U32(v uint32) *PayloadWriter {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *PayloadWriter) I64(v int64) *PayloadWriter { return w.U64(uint64(v)) }

func (w *PayloadWriter) U64(v uint64) *PayloadWriter {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *PayloadWriter) F32(v float32) *PayloadWriter {
	return w.U32(math.Float32bits(v))
}

func (w *PayloadWriter) F64(v float64) *PayloadWriter {
	return w.U64(math.Float64bits(v))
}

// String encodes the empty tag for "" and the present-tag + ULEB128 length +
// UTF-8 bytes form otherwise. Sets Err on oversize strings.
func (w *PayloadWriter) String(s string) *PayloadWriter {
	if w.err != nil {
		return w
	}
	if s == "" {
		w.buf = append(w.buf, 0x00)
		return w
	}
	if len(s) > w.maxStrBytes {
		w.err = fmt.Errorf("wire: %w: string length %d", ErrOversize, len(s))
		return w
	}
	w.buf = append(w.buf, 0x0b)
	w.buf = appendULEB128(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// I32List encodes an i16 count followed by i32 elements.
func (w *PayloadWriter) I32List(vals []int32) *PayloadWriter {
	if w.err != nil {
		return w
	}
	if len(vals) > math.MaxInt16 {
		w.err = fmt.Errorf("wire: %w: list length %d", ErrOversize, len(vals))
		return w
	}
	w.I16(int16(len(vals)))
	for _, v := range vals {
		w.I32(v)
	}
	return w
}

// Raw appends pre-encoded bytes verbatim (used to splice in a nested or
// already-framed payload).
func (w *PayloadWriter) Raw(b []byte) *PayloadWriter {
	w.buf = append(w.buf, b...)
	return w
}

func appendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

// PayloadReader decodes a packet payload sequentially.
type PayloadReader struct {
	buf         []byte
	pos         int
	maxStrBytes int
}

// NewPayloadReader wraps buf for sequential decoding with the default string
// size bound.
func NewPayloadReader(buf []byte) *PayloadReader {
	return &PayloadReader{buf: buf, maxStrBytes: DefaultMaxStringBytes}
}

// Len reports the number of undecoded bytes remaining.
func (r *PayloadReader) Len() int { return len(r.buf) - r.pos }

// Remaining returns the undecoded tail of the buffer without advancing.
func (r *PayloadReader) Remaining() []byte { return r.buf[r.pos:] }

func (r *PayloadReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrTruncated
	}
	return nil
}

func (r *PayloadReader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *PayloadReader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *PayloadReader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *PayloadReader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *PayloadReader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *PayloadReader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *PayloadReader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *PayloadReader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *PayloadReader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

func (r *PayloadReader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}

func (r *PayloadReader) uleb128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.U8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("wire: uleb128 overflow")
		}
	}
}

// String decodes the tag + optional ULEB128-length + UTF-8 form.
func (r *PayloadReader) String() (string, error) {
	tag, err := r.U8()
	if err != nil {
		return "", err
	}
	if tag == 0x00 {
		return "", nil
	}
	if tag != 0x0b {
		return "", fmt.Errorf("wire: unexpected string tag 0x%02x", tag)
	}
	n, err := r.uleb128()
	if err != nil {
		return "", err
	}
	if n > uint64(r.maxStrBytes) {
		return "", ErrOversize
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// I32List decodes an i16 count followed by i32 elements.
func (r *PayloadReader) I32List() ([]int32, error) {
	n, err := r.I16()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("wire: negative list length %d", n)
	}
	out := make([]int32, 0, n)
	for i := int16(0); i < n; i++ {
		v, err := r.I32()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
