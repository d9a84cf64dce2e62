// Package ctf decodes memtrace CTF allocation-trace dumps into the model
// types: a trace-level Init record plus one Diff per packet.
//
// The format is packet-oriented. A dump starts with a magic number that
// fixes the byte order, a stream header and a single trace info event,
// followed by packets. Each packet carries its own header (including
// backtrace-cache verification data) and a sequence of events.
package ctf

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Magic is the memtrace CTF magic number. Reading it at the start of a
// dump decides the byte order of everything that follows.
const Magic uint32 = 0xc1fc1fc1

// ErrTruncated is wrapped by all errors caused by running out of input.
var ErrTruncated = errors.New("truncated input")

// reader is a cursor over a byte slice. All multi-byte reads go through
// the configured binary.ByteOrder, so one reader implementation handles
// both big- and little-endian dumps.
type reader struct {
	data  []byte
	pos   int
	base  int // offset of data[0] within the original dump, for errors
	order binary.ByteOrder
}

func newReader(data []byte, base int, order binary.ByteOrder) *reader {
	return &reader{data: data, base: base, order: order}
}

// detectByteOrder reads the magic number and returns the byte order it
// implies. Big-endian is tried first, then little-endian.
func detectByteOrder(data []byte) (binary.ByteOrder, error) {
	if len(data) < 4 {
		return nil, errors.Wrapf(ErrTruncated, "reading magic number: need 4 bytes, have %d", len(data))
	}
	if binary.BigEndian.Uint32(data) == Magic {
		return binary.BigEndian, nil
	}
	if binary.LittleEndian.Uint32(data) == Magic {
		return binary.LittleEndian, nil
	}
	return nil, errors.Errorf("not a CTF dump: expected magic number %#x, got %#x (be) / %#x (le)",
		Magic, binary.BigEndian.Uint32(data), binary.LittleEndian.Uint32(data))
}

func (r *reader) need(n int, what string) error {
	if r.pos+n <= len(r.data) {
		return nil
	}
	return errors.Wrapf(ErrTruncated, "%s at offset %d: need %d bytes, have %d",
		what, r.base+r.pos, n, len(r.data)-r.pos)
}

// Pos returns the current offset within the original dump.
func (r *reader) Pos() int {
	return r.base + r.pos
}

func (r *reader) EOF() bool {
	return r.pos == len(r.data)
}

func (r *reader) Remaining() int {
	return len(r.data) - r.pos
}

// Take consumes n bytes and returns them as a subslice of the input.
func (r *reader) Take(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) U8(what string) (uint8, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) U16(what string) (uint16, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}
	v := r.order.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) U32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := r.order.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) U64(what string) (uint64, error) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	v := r.order.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) F64(what string) (float64, error) {
	bits, err := r.U64(what)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// String reads a NUL-terminated string and consumes the terminator. The
// bytes must form valid UTF-8.
func (r *reader) String(what string) (string, error) {
	end := bytes.IndexByte(r.data[r.pos:], 0)
	if end < 0 {
		return "", errors.Wrapf(ErrTruncated, "%s at offset %d: unterminated string", what, r.base+r.pos)
	}
	raw := r.data[r.pos : r.pos+end]
	if !utf8.Valid(raw) {
		return "", errors.Errorf("%s at offset %d: not a valid UTF-8 string", what, r.base+r.pos)
	}
	r.pos += end + 1
	return string(raw), nil
}

// VarU64 reads memtrace's variable-length integer: a u8 up to 252 is the
// value itself; 253, 254 and 255 announce a u16, u32 or u64.
func (r *reader) VarU64(what string) (uint64, error) {
	variant, err := r.U8(what)
	if err != nil {
		return 0, err
	}
	switch variant {
	case 253:
		v, err := r.U16(what)
		return uint64(v), err
	case 254:
		v, err := r.U32(what)
		return uint64(v), err
	case 255:
		return r.U64(what)
	default:
		return uint64(variant), nil
	}
}
