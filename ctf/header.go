package ctf

import (
	"github.com/pkg/errors"
)

// Supported trace format versions. Version 2 extends the trace info event
// with a context string; everything else is identical.
const (
	versionMin uint16 = 1
	versionMax uint16 = 2
)

// ClockSpan is a microsecond timestamp range with Begin <= End.
type ClockSpan struct {
	Begin uint64
	End   uint64
}

// IDSpan is an allocation UID range with Begin <= End.
type IDSpan struct {
	Begin uint64
	End   uint64
}

func newClockSpan(begin, end uint64) (ClockSpan, error) {
	if begin > end {
		return ClockSpan{}, errors.Errorf("illegal timestamp range: begin %d > end %d", begin, end)
	}
	return ClockSpan{Begin: begin, End: end}, nil
}

// Contains reports whether x falls within the span, bounds included.
func (s ClockSpan) Contains(x uint64) bool {
	return s.Begin <= x && x <= s.End
}

func newIDSpan(begin, end uint64) (IDSpan, error) {
	if begin > end {
		return IDSpan{}, errors.Errorf("illegal allocation UID range: begin %d > end %d", begin, end)
	}
	return IDSpan{Begin: begin, End: end}, nil
}

// Contains reports whether x falls within the span, bounds included.
func (s IDSpan) Contains(x uint64) bool {
	return s.Begin <= x && x <= s.End
}

// CacheCheck is the backtrace-cache verification triple carried by every
// header: after decoding the previous packet, slot Ix of the decoder's
// cache must predict Pred and hold location Value.
type CacheCheck struct {
	Ix    uint16
	Pred  uint16
	Value uint64
}

// Header is the decoded stream or packet header.
type Header struct {
	// ContentSize is the number of event bytes following the header.
	ContentSize int
	Timestamp   ClockSpan
	AllocIDs    IDSpan
	PID         uint64
	Version     uint16
	CacheCheck  CacheCheck
}

// readHeader decodes a stream or packet header. Packets lead with the
// magic number; the stream header does not, because byte-order detection
// already consumed it.
func readHeader(r *reader, withMagic bool) (Header, error) {
	start := r.pos

	if withMagic {
		magic, err := r.U32("packet magic")
		if err != nil {
			return Header{}, err
		}
		if magic != Magic {
			return Header{}, errors.Errorf("not a CTF packet at offset %d: expected magic number %#x, got %#x",
				r.base+start, Magic, magic)
		}
	}

	sizeBits, err := r.U32("packet size")
	if err != nil {
		return Header{}, err
	}
	tsBegin, err := r.U64("packet timestamp begin")
	if err != nil {
		return Header{}, err
	}
	tsEnd, err := r.U64("packet timestamp end")
	if err != nil {
		return Header{}, err
	}
	timestamp, err := newClockSpan(tsBegin, tsEnd)
	if err != nil {
		return Header{}, err
	}

	// Flush duration, unused.
	if _, err := r.U32("flush duration"); err != nil {
		return Header{}, err
	}

	version, err := r.U16("version")
	if err != nil {
		return Header{}, err
	}
	if version < versionMin || version > versionMax {
		return Header{}, errors.Errorf("found trace format v%d, expected v%d..v%d", version, versionMin, versionMax)
	}

	pid, err := r.U64("pid")
	if err != nil {
		return Header{}, err
	}

	var cc CacheCheck
	if cc.Ix, err = r.U16("cache check index"); err != nil {
		return Header{}, err
	}
	if cc.Pred, err = r.U16("cache check prediction"); err != nil {
		return Header{}, err
	}
	if cc.Value, err = r.U64("cache check value"); err != nil {
		return Header{}, err
	}

	allocBegin, err := r.U64("alloc UID begin")
	if err != nil {
		return Header{}, err
	}
	allocEnd, err := r.U64("alloc UID end")
	if err != nil {
		return Header{}, err
	}
	allocIDs, err := newIDSpan(allocBegin, allocEnd)
	if err != nil {
		return Header{}, err
	}

	if sizeBits%8 != 0 {
		return Header{}, errors.Errorf("illegal packet size %d: not a whole number of bytes", sizeBits)
	}
	headerSize := r.pos - start
	totalSize := int(sizeBits / 8)
	if totalSize < headerSize {
		return Header{}, errors.Errorf("illegal packet size %d bytes: smaller than its own header (%d bytes)",
			totalSize, headerSize)
	}

	return Header{
		ContentSize: totalSize - headerSize,
		Timestamp:   timestamp,
		AllocIDs:    allocIDs,
		PID:         pid,
		Version:     version,
		CacheCheck:  cc,
	}, nil
}
