package ctf

import (
	"github.com/pkg/errors"

	"github.com/allocview/allocview/model"
)

// Event opcodes, stored in the high 7 bits of the event header word.
// Small allocations get their own opcode range: opcode 100+n is an
// allocation of n words with a single sample, for n in 1..16.
const (
	opInfo       uint32 = 0
	opLocs       uint32 = 1
	opAlloc      uint32 = 2
	opPromotion  uint32 = 3
	opCollection uint32 = 4

	opSmallAllocOffset uint32 = 100
	smallAllocMin      uint32 = 1
	smallAllocMax      uint32 = 16
)

// The low 25 bits of an event header word hold the low bits of the event
// timestamp; the high bits come from the packet's timestamp lower bound.
const (
	eventTimeBits uint32 = 25
	eventTimeMask uint32 = 1<<eventTimeBits - 1
)

// Event is one decoded packet event. The concrete types are AllocEvent,
// LocsEvent, PromotionEvent and CollectionEvent; the trace info event
// only ever appears once, directly after the stream header, and is
// surfaced through Parser.Info instead.
type Event interface {
	eventName() string
}

// AllocEvent is a new allocation, with its backtrace as location codes
// to be resolved against earlier LocsEvents.
type AllocEvent struct {
	ID        model.AllocID
	Len       uint64
	NSamples  uint64
	Kind      model.AllocKind
	Backtrace []uint64
}

// Location is one source location carried by a LocsEvent.
type Location struct {
	File     string
	DefName  string
	Line     int
	ColStart int
	ColEnd   int
}

// LocsEvent binds a location code to a list of source locations (one per
// inlined frame).
type LocsEvent struct {
	ID   uint64
	Locs []Location
}

// PromotionEvent promotes an existing allocation from the minor to the
// major heap.
type PromotionEvent struct {
	ID model.AllocID
}

// CollectionEvent marks an existing allocation as collected.
type CollectionEvent struct {
	ID model.AllocID
}

func (AllocEvent) eventName() string      { return "allocation" }
func (LocsEvent) eventName() string       { return "locations" }
func (PromotionEvent) eventName() string  { return "promotion" }
func (CollectionEvent) eventName() string { return "collection" }

// Info is the trace info event: trace-level facts emitted once per dump.
type Info struct {
	SampleRate float64
	WordSize   uint8
	ExeName    string
	HostName   string
	ExeParams  string
	PID        uint64
	// Context is only present in v2 dumps.
	Context string
}

// readEventHeader decodes the opcode and reconstructs the full event
// timestamp from its low 25 bits and the packet's lower bound. The low
// bits wrapping below the bound's own low bits means the 25-bit counter
// overflowed since the packet started.
func readEventHeader(r *reader, tsBegin uint64) (opcode uint32, clock uint64, err error) {
	code, err := r.U32("event header")
	if err != nil {
		return 0, 0, err
	}

	startLow := eventTimeMask & uint32(tsBegin)
	timeLow := eventTimeMask & code
	if timeLow < startLow {
		timeLow += 1 << eventTimeBits
	}
	clock = tsBegin&^uint64(eventTimeMask) + uint64(timeLow)

	return code >> eventTimeBits, clock, nil
}

// readInfo decodes the trace info payload. The context string is only
// present from format version 2 on.
func readInfo(r *reader, version uint16) (Info, error) {
	var (
		info Info
		err  error
	)
	if info.SampleRate, err = r.F64("sample rate"); err != nil {
		return Info{}, err
	}
	if info.WordSize, err = r.U8("word size"); err != nil {
		return Info{}, err
	}
	if info.ExeName, err = r.String("executable name"); err != nil {
		return Info{}, err
	}
	if info.HostName, err = r.String("host name"); err != nil {
		return Info{}, err
	}
	if info.ExeParams, err = r.String("executable parameters"); err != nil {
		return Info{}, err
	}
	if info.PID, err = r.U64("pid"); err != nil {
		return Info{}, err
	}
	if version >= 2 {
		if info.Context, err = r.String("context"); err != nil {
			return Info{}, err
		}
	}
	return info, nil
}

// allocKindFromSource maps the wire allocation source byte to a model kind.
func allocKindFromSource(source uint8) (model.AllocKind, error) {
	switch source {
	case 0:
		return model.KindMinor, nil
	case 1:
		return model.KindMajor, nil
	case 2:
		return model.KindSerialized, nil
	default:
		return 0, errors.Errorf("unexpected allocation source %d, expected 0 (minor), 1 (major) or 2 (external)", source)
	}
}
