// Package ctftest builds CTF dumps in memory for tests.
//
// The writer mirrors the decoder's stateful compression: the backtrace
// cache, the prediction chains and the move-to-front string tables. That
// keeps the emitted codewords, cache-verification triples and allocation
// UID spans consistent, so the produced bytes decode like dumps written
// by a real producer.
package ctftest

import (
	"encoding/binary"
	"math"
)

const (
	magic uint32 = 0xc1fc1fc1

	cacheSize = 1 << 14
	mtfSlots  = 31

	eventTimeBits uint32 = 25
	eventTimeMask uint32 = 1<<eventTimeBits - 1

	opInfo       uint32 = 0
	opLocs       uint32 = 1
	opAlloc      uint32 = 2
	opPromotion  uint32 = 3
	opCollection uint32 = 4

	opSmallAllocOffset uint32 = 100
)

// Info mirrors the trace info payload.
type Info struct {
	SampleRate float64
	WordSize   uint8
	ExeName    string
	HostName   string
	ExeParams  string
	PID        uint64
	Context    string
}

// Location is one source location of a locations event.
type Location struct {
	File     string
	DefName  string
	Line     int
	ColStart int
	ColEnd   int
}

type mtfTable struct {
	keys []string
	vals []*mtfTable // nil for inner tables
}

func (m *mtfTable) find(key string) int {
	for i, k := range m.keys {
		if k == key {
			return i
		}
	}
	return -1
}

func (m *mtfTable) moveToFront(idx int) {
	if idx == 0 {
		return
	}
	key, val := m.keys[idx], m.vals[idx]
	copy(m.keys[1:idx+1], m.keys[:idx])
	copy(m.vals[1:idx+1], m.vals[:idx])
	m.keys[0], m.vals[0] = key, val
}

func (m *mtfTable) evictLast() *mtfTable {
	if len(m.keys) < mtfSlots {
		return nil
	}
	last := len(m.keys) - 1
	val := m.vals[last]
	m.keys = m.keys[:last]
	m.vals = m.vals[:last]
	return val
}

func (m *mtfTable) pushFront(key string, val *mtfTable) {
	m.keys = append(m.keys, "")
	m.vals = append(m.vals, nil)
	copy(m.keys[1:], m.keys)
	copy(m.vals[1:], m.vals)
	m.keys[0], m.vals[0] = key, val
}

// Writer assembles a dump. Create it with NewWriter, append packets with
// BeginPacket / event methods / EndPacket, then call Bytes.
type Writer struct {
	order   binary.ByteOrder
	version uint16
	pid     uint64

	buf        []byte
	startClock uint64

	// mirrored decoder state
	cacheLoc  [cacheSize]uint64
	cachePred [cacheSize]uint16
	scratch   []uint64
	lastLen   int
	files     mtfTable

	allocCount uint64

	// current packet, nil between packets
	packet        []byte
	packetBegin   uint64
	packetAllocLo uint64
	packetCheck   [12]byte
}

// NewWriter starts a dump: magic number, stream header and trace info
// event. startClock is the trace start in microseconds.
func NewWriter(order binary.ByteOrder, version uint16, startClock uint64, info Info) *Writer {
	w := &Writer{
		order:      order,
		version:    version,
		pid:        info.PID,
		startClock: startClock,
	}

	w.buf = w.u32(w.buf, magic)
	// Stream header, without a leading magic: 62 bytes plus an empty body.
	w.buf = w.header(w.buf, 62*8, startClock, startClock, 0, 0)

	// Trace info event.
	w.buf = w.eventHeader(w.buf, opInfo, startClock)
	w.buf = w.u64(w.buf, math.Float64bits(info.SampleRate))
	w.buf = append(w.buf, info.WordSize)
	w.buf = w.str(w.buf, info.ExeName)
	w.buf = w.str(w.buf, info.HostName)
	w.buf = w.str(w.buf, info.ExeParams)
	w.buf = w.u64(w.buf, info.PID)
	if version >= 2 {
		w.buf = w.str(w.buf, info.Context)
	}
	return w
}

// Bytes returns the assembled dump. The current packet, if any, must have
// been ended first.
func (w *Writer) Bytes() []byte {
	if w.packet != nil {
		panic("ctftest: Bytes called with an open packet")
	}
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// AllocCount returns the number of allocation UIDs issued so far.
func (w *Writer) AllocCount() uint64 {
	return w.allocCount
}

// BeginPacket opens a packet starting at the given clock. The cache
// verification triple is captured now, matching the state the decoder
// will have when it reads this packet's header.
func (w *Writer) BeginPacket(tsBegin uint64) {
	if w.packet != nil {
		panic("ctftest: BeginPacket called with an open packet")
	}
	w.packet = []byte{}
	w.packetBegin = tsBegin
	w.packetAllocLo = w.allocCount

	// Verify slot 0.
	var cc []byte
	cc = w.u16(cc, 0)
	cc = w.u16(cc, w.cachePred[0])
	cc = w.u64(cc, w.cacheLoc[0])
	copy(w.packetCheck[:], cc)
}

// EndPacket closes the packet, writing its header followed by the
// buffered events.
func (w *Writer) EndPacket(tsEnd uint64) {
	if w.packet == nil {
		panic("ctftest: EndPacket called without an open packet")
	}
	// Packet header incl. magic is 66 bytes.
	sizeBits := uint32(66+len(w.packet)) * 8
	w.buf = w.u32(w.buf, magic)
	w.buf = w.headerWithCheck(w.buf, sizeBits, w.packetBegin, tsEnd, w.packetAllocLo, w.allocCount, w.packetCheck)
	w.buf = append(w.buf, w.packet...)
	w.packet = nil
}

// Alloc writes a full allocation event and returns its UID.
func (w *Writer) Alloc(clock, size, nsamples uint64, source uint8, frames []uint64) uint64 {
	uid := w.allocCount
	w.allocCount++

	w.packet = w.eventHeader(w.packet, opAlloc, clock)
	w.packet = w.varU64(w.packet, size)
	w.packet = w.varU64(w.packet, nsamples)
	w.packet = append(w.packet, source)

	commonPrefLen, codewords := w.encodeBacktrace(frames)
	w.packet = w.varU64(w.packet, uint64(commonPrefLen))
	w.packet = w.u16(w.packet, w.countCodewords(codewords))
	w.packet = append(w.packet, codewords...)
	return uid
}

// SmallAlloc writes a small allocation event (size 1..16 words, one
// sample, minor heap) and returns its UID.
func (w *Writer) SmallAlloc(clock, size uint64, frames []uint64) uint64 {
	if size < 1 || size > 16 {
		panic("ctftest: small allocation size out of range")
	}
	uid := w.allocCount
	w.allocCount++

	w.packet = w.eventHeader(w.packet, opSmallAllocOffset+uint32(size), clock)
	commonPrefLen, codewords := w.encodeBacktrace(frames)
	w.packet = w.varU64(w.packet, uint64(commonPrefLen))
	n := w.countCodewords(codewords)
	if n > 0xff {
		panic("ctftest: too many codewords for a small allocation")
	}
	w.packet = append(w.packet, uint8(n))
	w.packet = append(w.packet, codewords...)
	return uid
}

// Collect writes a collection event for an existing UID.
func (w *Writer) Collect(clock, uid uint64) {
	w.packet = w.eventHeader(w.packet, opCollection, clock)
	w.packet = w.varU64(w.packet, w.allocCount-1-uid)
}

// Promote writes a promotion event for an existing UID.
func (w *Writer) Promote(clock, uid uint64) {
	w.packet = w.eventHeader(w.packet, opPromotion, clock)
	w.packet = w.varU64(w.packet, w.allocCount-1-uid)
}

// Locs writes a locations event binding a location code.
func (w *Writer) Locs(clock, id uint64, locs []Location) {
	w.packet = w.eventHeader(w.packet, opLocs, clock)
	w.packet = w.u64(w.packet, id)
	w.packet = append(w.packet, uint8(len(locs)))
	for _, loc := range locs {
		w.packet = w.encodeLocation(w.packet, loc)
	}
}

// RawEvent writes an event header with an arbitrary opcode followed by a
// raw payload, for malformed-input tests.
func (w *Writer) RawEvent(clock uint64, opcode uint32, payload []byte) {
	w.packet = w.eventHeader(w.packet, opcode, clock)
	w.packet = append(w.packet, payload...)
}

// encodeBacktrace emits codewords for the frames, reusing the common
// prefix with the previous backtrace and the prediction chains the
// decoder has learned, and updates the mirrored cache state.
func (w *Writer) encodeBacktrace(frames []uint64) (commonPrefLen int, codewords []byte) {
	prev := w.scratch
	if w.lastLen < len(prev) {
		prev = prev[:w.lastLen]
	}
	for commonPrefLen < len(frames) && commonPrefLen < len(prev) && frames[commonPrefLen] == prev[commonPrefLen] {
		commonPrefLen++
	}

	pred := uint16(0)
	pos := commonPrefLen

	put := func(val uint64) {
		if pos < len(w.scratch) {
			w.scratch[pos] = val
		} else {
			w.scratch = append(w.scratch, val)
		}
		pos++
	}

	for pos < len(frames) {
		frame := frames[pos]
		bucket := uint16(frame % cacheSize)

		w.cachePred[pred] = bucket
		pred = bucket

		if w.cacheLoc[bucket] == frame {
			// Hit. See how many following frames the prediction chain
			// already produces.
			npredict := 0
			tmp := pred
			for npredict < 255 && pos+1+npredict < len(frames) {
				next := w.cachePred[tmp]
				if w.cacheLoc[next] != frames[pos+1+npredict] {
					break
				}
				tmp = next
				npredict++
			}

			cw := bucket << 2
			switch {
			case npredict <= 1:
				cw |= uint16(npredict)
				codewords = w.u16(codewords, cw)
			default:
				cw |= 2
				codewords = w.u16(codewords, cw)
				codewords = append(codewords, uint8(npredict))
			}

			put(frame)
			for i := 0; i < npredict; i++ {
				pred = w.cachePred[pred]
				put(w.cacheLoc[pred])
			}
		} else {
			// Miss: literal location code.
			w.cacheLoc[bucket] = frame
			codewords = w.u16(codewords, bucket<<2|3)
			codewords = w.u64(codewords, frame)
			put(frame)
		}
	}

	w.lastLen = len(frames)
	return commonPrefLen, codewords
}

// countCodewords re-derives the codeword count from the encoded bytes:
// hits are 2 bytes, explicit-prediction hits 3, misses 10.
func (w *Writer) countCodewords(encoded []byte) uint16 {
	var n uint16
	for i := 0; i < len(encoded); {
		cw := w.order.Uint16(encoded[i:])
		i += 2
		switch cw & 3 {
		case 2:
			i++
		case 3:
			i += 8
		}
		n++
	}
	return n
}

func (w *Writer) encodeLocation(buf []byte, loc Location) []byte {
	fileCode, defCode, fileMiss, defMiss := w.mtfCodes(loc.File, loc.DefName)

	encoded := uint64(loc.Line) & 0xfffff
	encoded |= (uint64(loc.ColStart) & 0xff) << 20
	encoded |= (uint64(loc.ColEnd) & 0x3ff) << 28
	encoded |= uint64(fileCode) << 38
	encoded |= uint64(defCode) << 43

	buf = w.u32(buf, uint32(encoded))
	buf = w.u16(buf, uint16(encoded>>32))
	if fileMiss {
		buf = w.str(buf, loc.File)
	}
	if defMiss {
		buf = w.str(buf, loc.DefName)
	}
	return buf
}

// mtfCodes computes the MTF codes for a file/def-name pair and updates
// the mirrored tables with the decoder's exact eviction and reuse rules.
func (w *Writer) mtfCodes(file, def string) (fileCode, defCode int, fileMiss, defMiss bool) {
	idx := w.files.find(file)
	var defs *mtfTable
	if idx < 0 {
		fileCode, fileMiss = mtfSlots, true
		defs = w.files.evictLast()
		if defs == nil {
			defs = &mtfTable{}
		}
		defCode, defMiss = mtfCodeInner(defs, def)
		w.files.pushFront(file, defs)
	} else {
		fileCode = idx
		defs = w.files.vals[idx]
		defCode, defMiss = mtfCodeInner(defs, def)
		w.files.moveToFront(idx)
	}
	return fileCode, defCode, fileMiss, defMiss
}

func mtfCodeInner(defs *mtfTable, def string) (code int, miss bool) {
	idx := defs.find(def)
	if idx < 0 {
		defs.evictLast()
		defs.pushFront(def, nil)
		return mtfSlots, true
	}
	defs.moveToFront(idx)
	return idx, false
}

// header writes a stream/packet header without the magic number.
func (w *Writer) header(buf []byte, sizeBits uint32, tsBegin, tsEnd, allocLo, allocHi uint64) []byte {
	var cc [12]byte // all-zero check matches a fresh cache
	return w.headerWithCheck(buf, sizeBits, tsBegin, tsEnd, allocLo, allocHi, cc)
}

func (w *Writer) headerWithCheck(buf []byte, sizeBits uint32, tsBegin, tsEnd, allocLo, allocHi uint64, check [12]byte) []byte {
	buf = w.u32(buf, sizeBits)
	buf = w.u64(buf, tsBegin)
	buf = w.u64(buf, tsEnd)
	buf = w.u32(buf, 0) // flush duration
	buf = w.u16(buf, w.version)
	buf = w.u64(buf, w.pid)
	buf = append(buf, check[:]...)
	buf = w.u64(buf, allocLo)
	buf = w.u64(buf, allocHi)
	return buf
}

func (w *Writer) eventHeader(buf []byte, opcode uint32, clock uint64) []byte {
	return w.u32(buf, opcode<<eventTimeBits|uint32(clock)&eventTimeMask)
}

func (w *Writer) u16(buf []byte, v uint16) []byte {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func (w *Writer) u32(buf []byte, v uint32) []byte {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func (w *Writer) u64(buf []byte, v uint64) []byte {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func (w *Writer) varU64(buf []byte, v uint64) []byte {
	switch {
	case v <= 252:
		return append(buf, uint8(v))
	case v <= math.MaxUint16:
		return w.u16(append(buf, 253), uint16(v))
	case v <= math.MaxUint32:
		return w.u32(append(buf, 254), uint32(v))
	default:
		return w.u64(append(buf, 255), v)
	}
}

func (w *Writer) str(buf []byte, s string) []byte {
	return append(append(buf, s...), 0)
}
