package ctf

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allocview/allocview/ctf/ctftest"
	"github.com/allocview/allocview/model"
)

func TestParseEndToEnd(t *testing.T) {
	for _, tc := range []struct {
		name  string
		order binary.ByteOrder
	}{
		{"little endian", binary.LittleEndian},
		{"big endian", binary.BigEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := ctftest.NewWriter(tc.order, 2, testStartClock, testInfo())

			w.BeginPacket(testStartClock)
			w.Locs(testStartClock+10, 7, []ctftest.Location{
				{File: "main.ml", DefName: "run", Line: 10, ColStart: 2, ColEnd: 9},
			})
			w.Locs(testStartClock+10, 8, []ctftest.Location{
				{File: "list.ml", DefName: "map", Line: 20, ColStart: 0, ColEnd: 7},
			})
			first := w.Alloc(testStartClock+100, 96, 2, 1, []uint64{8, 7})
			second := w.SmallAlloc(testStartClock+200, 3, []uint64{8, 7})
			w.Promote(testStartClock+300, first)
			w.Collect(testStartClock+400, second)
			w.EndPacket(testStartClock + 1000)

			w.BeginPacket(testStartClock + 1000)
			w.Collect(testStartClock+1100, first)
			w.EndPacket(testStartClock + 2000)

			reg := model.NewRegistry()
			init, diffs, err := Parse(w.Bytes(), reg)
			require.NoError(t, err)

			assert.Equal(t, time.UnixMicro(testStartClock).UTC(), init.StartTime)
			assert.Equal(t, 8, init.WordSize)
			assert.Equal(t, 1e-4, init.SamplingRate)
			assert.False(t, init.CallstackIsRev)

			// The second packet created no allocations: no diff for it.
			require.Len(t, diffs, 1)
			diff := diffs[0]
			assert.Equal(t, time.Duration(0), diff.Time)
			require.Len(t, diff.New, 2)

			a := diff.New[0]
			assert.Equal(t, model.AllocID(0), a.UID)
			assert.Equal(t, model.KindMajor, a.Kind)
			assert.Equal(t, uint64(96), a.Size)
			assert.Equal(t, uint64(2), a.NSamples)
			assert.Equal(t, 100*time.Microsecond, a.TOC)
			assert.Equal(t, reg.EmptyLabels(), a.Labels)
			// Collected by the second packet: TOD patched in place.
			require.NotNil(t, a.TOD)
			assert.Equal(t, 1100*time.Microsecond, *a.TOD)

			trace := reg.Trace(a.Trace)
			require.Len(t, trace, 2)
			assert.Equal(t, "list.ml", reg.Str(trace[0].Loc.File))
			assert.Equal(t, 20, trace[0].Loc.Line)
			assert.Equal(t, model.Span{Start: 0, End: 7}, trace[0].Loc.Span)
			assert.Equal(t, 1, trace[0].Count)
			assert.Equal(t, "main.ml", reg.Str(trace[1].Loc.File))

			b := diff.New[1]
			assert.Equal(t, model.AllocID(1), b.UID)
			assert.Equal(t, model.KindMinor, b.Kind)
			assert.Equal(t, uint64(3), b.Size)
			assert.Equal(t, uint64(1), b.NSamples)
			// Same backtrace, same interned trace.
			assert.Equal(t, a.Trace, b.Trace)
			// Collected within its own packet.
			require.NotNil(t, b.TOD)
			assert.Equal(t, 400*time.Microsecond, *b.TOD)

			// Deaths only ever land on the allocation itself.
			assert.Empty(t, diff.Dead)
		})
	}
}

func TestParseDeathInAllocFreePacket(t *testing.T) {
	// The collecting packet creates no allocations of its own, so its
	// diff is dropped. The death must survive that: it is recorded as
	// the allocation's TOD, never as a diff entry.
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	uid := w.SmallAlloc(testStartClock+1, 2, nil)
	w.EndPacket(testStartClock + 100)
	w.BeginPacket(testStartClock + 100)
	w.Collect(testStartClock+150, uid)
	w.EndPacket(testStartClock + 200)

	_, diffs, err := Parse(w.Bytes(), model.NewRegistry())
	require.NoError(t, err)
	require.Len(t, diffs, 1)

	a := diffs[0].New[0]
	require.NotNil(t, a.TOD)
	assert.Equal(t, 150*time.Microsecond, *a.TOD)
	for _, d := range diffs {
		assert.Empty(t, d.Dead)
	}
}

func TestParseTimestampBeforeTraceStart(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	// A packet that claims to begin before the trace itself started.
	w.BeginPacket(testStartClock - 500)
	w.SmallAlloc(testStartClock-400, 1, nil)
	w.EndPacket(testStartClock + 100)

	_, _, err := Parse(w.Bytes(), model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before the trace start")
}

func TestParseAllocOutsideDeclaredSpan(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	// Two hand-rolled allocations the writer does not count: the packet
	// header declares the UID span 0..0, the second event gets UID 1.
	payload := []byte{
		8,    // length
		1,    // samples
		0,    // minor
		0,    // common prefix
		0, 0, // no codewords
	}
	w.RawEvent(testStartClock+1, 2, payload)
	w.RawEvent(testStartClock+2, 2, payload)
	w.EndPacket(testStartClock + 100)

	_, _, err := Parse(w.Bytes(), model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the declared span")
}

func TestParseCollapsesRepeatedFrames(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	w.Locs(testStartClock+1, 7, []ctftest.Location{
		{File: "main.ml", DefName: "loop", Line: 5, ColStart: 0, ColEnd: 4},
	})
	w.Alloc(testStartClock+2, 8, 1, 0, []uint64{7, 7, 7})
	w.EndPacket(testStartClock + 100)

	reg := model.NewRegistry()
	_, diffs, err := Parse(w.Bytes(), reg)
	require.NoError(t, err)
	require.Len(t, diffs, 1)

	trace := reg.Trace(diffs[0].New[0].Trace)
	require.Len(t, trace, 1)
	assert.Equal(t, 3, trace[0].Count)
}

func TestParseUnknownLocationCode(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	w.Alloc(testStartClock+2, 8, 1, 0, []uint64{99})
	w.EndPacket(testStartClock + 100)

	_, _, err := Parse(w.Bytes(), model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown location code 99")
}

func TestParseDuplicateLocationCode(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	loc := []ctftest.Location{{File: "a.ml", DefName: "f", Line: 1}}
	w.Locs(testStartClock+1, 7, loc)
	w.Locs(testStartClock+2, 7, loc)
	w.EndPacket(testStartClock + 100)

	_, _, err := Parse(w.Bytes(), model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestParseCollectionOfCollectedAlloc(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	uid := w.SmallAlloc(testStartClock+1, 1, nil)
	w.Collect(testStartClock+2, uid)
	w.Collect(testStartClock+3, uid)
	w.EndPacket(testStartClock + 100)

	_, _, err := Parse(w.Bytes(), model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown allocation UID")
}

func TestParseAllocSpanMismatch(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	// A hand-rolled allocation event the writer does not count, so the
	// packet header's UID range disagrees with the decoded events.
	payload := []byte{
		8,    // length
		1,    // samples
		0,    // minor
		0,    // common prefix
		0, 0, // no codewords
	}
	w.RawEvent(testStartClock+1, 2, payload)
	w.EndPacket(testStartClock + 100)

	_, _, err := Parse(w.Bytes(), model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder issued")
}

func TestParseCacheCheckMismatch(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	w.BeginPacket(testStartClock)
	w.Locs(testStartClock+1, 7, []ctftest.Location{{File: "a.ml", DefName: "f", Line: 1}})
	w.Alloc(testStartClock+2, 8, 1, 0, []uint64{7})
	w.EndPacket(testStartClock + 100)
	w.BeginPacket(testStartClock + 100)
	w.Collect(testStartClock+101, 0)
	w.EndPacket(testStartClock + 200)

	data := w.Bytes()

	// Corrupt the cache-check value in the second packet's header. The
	// header layout puts the 12 check bytes 38 bytes after the magic.
	leMagic := []byte{0xc1, 0x1f, 0xfc, 0xc1}
	firstPacket := bytes.Index(data[4:], leMagic) + 4
	secondPacket := bytes.Index(data[firstPacket+4:], leMagic) + firstPacket + 4
	data[secondPacket+38+4] ^= 0xff

	_, _, err := Parse(data, model.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache verification failed")
}

func TestParseEmptyDump(t *testing.T) {
	w := ctftest.NewWriter(binary.LittleEndian, 2, testStartClock, testInfo())
	reg := model.NewRegistry()
	init, diffs, err := Parse(w.Bytes(), reg)
	require.NoError(t, err)
	assert.Equal(t, 8, init.WordSize)
	assert.Empty(t, diffs)
}
