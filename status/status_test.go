package status

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PowerDNS/simpleblob/backends/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allocview/allocview/config"
	"github.com/allocview/allocview/ctf/ctftest"
	"github.com/allocview/allocview/model"
	"github.com/allocview/allocview/watcher"
)

func TestSummarize(t *testing.T) {
	tod := 5 * time.Millisecond
	ts := []*watcher.Trace{
		{
			Name:     "app",
			Blob:     "app.ctf",
			Size:     1024,
			LoadTime: 12 * time.Millisecond,
			Init:     model.Init{WordSize: 8, SamplingRate: 1e-4},
			Diffs: []model.Diff{
				{New: []model.Alloc{{}, {}, {TOD: &tod}}},
				{New: make([]model.Alloc, 2)},
			},
		},
	}
	s := Summarize(ts)
	require.Len(t, s, 1)
	assert.Equal(t, "app", s[0].Name)
	assert.Equal(t, 5, s[0].Allocs)
	assert.Equal(t, 1, s[0].Dead)
	assert.Equal(t, 2, s[0].Diffs)
	assert.Equal(t, 8, s[0].WordSize)
	assert.Equal(t, "12ms", s[0].LoadTime)
}

func TestTraceAPI(t *testing.T) {
	ctx := context.Background()

	dw := ctftest.NewWriter(binary.LittleEndian, 2, 1_000_000, ctftest.Info{
		SampleRate: 1e-4,
		WordSize:   8,
		ExeName:    "app.exe",
		HostName:   "host",
		ExeParams:  "app.exe",
		PID:        7,
	})
	dw.BeginPacket(1_000_000)
	dw.Locs(1_000_001, 5, []ctftest.Location{
		{File: "main.ml", DefName: "run", Line: 3, ColStart: 0, ColEnd: 4},
	})
	dw.Alloc(1_000_100, 48, 1, 0, []uint64{5})
	dw.EndPacket(1_001_000)

	st := memory.New()
	require.NoError(t, st.Store(ctx, "app.ctf", dw.Bytes()))

	c := config.Default()
	c.Storage.Type = "memory"
	w := watcher.New(st, c, logrus.New())
	require.NoError(t, w.RunOnce(ctx))

	SetStorage(st)
	SetWatcher(w)

	rec := httptest.NewRecorder()
	handleTraceList(rec, httptest.NewRequest("GET", "/api/traces", nil))
	require.Equal(t, 200, rec.Code)
	var summaries []TraceSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "app", summaries[0].Name)
	assert.Equal(t, 1, summaries[0].Allocs)

	rec = httptest.NewRecorder()
	handleTraceGet(rec, httptest.NewRequest("GET", "/api/traces/app", nil))
	require.Equal(t, 200, rec.Code)
	var tr watcher.Trace
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "app", tr.Name)
	assert.Equal(t, 8, tr.Init.WordSize)
	require.Len(t, tr.Diffs, 1)

	rec = httptest.NewRecorder()
	handleTraceGet(rec, httptest.NewRequest("GET", "/api/traces/nope", nil))
	assert.Equal(t, 404, rec.Code)
}
