package status

import (
	"context"
	"sync"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/allocview/allocview/watcher"
)

// info holds the global state shown on the status page and served by the
// API endpoints.
type info struct {
	mu sync.Mutex
	w  *watcher.Watcher
	st simpleblob.Interface
}

var gi info

// SetStorage registers the storage backend with the status page
func SetStorage(st simpleblob.Interface) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.st = st
}

// SetWatcher registers the trace watcher with the status page
func SetWatcher(w *watcher.Watcher) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.w = w
}

func (i *info) ListBlobs(ctx context.Context) (simpleblob.BlobList, error) {
	i.mu.Lock()
	st := i.st
	i.mu.Unlock()
	if st == nil {
		return nil, errors.New("no storage registered with status page")
	}
	return st.List(ctx, "")
}

func (i *info) Watcher() *watcher.Watcher {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.w
}

func (i *info) Traces() []*watcher.Trace {
	w := i.Watcher()
	if w == nil {
		return nil
	}
	return w.List()
}

// TraceSummary is the per-trace row served by /api/traces and shown on
// the status page.
type TraceSummary struct {
	Name         string            `json:"name"`
	Blob         string            `json:"blob"`
	Size         datasize.ByteSize `json:"size"`
	Compressed   bool              `json:"compressed"`
	StartTime    time.Time         `json:"start_time"`
	WordSize     int               `json:"word_size"`
	SamplingRate float64           `json:"sampling_rate"`
	Allocs       int               `json:"allocs"`
	Dead         int               `json:"dead"`
	Diffs        int               `json:"diffs"`
	LoadedAt     time.Time         `json:"loaded_at"`
	LoadTime     string            `json:"load_time"`
}

// Summarize converts decoded traces into API summaries.
func Summarize(ts []*watcher.Trace) []TraceSummary {
	return lo.Map(ts, func(t *watcher.Trace, _ int) TraceSummary {
		return TraceSummary{
			Name:         t.Name,
			Blob:         t.Blob,
			Size:         t.Size,
			Compressed:   t.Compressed,
			StartTime:    t.Init.StartTime,
			WordSize:     t.Init.WordSize,
			SamplingRate: t.Init.SamplingRate,
			Allocs:       t.NumAllocs(),
			Dead:         t.NumDead(),
			Diffs:        len(t.Diffs),
			LoadedAt:     t.LoadedAt,
			LoadTime:     t.LoadTime.String(),
		}
	})
}
