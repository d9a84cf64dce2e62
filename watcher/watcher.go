// Package watcher polls a storage backend for allocation trace dumps and
// decodes new ones into the data model.
package watcher

import (
	"context"
	"sort"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/c2h5oh/datasize"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/allocview/allocview/config"
	"github.com/allocview/allocview/status/healthtracker"
	"github.com/allocview/allocview/status/starttracker"
	"github.com/allocview/allocview/utils"
	"github.com/allocview/allocview/utils/climit"
	"github.com/allocview/allocview/utils/topics"
)

// gcThreshold is the blob size above which we trigger a GC after decoding,
// to return the decode scratch memory to the OS sooner.
const gcThreshold = 64 * datasize.MB

func New(st simpleblob.Interface, c config.Config, l logrus.FieldLogger) *Watcher {
	w := &Watcher{
		st:               st,
		c:                c,
		l:                l.WithField("component", "watcher"),
		limit:            climit.New("trace-decode", c.Watch.MaxParallel, l),
		health:           healthtracker.New(c.Watch.Health, "watcher_list", "list the storage backend"),
		start:            starttracker.New(c.Watch.StartupHealth, "watcher"),
		loaded:           topics.New[*Trace](),
		ignoredFilenames: make(map[string]bool),
		loadedFilenames:  make(map[string]bool),
		traces:           make(map[string]*Trace),
	}
	w.mu.Name = "watcher"
	w.mu.Logger = w.l
	return w
}

// Watcher monitors a storage backend for trace dumps. New dumps are
// decoded, registered and published on the Loaded topic. A dump that was
// handled once, whether successfully or not, is never decoded again.
type Watcher struct {
	st     simpleblob.Interface
	c      config.Config
	l      logrus.FieldLogger
	limit  *climit.ConcurrencyLimit
	health *healthtracker.HealthTracker
	start  *starttracker.StartTracker
	loaded *topics.Topic[*Trace]

	decoding atomic.Int32 // dumps currently being decoded

	// The maps are accessed by the Run goroutine and by the per-dump
	// decode goroutines.
	mu               utils.MonitoredMutex
	ignoredFilenames map[string]bool
	loadedFilenames  map[string]bool
	traces           map[string]*Trace // by trace name
}

// Loaded returns the topic on which decoded traces are published.
func (w *Watcher) Loaded() *topics.Topic[*Trace] {
	return w.loaded
}

// Decoding returns the number of dumps currently being decoded.
func (w *Watcher) Decoding() int {
	return int(w.decoding.Load())
}

// Get returns a decoded trace by name.
func (w *Watcher) Get(name string) (*Trace, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.traces[name]
	return t, ok
}

// List returns all decoded traces, sorted by name.
func (w *Watcher) List() []*Trace {
	w.mu.Lock()
	ts := make([]*Trace, 0, len(w.traces))
	for _, t := range w.traces {
		ts = append(ts, t)
	}
	w.mu.Unlock()
	sort.Slice(ts, func(i, j int) bool {
		return ts[i].Name < ts[j].Name
	})
	return ts
}

// Run polls the storage backend until the context is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if err := w.RunOnce(ctx); err != nil {
			if utils.IsCanceled(ctx) {
				return context.Canceled
			}
			w.l.WithError(err).Error("Storage poll error")
		}

		if err := utils.SleepContextPerturb(ctx, w.c.Watch.PollInterval); err != nil {
			return err
		}
	}
}

// RunOnce performs a single poll: list the storage backend and decode any
// dumps we have not handled yet.
func (w *Watcher) RunOnce(ctx context.Context) error {
	ls, err := w.st.List(ctx, w.c.Watch.Prefix)
	metricListCalls.Inc()
	if err != nil {
		metricListFailed.Inc()
		w.health.AddFailure()
		return err
	}
	w.health.AddSuccess()
	w.start.SetPassedInitialListing()

	metricDumpsInStorage.Set(float64(len(ls)))
	var totalBytes int64
	for _, b := range ls {
		totalBytes += b.Size
	}
	metricDumpsInStorageBytes.Set(float64(totalBytes))

	var todo []simpleblob.Blob
	w.mu.Lock()
	for _, b := range ls {
		if w.ignoredFilenames[b.Name] || w.loadedFilenames[b.Name] {
			continue
		}
		if _, _, err := ParseName(b.Name); err != nil {
			w.l.WithError(err).WithField("filename", b.Name).
				Debug("Skipping invalid filename")
			w.ignoredFilenames[b.Name] = true
			continue
		}
		max := w.c.Watch.MaxDumpSize
		if max > 0 && datasize.ByteSize(b.Size) > max {
			w.l.WithFields(logrus.Fields{
				"filename": b.Name,
				"size":     datasize.ByteSize(b.Size),
				"max":      max,
			}).Warn("Dump larger than configured maximum, ignoring")
			w.ignoredFilenames[b.Name] = true
			continue
		}
		todo = append(todo, b)
	}
	w.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, b := range todo {
		b := b
		eg.Go(func() error {
			return w.loadBlob(ctx, b)
		})
	}
	return eg.Wait()
}

// loadBlob downloads and decodes a single dump. Storage errors are
// returned so the next poll retries the dump. A dump that fails to decode
// is logged and never tried again.
func (w *Watcher) loadBlob(ctx context.Context, b simpleblob.Blob) error {
	token, err := w.limit.Acquire(ctx)
	if err != nil {
		return err
	}
	defer token.Release()

	name, compressed, err := ParseName(b.Name)
	if err != nil {
		return err // checked by RunOnce, cannot happen
	}
	l := w.l.WithField("trace", name)

	t0 := time.Now()
	data, err := w.st.Load(ctx, b.Name)
	metricLoadCalls.Inc()
	if err != nil {
		metricLoadFailed.WithLabelValues("storage").Inc()
		return err
	}
	metricLoadBytes.Add(float64(len(data)))

	w.decoding.Inc()
	init, diffs, reg, err := Decode(data, compressed, w.c.Watch.MaxDumpSize)
	w.decoding.Dec()
	if err != nil {
		metricLoadFailed.WithLabelValues("decode").Inc()
		l.WithError(err).WithField("filename", b.Name).
			Error("Dump failed to decode, ignoring it from now on")
		w.mu.Lock()
		w.ignoredFilenames[b.Name] = true
		w.mu.Unlock()
		return nil
	}

	tr := &Trace{
		Name:       name,
		Blob:       b.Name,
		Size:       datasize.ByteSize(b.Size),
		Compressed: compressed,
		LoadedAt:   time.Now(),
		LoadTime:   utils.TimeDiff(time.Now(), t0),
		Init:       init,
		Diffs:      diffs,
		Registry:   reg,
	}

	w.mu.Lock()
	w.traces[name] = tr
	w.loadedFilenames[b.Name] = true
	n := len(w.traces)
	w.mu.Unlock()
	metricTracesLoaded.Set(float64(n))
	metricLoadSeconds.Observe(time.Since(t0).Seconds())

	w.start.SetPassedInitialLoad()
	w.loaded.Publish(tr)

	l.WithFields(logrus.Fields{
		"filename":  b.Name,
		"size":      tr.Size,
		"allocs":    tr.NumAllocs(),
		"diffs":     len(tr.Diffs),
		"time_load": tr.LoadTime,
	}).Info("Trace loaded")

	if tr.Size > gcThreshold {
		utils.GC()
	}
	return nil
}
