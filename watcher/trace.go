package watcher

import (
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/allocview/allocview/model"
)

// Trace is a fully decoded allocation trace dump. It is published on the
// watcher's Loaded topic and served by the status HTTP endpoints.
type Trace struct {
	Name       string            `json:"name"`
	Blob       string            `json:"blob"`
	Size       datasize.ByteSize `json:"size"` // blob size as stored
	Compressed bool              `json:"compressed"`
	LoadedAt   time.Time         `json:"loaded_at"`
	LoadTime   time.Duration     `json:"load_time"`

	Init  model.Init   `json:"init"`
	Diffs []model.Diff `json:"diffs"`

	// Registry holds the interned strings, traces and label lists that
	// the Diffs reference.
	Registry *model.Registry `json:"-"`
}

// NumAllocs returns the total number of allocations in the trace.
func (t *Trace) NumAllocs() int {
	var n int
	for _, d := range t.Diffs {
		n += len(d.New)
	}
	return n
}

// NumDead returns the number of allocations that were collected during
// the trace. A collection sets the allocation's time of death.
func (t *Trace) NumDead() int {
	var n int
	for _, d := range t.Diffs {
		for i := range d.New {
			if d.New[i].TOD != nil {
				n++
			}
		}
	}
	return n
}
