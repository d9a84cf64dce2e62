package model

import (
	"encoding/binary"

	"github.com/allocview/allocview/intern"
)

// Registry bundles the interning stores shared by everything that touches
// one decoded trace. It is created per trace lifetime and passed by
// pointer; there is no package-level instance.
type Registry struct {
	strs   *intern.Memory[string]
	traces *intern.Memory[[]CLoc]
	labels *intern.Memory[[]StrID]

	// The empty label list is interned eagerly so that allocations
	// without labels all share one ID.
	emptyLabels LabelsID
}

// NewRegistry creates a registry with an interned empty label list.
func NewRegistry() *Registry {
	r := &Registry{
		strs:   intern.NewMemory(func(s string) string { return s }),
		traces: intern.NewMemory(traceKey),
		labels: intern.NewMemory(labelsKey),
	}
	r.emptyLabels = LabelsID(r.labels.GetUID(nil))
	return r
}

// traceKey encodes a []CLoc into a canonical byte string. All fields come
// from interned IDs and bounded wire fields, so uvarint packing is both
// compact and collision-free.
func traceKey(trace []CLoc) string {
	buf := make([]byte, 0, 8*len(trace))
	for _, cl := range trace {
		buf = binary.AppendUvarint(buf, uint64(cl.Loc.File))
		buf = binary.AppendUvarint(buf, uint64(cl.Loc.Line))
		buf = binary.AppendUvarint(buf, uint64(cl.Loc.Span.Start))
		buf = binary.AppendUvarint(buf, uint64(cl.Loc.Span.End))
		buf = binary.AppendUvarint(buf, uint64(cl.Count))
	}
	return string(buf)
}

func labelsKey(labels []StrID) string {
	buf := make([]byte, 0, 4*len(labels))
	for _, l := range labels {
		buf = binary.AppendUvarint(buf, uint64(l))
	}
	return string(buf)
}

// InternStr interns a string and returns its ID.
func (r *Registry) InternStr(s string) StrID {
	return StrID(r.strs.GetUID(s))
}

// Str returns the string for an ID issued by InternStr.
func (r *Registry) Str(id StrID) string {
	return r.strs.GetElm(intern.ID(id))
}

// InternTrace interns a backtrace and returns its ID.
func (r *Registry) InternTrace(trace []CLoc) TraceID {
	return TraceID(r.traces.GetUID(trace))
}

// Trace returns the backtrace for an ID issued by InternTrace.
func (r *Registry) Trace(id TraceID) []CLoc {
	return r.traces.GetElm(intern.ID(id))
}

// InternLabels interns a label list and returns its ID.
func (r *Registry) InternLabels(labels []StrID) LabelsID {
	return LabelsID(r.labels.GetUID(labels))
}

// Labels returns the label list for an ID issued by InternLabels.
func (r *Registry) Labels(id LabelsID) []StrID {
	return r.labels.GetElm(intern.ID(id))
}

// EmptyLabels returns the ID of the empty label list.
func (r *Registry) EmptyLabels() LabelsID {
	return r.emptyLabels
}

// NumStrs returns the number of distinct interned strings.
func (r *Registry) NumStrs() int { return r.strs.Len() }

// NumTraces returns the number of distinct interned backtraces.
func (r *Registry) NumTraces() int { return r.traces.Len() }
