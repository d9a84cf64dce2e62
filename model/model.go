// Package model defines the data model produced by decoding an allocation
// trace: source locations, allocations, the trace-level Init record and the
// per-packet Diff records, plus the Registry that interns the heavy parts.
package model

import (
	"fmt"
	"time"
)

// StrID is an interned string (file path, label, ...).
type StrID uint32

// TraceID is an interned backtrace ([]CLoc).
type TraceID uint32

// LabelsID is an interned label list ([]StrID).
type LabelsID uint32

// AllocID is the unique identifier of one allocation, as assigned on the
// wire: allocations are numbered sequentially in stream order.
type AllocID uint64

// Span is a half-open range, used for column spans within a source line.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// Loc is a single source location of a backtrace frame.
type Loc struct {
	File StrID `json:"file"`
	Line int   `json:"line"`
	Span Span  `json:"span"`
}

// CLoc is a counted location: Count consecutive identical frames
// collapsed into one entry.
type CLoc struct {
	Loc   Loc `json:"loc"`
	Count int `json:"count"`
}

// AllocKind describes where an allocation lives.
type AllocKind uint8

const (
	KindMinor AllocKind = iota
	KindMajor
	KindMajorPostponed
	KindSerialized
	KindUnknown
)

func (k AllocKind) String() string {
	switch k {
	case KindMinor:
		return "minor"
	case KindMajor:
		return "major"
	case KindMajorPostponed:
		return "major_postponed"
	case KindSerialized:
		return "serialized"
	default:
		return "unknown"
	}
}

// Alloc is one decoded allocation.
//
// TOC is the time of creation relative to the start of the run. TOD is the
// time of death, nil while the allocation is still live; the builder patches
// it in place when the matching collection event arrives.
type Alloc struct {
	UID      AllocID        `json:"uid"`
	Kind     AllocKind      `json:"kind"`
	Size     uint64         `json:"size"`
	NSamples uint64         `json:"nsamples"`
	Trace    TraceID        `json:"trace"`
	Labels   LabelsID       `json:"labels"`
	TOC      time.Duration  `json:"toc"`
	TOD      *time.Duration `json:"tod"`
}

// AllocDeath is an explicit death record. The decoder records deaths by
// patching the allocation's TOD and leaves Dead lists empty; the type
// exists for producers of hand-built diffs.
type AllocDeath struct {
	UID AllocID       `json:"uid"`
	TOD time.Duration `json:"tod"`
}

// Init carries the trace-level facts established before any allocation.
type Init struct {
	StartTime      time.Time `json:"start_time"`
	WordSize       int       `json:"word_size"`
	CallstackIsRev bool      `json:"callstack_is_rev"`
	SamplingRate   float64   `json:"sampling_rate"`
}

// Diff is the model delta contributed by one packet. Deaths are patched
// into the owning allocation's TOD, wherever it was born; Dead stays
// empty in decoder output.
type Diff struct {
	Time time.Duration `json:"time"`
	New  []Alloc       `json:"new"`
	Dead []AllocDeath  `json:"dead,omitempty"`
}
