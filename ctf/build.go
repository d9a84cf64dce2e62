package ctf

import (
	"time"

	"github.com/pkg/errors"

	"github.com/allocview/allocview/model"
)

// allocPos locates an allocation inside the diffs being built, as plain
// indices. Diffs and their New slices are reallocated while they grow, so
// positions are stored instead of pointers.
type allocPos struct {
	diff  int
	alloc int
}

// Parse decodes a complete dump into the trace-level Init record and one
// Diff per packet. Decoding is strictly sequential; reg is only written
// through its own locks and may be read concurrently by others.
func Parse(data []byte, reg *model.Registry) (model.Init, []model.Diff, error) {
	started := time.Now()

	p, err := NewParser(data)
	if err != nil {
		return model.Init{}, nil, err
	}

	info := p.Info()
	startClock := p.Header().Timestamp.Begin
	init := model.Init{
		StartTime:      time.UnixMicro(int64(startClock)).UTC(),
		WordSize:       int(info.WordSize),
		CallstackIsRev: false,
		SamplingRate:   info.SampleRate,
	}

	var (
		locMap      = make(map[uint64][]model.Loc, 1024)
		pending     = make(map[model.AllocID]allocPos)
		diffs       []model.Diff
		emptyLabels = reg.EmptyLabels()
	)

	for {
		pp, err := p.NextPacket()
		if err != nil {
			return model.Init{}, nil, err
		}
		if pp == nil {
			break
		}
		hdr := pp.Header()
		metricPackets.Inc()

		if err := p.VerifyCache(hdr.CacheCheck); err != nil {
			return model.Init{}, nil, errors.Wrapf(err, "packet %d", pp.ID())
		}
		if got := p.AllocCount(); got != hdr.AllocIDs.Begin {
			return model.Init{}, nil, errors.Errorf(
				"packet %d declares allocation UIDs starting at %d, decoder issued %d so far",
				pp.ID(), hdr.AllocIDs.Begin, got)
		}

		diffTime, err := clockOffset(hdr.Timestamp.Begin, startClock)
		if err != nil {
			return model.Init{}, nil, errors.Wrapf(err, "packet %d", pp.ID())
		}
		curIdx := len(diffs)
		diff := model.Diff{
			Time: diffTime,
			New:  make([]model.Alloc, 0, hdr.AllocIDs.End-hdr.AllocIDs.Begin),
		}

		for {
			clock, ev, ok, err := pp.NextEvent()
			if err != nil {
				return model.Init{}, nil, err
			}
			if !ok {
				break
			}
			metricEvents.WithLabelValues(ev.eventName()).Inc()

			switch ev := ev.(type) {
			case AllocEvent:
				if _, dup := pending[ev.ID]; dup {
					return model.Init{}, nil, errors.Errorf("packet %d: duplicate allocation UID %d", pp.ID(), ev.ID)
				}
				if !hdr.AllocIDs.Contains(uint64(ev.ID)) {
					return model.Init{}, nil, errors.Errorf(
						"packet %d: allocation UID %d outside the declared span %d..%d",
						pp.ID(), ev.ID, hdr.AllocIDs.Begin, hdr.AllocIDs.End)
				}
				trace, err := buildTrace(reg, locMap, ev.Backtrace)
				if err != nil {
					return model.Init{}, nil, errors.Wrapf(err, "packet %d, allocation %d", pp.ID(), ev.ID)
				}
				toc, err := clockOffset(clock, startClock)
				if err != nil {
					return model.Init{}, nil, errors.Wrapf(err, "packet %d, allocation %d", pp.ID(), ev.ID)
				}
				pending[ev.ID] = allocPos{diff: curIdx, alloc: len(diff.New)}
				diff.New = append(diff.New, model.Alloc{
					UID:      ev.ID,
					Kind:     ev.Kind,
					Size:     ev.Len,
					NSamples: ev.NSamples,
					Trace:    trace,
					Labels:   emptyLabels,
					TOC:      toc,
				})

			case CollectionEvent:
				pos, live := pending[ev.ID]
				if !live {
					return model.Init{}, nil, errors.Errorf("packet %d: collection of unknown allocation UID %d", pp.ID(), ev.ID)
				}
				tod, err := clockOffset(clock, startClock)
				if err != nil {
					return model.Init{}, nil, errors.Wrapf(err, "packet %d, collection of %d", pp.ID(), ev.ID)
				}
				if pos.diff == curIdx {
					diff.New[pos.alloc].TOD = &tod
				} else {
					diffs[pos.diff].New[pos.alloc].TOD = &tod
				}
				delete(pending, ev.ID)

			case PromotionEvent:
				// Promotions do not change the model: size, trace and
				// lifetime all stay the same.

			case LocsEvent:
				if _, dup := locMap[ev.ID]; dup {
					return model.Init{}, nil, errors.Errorf("packet %d: location code %d registered twice", pp.ID(), ev.ID)
				}
				locs := make([]model.Loc, 0, len(ev.Locs))
				for _, l := range ev.Locs {
					locs = append(locs, model.Loc{
						File: reg.InternStr(l.File),
						Line: l.Line,
						Span: model.Span{Start: l.ColStart, End: l.ColEnd},
					})
				}
				locMap[ev.ID] = locs
			}
		}

		if got := p.AllocCount(); got != hdr.AllocIDs.End {
			return model.Init{}, nil, errors.Errorf(
				"packet %d declares allocation UIDs up to %d, decoder issued %d",
				pp.ID(), hdr.AllocIDs.End, got)
		}

		// Packets that created no allocation contribute nothing to the
		// model; deaths they carried were patched in place already.
		if len(diff.New) > 0 {
			diffs = append(diffs, diff)
		}
	}

	metricDecodeSeconds.Observe(time.Since(started).Seconds())
	return init, diffs, nil
}

// buildTrace resolves backtrace location codes against the registered
// locations and interns the result. Consecutive identical locations are
// collapsed into one counted entry.
func buildTrace(reg *model.Registry, locMap map[uint64][]model.Loc, codes []uint64) (model.TraceID, error) {
	trace := make([]model.CLoc, 0, len(codes))
	for _, code := range codes {
		locs, ok := locMap[code]
		if !ok {
			return 0, errors.Errorf("unknown location code %d", code)
		}
		for _, loc := range locs {
			if n := len(trace); n > 0 && trace[n-1].Loc == loc {
				trace[n-1].Count++
			} else {
				trace = append(trace, model.CLoc{Loc: loc, Count: 1})
			}
		}
	}
	return reg.InternTrace(trace), nil
}

// clockOffset converts a microsecond clock to a duration since the start
// of the trace. A clock before the start would wrap the unsigned
// subtraction, so it is rejected instead.
func clockOffset(clock, start uint64) (time.Duration, error) {
	if clock < start {
		return 0, errors.Errorf("timestamp %d µs is before the trace start (%d µs)", clock, start)
	}
	return time.Duration(clock-start) * time.Microsecond, nil
}
