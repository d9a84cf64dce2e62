package ctf

import (
	"github.com/pkg/errors"
)

// Bit layout of the packed location word (u32 low half, u16 high half):
// line 20 bits, column start 8, column end 10, then two 5-bit MTF codes
// for the file path and the definition name.
const (
	locLineMask     = 0xfffff
	locColStartMask = 0xff
	locColEndMask   = 0x3ff
	locMtfMask      = 0x1f

	locColStartShift = 20
	locColEndShift   = 20 + 8
	locFileShift     = 20 + 8 + 10
	locDefShift      = 20 + 8 + 10 + 5
)

// defNames is the per-file move-to-front table of definition names.
type defNames = mtfMap[struct{}]

// locTables holds the nested string tables for location decoding: an
// outer table of file paths, each entry owning an inner table of the
// definition names seen in that file.
type locTables struct {
	files *mtfMap[*defNames]
}

func newLocTables() *locTables {
	return &locTables{files: newMtfMap[*defNames]()}
}

// decodeLocation reads one location: the packed 48-bit word, then the
// file path and definition name strings when their MTF codes are misses.
func (t *locTables) decodeLocation(r *reader) (Location, error) {
	low, err := r.U32("location word (low)")
	if err != nil {
		return Location{}, err
	}
	high, err := r.U16("location word (high)")
	if err != nil {
		return Location{}, err
	}
	encoded := uint64(high)<<32 | uint64(low)

	loc := Location{
		Line:     int(encoded & locLineMask),
		ColStart: int((encoded >> locColStartShift) & locColStartMask),
		ColEnd:   int((encoded >> locColEndShift) & locColEndMask),
	}
	fileCode := int((encoded >> locFileShift) & locMtfMask)
	defCode := int((encoded >> locDefShift) & locMtfMask)

	var defs *defNames
	if fileCode == mtfMissCode {
		// New file path. The producer recycles the evicted entry's
		// definition-name table for the new file, stale names included,
		// so the decoder has to do the same to stay in sync.
		evicted, ok := t.files.evictLast()
		if ok {
			defs = evicted
		} else {
			defs = newMtfMap[struct{}]()
		}
		if loc.File, err = r.String("file path"); err != nil {
			return Location{}, err
		}
		if loc.DefName, err = t.decodeDefName(r, defs, defCode); err != nil {
			return Location{}, err
		}
		t.files.pushFront(loc.File, defs)
	} else {
		if loc.File, defs, err = t.files.get(fileCode); err != nil {
			return Location{}, errors.Wrap(err, "resolving file path")
		}
		if loc.DefName, err = t.decodeDefName(r, defs, defCode); err != nil {
			return Location{}, err
		}
		t.files.moveToFront(fileCode)
	}

	return loc, nil
}

func (t *locTables) decodeDefName(r *reader, defs *defNames, defCode int) (string, error) {
	if defCode == mtfMissCode {
		defs.evictLast()
		name, err := r.String("definition name")
		if err != nil {
			return "", err
		}
		defs.pushFront(name, struct{}{})
		return name, nil
	}
	name, _, err := defs.get(defCode)
	if err != nil {
		return "", errors.Wrap(err, "resolving definition name")
	}
	defs.moveToFront(defCode)
	return name, nil
}

// readLocs decodes a locations event: a location code binding followed by
// the locations it expands to.
func readLocs(r *reader, tables *locTables) (LocsEvent, error) {
	id, err := r.U64("locations id")
	if err != nil {
		return LocsEvent{}, err
	}
	count, err := r.U8("locations count")
	if err != nil {
		return LocsEvent{}, err
	}
	locs := make([]Location, 0, count)
	for i := 0; i < int(count); i++ {
		loc, err := tables.decodeLocation(r)
		if err != nil {
			return LocsEvent{}, errors.Wrapf(err, "location %d of %d", i, count)
		}
		locs = append(locs, loc)
	}
	return LocsEvent{ID: id, Locs: locs}, nil
}
