package ctf

import (
	"github.com/pkg/errors"
)

// backtraceCacheSize is the number of slots in the producer/consumer
// shared backtrace cache. Codeword buckets are 14 bits, so they always
// index within it.
const backtraceCacheSize = 1 << 14

// backtraceCache mirrors the producer's backtrace compression cache.
//
// Backtraces are encoded as 16-bit codewords: the high 14 bits select a
// cache bucket, the low 2 bits are a tag. Tags 0 and 1 are cache hits
// followed by that many predicted frames, tag 2 is a hit with an explicit
// u8 prediction count, tag 3 is a miss followed by the u64 location code.
// Predicted frames cost no codewords at all: the decoder walks the
// prediction chain it learned from earlier backtraces.
//
// The cache is stateful across the whole stream. Decoding any backtrace
// mutates it, which is why events cannot be skipped without replaying the
// codewords, and why headers carry a CacheCheck to detect divergence.
type backtraceCache struct {
	loc  []uint64
	pred []uint16

	// last holds the previous backtrace: each new backtrace reuses its
	// first commonPrefLen frames. Only grows, acts as scratch space.
	last []uint64
}

func newBacktraceCache() *backtraceCache {
	return &backtraceCache{
		loc:  make([]uint64, backtraceCacheSize),
		pred: make([]uint16, backtraceCacheSize),
		last: make([]uint64, 0, 16),
	}
}

func (c *backtraceCache) put(pos int, val uint64) {
	if pos < len(c.last) {
		c.last[pos] = val
	} else {
		c.last = append(c.last, val)
	}
}

// Decode reads nencoded codewords and returns the full backtrace as
// location codes, including the shared prefix and all predicted frames.
func (c *backtraceCache) Decode(r *reader, nencoded, commonPrefLen int) ([]uint64, error) {
	if commonPrefLen > len(c.last) {
		return nil, errors.Errorf("common backtrace prefix of %d frames, but only %d frames available from the previous backtrace",
			commonPrefLen, len(c.last))
	}

	pred := uint16(0)
	pos := commonPrefLen

	for n := nencoded; n > 0; {
		codeword, err := r.U16("backtrace codeword")
		if err != nil {
			return nil, err
		}
		bucket := codeword >> 2
		tag := codeword & 3

		c.pred[pred] = bucket
		pred = bucket

		var npredict int
		switch tag {
		case 0, 1, 2:
			c.put(pos, c.loc[bucket])
			pos++
			n--
			if tag == 2 {
				count, err := r.U8("backtrace prediction count")
				if err != nil {
					return nil, err
				}
				npredict = int(count)
			} else {
				npredict = int(tag)
			}
		default: // miss
			lit, err := r.U64("backtrace location code")
			if err != nil {
				return nil, err
			}
			c.loc[bucket] = lit
			c.put(pos, lit)
			pos++
			n--
		}

		for ; npredict > 0; npredict-- {
			pred = c.pred[pred]
			c.put(pos, c.loc[pred])
			pos++
		}
	}

	out := make([]uint64, pos)
	copy(out, c.last[:pos])
	return out, nil
}

// Skip consumes the codewords of one backtrace without touching the
// cache. Only valid when the rest of the stream is skipped as well,
// since the cache no longer tracks the producer afterwards.
func (c *backtraceCache) Skip(r *reader, nencoded int) error {
	for i := 0; i < nencoded; i++ {
		codeword, err := r.U16("backtrace codeword")
		if err != nil {
			return err
		}
		switch codeword & 3 {
		case 2:
			if _, err := r.U8("backtrace prediction count"); err != nil {
				return err
			}
		case 3:
			if _, err := r.U64("backtrace location code"); err != nil {
				return err
			}
		}
	}
	return nil
}

// Check validates the verification triple a header carries against the
// cache state. Any mismatch means decoder and producer have diverged and
// nothing decoded afterwards can be trusted.
func (c *backtraceCache) Check(cc CacheCheck) error {
	ix := int(cc.Ix)
	if ix >= len(c.loc) {
		return errors.Errorf("backtrace cache verification failed: slot %d out of range (cache has %d slots)",
			ix, len(c.loc))
	}
	if c.pred[ix] != cc.Pred {
		return errors.Errorf("backtrace cache verification failed at slot %d: prediction is %d, header expects %d",
			ix, c.pred[ix], cc.Pred)
	}
	if c.loc[ix] != cc.Value {
		return errors.Errorf("backtrace cache verification failed at slot %d: location code is %d, header expects %d",
			ix, c.loc[ix], cc.Value)
	}
	return nil
}
