package ctf

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// codewords builds backtrace payload bytes: u16 codewords optionally
// followed by a u8 prediction count (tag 2) or a u64 literal (tag 3).
type codewordBuf struct {
	data []byte
}

func (b *codewordBuf) hit(bucket uint16, tag uint16) *codewordBuf {
	b.data = binary.LittleEndian.AppendUint16(b.data, bucket<<2|tag)
	return b
}

func (b *codewordBuf) hitN(bucket uint16, n uint8) *codewordBuf {
	b.data = binary.LittleEndian.AppendUint16(b.data, bucket<<2|2)
	b.data = append(b.data, n)
	return b
}

func (b *codewordBuf) miss(bucket uint16, lit uint64) *codewordBuf {
	b.data = binary.LittleEndian.AppendUint16(b.data, bucket<<2|3)
	b.data = binary.LittleEndian.AppendUint64(b.data, lit)
	return b
}

func (b *codewordBuf) reader() *reader {
	return newReader(b.data, 0, binary.LittleEndian)
}

func newCodewords() *codewordBuf {
	return &codewordBuf{}
}

func TestBacktraceMissThenSelfPrediction(t *testing.T) {
	// A miss on a fresh cache followed by a tag-1 hit on the same
	// bucket. The prediction chain of slot 3 was never set by the hit
	// itself, so the prediction resolves through cachePred[3], which the
	// hit codeword just pointed back at bucket 3: the frame repeats.
	c := newBacktraceCache()
	buf := newCodewords().miss(3, 100).hit(3, 1)

	frames, err := c.Decode(buf.reader(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 100, 100}, frames)
}

func TestBacktracePredictionChain(t *testing.T) {
	c := newBacktraceCache()

	// First backtrace: three misses teach the cache the chain 5 -> 6 -> 7.
	buf := newCodewords().miss(5, 5).miss(6, 6).miss(7, 7)
	frames, err := c.Decode(buf.reader(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6, 7}, frames)

	// Second backtrace: one hit with two explicit predictions replays
	// the whole chain without further codewords.
	buf = newCodewords().hitN(5, 2)
	frames, err = c.Decode(buf.reader(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6, 7}, frames)
}

func TestBacktraceCommonPrefix(t *testing.T) {
	c := newBacktraceCache()

	buf := newCodewords().miss(5, 5).miss(6, 6).miss(7, 7)
	_, err := c.Decode(buf.reader(), 3, 0)
	require.NoError(t, err)

	// Reuse the first two frames, replace the third.
	buf = newCodewords().miss(9, 9)
	frames, err := c.Decode(buf.reader(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6, 9}, frames)

	// A prefix longer than anything decoded so far is an error.
	buf = newCodewords().miss(9, 9)
	_, err = c.Decode(buf.reader(), 1, 4)
	assert.Error(t, err)
}

func TestBacktraceDecodeReturnsCopy(t *testing.T) {
	c := newBacktraceCache()

	buf := newCodewords().miss(5, 5).miss(6, 6)
	first, err := c.Decode(buf.reader(), 2, 0)
	require.NoError(t, err)

	buf = newCodewords().miss(8, 8).miss(9, 9)
	_, err = c.Decode(buf.reader(), 2, 0)
	require.NoError(t, err)

	// The scratch buffer was overwritten; earlier results must not be.
	assert.Equal(t, []uint64{5, 6}, first)
}

func TestBacktraceTruncatedCodewords(t *testing.T) {
	c := newBacktraceCache()
	buf := newCodewords().miss(5, 5)
	_, err := c.Decode(buf.reader(), 2, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestBacktraceSkip(t *testing.T) {
	c := newBacktraceCache()
	buf := newCodewords().miss(5, 5).hitN(6, 3).hit(7, 1)
	r := buf.reader()

	require.NoError(t, c.Skip(r, 3))
	assert.True(t, r.EOF())

	// Skipping must not have touched the cache.
	assert.Equal(t, uint64(0), c.loc[5])
	assert.Equal(t, uint16(0), c.pred[0])
}

func TestBacktraceCheck(t *testing.T) {
	c := newBacktraceCache()
	buf := newCodewords().miss(5, 100).miss(6, 200)
	_, err := c.Decode(buf.reader(), 2, 0)
	require.NoError(t, err)

	// After the decode: cachePred[0]=5, cachePred[5]=6, cacheLoc[5]=100.
	assert.NoError(t, c.Check(CacheCheck{Ix: 5, Pred: 6, Value: 100}))
	assert.NoError(t, c.Check(CacheCheck{Ix: 0, Pred: 5, Value: 0}))

	err = c.Check(CacheCheck{Ix: 5, Pred: 6, Value: 999})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location code is 100")

	err = c.Check(CacheCheck{Ix: 5, Pred: 7, Value: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prediction is 6")

	// The wire field is wider than the cache; out-of-range slots must be
	// rejected, not indexed.
	err = c.Check(CacheCheck{Ix: 0xffff, Pred: 0, Value: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
