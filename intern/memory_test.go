package intern

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDenseIDs(t *testing.T) {
	m := NewMemory(func(s string) string { return s })

	a := m.GetUID("alpha")
	b := m.GetUID("beta")
	c := m.GetUID("gamma")
	assert.Equal(t, ID(0), a)
	assert.Equal(t, ID(1), b)
	assert.Equal(t, ID(2), c)

	// Re-interning returns the original ID
	assert.Equal(t, a, m.GetUID("alpha"))
	assert.Equal(t, c, m.GetUID("gamma"))
	assert.Equal(t, 3, m.Len())

	assert.Equal(t, "alpha", m.GetElm(a))
	assert.Equal(t, "beta", m.GetElm(b))
	assert.Equal(t, "gamma", m.GetElm(c))
}

func TestMemoryKeyCanonicalization(t *testing.T) {
	// Slices are not comparable; the key function decides equality.
	m := NewMemory(func(xs []int) string { return fmt.Sprint(xs) })

	a := m.GetUID([]int{1, 2, 3})
	b := m.GetUID([]int{1, 2, 3})
	c := m.GetUID([]int{1, 2})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, []int{1, 2, 3}, m.GetElm(a))
}

func TestMemoryGetElmUnknownPanics(t *testing.T) {
	m := NewMemory(func(s string) string { return s })
	m.GetUID("only")
	assert.Panics(t, func() {
		m.GetElm(ID(1))
	})
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory(func(s string) string { return s })

	const workers = 8
	const values = 100

	var wg sync.WaitGroup
	ids := make([][]ID, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids[w] = make([]ID, values)
			for i := 0; i < values; i++ {
				ids[w][i] = m.GetUID(fmt.Sprintf("value-%d", i))
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, values, m.Len())
	for w := 1; w < workers; w++ {
		assert.Equal(t, ids[0], ids[w], "worker %d disagrees on IDs", w)
	}
	for i := 0; i < values; i++ {
		assert.Equal(t, fmt.Sprintf("value-%d", i), m.GetElm(ids[0][i]))
	}
}
