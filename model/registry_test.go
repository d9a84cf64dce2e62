package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryStrings(t *testing.T) {
	r := NewRegistry()

	a := r.InternStr("src/main.ml")
	b := r.InternStr("src/list.ml")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, r.InternStr("src/main.ml"))
	assert.Equal(t, "src/main.ml", r.Str(a))
	assert.Equal(t, "src/list.ml", r.Str(b))
}

func TestRegistryTraces(t *testing.T) {
	r := NewRegistry()
	file := r.InternStr("src/main.ml")

	t1 := []CLoc{
		{Loc: Loc{File: file, Line: 10, Span: Span{Start: 4, End: 12}}, Count: 2},
		{Loc: Loc{File: file, Line: 20, Span: Span{Start: 0, End: 8}}, Count: 1},
	}
	t2 := []CLoc{
		{Loc: Loc{File: file, Line: 10, Span: Span{Start: 4, End: 12}}, Count: 2},
		{Loc: Loc{File: file, Line: 20, Span: Span{Start: 0, End: 8}}, Count: 1},
	}
	t3 := []CLoc{
		{Loc: Loc{File: file, Line: 10, Span: Span{Start: 4, End: 12}}, Count: 1},
	}

	id1 := r.InternTrace(t1)
	assert.Equal(t, id1, r.InternTrace(t2))
	assert.NotEqual(t, id1, r.InternTrace(t3))
	assert.Equal(t, t1, r.Trace(id1))
}

func TestRegistryTraceKeyNotAmbiguous(t *testing.T) {
	r := NewRegistry()
	// Same numbers distributed differently over fields must not collide.
	a := []CLoc{{Loc: Loc{File: 1, Line: 2}, Count: 1}}
	b := []CLoc{{Loc: Loc{File: 2, Line: 1}, Count: 1}}
	assert.NotEqual(t, r.InternTrace(a), r.InternTrace(b))
}

func TestRegistryEmptyLabels(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, r.EmptyLabels(), r.InternLabels(nil))
	assert.Empty(t, r.Labels(r.EmptyLabels()))

	l := r.InternLabels([]StrID{r.InternStr("heap")})
	assert.NotEqual(t, r.EmptyLabels(), l)
}
