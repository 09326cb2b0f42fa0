package accumulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripleAccess_ReturnsIdenticalObject(t *testing.T) {
	a := New()
	a.Append("A", "first value", "")
	a.Append("B", 42, "zBack")

	byIndex := a.ByIndex(1)
	byKey := a.ByKey("B")
	byAttr := a.Attr("B")

	require.NotNil(t, byIndex)
	assert.Same(t, byIndex, byKey)
	assert.Same(t, byKey, byAttr)
	assert.Equal(t, "B", byIndex.Key)
	assert.Equal(t, 42, byIndex.Value)
	assert.Equal(t, "zBack", byIndex.Signal)
}

func TestAppend_PreservesOrder(t *testing.T) {
	a := New()
	a.Append("A", 1, "")
	a.Append("B", 2, "")
	a.Append("C", 3, "")

	assert.Equal(t, []string{"A", "B", "C"}, a.Keys())
	assert.Equal(t, "A", a.ByIndex(0).Key)
	assert.Equal(t, "C", a.ByIndex(2).Key)
	assert.Nil(t, a.ByIndex(3))
}

func TestAppend_RebindPanics(t *testing.T) {
	a := New()
	a.Append("A", 1, "")
	assert.Panics(t, func() {
		a.Append("A", 2, "")
	})
}

func TestByKey_UnknownReturnsNil(t *testing.T) {
	a := New()
	assert.Nil(t, a.ByKey("missing"))
	assert.Nil(t, a.Attr("missing"))
}

func TestLast_ReturnsMostRecentAppend(t *testing.T) {
	a := New()
	assert.Nil(t, a.Last())

	a.Append("A", 1, "")
	a.Append("B", 2, "zBack")
	last := a.Last()
	require.NotNil(t, last)
	assert.Equal(t, "B", last.Key)
	assert.Same(t, last, a.ByKey("B"))
}

func TestLen_TracksAppendCount(t *testing.T) {
	a := New()
	assert.Equal(t, 0, a.Len())
	a.Append("A", 1, "")
	a.Append("B", 2, "")
	assert.Equal(t, 2, a.Len())
}
