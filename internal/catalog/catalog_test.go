package catalog

import (
	"math"
	"testing"

	"github.com/pokemap/maptracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marker(id string, cat core.Category, x, y float64) core.Marker {
	return core.Marker{ID: core.MarkerID(id), Category: cat, X: x, Y: y, Width: 20, Height: 20}
}

func TestAddAndGet(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(marker("pikachu-1", core.CategoryStandard, 10, 10)))

	m, ok := c.Get("pikachu-1")
	require.True(t, ok)
	assert.Equal(t, core.CategoryStandard, m.Category)
	assert.Equal(t, "img/marker.png", m.Icon, "default icon filled in")
	assert.True(t, c.Has("pikachu-1"))
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.False(t, c.Has("missing"))
}

func TestAdd_KeepsExplicitIcon(t *testing.T) {
	c := New()
	m := marker("a", core.CategoryHidden, 0, 0)
	m.Icon = "img/custom.png"
	require.NoError(t, c.Add(m))

	got, _ := c.Get("a")
	assert.Equal(t, "img/custom.png", got.Icon)
}

func TestAdd_DuplicateAcrossCategories(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(marker("a", core.CategoryStandard, 0, 0)))

	err := c.Add(marker("a", core.CategoryItem, 5, 5))

	assert.ErrorIs(t, err, ErrDuplicateID)
	got, _ := c.Get("a")
	assert.Equal(t, core.CategoryStandard, got.Category, "first marker kept")
	assert.Equal(t, 1, c.Len())
}

func TestAdd_Invalid(t *testing.T) {
	c := New()

	assert.ErrorIs(t, c.Add(marker("", core.CategoryStandard, 0, 0)), ErrInvalidMarker)
	assert.ErrorIs(t, c.Add(marker("a", "legendary", 0, 0)), ErrInvalidMarker)
	assert.ErrorIs(t, c.Add(marker("b", core.CategoryStandard, math.NaN(), 0)), ErrInvalidMarker)
	assert.ErrorIs(t, c.Add(core.Marker{ID: "c", Category: core.CategoryHidden, Width: -1}), ErrInvalidMarker)
	assert.Equal(t, 0, c.Len())
}

func TestAllAndByCategory(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(marker("s1", core.CategoryStandard, 0, 0)))
	require.NoError(t, c.Add(marker("i1", core.CategoryItem, 0, 0)))
	require.NoError(t, c.Add(marker("s2", core.CategoryStandard, 0, 0)))

	var ids []core.MarkerID
	for _, m := range c.All() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []core.MarkerID{"s1", "i1", "s2"}, ids)

	assert.Len(t, c.ByCategory(core.CategoryStandard), 2)
	assert.Len(t, c.ByCategory(core.CategoryItem), 1)
	assert.Empty(t, c.ByCategory(core.CategoryTechnique))

	counts := c.Counts()
	assert.Equal(t, 2, counts[core.CategoryStandard])
	assert.Equal(t, 1, counts[core.CategoryItem])
}

func TestMarkerAt(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(marker("under", core.CategoryStandard, 0, 0)))
	require.NoError(t, c.Add(marker("over", core.CategoryItem, 10, 10)))

	m, ok := c.MarkerAt(5, 5)
	require.True(t, ok)
	assert.Equal(t, core.MarkerID("under"), m.ID)

	m, ok = c.MarkerAt(15, 15)
	require.True(t, ok)
	assert.Equal(t, core.MarkerID("over"), m.ID, "later marker drawn on top")

	_, ok = c.MarkerAt(100, 100)
	assert.False(t, ok)

	_, ok = c.MarkerAt(math.NaN(), 5)
	assert.False(t, ok, "unplottable point hits nothing")
}
