package geo

import (
	"math"
	"testing"

	"github.com/pokemap/maptracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointFromString(t *testing.T) {
	p, err := PointFromString("100.5, 200.25")
	require.NoError(t, err)

	coords, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.5, coords.X)
	assert.Equal(t, 200.25, coords.Y)
}

func TestPointFromString_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "1,2,3", "a,2", "1,b", "NaN,2", "1,Inf"} {
		_, err := PointFromString(in)
		assert.ErrorIs(t, err, ErrInvalidCoordinates, in)
	}
}

func mustPoint(t *testing.T, x, y float64) geom.Point {
	t.Helper()
	p, err := Point(x, y)
	require.NoError(t, err)
	return p
}

func mustBounds(t *testing.T, m core.Marker) geom.Geometry {
	t.Helper()
	b, err := Bounds(m)
	require.NoError(t, err)
	return b
}

func TestPoint_Invalid(t *testing.T) {
	_, err := Point(math.NaN(), 1)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, err = Point(1, math.Inf(-1))
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestBounds_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		marker core.Marker
	}{
		{name: "nan x", marker: core.Marker{ID: "a", X: math.NaN()}},
		{name: "infinite width", marker: core.Marker{ID: "a", Width: math.Inf(1)}},
		{name: "negative height", marker: core.Marker{ID: "a", Height: -4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bounds(tt.marker)
			assert.ErrorIs(t, err, ErrInvalidCoordinates)
		})
	}
}

func TestCovers(t *testing.T) {
	b := mustBounds(t, core.Marker{X: 10, Y: 20, Width: 30, Height: 40})

	assert.True(t, Covers(b, mustPoint(t, 25, 40)), "inside")
	assert.True(t, Covers(b, mustPoint(t, 10, 20)), "corner")
	assert.True(t, Covers(b, mustPoint(t, 40, 60)), "far corner")
	assert.False(t, Covers(b, mustPoint(t, 9, 40)), "left of")
	assert.False(t, Covers(b, mustPoint(t, 25, 61)), "below")
}

func TestCovers_ZeroSizedMarker(t *testing.T) {
	b := mustBounds(t, core.Marker{X: 5, Y: 5})

	assert.True(t, Covers(b, mustPoint(t, 5, 5)))
	assert.False(t, Covers(b, mustPoint(t, 5, 6)))
}
