package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pokemap/maptracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Map coordinates are pixel offsets on the background image, origin at the
// top-left corner, Y growing downwards. Nothing here projects them.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromString parses "x,y" into a map point.
func PointFromString(coords string) (geom.Point, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	return Point(x, y)
}

// Point builds a map point. NaN and infinite coordinates are rejected.
func Point(x, y float64) (geom.Point, error) {
	if !finite(x, y) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	point, err := geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.CoordinatesType(geom.DimXY),
		},
	)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return point, nil
}

// Bounds returns the rectangle a marker pin covers on the map. Zero sized
// markers collapse to their anchor point.
func Bounds(m core.Marker) (geom.Geometry, error) {
	if !finite(m.X, m.Y, m.Width, m.Height) || m.Width < 0 || m.Height < 0 {
		return geom.Geometry{}, fmt.Errorf("%w: bounds of %s", ErrInvalidCoordinates, m.ID)
	}
	env, err := geom.NewEnvelope([]geom.XY{
		{X: m.X, Y: m.Y},
		{X: m.X + m.Width, Y: m.Y + m.Height},
	})
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: bounds of %s: %v", ErrInvalidCoordinates, m.ID, err)
	}
	return env.AsGeometry(), nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Covers reports whether the point lies on or inside bounds.
func Covers(bounds geom.Geometry, p geom.Point) bool {
	return geom.Intersects(bounds, p.AsGeometry())
}
