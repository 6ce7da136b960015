// pkg/core/marker.go
package core

import "fmt"

// MarkerID identifies a marker across every catalog category.
type MarkerID string

// Category groups markers that share an icon and tooltip layout.
type Category string

const (
	CategoryStandard  Category = "standard"
	CategoryHidden    Category = "hidden"
	CategoryItem      Category = "item"
	CategoryTechnique Category = "technique"
)

// Categories lists every category in render order.
var Categories = []Category{
	CategoryStandard,
	CategoryHidden,
	CategoryItem,
	CategoryTechnique,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStandard, CategoryHidden, CategoryItem, CategoryTechnique:
		return true
	}
	return false
}

// DefaultIcon returns the pin image used when a marker does not carry its own.
func (c Category) DefaultIcon() string {
	switch c {
	case CategoryHidden:
		return "img/hidden.png"
	case CategoryItem:
		return "img/pokeball.png"
	case CategoryTechnique:
		return "img/TMItem.png"
	default:
		return "img/marker.png"
	}
}

// Marker is the uniform descriptor every catalog entry is mapped into.
// X and Y are pixel offsets on the background image.
type Marker struct {
	ID       MarkerID `json:"id" yaml:"id"`
	Category Category `json:"category" yaml:"category"`
	X        float64  `json:"x" yaml:"x"`
	Y        float64  `json:"y" yaml:"y"`
	Width    float64  `json:"width" yaml:"width"`
	Height   float64  `json:"height" yaml:"height"`
	Icon     string   `json:"icon" yaml:"icon"`
	Label    string   `json:"label,omitempty" yaml:"label"`
}

func (m Marker) String() string {
	return fmt.Sprintf("%s[%s]@(%g,%g)", m.ID, m.Category, m.X, m.Y)
}
