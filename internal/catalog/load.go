package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pokemap/maptracker/pkg/core"
	"gopkg.in/yaml.v3"
)

// technique pins are drawn at a fixed size regardless of the source data
const techniqueSize = 12

// File is the on-disk layout of one catalog file. Markers inherit the
// file's category unless they name their own.
type File struct {
	Category core.Category `yaml:"category"`
	Markers  []fileMarker  `yaml:"markers"`
}

type fileMarker struct {
	core.Marker `yaml:",inline"`
	// Info is the label field name used by older data files.
	Info string `yaml:"info"`
}

// LoadDir reads every .yaml/.yml file in dir, in name order, into a new
// Catalog.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	c := New()
	for _, name := range names {
		if err := c.LoadFile(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadFile adds the markers of one catalog file.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	for i, fm := range f.Markers {
		m := fm.Marker
		if m.Category == "" {
			m.Category = f.Category
		}
		if m.Label == "" {
			m.Label = fm.Info
		}
		if m.Category == core.CategoryTechnique {
			m.Width, m.Height = techniqueSize, techniqueSize
		}
		if err := c.Add(m); err != nil {
			return fmt.Errorf("%s: marker %d: %w", filepath.Base(path), i, err)
		}
	}
	return nil
}
