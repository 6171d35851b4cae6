// Package preset holds the catalog of official photo sizes.
package preset

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"idphoto/internal/pipeline"
)

// CustomID selects the free width/height fields instead of a catalog entry.
const CustomID = "custom"

// DefaultDimension replaces a custom width or height that is missing or unusable.
const DefaultDimension = 600

// ErrUnknownPreset is returned by Lookup and Resolve for ids not in the catalog.
var ErrUnknownPreset = fmt.Errorf("unknown preset: %w", pipeline.ErrInvalidTargetSize)

//go:embed presets.toml
var builtin []byte

// Preset is a named target size.
type Preset struct {
	ID     string `toml:"id" json:"id"`
	Label  string `toml:"label" json:"label"`
	Width  int    `toml:"width" json:"width"`
	Height int    `toml:"height" json:"height"`
	Note   string `toml:"note" json:"note,omitempty"`
}

// Size returns the preset dimensions.
func (p Preset) Size() pipeline.TargetSize {
	return pipeline.TargetSize{Width: p.Width, Height: p.Height}
}

// Catalog is an ordered, read-only list of presets.
type Catalog struct {
	presets []Preset
	byID    map[string]int
}

type catalogFile struct {
	Preset []Preset `toml:"preset"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("preset: built-in catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a TOML file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a TOML catalog and validates every entry.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	if len(f.Preset) == 0 {
		return nil, errors.New("preset catalog is empty")
	}

	c := &Catalog{byID: make(map[string]int, len(f.Preset))}
	for _, p := range f.Preset {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		if p.ID == "" || p.ID == CustomID {
			return nil, fmt.Errorf("invalid preset id %q", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate preset id %q", p.ID)
		}
		if err := p.Size().Validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.ID, err)
		}
		if p.Label == "" {
			p.Label = p.ID
		}
		c.byID[p.ID] = len(c.presets)
		c.presets = append(c.presets, p)
	}
	return c, nil
}

// All returns a copy of the presets in catalog order.
func (c *Catalog) All() []Preset {
	out := make([]Preset, len(c.presets))
	copy(out, c.presets)
	return out
}

// Lookup finds a preset by id (case-insensitive).
func (c *Catalog) Lookup(id string) (Preset, error) {
	i, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}
	return c.presets[i], nil
}

// Resolve turns a preset selection into a target size. The custom id, or an
// empty id, reads the free width/height fields through ParseCustom.
func (c *Catalog) Resolve(id, width, height string) (pipeline.TargetSize, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, CustomID) {
		return ParseCustom(width, height), nil
	}
	p, err := c.Lookup(id)
	if err != nil {
		return pipeline.TargetSize{}, err
	}
	return p.Size(), nil
}

// ParseCustom reads free-form width and height fields. Each field is parsed
// from its leading digits ("413px" is 413); a field that is empty, has no
// leading digits or is not positive becomes DefaultDimension.
func ParseCustom(width, height string) pipeline.TargetSize {
	return pipeline.TargetSize{
		Width:  parseDimension(width),
		Height: parseDimension(height),
	}
}

func parseDimension(s string) int {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		digits++
		// anything this large fails TargetSize validation anyway
		if n < 1<<24 {
			n = n*10 + int(r-'0')
		}
	}
	if digits == 0 || neg || n <= 0 {
		return DefaultDimension
	}
	return n
}
