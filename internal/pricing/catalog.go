package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaterialSpec is a named resin profile.
type MaterialSpec struct {
	Name          string  `json:"name"`
	PricePerLiter float64 `json:"price_per_liter"`
	WastePercent  float64 `json:"waste_percent"`
	Color         string  `json:"color,omitempty"`
}

// MaterialCatalog resolves materials by name.
type MaterialCatalog interface {
	Material(name string) (MaterialSpec, bool)
}

// Catalog is an immutable MaterialCatalog. It is safe for concurrent use.
type Catalog struct {
	byName map[string]MaterialSpec
}

// NewCatalog builds a catalog, rejecting invalid or duplicated materials.
func NewCatalog(materials []MaterialSpec) (*Catalog, error) {
	byName := make(map[string]MaterialSpec, len(materials))
	for _, m := range materials {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate material %q", m.Name)
		}
		byName[m.Name] = m
	}
	return &Catalog{byName: byName}, nil
}

// Material implements MaterialCatalog.
func (c *Catalog) Material(name string) (MaterialSpec, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// Len returns the number of materials.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// Materials returns a copy of the catalog sorted by name.
func (c *Catalog) Materials() []MaterialSpec {
	out := make([]MaterialSpec, 0, len(c.byName))
	for _, m := range c.byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks a single material profile.
func (m MaterialSpec) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("material name is required")
	}
	if math.IsNaN(m.PricePerLiter) || math.IsInf(m.PricePerLiter, 0) || m.PricePerLiter < 0 {
		return fmt.Errorf("material %q: price_per_liter must be a non-negative number", m.Name)
	}
	if math.IsNaN(m.WastePercent) || m.WastePercent < 0 || m.WastePercent >= 1 {
		return fmt.Errorf("material %q: waste_percent must be in [0, 1)", m.Name)
	}
	return nil
}

// DefaultMaterials returns the reference resin profiles of the workshop.
func DefaultMaterials() []MaterialSpec {
	return []MaterialSpec{
		{Name: "Clear", PricePerLiter: 149, WastePercent: 0.15, Color: "#E8F4F8"},
		{Name: "Grey", PricePerLiter: 149, WastePercent: 0.15, Color: "#8C8C8C"},
		{Name: "White", PricePerLiter: 149, WastePercent: 0.15, Color: "#FFFFFF"},
		{Name: "Black", PricePerLiter: 149, WastePercent: 0.15, Color: "#1A1A1A"},
		{Name: "Tough 2000", PricePerLiter: 175, WastePercent: 0.2, Color: "#5B6770"},
		{Name: "Rigid 10K", PricePerLiter: 229, WastePercent: 0.2, Color: "#F2F2F0"},
		{Name: "Flexible 80A", PricePerLiter: 199, WastePercent: 0.25, Color: "#2E2E2E"},
	}
}
