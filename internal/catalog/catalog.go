// Package catalog reads and writes pricing rule files: materials plus the
// full rule set, as YAML, JSON, TOML or an Excel workbook.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// Bundle is a complete pricing configuration.
type Bundle struct {
	Materials []pricing.MaterialSpec
	Rules     pricing.Rules
}

// Default returns the built-in materials and rules.
func Default() Bundle {
	return Bundle{Materials: pricing.DefaultMaterials(), Rules: pricing.DefaultRules()}
}

// Validate checks the rules and that the materials form a valid catalog.
func (b Bundle) Validate() error {
	if err := b.Rules.Validate(); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	if _, err := pricing.NewCatalog(b.Materials); err != nil {
		return fmt.Errorf("invalid materials: %w", err)
	}
	return nil
}

// Catalog builds the pricing catalog of the bundle.
func (b Bundle) Catalog() (*pricing.Catalog, error) {
	return pricing.NewCatalog(b.Materials)
}

// Load reads a rules file, choosing the format from its extension.
func Load(path string) (Bundle, error) {
	var (
		b   Bundle
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return Bundle{}, fmt.Errorf("open rules file: %w", err)
		}
		defer f.Close()
		b, err = ReadWorkbook(f)
	case ".yaml", ".yml", ".json", ".toml":
		b, err = loadViper(path)
	default:
		return Bundle{}, fmt.Errorf("unsupported rules file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return Bundle{}, err
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

type document struct {
	Materials []materialDoc `mapstructure:"materials" yaml:"materials"`
	Rules     rulesDoc      `mapstructure:"rules" yaml:"rules"`
}

type materialDoc struct {
	Name          string  `mapstructure:"name" yaml:"name"`
	PricePerLiter float64 `mapstructure:"price_per_liter" yaml:"price_per_liter"`
	WastePercent  float64 `mapstructure:"waste_percent" yaml:"waste_percent"`
	Color         string  `mapstructure:"color" yaml:"color,omitempty"`
}

type tierDoc struct {
	UpToMl float64 `mapstructure:"up_to_ml" yaml:"up_to_ml"`
	Factor float64 `mapstructure:"factor" yaml:"factor"`
}

type rulesDoc struct {
	MachineCostPerHour   float64            `mapstructure:"machine_cost_per_hour" yaml:"machine_cost_per_hour"`
	PostProcessingRate   float64            `mapstructure:"post_processing_rate" yaml:"post_processing_rate"`
	FinishingRate        float64            `mapstructure:"finishing_rate" yaml:"finishing_rate"`
	Markup               []tierDoc          `mapstructure:"markup" yaml:"markup"`
	MarkupAbove          float64            `mapstructure:"markup_above" yaml:"markup_above"`
	PieceTypeFactors     map[string]float64 `mapstructure:"piece_type_factors" yaml:"piece_type_factors"`
	TypologyFactors      map[string]float64 `mapstructure:"typology_factors" yaml:"typology_factors"`
	PackagingCost        float64            `mapstructure:"packaging_cost" yaml:"packaging_cost"`
	StandardDeliveryCost float64            `mapstructure:"standard_delivery_cost" yaml:"standard_delivery_cost"`
	ExpressMultiplier    float64            `mapstructure:"express_multiplier" yaml:"express_multiplier"`
	TaxRate              float64            `mapstructure:"tax_rate" yaml:"tax_rate"`
	OnUnknownFactor      string             `mapstructure:"on_unknown_factor" yaml:"on_unknown_factor"`
	Currency             string             `mapstructure:"currency" yaml:"currency"`
}

func loadViper(path string) (Bundle, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("rules.on_unknown_factor", string(pricing.UseDefaultFactor))
	v.SetDefault("rules.currency", "EUR")

	if err := v.ReadInConfig(); err != nil {
		return Bundle{}, fmt.Errorf("read rules file: %w", err)
	}
	var doc document
	if err := v.Unmarshal(&doc); err != nil {
		return Bundle{}, fmt.Errorf("decode rules file: %w", err)
	}
	return doc.bundle(), nil
}

func (d document) bundle() Bundle {
	b := Bundle{Materials: make([]pricing.MaterialSpec, 0, len(d.Materials))}
	for _, m := range d.Materials {
		b.Materials = append(b.Materials, pricing.MaterialSpec{
			Name:          m.Name,
			PricePerLiter: m.PricePerLiter,
			WastePercent:  m.WastePercent,
			Color:         m.Color,
		})
	}

	r := d.Rules
	b.Rules = pricing.Rules{
		MachineCostPerHour:   r.MachineCostPerHour,
		PostProcessingRate:   r.PostProcessingRate,
		FinishingRate:        r.FinishingRate,
		MarkupAbove:          r.MarkupAbove,
		PieceTypeFactors:     make(map[pricing.PieceType]float64, len(r.PieceTypeFactors)),
		TypologyFactors:      make(map[pricing.Typology]float64, len(r.TypologyFactors)),
		PackagingCost:        r.PackagingCost,
		StandardDeliveryCost: r.StandardDeliveryCost,
		ExpressMultiplier:    r.ExpressMultiplier,
		TaxRate:              r.TaxRate,
		OnUnknownFactor:      pricing.UnknownFactorPolicy(r.OnUnknownFactor),
		Currency:             r.Currency,
	}
	for _, t := range r.Markup {
		b.Rules.Markup = append(b.Rules.Markup, pricing.MarkupTier{UpToMl: t.UpToMl, Factor: t.Factor})
	}
	for name, f := range r.PieceTypeFactors {
		b.Rules.PieceTypeFactors[canonicalPieceType(name)] = f
	}
	for name, f := range r.TypologyFactors {
		b.Rules.TypologyFactors[canonicalTypology(name)] = f
	}
	return b
}

func documentOf(b Bundle) document {
	d := document{Materials: make([]materialDoc, 0, len(b.Materials))}
	for _, m := range b.Materials {
		d.Materials = append(d.Materials, materialDoc{
			Name:          m.Name,
			PricePerLiter: m.PricePerLiter,
			WastePercent:  m.WastePercent,
			Color:         m.Color,
		})
	}

	r := b.Rules
	d.Rules = rulesDoc{
		MachineCostPerHour:   r.MachineCostPerHour,
		PostProcessingRate:   r.PostProcessingRate,
		FinishingRate:        r.FinishingRate,
		MarkupAbove:          r.MarkupAbove,
		PieceTypeFactors:     make(map[string]float64, len(r.PieceTypeFactors)),
		TypologyFactors:      make(map[string]float64, len(r.TypologyFactors)),
		PackagingCost:        r.PackagingCost,
		StandardDeliveryCost: r.StandardDeliveryCost,
		ExpressMultiplier:    r.ExpressMultiplier,
		TaxRate:              r.TaxRate,
		OnUnknownFactor:      string(r.OnUnknownFactor),
		Currency:             r.Currency,
	}
	for _, t := range r.Markup {
		d.Rules.Markup = append(d.Rules.Markup, tierDoc{UpToMl: t.UpToMl, Factor: t.Factor})
	}
	for name, f := range r.PieceTypeFactors {
		d.Rules.PieceTypeFactors[string(name)] = f
	}
	for name, f := range r.TypologyFactors {
		d.Rules.TypologyFactors[string(name)] = f
	}
	return d
}

// viper lowercases map keys, so known names are matched case-insensitively.
func canonicalPieceType(name string) pricing.PieceType {
	for _, t := range pricing.PieceTypes {
		if strings.EqualFold(string(t), name) {
			return t
		}
	}
	return pricing.PieceType(name)
}

func canonicalTypology(name string) pricing.Typology {
	for _, t := range pricing.Typologies {
		if strings.EqualFold(string(t), name) {
			return t
		}
	}
	return pricing.Typology(name)
}
