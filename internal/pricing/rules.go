package pricing

import (
	"fmt"
	"math"
)

// UnknownFactorPolicy decides what happens when a piece type, typology or
// delivery mode has no entry in the rules.
type UnknownFactorPolicy string

const (
	// UseDefaultFactor prices unknown keys with a neutral factor (1.0, or no delivery cost).
	UseDefaultFactor UnknownFactorPolicy = "default"
	// RejectUnknownFactor fails unknown keys with an *UnknownFactorError.
	RejectUnknownFactor UnknownFactorPolicy = "error"
)

// MarkupTier applies Factor to volumes up to and including UpToMl.
type MarkupTier struct {
	UpToMl float64 `json:"up_to_ml"`
	Factor float64 `json:"factor"`
}

// Rules are the business parameters of the pricing engine. A Rules value is
// treated as immutable once built; maps must not be modified after it is
// shared with Compute.
type Rules struct {
	MachineCostPerHour   float64               `json:"machine_cost_per_hour"`
	PostProcessingRate   float64               `json:"post_processing_rate"`
	FinishingRate        float64               `json:"finishing_rate"`
	Markup               []MarkupTier          `json:"markup"`
	MarkupAbove          float64               `json:"markup_above"`
	PieceTypeFactors     map[PieceType]float64 `json:"piece_type_factors"`
	TypologyFactors      map[Typology]float64  `json:"typology_factors"`
	PackagingCost        float64               `json:"packaging_cost"`
	StandardDeliveryCost float64               `json:"standard_delivery_cost"`
	ExpressMultiplier    float64               `json:"express_multiplier"`
	TaxRate              float64               `json:"tax_rate"`
	OnUnknownFactor      UnknownFactorPolicy   `json:"on_unknown_factor"`
	Currency             string                `json:"currency"`
}

// DefaultRules returns the workshop's reference pricing parameters.
func DefaultRules() Rules {
	return Rules{
		MachineCostPerHour: 7,
		PostProcessingRate: 0.30,
		FinishingRate:      0.20,
		Markup: []MarkupTier{
			{UpToMl: 10, Factor: 1.8},
			{UpToMl: 50, Factor: 1.55},
			{UpToMl: 150, Factor: 1.35},
			{UpToMl: 400, Factor: 1.25},
		},
		MarkupAbove: 1.2,
		PieceTypeFactors: map[PieceType]float64{
			PiecePrototype:  1.0,
			PieceFunctional: 1.15,
			PiecePrecision:  1.30,
			PieceAesthetic:  1.40,
			PieceCritical:   1.60,
		},
		TypologyFactors: map[Typology]float64{
			TypologyStandard:  1.0,
			TypologyFragile:   1.0,
			TypologyLargePart: 2.0,
		},
		PackagingCost:        2,
		StandardDeliveryCost: 12,
		ExpressMultiplier:    1.2,
		TaxRate:              0.20,
		OnUnknownFactor:      UseDefaultFactor,
		Currency:             "EUR",
	}
}

// Validate checks that the rules can be used by Compute.
func (r Rules) Validate() error {
	nonNegative := []struct {
		name  string
		value float64
	}{
		{"machine_cost_per_hour", r.MachineCostPerHour},
		{"post_processing_rate", r.PostProcessingRate},
		{"finishing_rate", r.FinishingRate},
		{"packaging_cost", r.PackagingCost},
		{"standard_delivery_cost", r.StandardDeliveryCost},
		{"tax_rate", r.TaxRate},
	}
	for _, f := range nonNegative {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%s must be a non-negative number, got %v", f.name, f.value)
		}
	}

	if !positive(r.ExpressMultiplier) {
		return fmt.Errorf("express_multiplier must be positive, got %v", r.ExpressMultiplier)
	}
	if !positive(r.MarkupAbove) {
		return fmt.Errorf("markup_above must be positive, got %v", r.MarkupAbove)
	}

	prev := 0.0
	for i, tier := range r.Markup {
		if !positive(tier.UpToMl) || tier.UpToMl <= prev {
			return fmt.Errorf("markup tier %d: up_to_ml must be positive and ascending, got %v", i, tier.UpToMl)
		}
		if !positive(tier.Factor) {
			return fmt.Errorf("markup tier %d: factor must be positive, got %v", i, tier.Factor)
		}
		prev = tier.UpToMl
	}

	for k, v := range r.PieceTypeFactors {
		if !positive(v) {
			return fmt.Errorf("piece type %q: factor must be positive, got %v", k, v)
		}
	}
	for k, v := range r.TypologyFactors {
		if !positive(v) {
			return fmt.Errorf("typology %q: factor must be positive, got %v", k, v)
		}
	}

	switch r.OnUnknownFactor {
	case UseDefaultFactor, RejectUnknownFactor, "":
	default:
		return fmt.Errorf("on_unknown_factor must be %q or %q, got %q", UseDefaultFactor, RejectUnknownFactor, r.OnUnknownFactor)
	}

	return nil
}

// MarkupFactor returns the factor of the first tier whose threshold is not
// below volumeMl, or MarkupAbove past the last tier.
func (r Rules) MarkupFactor(volumeMl float64) float64 {
	for _, tier := range r.Markup {
		if volumeMl <= tier.UpToMl {
			return tier.Factor
		}
	}
	return r.MarkupAbove
}

// DeliveryCost returns the cost of a delivery mode and whether the mode is known.
func (r Rules) DeliveryCost(d Delivery) (float64, bool) {
	switch d {
	case DeliveryPickUp:
		return 0, true
	case DeliveryStandard:
		return r.StandardDeliveryCost, true
	case DeliveryExpress:
		return r.StandardDeliveryCost * r.ExpressMultiplier, true
	default:
		return 0, false
	}
}

func (r Rules) strict() bool {
	return r.OnUnknownFactor == RejectUnknownFactor
}

func (r Rules) pieceTypeFactor(t PieceType) (float64, error) {
	if f, ok := r.PieceTypeFactors[t]; ok {
		return f, nil
	}
	if r.strict() {
		return 0, &UnknownFactorError{Kind: "piece_type", Key: string(t)}
	}
	return 1.0, nil
}

func (r Rules) typologyFactor(t Typology) (float64, error) {
	if f, ok := r.TypologyFactors[t]; ok {
		return f, nil
	}
	if r.strict() {
		return 0, &UnknownFactorError{Kind: "typology", Key: string(t)}
	}
	return 1.0, nil
}

func (r Rules) deliveryCost(d Delivery) (float64, error) {
	if cost, ok := r.DeliveryCost(d); ok {
		return cost, nil
	}
	if r.strict() {
		return 0, &UnknownFactorError{Kind: "delivery", Key: string(d)}
	}
	return 0, nil
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
