package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// Rates are the scalar pricing parameters editable from the admin form.
type Rates struct {
	MachineCostPerHour   float64
	PostProcessingRate   float64
	FinishingRate        float64
	MarkupAbove          float64
	PackagingCost        float64
	StandardDeliveryCost float64
	ExpressMultiplier    float64
	TaxRate              float64
	OnUnknownFactor      pricing.UnknownFactorPolicy
	Currency             string
}

// RatesOf extracts the scalar parameters of r.
func RatesOf(r pricing.Rules) Rates {
	return Rates{
		MachineCostPerHour:   r.MachineCostPerHour,
		PostProcessingRate:   r.PostProcessingRate,
		FinishingRate:        r.FinishingRate,
		MarkupAbove:          r.MarkupAbove,
		PackagingCost:        r.PackagingCost,
		StandardDeliveryCost: r.StandardDeliveryCost,
		ExpressMultiplier:    r.ExpressMultiplier,
		TaxRate:              r.TaxRate,
		OnUnknownFactor:      r.OnUnknownFactor,
		Currency:             r.Currency,
	}
}

// Apply copies the scalar parameters into r.
func (rt Rates) Apply(r pricing.Rules) pricing.Rules {
	r.MachineCostPerHour = rt.MachineCostPerHour
	r.PostProcessingRate = rt.PostProcessingRate
	r.FinishingRate = rt.FinishingRate
	r.MarkupAbove = rt.MarkupAbove
	r.PackagingCost = rt.PackagingCost
	r.StandardDeliveryCost = rt.StandardDeliveryCost
	r.ExpressMultiplier = rt.ExpressMultiplier
	r.TaxRate = rt.TaxRate
	r.OnUnknownFactor = rt.OnUnknownFactor
	r.Currency = rt.Currency
	return r
}

// LoadRules reads the full rule set. It returns ErrNotFound when the rules
// singleton has not been seeded.
func (s *Store) LoadRules(ctx context.Context) (pricing.Rules, error) {
	var rt Rates
	var policy string
	err := s.queryRow(ctx, s.db, `
		SELECT machine_cost_per_hour, post_processing_rate, finishing_rate, markup_above,
			packaging_cost, standard_delivery_cost, express_multiplier, tax_rate,
			on_unknown_factor, currency
		FROM pricing_rules
		WHERE id = 1
	`).Scan(
		&rt.MachineCostPerHour,
		&rt.PostProcessingRate,
		&rt.FinishingRate,
		&rt.MarkupAbove,
		&rt.PackagingCost,
		&rt.StandardDeliveryCost,
		&rt.ExpressMultiplier,
		&rt.TaxRate,
		&policy,
		&rt.Currency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Rules{}, ErrNotFound
	}
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("query pricing_rules: %w", err)
	}
	rt.OnUnknownFactor = pricing.UnknownFactorPolicy(policy)

	rules := rt.Apply(pricing.Rules{
		PieceTypeFactors: map[pricing.PieceType]float64{},
		TypologyFactors:  map[pricing.Typology]float64{},
	})

	rows, err := s.query(ctx, s.db, `SELECT up_to_ml, factor FROM markup_tiers ORDER BY up_to_ml`)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("query markup tiers: %w", err)
	}
	for rows.Next() {
		var tier pricing.MarkupTier
		if err := rows.Scan(&tier.UpToMl, &tier.Factor); err != nil {
			rows.Close()
			return pricing.Rules{}, fmt.Errorf("scan markup tier: %w", err)
		}
		rules.Markup = append(rules.Markup, tier)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return pricing.Rules{}, fmt.Errorf("iterate markup tiers: %w", err)
	}

	pieceTypes, err := s.loadFactors(ctx, "piece_type_factors")
	if err != nil {
		return pricing.Rules{}, err
	}
	for name, f := range pieceTypes {
		rules.PieceTypeFactors[pricing.PieceType(name)] = f
	}

	typologies, err := s.loadFactors(ctx, "typology_factors")
	if err != nil {
		return pricing.Rules{}, err
	}
	for name, f := range typologies {
		rules.TypologyFactors[pricing.Typology(name)] = f
	}

	return rules, nil
}

func (s *Store) loadFactors(ctx context.Context, table string) (map[string]float64, error) {
	rows, err := s.query(ctx, s.db, `SELECT name, factor FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var factor float64
		if err := rows.Scan(&name, &factor); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[name] = factor
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// SaveRates updates the scalar parameters, keeping tiers and factor tables.
func (s *Store) SaveRates(ctx context.Context, rt Rates) error {
	current, err := s.LoadRules(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	merged := rt.Apply(current)
	if err := merged.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.upsertRates(ctx, tx, rt)
	})
}

// ReplaceRules stores r as the complete rule set.
func (s *Store) ReplaceRules(ctx context.Context, r pricing.Rules) error {
	if err := r.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.replaceRules(ctx, tx, r)
	})
}

// ReplaceBundle stores r as the complete rule set and upserts materials in a
// single transaction, so a failed import leaves both untouched.
func (s *Store) ReplaceBundle(ctx context.Context, r pricing.Rules, materials []pricing.MaterialSpec) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for _, m := range materials {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.replaceRules(ctx, tx, r); err != nil {
			return err
		}
		return s.upsertMaterials(ctx, tx, materials)
	})
}

func (s *Store) replaceRules(ctx context.Context, tx *sql.Tx, r pricing.Rules) error {
	if err := s.upsertRates(ctx, tx, RatesOf(r)); err != nil {
		return err
	}

	if _, err := s.exec(ctx, tx, `DELETE FROM markup_tiers`); err != nil {
		return fmt.Errorf("clear markup tiers: %w", err)
	}
	for _, tier := range r.Markup {
		if _, err := s.exec(ctx, tx, `INSERT INTO markup_tiers (up_to_ml, factor) VALUES (?, ?)`, tier.UpToMl, tier.Factor); err != nil {
			return fmt.Errorf("insert markup tier: %w", err)
		}
	}

	if _, err := s.exec(ctx, tx, `DELETE FROM piece_type_factors`); err != nil {
		return fmt.Errorf("clear piece type factors: %w", err)
	}
	for name, f := range r.PieceTypeFactors {
		if _, err := s.exec(ctx, tx, `INSERT INTO piece_type_factors (name, factor) VALUES (?, ?)`, string(name), f); err != nil {
			return fmt.Errorf("insert piece type factor: %w", err)
		}
	}

	if _, err := s.exec(ctx, tx, `DELETE FROM typology_factors`); err != nil {
		return fmt.Errorf("clear typology factors: %w", err)
	}
	for name, f := range r.TypologyFactors {
		if _, err := s.exec(ctx, tx, `INSERT INTO typology_factors (name, factor) VALUES (?, ?)`, string(name), f); err != nil {
			return fmt.Errorf("insert typology factor: %w", err)
		}
	}
	return nil
}

func (s *Store) upsertRates(ctx context.Context, tx *sql.Tx, rt Rates) error {
	policy := rt.OnUnknownFactor
	if policy == "" {
		policy = pricing.UseDefaultFactor
	}
	currency := rt.Currency
	if currency == "" {
		currency = "EUR"
	}

	_, err := s.exec(ctx, tx, `
		INSERT INTO pricing_rules (
			id,
			machine_cost_per_hour,
			post_processing_rate,
			finishing_rate,
			markup_above,
			packaging_cost,
			standard_delivery_cost,
			express_multiplier,
			tax_rate,
			on_unknown_factor,
			currency
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			machine_cost_per_hour = excluded.machine_cost_per_hour,
			post_processing_rate = excluded.post_processing_rate,
			finishing_rate = excluded.finishing_rate,
			markup_above = excluded.markup_above,
			packaging_cost = excluded.packaging_cost,
			standard_delivery_cost = excluded.standard_delivery_cost,
			express_multiplier = excluded.express_multiplier,
			tax_rate = excluded.tax_rate,
			on_unknown_factor = excluded.on_unknown_factor,
			currency = excluded.currency,
			updated_at = CURRENT_TIMESTAMP
	`,
		rt.MachineCostPerHour,
		rt.PostProcessingRate,
		rt.FinishingRate,
		rt.MarkupAbove,
		rt.PackagingCost,
		rt.StandardDeliveryCost,
		rt.ExpressMultiplier,
		rt.TaxRate,
		string(policy),
		currency,
	)
	if err != nil {
		return fmt.Errorf("upsert pricing_rules: %w", err)
	}
	return nil
}
