package seed

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/resinquote/internal/catalog"
	"github.com/Simplici0/resinquote/internal/store"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	// Defaults are written on first run. Zero means catalog.Default().
	Defaults *catalog.Bundle
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way. Materials and the rule
// set are only written into an empty database, so later admin edits survive
// restarts.
func Run(ctx context.Context, st *store.Store, cfg Config) (Stats, error) {
	defaults := catalog.Default()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	if err := defaults.Validate(); err != nil {
		return Stats{}, fmt.Errorf("seed defaults: %w", err)
	}

	tx, err := st.DB().BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	s := seeder{ctx: ctx, tx: tx, st: st}

	if err := s.admin(cfg.AdminEmail, cfg.AdminPassword); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := s.materials(defaults); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := s.rules(defaults); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return s.stats, nil
}

type seeder struct {
	ctx   context.Context
	tx    *sql.Tx
	st    *store.Store
	stats Stats
}

func (s *seeder) exec(query string, args ...any) (int64, error) {
	result, err := s.tx.ExecContext(s.ctx, s.st.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *seeder) count(query string) (int, error) {
	var n int
	err := s.tx.QueryRowContext(s.ctx, s.st.Rebind(query)).Scan(&n)
	return n, err
}

func (s *seeder) admin(email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	inserted, err := s.st.EnsureUserTx(s.ctx, s.tx, email, string(hash))
	if err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	if inserted {
		s.stats.Inserts++
	}
	return nil
}

func (s *seeder) materials(defaults catalog.Bundle) error {
	n, err := s.count(`SELECT COUNT(*) FROM materials`)
	if err != nil {
		return fmt.Errorf("count materials: %w", err)
	}
	if n > 0 {
		return nil
	}

	for _, m := range defaults.Materials {
		if _, err := s.exec(`
			INSERT INTO materials (name, price_per_liter, waste_percent, color, active)
			VALUES (?, ?, ?, ?, TRUE)
		`, m.Name, m.PricePerLiter, m.WastePercent, m.Color); err != nil {
			return fmt.Errorf("insert default material %q: %w", m.Name, err)
		}
		s.stats.Inserts++
	}
	return nil
}

func (s *seeder) rules(defaults catalog.Bundle) error {
	r := defaults.Rules

	inserted, err := s.exec(`
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
		)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`,
		r.MachineCostPerHour,
		r.PostProcessingRate,
		r.FinishingRate,
		r.MarkupAbove,
		r.PackagingCost,
		r.StandardDeliveryCost,
		r.ExpressMultiplier,
		r.TaxRate,
		string(r.OnUnknownFactor),
		r.Currency,
	)
	if err != nil {
		return fmt.Errorf("insert pricing rules singleton: %w", err)
	}
	if inserted == 0 {
		return nil
	}
	s.stats.Inserts++

	for _, tier := range r.Markup {
		if _, err := s.exec(`INSERT INTO markup_tiers (up_to_ml, factor) VALUES (?, ?)`, tier.UpToMl, tier.Factor); err != nil {
			return fmt.Errorf("insert markup tier: %w", err)
		}
		s.stats.Inserts++
	}
	for name, f := range r.PieceTypeFactors {
		if _, err := s.exec(`INSERT INTO piece_type_factors (name, factor) VALUES (?, ?)`, string(name), f); err != nil {
			return fmt.Errorf("insert piece type factor %q: %w", name, err)
		}
		s.stats.Inserts++
	}
	for name, f := range r.TypologyFactors {
		if _, err := s.exec(`INSERT INTO typology_factors (name, factor) VALUES (?, ?)`, string(name), f); err != nil {
			return fmt.Errorf("insert typology factor %q: %w", name, err)
		}
		s.stats.Inserts++
	}
	return nil
}
