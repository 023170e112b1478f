package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// Material is a catalog row.
type Material struct {
	ID            int64
	Name          string
	PricePerLiter float64
	WastePercent  float64
	Color         string
	Notes         string
	Active        bool
}

// Spec returns the pricing profile of the material.
func (m Material) Spec() pricing.MaterialSpec {
	return pricing.MaterialSpec{
		Name:          m.Name,
		PricePerLiter: m.PricePerLiter,
		WastePercent:  m.WastePercent,
		Color:         m.Color,
	}
}

// ListMaterials returns materials ordered by name.
func (s *Store) ListMaterials(ctx context.Context, activeOnly bool) ([]Material, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, name, price_per_liter, waste_percent, color, notes, active
		FROM materials
		WHERE (? = FALSE OR active = TRUE)
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	materials := make([]Material, 0)
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Name, &m.PricePerLiter, &m.WastePercent, &m.Color, &m.Notes, &m.Active); err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		materials = append(materials, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materials: %w", err)
	}

	return materials, nil
}

// LoadCatalog builds an immutable catalog from the active materials.
func (s *Store) LoadCatalog(ctx context.Context) (*pricing.Catalog, error) {
	materials, err := s.ListMaterials(ctx, true)
	if err != nil {
		return nil, err
	}
	specs := make([]pricing.MaterialSpec, 0, len(materials))
	for _, m := range materials {
		specs = append(specs, m.Spec())
	}
	catalog, err := pricing.NewCatalog(specs)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return catalog, nil
}

// CreateMaterial inserts a material and returns its id.
func (s *Store) CreateMaterial(ctx context.Context, m Material) (int64, error) {
	if err := m.Spec().Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.queryRow(ctx, s.db, `
		INSERT INTO materials (name, price_per_liter, waste_percent, color, notes, active)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, m.Name, m.PricePerLiter, m.WastePercent, m.Color, m.Notes, m.Active).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert material %q: %w", m.Name, ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("insert material: %w", err)
	}
	return id, nil
}

// UpdateMaterial overwrites a material by id.
func (s *Store) UpdateMaterial(ctx context.Context, m Material) error {
	if err := m.Spec().Validate(); err != nil {
		return err
	}

	result, err := s.exec(ctx, s.db, `
		UPDATE materials
		SET
			name = ?,
			price_per_liter = ?,
			waste_percent = ?,
			color = ?,
			notes = ?,
			active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, m.Name, m.PricePerLiter, m.WastePercent, m.Color, m.Notes, m.Active, m.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("update material %q: %w", m.Name, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("update material: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update material: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertMaterials inserts or refreshes materials by name and marks them active.
func (s *Store) UpsertMaterials(ctx context.Context, specs []pricing.MaterialSpec) error {
	for _, m := range specs {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.upsertMaterials(ctx, tx, specs)
	})
}

func (s *Store) upsertMaterials(ctx context.Context, tx *sql.Tx, specs []pricing.MaterialSpec) error {
	for _, m := range specs {
		if _, err := s.exec(ctx, tx, `
			INSERT INTO materials (name, price_per_liter, waste_percent, color, active)
			VALUES (?, ?, ?, ?, TRUE)
			ON CONFLICT (name) DO UPDATE SET
				price_per_liter = excluded.price_per_liter,
				waste_percent = excluded.waste_percent,
				color = excluded.color,
				active = TRUE,
				updated_at = CURRENT_TIMESTAMP
		`, m.Name, m.PricePerLiter, m.WastePercent, m.Color); err != nil {
			return fmt.Errorf("upsert material %q: %w", m.Name, err)
		}
	}
	return nil
}
