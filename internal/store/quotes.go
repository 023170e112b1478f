package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// Quote is a persisted pricing snapshot. Reading it back never recomputes
// the breakdown, so later rule changes do not alter issued quotes.
type Quote struct {
	ID        int64
	Reference string
	CreatedAt time.Time
	Title     string
	Notes     string
	Filename  string
	Analysis  pricing.AnalysisResult
	Order     pricing.OrderConfig
	Currency  string
	Breakdown pricing.Breakdown
	Total     float64
}

// QuoteListItem is a row of the quotes listing.
type QuoteListItem struct {
	ID        int64
	Reference string
	CreatedAt time.Time
	Title     string
	Filename  string
	Material  string
	Quantity  int
	Currency  string
	Total     float64
}

// SaveQuote inserts q and returns it with its id and creation time.
func (s *Store) SaveQuote(ctx context.Context, q Quote) (Quote, error) {
	breakdownJSON, err := json.Marshal(q.Breakdown)
	if err != nil {
		return Quote{}, fmt.Errorf("marshal breakdown: %w", err)
	}
	totalsJSON, err := json.Marshal(map[string]float64{
		"total":               q.Breakdown.TotalIncludingTax,
		"total_excluding_tax": q.Breakdown.TotalExcludingTax,
		"tax":                 q.Breakdown.Tax,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("marshal totals: %w", err)
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	err = s.queryRow(ctx, s.db, `
		INSERT INTO quotes (
			reference, created_at, title, notes, filename,
			volume_ml, print_time_hours,
			material, piece_type, typology, quantity, delivery,
			currency, breakdown_json, totals_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		q.Reference, q.CreatedAt, q.Title, q.Notes, q.Filename,
		q.Analysis.VolumeMl, q.Analysis.PrintTimeHours,
		q.Order.Material, string(q.Order.PieceType), string(q.Order.Typology), q.Order.Quantity, string(q.Order.Delivery),
		q.Currency, string(breakdownJSON), string(totalsJSON),
	).Scan(&q.ID)
	if err != nil {
		return Quote{}, fmt.Errorf("insert quote: %w", err)
	}

	q.Total = q.Breakdown.TotalIncludingTax
	return q, nil
}

// ListQuotes returns quotes newest first, optionally filtered by title,
// notes or filename.
func (s *Store) ListQuotes(ctx context.Context, query string) ([]QuoteListItem, error) {
	search := "%" + query + "%"
	rows, err := s.query(ctx, s.db, `
		SELECT id, reference, created_at, title, filename, material, quantity, currency, totals_json
		FROM quotes
		WHERE (? = '' OR title LIKE ? OR notes LIKE ? OR filename LIKE ?)
		ORDER BY created_at DESC, id DESC
	`, query, search, search, search)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]QuoteListItem, 0)
	for rows.Next() {
		var item QuoteListItem
		var totalsJSON string
		if err := rows.Scan(&item.ID, &item.Reference, &item.CreatedAt, &item.Title, &item.Filename, &item.Material, &item.Quantity, &item.Currency, &totalsJSON); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		item.Total = extractTotalFromJSON(totalsJSON)
		quotes = append(quotes, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}

	return quotes, nil
}

// GetQuote reads a quote snapshot by id.
func (s *Store) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return s.getQuote(ctx, `id = ?`, id)
}

// GetQuoteByReference reads a quote snapshot by its public reference.
func (s *Store) GetQuoteByReference(ctx context.Context, ref string) (Quote, error) {
	return s.getQuote(ctx, `reference = ?`, ref)
}

func (s *Store) getQuote(ctx context.Context, where string, arg any) (Quote, error) {
	var q Quote
	var pieceType, typology, delivery, breakdownJSON, totalsJSON string
	err := s.queryRow(ctx, s.db, `
		SELECT id, reference, created_at, title, notes, filename,
			volume_ml, print_time_hours,
			material, piece_type, typology, quantity, delivery,
			currency, breakdown_json, totals_json
		FROM quotes
		WHERE `+where, arg).Scan(
		&q.ID, &q.Reference, &q.CreatedAt, &q.Title, &q.Notes, &q.Filename,
		&q.Analysis.VolumeMl, &q.Analysis.PrintTimeHours,
		&q.Order.Material, &pieceType, &typology, &q.Order.Quantity, &delivery,
		&q.Currency, &breakdownJSON, &totalsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	if err != nil {
		return Quote{}, fmt.Errorf("query quote: %w", err)
	}

	q.Order.PieceType = pricing.PieceType(pieceType)
	q.Order.Typology = pricing.Typology(typology)
	q.Order.Delivery = pricing.Delivery(delivery)
	if err := json.Unmarshal([]byte(breakdownJSON), &q.Breakdown); err != nil {
		return Quote{}, fmt.Errorf("decode breakdown: %w", err)
	}
	q.Total = extractTotalFromJSON(totalsJSON)

	return q, nil
}

func extractTotalFromJSON(totalsJSON string) float64 {
	var values map[string]float64
	if err := json.Unmarshal([]byte(totalsJSON), &values); err != nil {
		return 0
	}

	for _, key := range []string{"total", "grand_total", "final_total"} {
		if total, ok := values[key]; ok {
			return total
		}
	}

	return 0
}
