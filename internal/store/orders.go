package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	OrderPending = "pending"
	OrderPaid    = "paid"
)

// Order is a checked-out quote awaiting or having received payment.
type Order struct {
	ID           int64
	Reference    string
	QuoteID      int64
	ContactName  string
	ContactEmail string
	AmountCents  int64
	Currency     string
	Status       string
	PaymentURL   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateOrder inserts o and returns it with its id.
func (s *Store) CreateOrder(ctx context.Context, o Order) (Order, error) {
	now := time.Now().UTC().Truncate(time.Second)
	if o.Status == "" {
		o.Status = OrderPending
	}
	o.CreatedAt, o.UpdatedAt = now, now

	err := s.queryRow(ctx, s.db, `
		INSERT INTO orders (
			reference, quote_id, contact_name, contact_email,
			amount_cents, currency, status, payment_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, o.Reference, o.QuoteID, o.ContactName, o.ContactEmail,
		o.AmountCents, o.Currency, o.Status, o.PaymentURL, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

// GetOrderByReference reads an order by its public reference.
func (s *Store) GetOrderByReference(ctx context.Context, ref string) (Order, error) {
	var o Order
	err := s.queryRow(ctx, s.db, `
		SELECT id, reference, quote_id, contact_name, contact_email,
			amount_cents, currency, status, payment_url, created_at, updated_at
		FROM orders
		WHERE reference = ?
	`, ref).Scan(
		&o.ID, &o.Reference, &o.QuoteID, &o.ContactName, &o.ContactEmail,
		&o.AmountCents, &o.Currency, &o.Status, &o.PaymentURL, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

// SetOrderStatus updates the status of an order by reference.
func (s *Store) SetOrderStatus(ctx context.Context, ref, status string) error {
	result, err := s.exec(ctx, s.db, `
		UPDATE orders
		SET status = ?, updated_at = ?
		WHERE reference = ?
	`, status, time.Now().UTC().Truncate(time.Second), ref)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
