// Package payments creates payment links for orders. The bundled provider
// is a local stand-in: following its link marks the order paid.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Provider creates a payment and returns the URL the customer should visit.
type Provider interface {
	CreatePayment(ctx context.Context, reference string, amountCents int64, currency, description string) (string, error)
}

// AmountCents converts a total to minor units, rounding half away from zero.
func AmountCents(total float64) int64 {
	return decimal.NewFromFloat(total).Round(2).Shift(2).IntPart()
}

// FormatCents renders minor units as "27.92 EUR".
func FormatCents(cents int64, currency string) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + currency
}

// Service links to the local /payments/pay endpoint.
type Service struct {
	baseURL string
}

func NewService(baseURL string) *Service {
	return &Service{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Service) CreatePayment(ctx context.Context, reference string, amountCents int64, currency, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reference == "" {
		return "", errors.New("payment reference is required")
	}
	if amountCents <= 0 {
		return "", fmt.Errorf("payment amount must be positive, got %d %s", amountCents, currency)
	}
	return s.baseURL + "/payments/pay?order=" + url.QueryEscape(reference), nil
}

// OrderMarker records that an order has been paid.
type OrderMarker interface {
	MarkPaid(ctx context.Context, reference string) error
}

// Handler serves the payment link produced by Service.
func Handler(orders OrderMarker, isNotFound func(error) bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimSpace(r.URL.Query().Get("order"))
		if ref == "" {
			http.Error(w, "commande manquante", http.StatusBadRequest)
			return
		}

		if err := orders.MarkPaid(r.Context(), ref); err != nil {
			if isNotFound != nil && isNotFound(err) {
				http.NotFound(w, r)
				return
			}
			logger.Error("mark order paid", zap.String("order", ref), zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("order paid", zap.String("order", ref))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "Paiement enregistré pour la commande %s.\n", ref)
	}
}
