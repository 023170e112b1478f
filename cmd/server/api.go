package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/quoting"
)

// API bodies are small JSON documents.
const maxAPIBody = 1 << 20

type materialsResponse struct {
	Materials  []pricing.MaterialSpec `json:"materials"`
	PieceTypes []pricing.PieceType    `json:"piece_types"`
	Typologies []pricing.Typology     `json:"typologies"`
	Deliveries []pricing.Delivery     `json:"deliveries"`
	Currency   string                 `json:"currency"`
}

type priceRequest struct {
	pricing.AnalysisResult
	pricing.OrderConfig
}

type priceResponse struct {
	Breakdown  pricing.Breakdown `json:"breakdown"`
	Currency   string            `json:"currency"`
	TotalCents int64             `json:"total_cents"`
}

type checkoutRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type checkoutResponse struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	PaymentURL  string `json:"payment_url"`
}

func (s *server) handleAPIMaterials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, materialsResponse{
		Materials:  s.quotes.Materials(),
		PieceTypes: pricing.PieceTypes,
		Typologies: pricing.Typologies,
		Deliveries: pricing.Deliveries,
		Currency:   s.quotes.Rules().Currency,
	})
}

func (s *server) handleAPIPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return
	}

	breakdown, err := s.quotes.Price(req.AnalysisResult, req.OrderConfig)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Breakdown:  breakdown,
		Currency:   s.quotes.Rules().Currency,
		TotalCents: payments.AmountCents(breakdown.TotalIncludingTax),
	})
}

func (s *server) handleAPICheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return
	}

	order, err := s.quotes.CheckoutByReference(r.Context(), chi.URLParam(r, "ref"), quoting.Contact{Name: req.Name, Email: req.Email})
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		Reference:   order.Reference,
		Status:      order.Status,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		PaymentURL:  order.PaymentURL,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
