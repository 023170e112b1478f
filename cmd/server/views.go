package main

import (
	"math"
	"strconv"

	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/store"
)

type baseViewData struct {
	ErrorMessage   string
	SuccessMessage string
	FieldErrors    []pricing.FieldError
}

type homeViewData struct {
	baseViewData
	Materials   []pricing.MaterialSpec
	PieceTypes  []pricing.PieceType
	Typologies  []pricing.Typology
	Deliveries  []pricing.Delivery
	Form        quoteFormValues
	MaxQuantity int
}

type quoteViewData struct {
	baseViewData
	Quote   store.Quote
	Lines   []pricing.Line
	Contact contactFormValues
}

type orderViewData struct {
	baseViewData
	Order  store.Order
	Quote  store.Quote
	Amount string
}

type loginViewData struct {
	baseViewData
}

type quotesViewData struct {
	baseViewData
	Query  string
	Quotes []store.QuoteListItem
}

type quoteDetailViewData struct {
	baseViewData
	Quote store.Quote
	Lines []pricing.Line
}

type ratesViewData struct {
	baseViewData
	Rates store.Rates
	Rules pricing.Rules
}

type materialsViewData struct {
	baseViewData
	Materials []store.Material
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMoney(v float64, currency string) string {
	return payments.FormatCents(payments.AmountCents(v), currency)
}

// percentValue renders a rate such as 0.2 as the form value "20".
func percentValue(v float64) string {
	return formatFloat(math.Round(v*10000) / 100)
}

func formatPercent(v float64) string {
	return percentValue(v) + " %"
}
