package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/store"
)

var modelExtensions = map[string]bool{".stl": true, ".obj": true}

type quoteFormValues struct {
	Title string
	Notes string
	Order pricing.OrderConfig
}

type contactFormValues struct {
	Name  string
	Email string
}

func defaultQuoteForm(materials []pricing.MaterialSpec) quoteFormValues {
	form := quoteFormValues{Order: pricing.OrderConfig{
		PieceType: pricing.PiecePrototype,
		Typology:  pricing.TypologyStandard,
		Quantity:  1,
		Delivery:  pricing.DeliveryPickUp,
	}}
	if len(materials) > 0 {
		form.Order.Material = materials[0].Name
	}
	return form
}

// parseQuoteFormValues reads the order options of the upload form. Enum
// values are checked later by pricing.ValidateOrder.
func parseQuoteFormValues(r *http.Request) (quoteFormValues, error) {
	values := quoteFormValues{
		Title: strings.TrimSpace(r.FormValue("title")),
		Notes: strings.TrimSpace(r.FormValue("notes")),
		Order: pricing.OrderConfig{
			Material:  strings.TrimSpace(r.FormValue("material")),
			PieceType: pricing.PieceType(strings.TrimSpace(r.FormValue("piece_type"))),
			Typology:  pricing.Typology(strings.TrimSpace(r.FormValue("typology"))),
			Delivery:  pricing.Delivery(strings.TrimSpace(r.FormValue("delivery"))),
		},
	}

	if values.Order.Material == "" {
		return values, fmt.Errorf("material est requis")
	}

	quantity, err := parsePositiveInt(r.FormValue("quantity"), "quantity")
	if err != nil {
		return values, err
	}
	values.Order.Quantity = quantity

	return values, nil
}

func checkModelFilename(name string) error {
	if !modelExtensions[strings.ToLower(filepath.Ext(name))] {
		return pricing.ValidationErrors{{Field: "model", Message: "seuls les fichiers .stl et .obj sont acceptés"}}
	}
	return nil
}

func parseContactForm(r *http.Request) contactFormValues {
	return contactFormValues{
		Name:  strings.TrimSpace(r.FormValue("name")),
		Email: strings.TrimSpace(r.FormValue("email")),
	}
}

// parseRatesForm reads the admin rates form. Rates are entered as
// percentages and stored as fractions.
func parseRatesForm(r *http.Request) (store.Rates, error) {
	rates := store.Rates{
		OnUnknownFactor: pricing.UnknownFactorPolicy(r.FormValue("on_unknown_factor")),
		Currency:        strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
	}

	var err error
	if rates.MachineCostPerHour, err = parseNonNegativeFloat(r.FormValue("machine_cost_per_hour"), "machine_cost_per_hour"); err != nil {
		return rates, err
	}
	if rates.PostProcessingRate, err = parsePercent(r.FormValue("post_processing_percent"), "post_processing_percent"); err != nil {
		return rates, err
	}
	if rates.FinishingRate, err = parsePercent(r.FormValue("finishing_percent"), "finishing_percent"); err != nil {
		return rates, err
	}
	if rates.MarkupAbove, err = parsePositiveFloat(r.FormValue("markup_above"), "markup_above"); err != nil {
		return rates, err
	}
	if rates.PackagingCost, err = parseNonNegativeFloat(r.FormValue("packaging_cost"), "packaging_cost"); err != nil {
		return rates, err
	}
	if rates.StandardDeliveryCost, err = parseNonNegativeFloat(r.FormValue("standard_delivery_cost"), "standard_delivery_cost"); err != nil {
		return rates, err
	}
	if rates.ExpressMultiplier, err = parsePositiveFloat(r.FormValue("express_multiplier"), "express_multiplier"); err != nil {
		return rates, err
	}
	if rates.TaxRate, err = parsePercent(r.FormValue("tax_percent"), "tax_percent"); err != nil {
		return rates, err
	}

	switch rates.OnUnknownFactor {
	case pricing.UseDefaultFactor, pricing.RejectUnknownFactor:
	default:
		return rates, fmt.Errorf("on_unknown_factor doit valoir default ou error")
	}
	if len(rates.Currency) != 3 {
		return rates, fmt.Errorf("currency doit être un code à 3 lettres")
	}

	return rates, nil
}

func parseMaterialForm(r *http.Request) (store.Material, error) {
	m := store.Material{
		Name:   strings.TrimSpace(r.FormValue("name")),
		Color:  strings.TrimSpace(r.FormValue("color")),
		Notes:  strings.TrimSpace(r.FormValue("notes")),
		Active: r.FormValue("active") == "1",
	}

	if m.Name == "" {
		return m, fmt.Errorf("name est requis")
	}

	var err error
	if m.PricePerLiter, err = parseNonNegativeFloat(r.FormValue("price_per_liter"), "price_per_liter"); err != nil {
		return m, err
	}
	if m.WastePercent, err = parsePercent(r.FormValue("waste_percent"), "waste_percent"); err != nil {
		return m, err
	}
	if m.WastePercent >= 1 {
		return m, fmt.Errorf("waste_percent doit être inférieur à 100")
	}

	return m, nil
}

func parseNonNegativeFloat(raw, field string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s doit être numérique", field)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s doit être supérieur ou égal à 0", field)
	}
	return value, nil
}

// parsePercent accepts 0..100 and returns the fraction.
func parsePercent(raw, field string) (float64, error) {
	value, err := parseNonNegativeFloat(raw, field)
	if err != nil {
		return 0, err
	}
	if value > 100 {
		return 0, fmt.Errorf("%s doit être compris entre 0 et 100", field)
	}
	return value / 100, nil
}

func parsePositiveFloat(raw, field string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s doit être numérique", field)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s doit être supérieur à 0", field)
	}
	return value, nil
}

func parsePositiveInt(raw, field string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s doit être un nombre entier", field)
	}
	if value < 1 {
		return 0, fmt.Errorf("%s doit être supérieur à 0", field)
	}
	return value, nil
}
