package main

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Simplici0/resinquote/internal/pricing"
)

func TestParseQuoteFormValues_Success(t *testing.T) {
	form := url.Values{}
	form.Set("material", "Tough 2000")
	form.Set("piece_type", "Functional")
	form.Set("typology", "Standard")
	form.Set("delivery", "PickUp")
	form.Set("quantity", " 3 ")
	form.Set("title", "  Support caméra ")

	req := httptest.NewRequest("POST", "/quote", nil)
	req.Form = form

	values, err := parseQuoteFormValues(req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if values.Order.Material != "Tough 2000" || values.Order.Quantity != 3 {
		t.Fatalf("unexpected order: %+v", values.Order)
	}
	if values.Order.PieceType != pricing.PieceFunctional || values.Order.Delivery != pricing.DeliveryPickUp {
		t.Fatalf("unexpected options: %+v", values.Order)
	}
	if values.Title != "Support caméra" {
		t.Fatalf("expected trimmed title, got %q", values.Title)
	}
}

func TestParseQuoteFormValues_MissingMaterial(t *testing.T) {
	form := url.Values{}
	form.Set("quantity", "2")

	req := httptest.NewRequest("POST", "/quote", nil)
	req.Form = form

	if _, err := parseQuoteFormValues(req); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseQuoteFormValues_InvalidQuantity(t *testing.T) {
	for _, quantity := range []string{"abc", "0", "-2", "1.5", ""} {
		form := url.Values{}
		form.Set("material", "Grey")
		form.Set("quantity", quantity)

		req := httptest.NewRequest("POST", "/quote", nil)
		req.Form = form

		if _, err := parseQuoteFormValues(req); err == nil {
			t.Fatalf("expected quantity %q to be rejected", quantity)
		}
	}
}

func TestCheckModelFilename(t *testing.T) {
	for _, name := range []string{"part.stl", "PART.STL", "bracket.obj"} {
		if err := checkModelFilename(name); err != nil {
			t.Fatalf("expected %q to be accepted: %v", name, err)
		}
	}

	err := checkModelFilename("notes.txt")
	var verrs pricing.ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "model" {
		t.Fatalf("expected model field error, got %v", err)
	}
}

func TestParseRatesFormConvertsPercentages(t *testing.T) {
	form := url.Values{}
	form.Set("machine_cost_per_hour", "7")
	form.Set("post_processing_percent", "30")
	form.Set("finishing_percent", "20")
	form.Set("markup_above", "1.2")
	form.Set("packaging_cost", "2")
	form.Set("standard_delivery_cost", "12")
	form.Set("express_multiplier", "1.2")
	form.Set("tax_percent", "20")
	form.Set("on_unknown_factor", "error")
	form.Set("currency", "eur")

	req := httptest.NewRequest("POST", "/admin/rates", nil)
	req.Form = form

	rates, err := parseRatesForm(req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rates.TaxRate != 0.2 || rates.PostProcessingRate != 0.3 || rates.FinishingRate != 0.2 {
		t.Fatalf("expected fractions, got %+v", rates)
	}
	if rates.OnUnknownFactor != pricing.RejectUnknownFactor || rates.Currency != "EUR" {
		t.Fatalf("unexpected policy or currency: %+v", rates)
	}

	form.Set("tax_percent", "120")
	if _, err := parseRatesForm(req); err == nil {
		t.Fatalf("expected tax above 100%% to be rejected")
	}

	form.Set("tax_percent", "20")
	form.Set("on_unknown_factor", "ignore")
	if _, err := parseRatesForm(req); err == nil {
		t.Fatalf("expected unknown policy to be rejected")
	}
}

func TestParseMaterialForm(t *testing.T) {
	form := url.Values{}
	form.Set("name", "Clear")
	form.Set("price_per_liter", "149")
	form.Set("waste_percent", "10")
	form.Set("active", "1")

	req := httptest.NewRequest("POST", "/admin/materials", nil)
	req.Form = form

	m, err := parseMaterialForm(req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.PricePerLiter != 149 || m.WastePercent != 0.1 || !m.Active {
		t.Fatalf("unexpected material: %+v", m)
	}

	form.Set("price_per_liter", "0")
	m, err = parseMaterialForm(req)
	if err != nil || m.PricePerLiter != 0 {
		t.Fatalf("expected free material to be accepted, got %+v err=%v", m, err)
	}

	form.Set("price_per_liter", "-1")
	if _, err := parseMaterialForm(req); err == nil {
		t.Fatalf("expected negative price to be rejected")
	}

	form.Set("price_per_liter", "149")
	form.Set("waste_percent", "100")
	if _, err := parseMaterialForm(req); err == nil || !strings.Contains(err.Error(), "inférieur à 100") {
		t.Fatalf("expected waste of 100%% to be rejected, got %v", err)
	}
}
