package pricing

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(DefaultMaterials())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func baseOrder() OrderConfig {
	return OrderConfig{
		Material:  "Tough 2000",
		PieceType: PieceFunctional,
		Typology:  TypologyStandard,
		Quantity:  1,
		Delivery:  DeliveryPickUp,
	}
}

func TestCompute_ReferenceQuote(t *testing.T) {
	analysis := AnalysisResult{VolumeMl: 11.09, PrintTimeHours: 0.76}

	b, err := Compute(analysis, baseOrder(), defaultCatalog(t), DefaultRules())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	nearlyEqual(t, "materialCost", b.MaterialCost, 2.3289)
	nearlyEqual(t, "machineCost", b.MachineCost, 5.32)
	nearlyEqual(t, "baseCost", b.BaseCost, 7.6489)
	nearlyEqual(t, "postProcessing", b.PostProcessing, 2.29467)
	nearlyEqual(t, "finishing", b.Finishing, 1.988714)
	nearlyEqual(t, "subtotal", b.Subtotal, 11.932284)
	nearlyEqual(t, "markupFactor", b.MarkupFactor, 1.55)
	nearlyEqual(t, "markedUp", b.MarkedUp, 18.4950402)
	nearlyEqual(t, "typeAdjusted", b.TypeAdjusted, 21.26929623)
	nearlyEqual(t, "unitPrice", b.UnitPrice, 21.26929623)
	nearlyEqual(t, "totalPieces", b.TotalPieces, 21.26929623)
	nearlyEqual(t, "packaging", b.Packaging, 2)
	nearlyEqual(t, "delivery", b.Delivery, 0)
	nearlyEqual(t, "totalExcludingTax", b.TotalExcludingTax, 23.26929623)
	nearlyEqual(t, "tax", b.Tax, 4.653859246)
	nearlyEqual(t, "totalIncludingTax", b.TotalIncludingTax, 27.923155476)
}

func TestCompute_FinishingCompoundsOnPostProcessing(t *testing.T) {
	rules := DefaultRules()
	b, err := Compute(AnalysisResult{VolumeMl: 100, PrintTimeHours: 2}, baseOrder(), defaultCatalog(t), rules)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	nearlyEqual(t, "finishing", b.Finishing, (b.BaseCost+b.PostProcessing)*rules.FinishingRate)
	if math.Abs(b.Finishing-b.BaseCost*rules.FinishingRate) < 1e-9 {
		t.Fatalf("finishing must not be computed on base cost alone")
	}
}

func TestCompute_TotalsInvariants(t *testing.T) {
	catalog := defaultCatalog(t)
	rules := DefaultRules()

	for _, volume := range []float64{0.5, 10, 10.01, 49.9, 150, 399, 401, 2500} {
		for _, delivery := range Deliveries {
			for _, qty := range []int{1, 3, 17} {
				cfg := baseOrder()
				cfg.Delivery = delivery
				cfg.Quantity = qty

				b, err := Compute(AnalysisResult{VolumeMl: volume, PrintTimeHours: volume / 14}, cfg, catalog, rules)
				if err != nil {
					t.Fatalf("Compute(volume=%v): %v", volume, err)
				}

				nearlyEqual(t, "totalIncludingTax", b.TotalIncludingTax, b.TotalExcludingTax*1.20)
				nearlyEqual(t, "totalExcludingTax", b.TotalExcludingTax, b.UnitPrice*float64(qty)+b.Packaging+b.Delivery)
			}
		}
	}
}

func TestMarkupFactor_Tiers(t *testing.T) {
	rules := DefaultRules()
	cases := []struct {
		volume float64
		want   float64
	}{
		{0.1, 1.8},
		{10, 1.8},
		{10.0001, 1.55},
		{50, 1.55},
		{50.5, 1.35},
		{150, 1.35},
		{151, 1.25},
		{400, 1.25},
		{400.01, 1.2},
		{10000, 1.2},
	}
	for _, c := range cases {
		if got := rules.MarkupFactor(c.volume); got != c.want {
			t.Fatalf("MarkupFactor(%v) = %v, want %v", c.volume, got, c.want)
		}
	}
}

func TestMarkupFactor_MonotonicNonIncreasing(t *testing.T) {
	rules := DefaultRules()
	prev := rules.MarkupFactor(0.01)
	for v := 0.01; v < 1000; v += 0.25 {
		got := rules.MarkupFactor(v)
		if got > prev {
			t.Fatalf("markup increased from %v to %v at volume %v", prev, got, v)
		}
		prev = got
	}
}

func TestCompute_UnknownMaterialAlwaysFails(t *testing.T) {
	catalog := defaultCatalog(t)
	for _, policy := range []UnknownFactorPolicy{UseDefaultFactor, RejectUnknownFactor} {
		rules := DefaultRules()
		rules.OnUnknownFactor = policy

		cfg := OrderConfig{Material: "Unobtainium", PieceType: "Bogus", Typology: "Bogus", Quantity: 0, Delivery: "Teleport"}
		_, err := Compute(AnalysisResult{VolumeMl: -1}, cfg, catalog, rules)

		var notFound *MaterialNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("policy %s: expected MaterialNotFoundError, got %v", policy, err)
		}
		if notFound.Name != "Unobtainium" {
			t.Fatalf("unexpected material name %q", notFound.Name)
		}
		if !errors.Is(err, ErrMaterialNotFound) {
			t.Fatalf("expected errors.Is(err, ErrMaterialNotFound)")
		}
	}
}

func TestCompute_UnknownFactorDefaultsToOne(t *testing.T) {
	cfg := baseOrder()
	cfg.PieceType = "Decorative"
	cfg.Typology = "Oversized"

	b, err := Compute(AnalysisResult{VolumeMl: 20, PrintTimeHours: 1}, cfg, defaultCatalog(t), DefaultRules())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	nearlyEqual(t, "pieceTypeFactor", b.PieceTypeFactor, 1)
	nearlyEqual(t, "typologyFactor", b.TypologyFactor, 1)
	nearlyEqual(t, "unitPrice", b.UnitPrice, b.MarkedUp)
}

func TestCompute_UnknownFactorRejectedWhenStrict(t *testing.T) {
	rules := DefaultRules()
	rules.OnUnknownFactor = RejectUnknownFactor
	catalog := defaultCatalog(t)

	cases := []struct {
		kind   string
		mutate func(*OrderConfig)
	}{
		{"piece_type", func(c *OrderConfig) { c.PieceType = "Decorative" }},
		{"typology", func(c *OrderConfig) { c.Typology = "Oversized" }},
		{"delivery", func(c *OrderConfig) { c.Delivery = "Drone" }},
	}
	for _, c := range cases {
		cfg := baseOrder()
		c.mutate(&cfg)

		_, err := Compute(AnalysisResult{VolumeMl: 20, PrintTimeHours: 1}, cfg, catalog, rules)
		var unknown *UnknownFactorError
		if !errors.As(err, &unknown) {
			t.Fatalf("%s: expected UnknownFactorError, got %v", c.kind, err)
		}
		if unknown.Kind != c.kind {
			t.Fatalf("kind = %q, want %q", unknown.Kind, c.kind)
		}
	}
}

func TestCompute_QuantityScalesLinearly(t *testing.T) {
	catalog := defaultCatalog(t)
	rules := DefaultRules()
	analysis := AnalysisResult{VolumeMl: 73.4, PrintTimeHours: 3.1}

	single := baseOrder()
	single.Quantity = 4
	single.Delivery = DeliveryStandard
	double := single
	double.Quantity = 8

	a, err := Compute(analysis, single, catalog, rules)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(analysis, double, catalog, rules)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	nearlyEqual(t, "totalPieces", b.TotalPieces, 2*a.TotalPieces)
	fixed := a.Packaging + a.Delivery
	nearlyEqual(t, "variable part", b.TotalExcludingTax-fixed, 2*(a.TotalExcludingTax-fixed))
	nearlyEqual(t, "unitPrice", b.UnitPrice, a.UnitPrice)
}

func TestCompute_ExpressIsStandardTimesMultiplier(t *testing.T) {
	catalog := defaultCatalog(t)
	rules := DefaultRules()
	analysis := AnalysisResult{VolumeMl: 30, PrintTimeHours: 2}

	standard := baseOrder()
	standard.Delivery = DeliveryStandard
	express := baseOrder()
	express.Delivery = DeliveryExpress

	s, err := Compute(analysis, standard, catalog, rules)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	e, err := Compute(analysis, express, catalog, rules)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	nearlyEqual(t, "standard delivery", s.Delivery, 12)
	nearlyEqual(t, "express delivery", e.Delivery, 1.2*s.Delivery)
}

func TestCompute_PieceTypeAndTypologyCompound(t *testing.T) {
	cfg := baseOrder()
	cfg.PieceType = PieceCritical
	cfg.Typology = TypologyLargePart

	b, err := Compute(AnalysisResult{VolumeMl: 500, PrintTimeHours: 9}, cfg, defaultCatalog(t), DefaultRules())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	nearlyEqual(t, "markedUp", b.MarkedUp, b.Subtotal*1.2)
	nearlyEqual(t, "typeAdjusted", b.TypeAdjusted, b.MarkedUp*1.6)
	nearlyEqual(t, "unitPrice", b.UnitPrice, b.TypeAdjusted*2.0)
}

func TestCompute_ConcurrentCallsAgree(t *testing.T) {
	catalog := defaultCatalog(t)
	rules := DefaultRules()
	analysis := AnalysisResult{VolumeMl: 42, PrintTimeHours: 1.7}
	cfg := baseOrder()
	cfg.Quantity = 3

	want, err := Compute(analysis, cfg, catalog, rules)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]Breakdown, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Compute(analysis, cfg, catalog, rules)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("result %d differs (-want +got):\n%s", i, diff)
		}
	}
}

func TestBreakdownLines_Order(t *testing.T) {
	b := Breakdown{MaterialCost: 1, TotalIncludingTax: 9}
	lines := b.Lines()
	if lines[0].Key != "material_cost" || lines[0].Value != 1 {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	last := lines[len(lines)-1]
	if last.Key != "total_including_tax" || last.Value != 9 {
		t.Fatalf("unexpected last line: %+v", last)
	}
}
