package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Simplici0/resinquote/internal/db"
	"github.com/Simplici0/resinquote/internal/migrations"
	"github.com/Simplici0/resinquote/internal/pricing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open("sqlite", filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database, "sqlite", "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return New(database, "sqlite")
}

func TestRebind(t *testing.T) {
	pg := &Store{postgres: true}
	got := pg.rebind(`SELECT * FROM t WHERE a = ? AND b = ?`)
	if got != `SELECT * FROM t WHERE a = $1 AND b = $2` {
		t.Fatalf("unexpected rebind: %s", got)
	}

	lite := &Store{}
	if q := lite.rebind(`a = ?`); q != `a = ?` {
		t.Fatalf("sqlite query should be unchanged, got %s", q)
	}
}

func TestRulesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.LoadRules(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before seeding, got %v", err)
	}

	want := pricing.DefaultRules()
	if err := s.ReplaceRules(ctx, want); err != nil {
		t.Fatalf("replace rules: %v", err)
	}

	got, err := s.LoadRules(ctx)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}

	rates := RatesOf(got)
	rates.MachineCostPerHour = 9.5
	rates.TaxRate = 0.055
	if err := s.SaveRates(ctx, rates); err != nil {
		t.Fatalf("save rates: %v", err)
	}

	updated, err := s.LoadRules(ctx)
	if err != nil {
		t.Fatalf("load updated rules: %v", err)
	}
	if updated.MachineCostPerHour != 9.5 || updated.TaxRate != 0.055 {
		t.Fatalf("rates not updated: %+v", RatesOf(updated))
	}
	if len(updated.Markup) != len(want.Markup) {
		t.Fatalf("markup tiers should be kept, got %d", len(updated.Markup))
	}
}

func TestReplaceBundleRollsBackWhenMaterialsFail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.ReplaceBundle(ctx, pricing.DefaultRules(), pricing.DefaultMaterials()); err != nil {
		t.Fatalf("replace bundle: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_castable BEFORE INSERT ON materials
		WHEN NEW.name = 'Castable'
		BEGIN SELECT RAISE(ABORT, 'castable rejected'); END
	`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	edited := pricing.DefaultRules()
	edited.MachineCostPerHour = 99
	edited.Markup = []pricing.MarkupTier{{UpToMl: 1000, Factor: 1.1}}
	edited.TypologyFactors[pricing.TypologyFragile] = 3
	materials := []pricing.MaterialSpec{
		{Name: "Grey", PricePerLiter: 1, WastePercent: 0.5},
		{Name: "Castable", PricePerLiter: 300, WastePercent: 0.1},
	}

	if err := s.ReplaceBundle(ctx, edited, materials); err == nil {
		t.Fatal("expected bundle import to fail")
	}

	got, err := s.LoadRules(ctx)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if diff := cmp.Diff(pricing.DefaultRules(), got); diff != "" {
		t.Fatalf("rules changed by failed import (-want +got):\n%s", diff)
	}

	list, err := s.ListMaterials(ctx, false)
	if err != nil {
		t.Fatalf("list materials: %v", err)
	}
	if len(list) != len(pricing.DefaultMaterials()) {
		t.Fatalf("expected %d materials, got %d", len(pricing.DefaultMaterials()), len(list))
	}
	for _, m := range list {
		if m.Name == "Grey" && m.PricePerLiter == 1 {
			t.Fatalf("material upsert survived the rollback: %+v", m)
		}
	}
}

func TestSaveRatesRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.ReplaceRules(ctx, pricing.DefaultRules()); err != nil {
		t.Fatalf("replace rules: %v", err)
	}

	rates := RatesOf(pricing.DefaultRules())
	rates.ExpressMultiplier = 0
	if err := s.SaveRates(ctx, rates); err == nil {
		t.Fatalf("expected validation error")
	}

	got, err := s.LoadRules(ctx)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if got.ExpressMultiplier != pricing.DefaultRules().ExpressMultiplier {
		t.Fatalf("invalid rates must not be stored, got %v", got.ExpressMultiplier)
	}
}

func TestMaterialsCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.UpsertMaterials(ctx, pricing.DefaultMaterials()); err != nil {
		t.Fatalf("upsert materials: %v", err)
	}
	// Upserting twice keeps one row per name.
	if err := s.UpsertMaterials(ctx, pricing.DefaultMaterials()); err != nil {
		t.Fatalf("upsert materials again: %v", err)
	}

	all, err := s.ListMaterials(ctx, false)
	if err != nil {
		t.Fatalf("list materials: %v", err)
	}
	if len(all) != len(pricing.DefaultMaterials()) {
		t.Fatalf("expected %d materials, got %d", len(pricing.DefaultMaterials()), len(all))
	}

	id, err := s.CreateMaterial(ctx, Material{Name: "Castable Wax", PricePerLiter: 299, WastePercent: 0.1, Active: false})
	if err != nil {
		t.Fatalf("create material: %v", err)
	}

	catalog, err := s.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if _, ok := catalog.Material("Castable Wax"); ok {
		t.Fatalf("inactive material must not be in the catalog")
	}

	err = s.UpdateMaterial(ctx, Material{ID: id, Name: "Castable Wax", PricePerLiter: 310, WastePercent: 0.1, Active: true})
	if err != nil {
		t.Fatalf("update material: %v", err)
	}
	catalog, err = s.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("reload catalog: %v", err)
	}
	spec, ok := catalog.Material("Castable Wax")
	if !ok || spec.PricePerLiter != 310 {
		t.Fatalf("expected updated active material, got %+v (found=%v)", spec, ok)
	}

	if err := s.UpdateMaterial(ctx, Material{ID: 9999, Name: "Ghost", PricePerLiter: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateMaterial(ctx, Material{Name: "Bad", PricePerLiter: 10, WastePercent: 1}); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected validation error for waste percent 1, got %v", err)
	}
	if _, err := s.CreateMaterial(ctx, Material{Name: "Grey", PricePerLiter: 10}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := s.UpdateMaterial(ctx, Material{ID: id, Name: "Grey", PricePerLiter: 10}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on rename, got %v", err)
	}
	if _, err := s.CreateMaterial(ctx, Material{Name: "Sample Resin", PricePerLiter: 0, Active: true}); err != nil {
		t.Fatalf("free material should be accepted: %v", err)
	}
}

func TestQuotesSnapshotAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	analysis := pricing.AnalysisResult{VolumeMl: 12.5, PrintTimeHours: 0.76}
	order := pricing.OrderConfig{
		Material:  "Clear",
		PieceType: pricing.PieceFunctional,
		Typology:  pricing.TypologyStandard,
		Quantity:  1,
		Delivery:  pricing.DeliveryPickUp,
	}
	catalog, err := pricing.NewCatalog(pricing.DefaultMaterials())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	breakdown, err := pricing.Compute(analysis, order, catalog, pricing.DefaultRules())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, err := s.SaveQuote(ctx, Quote{
		Reference: "Q-1",
		CreatedAt: base,
		Title:     "Support bracket",
		Filename:  "bracket.stl",
		Analysis:  analysis,
		Order:     order,
		Currency:  "EUR",
		Breakdown: breakdown,
	})
	if err != nil {
		t.Fatalf("save first quote: %v", err)
	}
	if _, err := s.SaveQuote(ctx, Quote{
		Reference: "Q-2",
		CreatedAt: base.Add(time.Hour),
		Title:     "Figurine",
		Notes:     "painted",
		Filename:  "dragon.stl",
		Analysis:  analysis,
		Order:     order,
		Currency:  "EUR",
		Breakdown: breakdown,
	}); err != nil {
		t.Fatalf("save second quote: %v", err)
	}

	items, err := s.ListQuotes(ctx, "")
	if err != nil {
		t.Fatalf("list quotes: %v", err)
	}
	if len(items) != 2 || items[0].Reference != "Q-2" {
		t.Fatalf("expected newest first, got %+v", items)
	}
	if items[1].Total != breakdown.TotalIncludingTax {
		t.Fatalf("expected total %v, got %v", breakdown.TotalIncludingTax, items[1].Total)
	}

	items, err = s.ListQuotes(ctx, "bracket")
	if err != nil {
		t.Fatalf("search quotes: %v", err)
	}
	if len(items) != 1 || items[0].Reference != "Q-1" {
		t.Fatalf("expected only Q-1, got %+v", items)
	}

	got, err := s.GetQuote(ctx, first.ID)
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if diff := cmp.Diff(breakdown, got.Breakdown); diff != "" {
		t.Fatalf("breakdown mismatch (-want +got):\n%s", diff)
	}
	if got.Order != order {
		t.Fatalf("order mismatch: %+v", got.Order)
	}

	byRef, err := s.GetQuoteByReference(ctx, "Q-1")
	if err != nil || byRef.ID != first.ID {
		t.Fatalf("get by reference: id=%d err=%v", byRef.ID, err)
	}
	if _, err := s.GetQuote(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrdersLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	quote, err := s.SaveQuote(ctx, Quote{
		Reference: "Q-ORDER",
		Analysis:  pricing.AnalysisResult{VolumeMl: 1, PrintTimeHours: 1},
		Order:     pricing.OrderConfig{Material: "Clear", PieceType: pricing.PiecePrototype, Typology: pricing.TypologyStandard, Quantity: 1, Delivery: pricing.DeliveryStandard},
		Currency:  "EUR",
	})
	if err != nil {
		t.Fatalf("save quote: %v", err)
	}

	order, err := s.CreateOrder(ctx, Order{
		Reference:    "O-1",
		QuoteID:      quote.ID,
		ContactEmail: "client@example.com",
		AmountCents:  2792,
		Currency:     "EUR",
		PaymentURL:   "http://pay.local/payments/pay?order=O-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != OrderPending {
		t.Fatalf("expected pending status, got %q", order.Status)
	}

	if err := s.SetOrderStatus(ctx, "O-1", OrderPaid); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := s.GetOrderByReference(ctx, "O-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderPaid || got.AmountCents != 2792 {
		t.Fatalf("unexpected order: %+v", got)
	}

	if err := s.SetOrderStatus(ctx, "missing", OrderPaid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inserted, err := s.EnsureUser(ctx, "admin@example.com", "hash-1")
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.EnsureUser(ctx, "admin@example.com", "hash-2")
	if err != nil || inserted {
		t.Fatalf("second insert: inserted=%v err=%v", inserted, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	inserted, err = s.EnsureUserTx(ctx, tx, "ops@example.com", "hash-3")
	if err != nil || !inserted {
		t.Fatalf("insert in tx: inserted=%v err=%v", inserted, err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := s.PasswordHash(ctx, "ops@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rolled back user to be absent, got %v", err)
	}

	hash, err := s.PasswordHash(ctx, "admin@example.com")
	if err != nil || hash != "hash-1" {
		t.Fatalf("unexpected hash %q err=%v", hash, err)
	}
	if _, err := s.PasswordHash(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
