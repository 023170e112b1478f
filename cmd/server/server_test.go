package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/analysis"
	"github.com/Simplici0/resinquote/internal/db"
	"github.com/Simplici0/resinquote/internal/migrations"
	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/quoting"
	"github.com/Simplici0/resinquote/internal/seed"
	"github.com/Simplici0/resinquote/internal/store"
)

const (
	testAdminEmail    = "admin@resinquote.test"
	testAdminPassword = "s3cret"
)

var referenceAnalysis = pricing.AnalysisResult{VolumeMl: 11.09, PrintTimeHours: 0.76}

func referenceOrder() pricing.OrderConfig {
	return pricing.OrderConfig{
		Material:  "Tough 2000",
		PieceType: pricing.PieceFunctional,
		Typology:  pricing.TypologyStandard,
		Quantity:  1,
		Delivery:  pricing.DeliveryPickUp,
	}
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	return newTestServerWithAnalyzer(t, analysis.Static{Result: referenceAnalysis})
}

func newTestServerWithAnalyzer(t *testing.T, analyzer analysis.Analyzer) *server {
	t.Helper()

	database, err := db.Open("sqlite", filepath.Join(t.TempDir(), "server-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database, "sqlite", "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	ctx := context.Background()
	st := store.New(database, "sqlite")
	if _, err := seed.Run(ctx, st, seed.Config{AdminEmail: testAdminEmail, AdminPassword: testAdminPassword}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	quotes := quoting.New(quoting.Deps{
		Store:       st,
		Analyzer:    analyzer,
		Payments:    payments.NewService("http://quotes.test"),
		MaxQuantity: 500,
	})
	if err := quotes.Reload(ctx); err != nil {
		t.Fatalf("reload quoting snapshot: %v", err)
	}

	templates, err := parseTemplates()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}

	return &server{
		auth:           newAuthService(st, "test-session-secret"),
		store:          st,
		quotes:         quotes,
		logger:         zap.NewNop(),
		templates:      templates,
		uploadMaxBytes: 1 << 20,
		maxQuantity:    500,
	}
}

// saveTestQuote stores a quote snapshot directly, bypassing pricing.
func saveTestQuote(t *testing.T, srv *server, q store.Quote) store.Quote {
	t.Helper()

	if q.Reference == "" {
		q.Reference = "Q-TEST-" + q.CreatedAt.Format("20060102150405")
	}
	if q.Currency == "" {
		q.Currency = "EUR"
	}
	if q.Order.Material == "" {
		q.Order = referenceOrder()
	}
	if q.Analysis.VolumeMl == 0 {
		q.Analysis = referenceAnalysis
	}
	saved, err := srv.store.SaveQuote(context.Background(), q)
	if err != nil {
		t.Fatalf("save quote: %v", err)
	}
	return saved
}

func loginCookie(t *testing.T, srv *server) *http.Cookie {
	t.Helper()

	rr := httptest.NewRecorder()
	srv.auth.setSessionCookie(rr, testAdminEmail)
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one session cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()

	ts, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}
