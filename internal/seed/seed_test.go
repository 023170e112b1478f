package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/resinquote/internal/catalog"
	"github.com/Simplici0/resinquote/internal/db"
	"github.com/Simplici0/resinquote/internal/migrations"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/store"
)

func openSeedStore(t *testing.T) (*sql.DB, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database, "sqlite", "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database, store.New(database, "sqlite")
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	database, st := openSeedStore(t)
	ctx := context.Background()

	cfg := Config{
		AdminEmail:    "admin@resinquote.local",
		AdminPassword: "12345",
	}

	for i := 0; i < 10; i++ {
		stats, err := Run(ctx, st, cfg)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			// admin + 7 materials + rules + 4 tiers + 5 piece types + 3 typologies
			if stats.Inserts != 21 {
				t.Fatalf("expected 21 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM users WHERE email = ?`, "admin@resinquote.local", 1)
	assertCount(t, database, `SELECT COUNT(*) FROM materials`, nil, len(pricing.DefaultMaterials()))
	assertCount(t, database, `SELECT COUNT(*) FROM pricing_rules WHERE id = 1`, nil, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM markup_tiers`, nil, 4)
	assertCount(t, database, `SELECT COUNT(*) FROM piece_type_factors`, nil, 5)
	assertCount(t, database, `SELECT COUNT(*) FROM typology_factors`, nil, 3)

	hash, err := st.PasswordHash(ctx, "admin@resinquote.local")
	if err != nil {
		t.Fatalf("query admin hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("12345")); err != nil {
		t.Fatalf("expected admin hash to match password: %v", err)
	}

	rules, err := st.LoadRules(ctx)
	if err != nil {
		t.Fatalf("load seeded rules: %v", err)
	}
	if rules.MarkupFactor(5) != 1.8 {
		t.Fatalf("expected seeded markup tiers, got factor %v", rules.MarkupFactor(5))
	}
}

func TestRunKeepsAdminEdits(t *testing.T) {
	t.Parallel()

	database, st := openSeedStore(t)
	ctx := context.Background()

	if _, err := Run(ctx, st, Config{}); err != nil {
		t.Fatalf("first seed: %v", err)
	}

	edited := pricing.DefaultRules()
	edited.Markup = edited.Markup[:1]
	if err := st.ReplaceRules(ctx, edited); err != nil {
		t.Fatalf("replace rules: %v", err)
	}

	stats, err := Run(ctx, st, Config{})
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if stats.Inserts != 0 {
		t.Fatalf("expected no inserts, got %d", stats.Inserts)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM markup_tiers`, nil, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM users`, nil, 0)
}

func TestRunUsesCustomDefaults(t *testing.T) {
	t.Parallel()

	database, st := openSeedStore(t)

	bundle := catalog.Default()
	bundle.Materials = bundle.Materials[:2]
	if _, err := Run(context.Background(), st, Config{Defaults: &bundle}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM materials`, nil, 2)

	bad := catalog.Default()
	bad.Rules.ExpressMultiplier = 0
	if _, err := Run(context.Background(), st, Config{Defaults: &bad}); err == nil {
		t.Fatalf("expected invalid defaults to be rejected")
	}
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
