package main

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/analysis"
	"github.com/Simplici0/resinquote/internal/catalog"
	"github.com/Simplici0/resinquote/internal/config"
	"github.com/Simplici0/resinquote/internal/db"
	"github.com/Simplici0/resinquote/internal/logger"
	"github.com/Simplici0/resinquote/internal/metrics"
	"github.com/Simplici0/resinquote/internal/migrations"
	"github.com/Simplici0/resinquote/internal/notify"
	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/quoting"
	"github.com/Simplici0/resinquote/internal/seed"
	"github.com/Simplici0/resinquote/internal/store"
	"github.com/Simplici0/resinquote/web"
)

type server struct {
	auth      *authService
	store     *store.Store
	quotes    *quoting.Service
	logger    *zap.Logger
	templates map[string]*template.Template

	uploadMaxBytes int64
	maxQuantity    int
	metrics        http.Handler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	for _, w := range cfg.Warnings() {
		lg.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		lg.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := migrations.Up(database, cfg.DBDriver, cfg.MigrationsDir); err != nil {
		lg.Fatal("failed to run database migrations", zap.Error(err))
	}

	st := store.New(database, cfg.DBDriver)

	stats, err := seed.Run(ctx, st, seed.Config{AdminEmail: cfg.AdminEmail, AdminPassword: cfg.AdminPassword})
	if err != nil {
		lg.Fatal("failed to seed database", zap.Error(err))
	}
	lg.Info("seed complete", zap.Int("inserts", stats.Inserts))

	if cfg.RulesFile != "" {
		if err := importRulesFile(ctx, st, cfg.RulesFile); err != nil {
			lg.Fatal("failed to import rules file", zap.String("path", cfg.RulesFile), zap.Error(err))
		}
		lg.Info("rules file imported", zap.String("path", cfg.RulesFile))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	analyzer, closeAnalyzer := buildAnalyzer(cfg, lg)
	defer closeAnalyzer()

	quotes := quoting.New(quoting.Deps{
		Store:       st,
		Analyzer:    analyzer,
		Payments:    payments.NewService(cfg.PaymentBaseURL),
		Notifier:    buildNotifier(cfg, lg),
		Metrics:     m,
		Logger:      lg,
		MaxQuantity: cfg.MaxQuantity,
	})
	if err := quotes.Reload(ctx); err != nil {
		lg.Fatal("failed to load pricing data", zap.Error(err))
	}

	templates, err := parseTemplates()
	if err != nil {
		lg.Fatal("failed to parse templates", zap.Error(err))
	}

	srv := &server{
		auth:           newAuthService(st, cfg.SessionSecret),
		store:          st,
		quotes:         quotes,
		logger:         lg,
		templates:      templates,
		uploadMaxBytes: cfg.UploadMaxBytes,
		maxQuantity:    cfg.MaxQuantity,
	}
	if cfg.MetricsEnabled {
		srv.metrics = metrics.Handler(reg)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	lg.Info("graceful shutdown complete")
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleHome)
	r.Post("/quote", s.handleQuoteSubmit)
	r.Post("/checkout/{ref}", s.handleCheckoutSubmit)
	r.Get("/health", s.handleHealth)
	r.Get("/payments/pay", payments.Handler(s.quotes, isNotFound, s.logger))
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/materials", s.handleAPIMaterials)
		r.Post("/price", s.handleAPIPrice)
		r.Post("/quotes/{ref}/checkout", s.handleAPICheckout)
	})

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLoginSubmit)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/quotes", s.handleQuotesList)
		r.Get("/quotes/{id}", s.handleQuoteDetail)
		r.Get("/quotes/{id}/text", s.handleQuoteText)
		r.Get("/quotes/{id}/xlsx", s.handleQuoteXLSX)
		r.Post("/quotes/{id}/checkout", s.handleQuoteCheckout)

		r.Get("/admin/rates", s.handleAdminRatesForm)
		r.Post("/admin/rates", s.handleAdminRatesSubmit)
		r.Get("/admin/materials", s.handleAdminMaterialsForm)
		r.Post("/admin/materials", s.handleAdminMaterialsCreate)
		r.Post("/admin/materials/{id}", s.handleAdminMaterialsUpdate)
		r.Get("/admin/rules/export", s.handleAdminRulesExport)
		r.Post("/admin/rules/import", s.handleAdminRulesImport)
	})

	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(started)))
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func importRulesFile(ctx context.Context, st *store.Store, path string) error {
	bundle, err := catalog.Load(path)
	if err != nil {
		return err
	}
	return st.ReplaceBundle(ctx, bundle.Rules, bundle.Materials)
}

func buildAnalyzer(cfg config.Config, lg *zap.Logger) (analysis.Analyzer, func()) {
	var base analysis.Analyzer
	if cfg.AnalysisURL != "" {
		base = analysis.NewHTTPClient(cfg.AnalysisURL, cfg.AnalysisToken, cfg.AnalysisTimeout, lg)
	} else {
		lg.Warn("ANALYSIS_URL not set, using static analysis results",
			zap.Float64("volume_ml", cfg.DevVolumeMl),
			zap.Float64("print_time_hours", cfg.DevPrintHours))
		base = analysis.Static{Result: pricing.AnalysisResult{VolumeMl: cfg.DevVolumeMl, PrintTimeHours: cfg.DevPrintHours}}
	}

	if cfg.RedisAddr == "" {
		return analysis.NewCached(base, analysis.NopCache{}, lg), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return analysis.NewCached(base, analysis.NewRedisCache(client, cfg.AnalysisCacheTTL), lg), func() { _ = client.Close() }
}

func buildNotifier(cfg config.Config, lg *zap.Logger) notify.Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		lg.Info("telegram notifications disabled")
		return notify.Nop{}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		lg.Warn("telegram bot unavailable, notifications disabled", zap.Error(err))
		return notify.Nop{}
	}
	return notify.NewTelegram(bot, cfg.TelegramChatID, lg)
}

var templatePages = []string{
	"home.html",
	"quote.html",
	"order.html",
	"login.html",
	"quotes.html",
	"quote_detail.html",
	"admin_rates.html",
	"admin_materials.html",
}

func parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"money":   formatMoney,
		"percent": formatPercent,
		"pct":     percentValue,
		"num":     formatFloat,
	}

	out := make(map[string]*template.Template, len(templatePages))
	for _, page := range templatePages {
		t, err := template.New(page).Funcs(funcs).ParseFS(web.Templates, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, err
		}
		out[page] = t
	}
	return out, nil
}

func (s *server) renderTemplate(w http.ResponseWriter, page string, data any) {
	s.renderStatus(w, http.StatusOK, page, data)
}

func (s *server) renderStatus(w http.ResponseWriter, status int, page string, data any) {
	templates, ok := s.templates[page]
	if !ok {
		http.Error(w, "failed to parse template", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.logger.Error("render template", zap.String("page", page), zap.Error(err))
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
