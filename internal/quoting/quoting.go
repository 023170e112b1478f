// Package quoting turns uploads into persisted quotes and quotes into
// orders, pricing against an immutable snapshot of the catalog and rules.
package quoting

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/analysis"
	"github.com/Simplici0/resinquote/internal/metrics"
	"github.com/Simplici0/resinquote/internal/notify"
	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/store"
)

// ErrNoSnapshot is returned when pricing is requested before Reload succeeded.
var ErrNoSnapshot = errors.New("pricing data not loaded")

// ErrAnalysisFailed wraps every error reported by the analyzer.
var ErrAnalysisFailed = errors.New("model analysis failed")

// Store is the persistence the service needs.
type Store interface {
	LoadCatalog(ctx context.Context) (*pricing.Catalog, error)
	LoadRules(ctx context.Context) (pricing.Rules, error)
	SaveQuote(ctx context.Context, q store.Quote) (store.Quote, error)
	GetQuote(ctx context.Context, id int64) (store.Quote, error)
	GetQuoteByReference(ctx context.Context, ref string) (store.Quote, error)
	CreateOrder(ctx context.Context, o store.Order) (store.Order, error)
	GetOrderByReference(ctx context.Context, ref string) (store.Order, error)
	SetOrderStatus(ctx context.Context, ref, status string) error
}

type Deps struct {
	Store       Store
	Analyzer    analysis.Analyzer
	Payments    payments.Provider
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	MaxQuantity int
}

type snapshot struct {
	catalog *pricing.Catalog
	rules   pricing.Rules
}

type Service struct {
	store       Store
	analyzer    analysis.Analyzer
	payments    payments.Provider
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	maxQuantity int

	current atomic.Pointer[snapshot]
	now     func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		store:       d.Store,
		analyzer:    d.Analyzer,
		payments:    d.Payments,
		notifier:    d.Notifier,
		metrics:     d.Metrics,
		logger:      d.Logger,
		maxQuantity: d.MaxQuantity,
		now:         time.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Reload reads the catalog and rules from the store and publishes them as
// the new snapshot. Computations already running keep the old one.
func (s *Service) Reload(ctx context.Context) error {
	catalog, err := s.store.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	rules, err := s.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("stored rules: %w", err)
	}

	s.current.Store(&snapshot{catalog: catalog, rules: rules})
	s.logger.Info("pricing snapshot loaded",
		zap.Int("materials", catalog.Len()),
		zap.Int("markup_tiers", len(rules.Markup)))
	return nil
}

func (s *Service) snapshot() (*snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Materials lists the active materials in name order.
func (s *Service) Materials() []pricing.MaterialSpec {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	return snap.catalog.Materials()
}

// Rules returns the rules currently used for pricing.
func (s *Service) Rules() pricing.Rules {
	snap := s.current.Load()
	if snap == nil {
		return pricing.Rules{}
	}
	return snap.rules
}

// Price validates the inputs and computes the breakdown.
func (s *Service) Price(a pricing.AnalysisResult, cfg pricing.OrderConfig) (pricing.Breakdown, error) {
	snap, err := s.snapshot()
	if err != nil {
		return pricing.Breakdown{}, err
	}
	if err := pricing.ValidateOrder(a, cfg, s.maxQuantity); err != nil {
		return pricing.Breakdown{}, err
	}
	return pricing.Compute(a, cfg, snap.catalog, snap.rules)
}

// Upload is a model submitted for quoting.
type Upload struct {
	Filename string
	Data     []byte
	Title    string
	Notes    string
	Order    pricing.OrderConfig
}

// QuoteUpload analyzes the model, prices it and stores the quote snapshot.
func (s *Service) QuoteUpload(ctx context.Context, u Upload) (store.Quote, error) {
	snap, err := s.snapshot()
	if err != nil {
		return store.Quote{}, err
	}
	if len(u.Data) == 0 {
		s.metrics.Quote(metrics.OutcomeInvalid, 0)
		return store.Quote{}, pricing.ValidationErrors{{Field: "model", Message: "un fichier STL est requis"}}
	}
	if _, ok := snap.catalog.Material(u.Order.Material); !ok {
		s.metrics.Quote(metrics.OutcomeInvalid, 0)
		return store.Quote{}, &pricing.MaterialNotFoundError{Name: u.Order.Material}
	}

	started := s.now()
	result, err := s.analyzer.Analyze(ctx, u.Filename, u.Data)
	s.metrics.Analysis(s.now().Sub(started))
	if err != nil {
		s.metrics.Quote(metrics.OutcomeAnalysisFailed, 0)
		return store.Quote{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	if err := pricing.ValidateOrder(result, u.Order, s.maxQuantity); err != nil {
		s.metrics.Quote(metrics.OutcomeInvalid, 0)
		return store.Quote{}, err
	}
	breakdown, err := pricing.Compute(result, u.Order, snap.catalog, snap.rules)
	if err != nil {
		s.metrics.Quote(metrics.OutcomeInvalid, 0)
		return store.Quote{}, err
	}

	q, err := s.store.SaveQuote(ctx, store.Quote{
		Reference: newReference("Q", s.now()),
		CreatedAt: s.now().UTC().Truncate(time.Second),
		Title:     strings.TrimSpace(u.Title),
		Notes:     strings.TrimSpace(u.Notes),
		Filename:  u.Filename,
		Analysis:  result,
		Order:     u.Order,
		Currency:  currencyOf(snap.rules),
		Breakdown: breakdown,
	})
	if err != nil {
		s.metrics.Quote(metrics.OutcomeError, 0)
		return store.Quote{}, fmt.Errorf("save quote: %w", err)
	}

	s.metrics.Quote(metrics.OutcomeOK, breakdown.TotalIncludingTax)
	s.logger.Info("quote created",
		zap.String("reference", q.Reference),
		zap.String("material", u.Order.Material),
		zap.Int("quantity", u.Order.Quantity),
		zap.Float64("total", breakdown.TotalIncludingTax))
	return q, nil
}

// Contact identifies the customer placing an order.
type Contact struct {
	Name  string
	Email string
}

func (c Contact) validate() error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return pricing.ValidationErrors{{Field: "email", Message: "l'adresse e-mail est requise"}}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return pricing.ValidationErrors{{Field: "email", Message: "adresse e-mail invalide"}}
	}
	return nil
}

// Checkout turns the quote with id into a pending order with a payment link.
func (s *Service) Checkout(ctx context.Context, quoteID int64, c Contact) (store.Order, error) {
	if err := c.validate(); err != nil {
		return store.Order{}, err
	}
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return store.Order{}, fmt.Errorf("get quote %d: %w", quoteID, err)
	}
	return s.checkout(ctx, q, c)
}

// CheckoutByReference is Checkout addressed by the public quote reference.
func (s *Service) CheckoutByReference(ctx context.Context, ref string, c Contact) (store.Order, error) {
	if err := c.validate(); err != nil {
		return store.Order{}, err
	}
	q, err := s.store.GetQuoteByReference(ctx, ref)
	if err != nil {
		return store.Order{}, fmt.Errorf("get quote %s: %w", ref, err)
	}
	return s.checkout(ctx, q, c)
}

func (s *Service) checkout(ctx context.Context, q store.Quote, c Contact) (store.Order, error) {
	amount := payments.AmountCents(q.Breakdown.TotalIncludingTax)
	ref := newReference("O", s.now())

	link, err := s.payments.CreatePayment(ctx, ref, amount, q.Currency, "Devis "+q.Reference)
	if err != nil {
		return store.Order{}, fmt.Errorf("create payment: %w", err)
	}

	order, err := s.store.CreateOrder(ctx, store.Order{
		Reference:    ref,
		QuoteID:      q.ID,
		ContactName:  strings.TrimSpace(c.Name),
		ContactEmail: strings.TrimSpace(c.Email),
		AmountCents:  amount,
		Currency:     q.Currency,
		Status:       store.OrderPending,
		PaymentURL:   link,
	})
	if err != nil {
		return store.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.metrics.Order(store.OrderPending)

	err = s.notifier.OrderPlaced(ctx, notify.Order{
		Reference:      order.Reference,
		QuoteReference: q.Reference,
		ContactName:    order.ContactName,
		ContactEmail:   order.ContactEmail,
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		Material:       q.Order.Material,
		Quantity:       q.Order.Quantity,
		Filename:       q.Filename,
		PaymentURL:     order.PaymentURL,
	})
	if err != nil {
		s.logger.Warn("order notification failed", zap.String("order", order.Reference), zap.Error(err))
	}

	s.logger.Info("order created",
		zap.String("order", order.Reference),
		zap.String("quote", q.Reference),
		zap.Int64("amount_cents", amount))
	return order, nil
}

// MarkPaid records payment of an order. Paying twice is a no-op.
func (s *Service) MarkPaid(ctx context.Context, reference string) error {
	order, err := s.store.GetOrderByReference(ctx, reference)
	if err != nil {
		return fmt.Errorf("get order %s: %w", reference, err)
	}
	if order.Status == store.OrderPaid {
		return nil
	}
	if err := s.store.SetOrderStatus(ctx, reference, store.OrderPaid); err != nil {
		return fmt.Errorf("mark order %s paid: %w", reference, err)
	}
	s.metrics.Order(store.OrderPaid)
	return nil
}

func newReference(prefix string, now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), id[:10])
}

func currencyOf(r pricing.Rules) string {
	if r.Currency == "" {
		return "EUR"
	}
	return r.Currency
}
