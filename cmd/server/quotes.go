package main

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/quoting"
	"github.com/Simplici0/resinquote/internal/store"
)

func (s *server) handleQuotesList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	quotes, err := s.store.ListQuotes(r.Context(), query)
	if err != nil {
		s.logger.Error("list quotes", zap.Error(err))
		http.Error(w, "failed to load quotes", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "quotes.html", quotesViewData{
		Query:  query,
		Quotes: quotes,
	})
}

// quoteFromURL loads the quote named by the {id} route parameter, writing
// the error response itself when it returns false.
func (s *server) quoteFromURL(w http.ResponseWriter, r *http.Request) (store.Quote, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid quote id", http.StatusBadRequest)
		return store.Quote{}, false
	}

	quote, err := s.store.GetQuote(r.Context(), id)
	if isNotFound(err) {
		http.NotFound(w, r)
		return store.Quote{}, false
	}
	if err != nil {
		s.logger.Error("load quote", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to load quote", http.StatusInternalServerError)
		return store.Quote{}, false
	}
	return quote, true
}

func (s *server) handleQuoteDetail(w http.ResponseWriter, r *http.Request) {
	quote, ok := s.quoteFromURL(w, r)
	if !ok {
		return
	}

	s.renderTemplate(w, "quote_detail.html", quoteDetailViewData{
		baseViewData: baseViewData{
			ErrorMessage:   r.URL.Query().Get("error"),
			SuccessMessage: r.URL.Query().Get("success"),
		},
		Quote: quote,
		Lines: quote.Breakdown.Lines(),
	})
}

func (s *server) handleQuoteText(w http.ResponseWriter, r *http.Request) {
	quote, ok := s.quoteFromURL(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(quoteText(quote)))
}

func quoteText(q store.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Devis %s\n", q.Reference)
	fmt.Fprintf(&b, "Date: %s\n", q.CreatedAt.Format("2006-01-02 15:04"))
	if q.Title != "" {
		fmt.Fprintf(&b, "Titre: %s\n", q.Title)
	}
	if q.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", q.Notes)
	}

	b.WriteString("\nModèle:\n")
	fmt.Fprintf(&b, "- Fichier: %s\n", q.Filename)
	fmt.Fprintf(&b, "- Volume: %s ml\n", formatFloat(q.Analysis.VolumeMl))
	fmt.Fprintf(&b, "- Temps d'impression: %s h\n", formatFloat(q.Analysis.PrintTimeHours))

	b.WriteString("\nOptions:\n")
	fmt.Fprintf(&b, "- Matière: %s\n", q.Order.Material)
	fmt.Fprintf(&b, "- Type de pièce: %s (x%s)\n", q.Order.PieceType, formatFloat(q.Breakdown.PieceTypeFactor))
	fmt.Fprintf(&b, "- Typologie: %s (x%s)\n", q.Order.Typology, formatFloat(q.Breakdown.TypologyFactor))
	fmt.Fprintf(&b, "- Quantité: %d\n", q.Order.Quantity)
	fmt.Fprintf(&b, "- Livraison: %s\n", q.Order.Delivery)

	b.WriteString("\nDétail:\n")
	for _, line := range q.Breakdown.Lines() {
		fmt.Fprintf(&b, "- %s: %s\n", line.Label, formatMoney(line.Value, q.Currency))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", formatMoney(q.Breakdown.TotalIncludingTax, q.Currency))
	return b.String()
}

func (s *server) handleQuoteXLSX(w http.ResponseWriter, r *http.Request) {
	quote, ok := s.quoteFromURL(w, r)
	if !ok {
		return
	}

	f, err := quoteWorkbook(quote)
	if err != nil {
		s.logger.Error("build quote workbook", zap.String("quote", quote.Reference), zap.Error(err))
		http.Error(w, "failed to build workbook", http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", quote.Reference+".xlsx"))
	if err := f.Write(w); err != nil {
		s.logger.Error("write quote workbook", zap.String("quote", quote.Reference), zap.Error(err))
	}
}

func quoteWorkbook(q store.Quote) (*excelize.File, error) {
	const sheet = "Devis"

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	rows := [][]interface{}{
		{"Référence", q.Reference},
		{"Date", q.CreatedAt.Format("2006-01-02 15:04")},
		{"Titre", q.Title},
		{"Fichier", q.Filename},
		{"Volume (ml)", q.Analysis.VolumeMl},
		{"Temps d'impression (h)", q.Analysis.PrintTimeHours},
		{"Matière", q.Order.Material},
		{"Type de pièce", string(q.Order.PieceType)},
		{"Typologie", string(q.Order.Typology)},
		{"Quantité", q.Order.Quantity},
		{"Livraison", string(q.Order.Delivery)},
		{},
		{"Poste", "Montant (" + q.Currency + ")"},
	}
	for _, line := range q.Breakdown.Lines() {
		rows = append(rows, []interface{}{line.Label, roundCents(line.Value)})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *server) handleQuoteCheckout(w http.ResponseWriter, r *http.Request) {
	quote, ok := s.quoteFromURL(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	contact := parseContactForm(r)
	order, err := s.quotes.Checkout(r.Context(), quote.ID, quoting.Contact{Name: contact.Name, Email: contact.Email})
	if err != nil {
		s.renderCheckoutError(w, r, contact, err, func() (store.Quote, error) { return quote, nil })
		return
	}

	s.renderOrder(w, r, order)
}
