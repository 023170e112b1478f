package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/payments"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/quoting"
	"github.com/Simplici0/resinquote/internal/store"
)

// Uploads above this size are spooled to disk by ParseMultipartForm.
const multipartMemory = 8 << 20

func (s *server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderHome(w, http.StatusOK, defaultQuoteForm(s.quotes.Materials()), baseViewData{})
}

func (s *server) renderHome(w http.ResponseWriter, status int, form quoteFormValues, base baseViewData) {
	s.renderStatus(w, status, "home.html", homeViewData{
		baseViewData: base,
		Materials:    s.quotes.Materials(),
		PieceTypes:   pricing.PieceTypes,
		Typologies:   pricing.Typologies,
		Deliveries:   pricing.Deliveries,
		Form:         form,
		MaxQuantity:  s.maxQuantity,
	})
}

func (s *server) handleQuoteSubmit(w http.ResponseWriter, r *http.Request) {
	if s.uploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.uploadMaxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderHome(w, http.StatusRequestEntityTooLarge, defaultQuoteForm(s.quotes.Materials()), baseViewData{
				ErrorMessage: fmt.Sprintf("Le fichier dépasse la taille maximale autorisée (%d Mo).", tooLarge.Limit>>20),
			})
			return
		}
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form, err := parseQuoteFormValues(r)
	if err != nil {
		s.renderHome(w, http.StatusBadRequest, form, baseViewData{ErrorMessage: err.Error()})
		return
	}

	filename, data, err := readModel(r)
	if err != nil {
		s.renderQuoteError(w, r, form, err)
		return
	}

	quote, err := s.quotes.QuoteUpload(r.Context(), quoting.Upload{
		Filename: filename,
		Data:     data,
		Title:    form.Title,
		Notes:    form.Notes,
		Order:    form.Order,
	})
	if err != nil {
		s.renderQuoteError(w, r, form, err)
		return
	}

	s.renderTemplate(w, "quote.html", quoteViewData{
		Quote: quote,
		Lines: quote.Breakdown.Lines(),
	})
}

func (s *server) renderQuoteError(w http.ResponseWriter, r *http.Request, form quoteFormValues, err error) {
	status, body := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("quote upload failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.renderHome(w, status, form, baseViewData{ErrorMessage: body.Error, FieldErrors: body.Fields})
}

// readModel returns the uploaded model. A missing file yields empty data,
// which the quoting service reports as a field error.
func readModel(r *http.Request) (string, []byte, error) {
	file, header, err := r.FormFile("model")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("read model upload: %w", err)
	}
	defer file.Close()

	if err := checkModelFilename(header.Filename); err != nil {
		return "", nil, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read model upload: %w", err)
	}
	return header.Filename, data, nil
}

func (s *server) handleCheckoutSubmit(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	contact := parseContactForm(r)
	order, err := s.quotes.CheckoutByReference(r.Context(), ref, quoting.Contact{Name: contact.Name, Email: contact.Email})
	if err != nil {
		s.renderCheckoutError(w, r, contact, err, func() (store.Quote, error) {
			return s.store.GetQuoteByReference(r.Context(), ref)
		})
		return
	}

	s.renderOrder(w, r, order)
}

// renderCheckoutError shows the quote page again for input errors and a
// plain error page otherwise.
func (s *server) renderCheckoutError(w http.ResponseWriter, r *http.Request, contact contactFormValues, err error, quote func() (store.Quote, error)) {
	status, body := classifyError(err)
	if status != http.StatusBadRequest {
		if status >= http.StatusInternalServerError {
			s.logger.Error("checkout failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		http.Error(w, body.Error, status)
		return
	}

	q, qerr := quote()
	if qerr != nil {
		s.logger.Error("reload quote after checkout error", zap.Error(qerr))
		http.Error(w, body.Error, status)
		return
	}
	s.renderStatus(w, status, "quote.html", quoteViewData{
		baseViewData: baseViewData{ErrorMessage: body.Error, FieldErrors: body.Fields},
		Quote:        q,
		Lines:        q.Breakdown.Lines(),
		Contact:      contact,
	})
}

func (s *server) renderOrder(w http.ResponseWriter, r *http.Request, order store.Order) {
	quote, err := s.store.GetQuote(r.Context(), order.QuoteID)
	if err != nil {
		s.logger.Error("load quote of order", zap.String("order", order.Reference), zap.Error(err))
		http.Error(w, "failed to load quote", http.StatusInternalServerError)
		return
	}

	s.renderStatus(w, http.StatusCreated, "order.html", orderViewData{
		baseViewData: baseViewData{SuccessMessage: "Commande enregistrée."},
		Order:        order,
		Quote:        quote,
		Amount:       payments.FormatCents(order.AmountCents, order.Currency),
	})
}
