package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/analysis"
	"github.com/Simplici0/resinquote/internal/pricing"
	"github.com/Simplici0/resinquote/internal/quoting"
	"github.com/Simplici0/resinquote/internal/store"
)

type apiError struct {
	Error  string               `json:"error"`
	Fields []pricing.FieldError `json:"fields,omitempty"`
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// classifyError maps service errors to an HTTP status and a message safe to
// show to the client.
func classifyError(err error) (int, apiError) {
	var verrs pricing.ValidationErrors
	var unknown *pricing.UnknownFactorError
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, apiError{Error: "commande invalide", Fields: verrs}
	case errors.As(err, &unknown):
		return http.StatusBadRequest, apiError{Error: unknown.Error()}
	case errors.Is(err, pricing.ErrMaterialNotFound):
		return http.StatusBadRequest, apiError{
			Error:  "matière inconnue",
			Fields: []pricing.FieldError{{Field: "material", Message: "matière inconnue ou inactive"}},
		}
	case isNotFound(err):
		return http.StatusNotFound, apiError{Error: "introuvable"}
	case errors.Is(err, quoting.ErrAnalysisFailed) && analysis.IsUnavailable(err):
		return http.StatusBadGateway, apiError{Error: "l'analyse du modèle a échoué, veuillez réessayer"}
	case errors.Is(err, quoting.ErrAnalysisFailed):
		return http.StatusUnprocessableEntity, apiError{
			Error:  "le modèle n'a pas pu être analysé, vérifiez le fichier",
			Fields: []pricing.FieldError{{Field: "model", Message: "modèle illisible ou invalide"}},
		}
	case errors.Is(err, quoting.ErrNoSnapshot):
		return http.StatusServiceUnavailable, apiError{Error: "tarifs indisponibles"}
	default:
		return http.StatusInternalServerError, apiError{Error: "erreur interne"}
	}
}

func (s *server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
