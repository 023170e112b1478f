package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/catalog"
	"github.com/Simplici0/resinquote/internal/store"
)

const maxRulesUpload = 5 << 20

func (s *server) handleAdminRatesForm(w http.ResponseWriter, r *http.Request) {
	rules := s.quotes.Rules()
	s.renderTemplate(w, "admin_rates.html", ratesViewData{
		baseViewData: baseViewData{
			ErrorMessage:   r.URL.Query().Get("error"),
			SuccessMessage: r.URL.Query().Get("success"),
		},
		Rates: store.RatesOf(rules),
		Rules: rules,
	})
}

func (s *server) handleAdminRatesSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	current := s.quotes.Rules()
	rates, validationErr := parseRatesForm(r)
	if validationErr == nil {
		validationErr = rates.Apply(current).Validate()
	}
	if validationErr != nil {
		s.renderStatus(w, http.StatusBadRequest, "admin_rates.html", ratesViewData{
			baseViewData: baseViewData{ErrorMessage: validationErr.Error()},
			Rates:        rates,
			Rules:        current,
		})
		return
	}

	if err := s.store.SaveRates(r.Context(), rates); err != nil {
		s.logger.Error("save rates", zap.Error(err))
		http.Error(w, "failed to save rates", http.StatusInternalServerError)
		return
	}
	if !s.reload(r.Context(), w) {
		return
	}

	s.renderTemplate(w, "admin_rates.html", ratesViewData{
		baseViewData: baseViewData{SuccessMessage: "Tarifs enregistrés."},
		Rates:        rates,
		Rules:        s.quotes.Rules(),
	})
}

func (s *server) handleAdminMaterialsForm(w http.ResponseWriter, r *http.Request) {
	materials, err := s.store.ListMaterials(r.Context(), false)
	if err != nil {
		s.logger.Error("list materials", zap.Error(err))
		http.Error(w, "failed to load materials", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "admin_materials.html", materialsViewData{
		baseViewData: baseViewData{
			ErrorMessage:   r.URL.Query().Get("error"),
			SuccessMessage: r.URL.Query().Get("success"),
		},
		Materials: materials,
	})
}

func (s *server) handleAdminMaterialsCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	m, err := parseMaterialForm(r)
	if err != nil {
		http.Redirect(w, r, "/admin/materials?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	m.Active = true
	if err := m.Spec().Validate(); err != nil {
		http.Redirect(w, r, "/admin/materials?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}

	if _, err := s.store.CreateMaterial(r.Context(), m); err != nil {
		s.redirectMaterialError(w, r, "create material", m, err)
		return
	}
	if !s.reload(r.Context(), w) {
		return
	}

	http.Redirect(w, r, "/admin/materials?success=Mati%C3%A8re+cr%C3%A9%C3%A9e", http.StatusSeeOther)
}

func (s *server) handleAdminMaterialsUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid material id", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	m, err := parseMaterialForm(r)
	if err != nil {
		http.Redirect(w, r, "/admin/materials?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	m.ID = id
	if err := m.Spec().Validate(); err != nil {
		http.Redirect(w, r, "/admin/materials?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}

	err = s.store.UpdateMaterial(r.Context(), m)
	if isNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.redirectMaterialError(w, r, "update material", m, err)
		return
	}
	if !s.reload(r.Context(), w) {
		return
	}

	http.Redirect(w, r, "/admin/materials?success=Mati%C3%A8re+mise+%C3%A0+jour", http.StatusSeeOther)
}

func (s *server) redirectMaterialError(w http.ResponseWriter, r *http.Request, op string, m store.Material, err error) {
	msg := "Impossible d'enregistrer la matière"
	if errors.Is(err, store.ErrDuplicate) {
		msg = fmt.Sprintf("Une matière nommée %q existe déjà", m.Name)
		s.logger.Warn(op, zap.String("name", m.Name), zap.Error(err))
	} else {
		s.logger.Error(op, zap.String("name", m.Name), zap.Error(err))
	}
	http.Redirect(w, r, "/admin/materials?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

func (s *server) handleAdminRulesExport(w http.ResponseWriter, r *http.Request) {
	bundle := catalog.Bundle{Materials: s.quotes.Materials(), Rules: s.quotes.Rules()}

	var err error
	switch r.URL.Query().Get("format") {
	case "", "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="rules.xlsx"`)
		err = catalog.WriteWorkbook(w, bundle)
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="rules.yaml"`)
		err = catalog.WriteYAML(w, bundle)
	default:
		http.Error(w, "format must be xlsx or yaml", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("export rules", zap.Error(err))
	}
}

func (s *server) handleAdminRulesImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRulesUpload)
	if err := r.ParseMultipartForm(maxRulesUpload); err != nil {
		http.Redirect(w, r, "/admin/rates?error="+url.QueryEscape("Fichier de règles invalide ou trop volumineux"), http.StatusSeeOther)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("rules")
	if err != nil {
		http.Redirect(w, r, "/admin/rates?error="+url.QueryEscape("Aucun fichier de règles fourni"), http.StatusSeeOther)
		return
	}
	defer file.Close()

	bundle, err := readRulesUpload(header.Filename, file)
	if err != nil {
		http.Redirect(w, r, "/admin/rates?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}

	if err := s.store.ReplaceBundle(r.Context(), bundle.Rules, bundle.Materials); err != nil {
		s.logger.Error("import rules", zap.Error(err))
		http.Error(w, "failed to import rules", http.StatusInternalServerError)
		return
	}
	if !s.reload(r.Context(), w) {
		return
	}

	s.logger.Info("rules imported",
		zap.String("filename", header.Filename),
		zap.Int("materials", len(bundle.Materials)))
	http.Redirect(w, r, "/admin/rates?success="+url.QueryEscape("Règles importées depuis "+header.Filename), http.StatusSeeOther)
}

// readRulesUpload parses an uploaded rules file. Workbooks are read from
// the stream; text formats go through catalog.Load, which needs a path.
func readRulesUpload(filename string, r io.Reader) (catalog.Bundle, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx":
		b, err := catalog.ReadWorkbook(r)
		if err != nil {
			return catalog.Bundle{}, err
		}
		if err := b.Validate(); err != nil {
			return catalog.Bundle{}, err
		}
		return b, nil
	case ".yaml", ".yml", ".json", ".toml":
	default:
		return catalog.Bundle{}, fmt.Errorf("format de fichier non pris en charge %q", ext)
	}

	tmp, err := os.CreateTemp("", "rules-*"+ext)
	if err != nil {
		return catalog.Bundle{}, fmt.Errorf("create temp rules file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return catalog.Bundle{}, fmt.Errorf("write temp rules file: %w", err)
	}

	b, err := catalog.Load(tmp.Name())
	if err != nil {
		if inner := errors.Unwrap(err); inner != nil {
			return catalog.Bundle{}, inner
		}
		return catalog.Bundle{}, err
	}
	return b, nil
}

// reload refreshes the pricing snapshot after an admin write.
func (s *server) reload(ctx context.Context, w http.ResponseWriter) bool {
	if err := s.quotes.Reload(ctx); err != nil {
		s.logger.Error("reload pricing snapshot", zap.Error(err))
		http.Error(w, "saved, but failed to reload pricing data", http.StatusInternalServerError)
		return false
	}
	return true
}
