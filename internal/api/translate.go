package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/schema"
)

type translateRequest struct {
	NaturalLanguage string `json:"natural_language"`
	Schema          string `json:"schema"`
}

// handleTranslateQuery returns generated SQL without running it.
func handleTranslateQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryTranslator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATOR_NOT_CONFIGURED", "query translator is not configured", false, nil)
		return
	}

	var req translateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.NaturalLanguage) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "NATURAL_LANGUAGE_REQUIRED", "natural_language is required", false, nil)
		return
	}

	result, err := deps.QueryTranslator.Translate(r.Context(), nl2sql.Request{
		NaturalLanguage: req.NaturalLanguage,
		SchemaName:      strings.TrimSpace(req.Schema),
	})
	if err != nil {
		var introspectionErr *schema.IntrospectionError
		switch {
		case errors.Is(err, nl2sql.ErrUnresolvable):
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "UNRESOLVABLE", err.Error(), false, nil)
		case errors.As(err, &introspectionErr):
			writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		default:
			writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate query", true, map[string]any{"details": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sql":    result.SQL,
		"schema": result.Schema,
	})
}
