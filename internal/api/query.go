package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/orchestrator"
	"github.com/askdb/askdb/internal/query"
)

type questionRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
}

type analyzeRequest struct {
	SQL string `json:"sql"`
}

type analyzeResponse struct {
	Columns []string       `json:"columns"`
	Rows    []query.Row    `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

type conversationResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Messages       []conversation.Message `json:"messages"`
}

// handleQuery answers with the pipeline envelope. Pipeline failures are
// reported inside the envelope with a 200, request problems with a 400.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var request questionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", orchestrator.ErrEmptyQuery.Error(), false, nil)
		return
	}

	outcome := deps.Assistant.Ask(r.Context(), orchestrator.Question{
		Query:          request.Query,
		ConversationID: request.ConversationID,
	})
	writeJSON(w, http.StatusOK, outcome)
}

func handleConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	conversationID := strings.TrimSpace(r.PathValue("id"))
	lastN := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("last_n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LAST_N", "last_n must be a non-negative integer", false, nil)
			return
		}
		lastN = parsed
	}

	messages, err := deps.Assistant.History(r.Context(), conversationID, lastN)
	if err != nil {
		var storeErr *conversation.StoreError
		if errors.As(err, &storeErr) {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "CONVERSATION_STORE_UNAVAILABLE", "failed to read conversation history", true, map[string]any{"details": err.Error()})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONVERSATION", err.Error(), false, nil)
		return
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{ConversationID: conversationID, Messages: messages})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	refresh := false
	if raw := strings.TrimSpace(r.URL.Query().Get("refresh")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REFRESH", "refresh must be a boolean", false, nil)
			return
		}
		refresh = parsed
	}

	doc, err := deps.Assistant.Schema(r.Context(), r.URL.Query().Get("schema"), refresh)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_FETCH_FAILED", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func handleAnalyze(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var request analyzeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid analyze request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	result, err := deps.Assistant.Analyze(r.Context(), request.SQL)
	if err != nil {
		var execErr *query.ExecutionError
		switch {
		case errors.Is(err, query.ErrNotReadOnly):
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
		case errors.Is(err, orchestrator.ErrAnalyzeUnavailable):
			writeError(r.Context(), w, http.StatusNotImplemented, "ANALYZE_NOT_CONFIGURED", err.Error(), false, nil)
		case errors.As(err, &execErr):
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": execErr.Err.Error()})
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "ANALYZE_FAILED", "failed to analyze query", true, map[string]any{"details": err.Error()})
		}
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Columns: result.Columns,
		Rows:    rows,
		Stats:   map[string]any{"duration_ms": result.Duration.Milliseconds()},
	})
}
