package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/orchestrator"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

// Probe reports whether one backing dependency is reachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Assistant is the question pipeline as seen by the HTTP layer.
type Assistant interface {
	Ask(ctx context.Context, q orchestrator.Question) orchestrator.Outcome
	History(ctx context.Context, conversationID string, lastN int) ([]conversation.Message, error)
	Schema(ctx context.Context, schemaName string, refresh bool) (schema.Document, error)
	Analyze(ctx context.Context, sqlText string) (query.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Probes            []Probe
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
	QueryTranslator   nl2sql.Translator
}

type route struct {
	pattern string
	public  bool
	build   func(config.Config, Dependencies) http.HandlerFunc
}

var routes = []route{
	{pattern: "GET /v1/health", public: true, build: healthHandler},
	{pattern: "GET /v1/ready", public: true, build: withDeps(handleReady)},
	{pattern: "POST /v1/query", build: withDeps(handleQuery)},
	{pattern: "GET /v1/conversations/{id}", build: withDeps(handleConversation)},
	{pattern: "GET /v1/schema", build: withDeps(handleSchema)},
	{pattern: "POST /v1/query/analyze", build: withDeps(handleAnalyze)},
	{pattern: "POST /v1/query/translate", build: withDeps(handleTranslateQuery)},
}

func withDeps(fn func(Dependencies, http.ResponseWriter, *http.Request)) func(config.Config, Dependencies) http.HandlerFunc {
	return func(_ config.Config, deps Dependencies) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { fn(deps, w, r) }
	}
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	guard := routeGuard(cfg, deps)
	mux := http.NewServeMux()
	mux.Handle("GET /v1/metrics", promhttp.Handler())
	for _, rt := range routes {
		var h http.Handler = rt.build(cfg, deps)
		if !rt.public {
			h = guard(h)
		}
		mux.Handle(rt.pattern, h)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// routeGuard wraps non-public routes. With auth required but no middleware
// supplied every such route fails closed.
func routeGuard(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	switch {
	case !cfg.Auth.Required:
		return func(next http.Handler) http.Handler { return next }
	case deps.AuthMiddleware != nil:
		return deps.AuthMiddleware
	}
	if deps.Logger != nil {
		deps.Logger.Error("auth required but auth middleware missing")
	}
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	}
}

func healthHandler(cfg config.Config, _ Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	}
}

// handleReady runs every probe, even after a failure, so the response
// names each unreachable dependency.
func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := make(map[string]string, len(deps.Probes))
	var firstErr error
	for _, probe := range deps.Probes {
		if probe.Check == nil {
			continue
		}
		if err := probe.Check(ctx); err != nil {
			checks[probe.Name] = err.Error()
			if firstErr == nil {
				firstErr = fmt.Errorf("%s is not reachable: %w", probe.Name, err)
			}
			continue
		}
		checks[probe.Name] = "ok"
	}
	if firstErr != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", firstErr.Error(), true, map[string]any{"checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
