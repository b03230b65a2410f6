package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/observability"
)

type identityContextKey struct{}

// WithIdentity attaches the authenticated caller to ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// credentialError is the reason a request carried no usable key.
type credentialError struct {
	code    string
	message string
}

var (
	errMissingKey    = credentialError{code: "API_KEY_MISSING", message: "an API key is required"}
	errMalformedAuth = credentialError{code: "API_KEY_MALFORMED", message: "Authorization header must use the Bearer scheme"}
	errRejectedKey   = credentialError{code: "API_KEY_INVALID", message: "API key was not recognized"}
)

// Middleware admits requests whose X-API-Key or bearer token is accepted by
// validator. Rejections answer 401 with the API error envelope.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, failure := credentialsFrom(r.Header)
			if failure == nil {
				identity, ok := validator.Validate(r.Context(), key)
				if ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
					return
				}
				failure = &errRejectedKey
			}

			logger.WarnContext(r.Context(), "request rejected",
				slog.String("reason", failure.code),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			rejectRequest(w, r, *failure)
		})
	}
}

// credentialsFrom prefers X-API-Key over Authorization when both are sent.
func credentialsFrom(header http.Header) (string, *credentialError) {
	if key := strings.TrimSpace(header.Get("X-API-Key")); key != "" {
		return key, nil
	}
	authorization := strings.TrimSpace(header.Get("Authorization"))
	if authorization == "" {
		return "", &errMissingKey
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", &errMalformedAuth
	}
	return token, nil
}

func rejectRequest(w http.ResponseWriter, r *http.Request, failure credentialError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="askdb"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": failure.code,
		"message":    failure.message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
