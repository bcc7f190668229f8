package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tiergate/internal/models"
	"tiergate/internal/store"
	"tiergate/internal/util"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
)

// TokenLookup resolves a hashed bearer token to its user policy.
type TokenLookup interface {
	GetUserPolicyByTokenHash(ctx context.Context, hash string) (*models.UserPolicy, error)
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// WithUserID is used by tests to bypass token lookup.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorBody{Error: code, Message: msg})
}

func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

func WithUserToken(lookup TokenLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header. Use: Bearer <token>")
				return
			}
			policy, err := lookup.GetUserPolicyByTokenHash(r.Context(), util.HashString(token))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid user token")
				return
			}
			if err != nil {
				logger.Error("token lookup failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), policy.UserID)))
		})
	}
}

func AdminToken(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok {
				writeError(w, http.StatusForbidden, "forbidden", "Missing or invalid Authorization header. Use: Bearer <admin_token>")
				return
			}
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "forbidden", "Invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
