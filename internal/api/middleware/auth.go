package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/auth"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware resolves bearer tokens to durable users for the REST
// endpoints. Unlike the websocket handshake, this path resolves the full
// internal identity, which is why canonical writes live behind it.
type AuthMiddleware struct {
	verifier auth.TokenVerifier
	db       store.DataStore
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verifier auth.TokenVerifier, db store.DataStore) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, db: db}
}

// RequireAuth verifies the Authorization bearer token and loads (or
// creates) the internal user record for it.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := m.db.GetOrCreateUser(r.Context(), identity.UID, identity.Name, identity.Email)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to resolve user")
			return
		}

		setRequestUser(r.Context(), identity.UID)

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WithUser returns a context carrying user. Exposed for handler tests.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
