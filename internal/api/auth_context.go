package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/service"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// identityKey is the context key for the authenticated caller.
const identityKey ctxKey = "identity"

// withIdentity stores the caller in ctx.
func withIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// identityFrom returns the caller stored by authMiddleware.
func identityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok && id.UserID != ""
}

// RequireIdentity returns the authenticated caller, or 401.
func RequireIdentity(ctx context.Context) (domain.Identity, error) {
	id, ok := identityFrom(ctx)
	if !ok {
		return domain.Identity{}, domainerrors.Unauthorized("Authentication required")
	}
	return id, nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authMiddleware verifies Bearer tokens and stores the caller in the request
// context. Requests without a valid token continue anonymously; handlers use
// RequireIdentity to reject them.
func authMiddleware(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}
