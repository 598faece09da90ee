package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/auth"
)

// UserKeyHeader is the legacy credential header still sent by older storefronts.
const UserKeyHeader = "USER-KEY"

type contextKey string

const (
	identityKey   contextKey = "identity"
	credentialKey contextKey = "credential"
)

// ExtractToken returns the bearer credential from the Authorization header, falling back to
// USER-KEY. USER-KEY may carry the raw token or a "Bearer " prefixed one.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	key := strings.TrimSpace(r.Header.Get(UserKeyHeader))
	if len(key) > 7 && strings.EqualFold(key[:7], "bearer ") {
		return strings.TrimSpace(key[7:])
	}
	return key
}

// Authenticate verifies the credential and stores the caller's identity in the context.
func Authenticate(verifier auth.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				WriteError(w, apperrors.AuthRequired())
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				WriteError(w, apperrors.AuthInvalid(err))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			ctx = context.WithValue(ctx, credentialKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole checks if the caller has one of the required roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, apperrors.AuthRequired())
				return
			}
			if _, ok := roleSet[id.Role]; !ok {
				WriteError(w, &apperrors.AppError{
					Status:  http.StatusForbidden,
					Code:    apperrors.CodeAuthInvalid,
					Message: "insufficient permissions",
					Kind:    apperrors.ErrAuth,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext retrieves the verified caller from the request context
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*auth.Identity)
	return id, ok
}

// CustomerID is a helper to get just the customer id from context. Zero means anonymous.
func CustomerID(ctx context.Context) int64 {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return 0
	}
	return id.CustomerID
}

// CredentialFromContext returns the raw credential the caller authenticated with.
func CredentialFromContext(ctx context.Context) string {
	s, _ := ctx.Value(credentialKey).(string)
	return s
}
