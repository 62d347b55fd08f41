package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/userauth"
)

// Validator is the subset of *userauth.Engine the guards need.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*userauth.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims a guard stored for this request.
func ClaimsFromContext(ctx context.Context) (*userauth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*userauth.AccessClaims)
	return claims, ok
}

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, claims *userauth.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard rejects requests without a valid access token with 401.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The scheme
// is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
