package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/solistry/auth-service/internal/observability"
	"github.com/solistry/auth-service/internal/rate"
	"github.com/solistry/auth-service/internal/token"
)

type principalContextKey struct{}

// PrincipalFromContext returns the verified caller identity stored by
// [RequireAuth].
func PrincipalFromContext(ctx context.Context) (token.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(token.Principal)
	return p, ok
}

// RequireAuth verifies the bearer access token and stores the principal in
// the request context. Anonymous principals pass; role checks belong to the
// handlers behind the guard.
func RequireAuth(issuer *token.Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "AuthRequired", "authentication required")
			return
		}

		principal, err := issuer.VerifyAccess(bearer)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TokenExpired", "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "InvalidToken", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit enforces the route's fixed-window budget before the handler
// runs. Limiter backend failures reject the request: throttling fails
// closed.
func RateLimit(limiter *rate.Limiter, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := observability.ClientIP(r)

		if err := limiter.Allow(r.Context(), route, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				retryAfter := int(limiter.RetryAfter(r.Context(), route, ip).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "RateLimited", "rate limited")
				return
			}
			writeError(w, http.StatusInternalServerError, "Internal", "internal error")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tokenStr := strings.TrimSpace(value[len(bearer):])
	if tokenStr == "" {
		return "", false
	}

	return tokenStr, true
}
