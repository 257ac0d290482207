package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/earnhub/backend/internal/services"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
	tokenKey  contextKey = "token"
)

// TokenParser validates bearer tokens
type TokenParser interface {
	ParseToken(ctx context.Context, token string) (*services.Claims, error)
}

// Auth rejects requests without a valid, unrevoked bearer token and stores the caller in the
// request context.
func Auth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			claims, err := parser.ParseToken(r.Context(), parts[1])
			if err != nil {
				if !errors.Is(err, services.ErrInvalidToken) {
					log.Printf("[AUTH] Token check failed: %v", err)
					services.SendErrorResponse(w, "Authentication unavailable", http.StatusServiceUnavailable, nil)
					return
				}
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			ctx = context.WithValue(ctx, tokenKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole only lets callers holding one of roles through. Must run after Auth.
func RequireRole(roles ...services.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		})
	}
}

// UserIDFromContext returns the token subject, or "" outside Auth.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func RoleFromContext(ctx context.Context) services.Role {
	role, _ := ctx.Value(roleKey).(services.Role)
	return role
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// WithCaller returns ctx carrying an authenticated caller.
func WithCaller(ctx context.Context, subject string, role services.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, subject)
	return context.WithValue(ctx, roleKey, role)
}
