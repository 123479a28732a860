package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/modelry/modelry/internal/auth"
	"github.com/modelry/modelry/internal/permission"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	UserEmailKey contextKey = "user_email"
)

// Auth extracts the bearer token (header or cookie), validates it, and puts
// the resulting principal on the request context.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}

			if token == "" {
				if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
					token = cookie.Value
				}
			}

			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, PrincipalKey, claims.Principal())
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the authenticated principal, or a zero principal that
// fails every permission check.
func GetPrincipal(ctx context.Context) permission.Principal {
	if p, ok := ctx.Value(PrincipalKey).(permission.Principal); ok {
		return p
	}
	return permission.Principal{}
}

// GetUserEmail returns the authenticated user's email, if any.
func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}
