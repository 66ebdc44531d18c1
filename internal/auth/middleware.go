package auth

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/odyssey-erp/papertrail/internal/platform/httpx"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Middleware authenticates requests and gates routes by role.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Authenticate attaches the bearer token's principal to the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		principal, err := m.Verifier.Verify(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole admits only principals holding one of roles.
func RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			if !slices.Contains(roles, principal.Role) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role "+string(principal.Role)+" may not perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Principal returns the authenticated principal of r.
func Principal(r *http.Request) (shared.Principal, error) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return shared.Principal{}, httpx.ErrUnauthorized
	}
	return principal, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
