package auth

import (
	"net/http"
	"strings"

	"github.com/tommygebru/vitrine-highlights/internal/common"
)

// Middleware handles authentication middleware
type Middleware struct {
	service Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service Service) *Middleware {
	return &Middleware{service: service}
}

// bearerToken reads the Authorization header. WebSocket clients cannot set
// headers, so upgrade requests may pass access_token in the query instead.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if websocketUpgrade(r) {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}
	return parts[1], nil
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Authenticate middleware validates JWT token and sets the viewer
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err == ErrMissingToken {
			common.Unauthorized(w, "Authorization header required")
			return
		}
		if err != nil {
			common.Unauthorized(w, "Invalid authorization format")
			return
		}

		claims, err := m.service.ValidateAccessToken(token)
		if err != nil {
			common.Unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := common.WithViewer(r.Context(), claims.Viewer())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth middleware tries to authenticate but doesn't fail if no token
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.service.ValidateAccessToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := common.WithViewer(r.Context(), claims.Viewer())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after Authenticate
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, err := common.GetViewer(r.Context())
		if err != nil {
			common.Unauthorized(w, "Unauthorized")
			return
		}
		if !viewer.IsAdmin() {
			common.Forbidden(w, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
