package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/manojawesome/AQueueMan/internal/auth"
	"github.com/manojawesome/AQueueMan/internal/models"
)

type authContextKey struct{}

type authInfo struct {
	Session models.Session
	User    models.User
}

// AuthMiddleware resolves the caller's session and rejects protected
// endpoints without one. Kiosk-facing endpoints (token creation, position
// and search reads) stay public, as do the auth endpoints themselves.
func AuthMiddleware(store auth.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, user, err := store.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// requireTenant checks the caller's organization against the tenant the
// request addresses. Admin users may act on any tenant.
func requireTenant(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	info, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if info.User.IsAdmin {
		return true
	}
	if info.User.TenantID != tenantID {
		writeError(w, http.StatusForbidden, "access_denied", "tenant access denied")
		return false
	}
	return true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	info, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if !info.User.IsAdmin {
		writeError(w, http.StatusForbidden, "access_denied", "admin access required")
		return false
	}
	return true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/auth/") {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/tokens":
		return r.Method == http.MethodPost
	case "/api/tokens/search":
		return r.Method == http.MethodGet
	default:
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/tokens/") && strings.HasSuffix(r.URL.Path, "/position") {
			return true
		}
		return r.Method == http.MethodOptions
	}
}
