// internal/app/features/ops/routes.go
package ops

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/workshophub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the ops router. Every route requires the bearer token.
func Routes(h *Handler, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(RequireToken(token, h.Limiter, h.Log))

	r.Post("/sync/events/{code}", h.ServeSyncEvent)
	r.Post("/sync/memberships/{id}", h.ServeSyncMembership)
	r.Post("/push/memberships/{id}", h.ServePushMembership)
	r.Get("/rsvp/{code}", h.ServeLookupInvitation)
	return r
}

// RequireToken rejects requests that do not carry "Authorization: Bearer
// <token>". An empty token disables the routes. Clients with too many
// failed attempts are refused before the token is checked.
func RequireToken(token string, limiter *ratelimit.OpsLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "ops endpoints are disabled"})
				return
			}
			if limiter != nil && limiter.Blocked(r) {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many failed attempts"})
				return
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
				if limiter != nil {
					limiter.RecordFailure(r)
				}
				logger.Warn("ops request rejected",
					zap.String("ip", ratelimit.ClientIP(r)),
					zap.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", `Bearer realm="ops"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
