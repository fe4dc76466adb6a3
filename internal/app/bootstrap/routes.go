// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	healthfeature "github.com/dalemusser/workshophub/internal/app/features/health"
	opsfeature "github.com/dalemusser/workshophub/internal/app/features/ops"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WorkshopHub has no UI. It serves a health check for load balancers and
// a small set of token-protected operator endpoints that trigger syncs and
// resolve RSVP codes.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.MergeOutbox, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	opsHandler := opsfeature.NewHandler(deps.Engine, deps.Memberships, deps.OpsLimiter, logger)
	r.Mount("/", opsfeature.Routes(opsHandler, appCfg.OpsToken))

	return r, nil
}
