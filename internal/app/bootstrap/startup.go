// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs after DB connections and schema setup are complete, but
// before the HTTP handler is built. It starts the background jobs: the
// scheduled event sync, the legacy merge outbox and sync lease cleanup.
//
// The jobs outlive the startup context, so they run on their own and are
// stopped in Shutdown.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Tasks != nil {
		deps.Tasks.Start(context.Background())
		logger.Info("background jobs started",
			zap.Duration("sync_interval", appCfg.SyncInterval),
			zap.Duration("merge_poll_interval", appCfg.MergePollInterval))
	}
	return nil
}
