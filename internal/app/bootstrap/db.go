// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/reconcile"
	"github.com/dalemusser/workshophub/internal/app/store/audit"
	eventstore "github.com/dalemusser/workshophub/internal/app/store/events"
	invitationstore "github.com/dalemusser/workshophub/internal/app/store/invitations"
	lecturestore "github.com/dalemusser/workshophub/internal/app/store/lectures"
	loginstore "github.com/dalemusser/workshophub/internal/app/store/logins"
	membershipstore "github.com/dalemusser/workshophub/internal/app/store/memberships"
	"github.com/dalemusser/workshophub/internal/app/store/mergeoutbox"
	personstore "github.com/dalemusser/workshophub/internal/app/store/people"
	"github.com/dalemusser/workshophub/internal/app/store/synclocks"
	"github.com/dalemusser/workshophub/internal/app/system/auditlog"
	"github.com/dalemusser/workshophub/internal/app/system/indexes"
	"github.com/dalemusser/workshophub/internal/app/system/mailer"
	"github.com/dalemusser/workshophub/internal/app/system/ratelimit"
	"github.com/dalemusser/workshophub/internal/app/system/tasks"
	"github.com/dalemusser/workshophub/internal/app/system/timeouts"
	"github.com/dalemusser/workshophub/internal/app/system/txn"
	"github.com/dalemusser/workshophub/internal/app/system/validators"
	"github.com/dalemusser/workshophub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and builds the services that depend on it:
// stores, the legacy client, the reconciliation engine and the background
// task runner. Nothing is started here.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetAppName("workshophub").
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))

	db := client.Database(appCfg.MongoDatabase)

	remote, err := legacy.New(legacy.Config{
		BaseURL:      appCfg.LegacyAPIURL,
		APIKey:       appCfg.LegacyAPIKey,
		ClientID:     appCfg.LegacyClientID,
		ClientSecret: appCfg.LegacyClientSecret,
		TokenURL:     appCfg.LegacyTokenURL,
		Timeout:      appCfg.LegacyTimeout,
	}, logger)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("legacy client: %w", err)
	}

	mail := mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Password: appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}, logger)

	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{
		Sync:  appCfg.AuditLogSync,
		Merge: appCfg.AuditLogMerge,
	})

	members := membershipstore.New(db)
	outbox := mergeoutbox.New(db)
	locks := synclocks.New(db)

	engine := reconcile.New(reconcile.Deps{
		People:      personstore.New(db),
		Memberships: members,
		Invitations: invitationstore.New(db),
		Lectures:    lecturestore.New(db),
		Logins:      loginstore.New(db),
		Events:      eventstore.New(db),
		Merges:      outbox,
		Locks:       locks,
		Remote:      remote,
		Notifier:    mail,
		Tx:          txn.New(client, logger),
		Audit:       auditLog,
	}, reconcile.Config{
		SiteName:     appCfg.SiteName,
		StaffEmail:   appCfg.StaffEmail,
		LegacyWebURL: appCfg.LegacyWebURL,
		StaffName:    appCfg.InvitationStaffName,
		Throttle:     appCfg.SyncThrottle,
		LockTTL:      appCfg.SyncLockTTL,
	}, logger)

	worker := workers.NewMergeOutbox(outbox, remote, auditLog, logger, workers.MergeOutboxConfig{
		MaxAttempts: appCfg.MergeMaxAttempts,
	})

	jobs := []tasks.Job{
		tasks.MergeOutboxJob(worker, logger, appCfg.MergePollInterval),
		tasks.SyncLockCleanupJob(locks, logger),
	}
	if appCfg.SyncInterval > 0 {
		jobs = append(jobs, tasks.SyncUpcomingEventsJob(engine, appCfg.SyncInterval))
	} else {
		logger.Info("scheduled event sync disabled (sync_interval is 0)")
	}

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		Engine:        engine,
		Memberships:   members,
		MergeOutbox:   outbox,
		Tasks:         tasks.NewRunner(logger, jobs...),
		OpsLimiter:    ratelimit.NewOpsLimiter(),
	}, nil
}

// EnsureSchema creates the collections with their JSON-Schema validators,
// then the indexes every collection relies on, including the unique
// indexes that back identity resolution and outbox dedupe.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Batch())
	defer cancel()

	var errs []error
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		errs = append(errs, fmt.Errorf("validators: %w", err))
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		errs = append(errs, err)
	}
	if err := audit.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit_events: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("ensure schema failed", zap.Error(err))
		return err
	}
	logger.Info("indexes ensured")
	return nil
}
