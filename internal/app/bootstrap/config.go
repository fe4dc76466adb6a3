// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/workshophub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for WorkshopHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, legacy_api_url, etc.
//   - Environment variables: WORKSHOPHUB_MONGO_URI, WORKSHOPHUB_LEGACY_API_URL, etc.
//   - Command-line flags: --mongo_uri, --legacy_api_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "workshop_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Legacy system
	{Name: "legacy_api_url", Default: "", Desc: "Legacy system JSON API base URL"},
	{Name: "legacy_web_url", Default: "", Desc: "Legacy system web UI base URL (for links in staff emails)"},
	{Name: "legacy_api_key", Default: "", Desc: "Legacy API key (used when no OAuth2 client is set)"},
	{Name: "legacy_client_id", Default: "", Desc: "Legacy OAuth2 client ID"},
	{Name: "legacy_client_secret", Default: "", Desc: "Legacy OAuth2 client secret"},
	{Name: "legacy_token_url", Default: "", Desc: "Legacy OAuth2 token URL"},
	{Name: "legacy_timeout", Default: "30s", Desc: "Per-request timeout for legacy API calls"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (empty logs mail instead of sending)"},
	{Name: "mail_smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@workshophub.local", Desc: "From email address"},
	{Name: "mail_from_name", Default: "WorkshopHub", Desc: "From display name"},

	{Name: "site_name", Default: "WorkshopHub", Desc: "Site name used in staff emails"},
	{Name: "staff_email", Default: "", Desc: "Recipient of sync error reports and merge notices"},
	{Name: "invitation_staff_name", Default: "Workshop Staff", Desc: "Inviter name on invitations issued by RSVP lookup"},

	// Sync scheduling
	{Name: "sync_throttle", Default: "5m", Desc: "Minimum gap between unforced syncs of one event"},
	{Name: "sync_lock_ttl", Default: "10m", Desc: "Lease length for one event sync run"},
	{Name: "sync_interval", Default: "15m", Desc: "How often upcoming events are synced (0 disables)"},
	{Name: "merge_poll_interval", Default: "1m", Desc: "How often the legacy merge outbox is drained"},
	{Name: "merge_max_attempts", Default: 8, Desc: "Delivery attempts before a legacy merge is marked dead"},

	{Name: "ops_token", Default: "", Desc: "Bearer token for the /sync and /rsvp endpoints (empty disables them)"},

	// Audit logging settings
	{Name: "audit_log_sync", Default: "all", Desc: "Sync event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_merge", Default: "all", Desc: "Merge event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// WAFFLE_* and WORKSHOPHUB_* environment variables and command-line
// flags, merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "WORKSHOPHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		// Legacy system
		LegacyAPIURL:       appValues.String("legacy_api_url"),
		LegacyWebURL:       appValues.String("legacy_web_url"),
		LegacyAPIKey:       appValues.String("legacy_api_key"),
		LegacyClientID:     appValues.String("legacy_client_id"),
		LegacyClientSecret: appValues.String("legacy_client_secret"),
		LegacyTokenURL:     appValues.String("legacy_token_url"),
		LegacyTimeout:      appValues.Duration("legacy_timeout", 30*time.Second),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		SiteName:            appValues.String("site_name"),
		StaffEmail:          appValues.String("staff_email"),
		InvitationStaffName: appValues.String("invitation_staff_name"),

		// Sync scheduling
		SyncThrottle:      appValues.Duration("sync_throttle", 5*time.Minute),
		SyncLockTTL:       appValues.Duration("sync_lock_ttl", 10*time.Minute),
		SyncInterval:      appValues.Duration("sync_interval", 15*time.Minute),
		MergePollInterval: appValues.Duration("merge_poll_interval", time.Minute),
		MergeMaxAttempts:  appValues.Int("merge_max_attempts"),

		OpsToken: appValues.String("ops_token"),

		// Audit logging
		AuditLogSync:  appValues.String("audit_log_sync"),
		AuditLogMerge: appValues.String("audit_log_merge"),
	}

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("count", n))
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// WorkshopHub validates the MongoDB URI and the legacy API URL so that
// configuration errors surface before anything connects.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateLegacyURL(appCfg.LegacyAPIURL); err != nil {
		logger.Error("invalid legacy API URL", zap.Error(err))
		return fmt.Errorf("invalid legacy_api_url: %w", err)
	}
	if appCfg.LegacyWebURL != "" {
		if err := validateLegacyURL(appCfg.LegacyWebURL); err != nil {
			return fmt.Errorf("invalid legacy_web_url: %w", err)
		}
	}
	if appCfg.LegacyClientID != "" && appCfg.LegacyTokenURL == "" {
		return fmt.Errorf("legacy_client_id requires legacy_token_url")
	}
	if appCfg.MergeMaxAttempts < 1 {
		return fmt.Errorf("merge_max_attempts must be at least 1, got %d", appCfg.MergeMaxAttempts)
	}
	if appCfg.SyncLockTTL <= 0 {
		return fmt.Errorf("sync_lock_ttl must be positive")
	}
	if appCfg.OpsToken == "" {
		logger.Warn("ops_token not set; /sync and /rsvp endpoints are disabled")
	}
	return nil
}

func validateLegacyURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must be set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
