// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers
// the framework side: ports, TLS, logging and CORS. Everything below is
// specific to WorkshopHub.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Legacy system API
	LegacyAPIURL       string // JSON API base URL
	LegacyWebURL       string // UI base URL used in deep links in staff emails
	LegacyAPIKey       string // static key, used when no OAuth2 client is configured
	LegacyClientID     string
	LegacyClientSecret string
	LegacyTokenURL     string
	LegacyTimeout      time.Duration

	// Email/SMTP configuration
	MailSMTPHost string // empty logs mail instead of sending it
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string

	SiteName            string // shown in staff email subjects
	StaffEmail          string // recipient of error reports and merge notices
	InvitationStaffName string // attribution for invitations issued by lookup

	// Sync scheduling
	SyncThrottle      time.Duration // minimum gap between unforced syncs of one event
	SyncLockTTL       time.Duration
	SyncInterval      time.Duration // how often upcoming events are synced; 0 disables
	MergePollInterval time.Duration
	MergeMaxAttempts  int

	// OpsToken guards the /sync and /rsvp endpoints. Empty disables them.
	OpsToken string

	// Audit logging: "all", "db", "log" or "off"
	AuditLogSync  string
	AuditLogMerge string
}
