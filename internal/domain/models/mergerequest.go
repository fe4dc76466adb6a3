// internal/domain/models/mergerequest.go
package models

import "time"

// Merge request statuses.
const (
	MergeStatusPending = "pending"
	MergeStatusLeased  = "leased"
	MergeStatusDone    = "done"
	MergeStatusDead    = "dead"
)

// MergeRequest is an outbox row asking the legacy system to merge the
// record ReplaceLegacyID into WithLegacyID. DedupeKey is unique so enqueueing
// the same pair twice is a no-op.
type MergeRequest struct {
	ID              string `bson:"_id" json:"id"`
	DedupeKey       string `bson:"dedupe_key" json:"dedupe_key"`
	ReplaceLegacyID int64  `bson:"replace_legacy_id" json:"replace_legacy_id"`
	WithLegacyID    int64  `bson:"with_legacy_id" json:"with_legacy_id"`

	Status         string     `bson:"status" json:"status"`
	AttemptCount   int        `bson:"attempt_count" json:"attempt_count"`
	NextAttemptAt  time.Time  `bson:"next_attempt_at" json:"next_attempt_at"`
	LeaseOwner     string     `bson:"lease_owner,omitempty" json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `bson:"lease_expires_at,omitempty" json:"lease_expires_at,omitempty"`
	LastError      string     `bson:"last_error,omitempty" json:"last_error,omitempty"`
	ProcessedAt    *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
