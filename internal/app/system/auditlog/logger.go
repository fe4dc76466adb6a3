// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/workshophub/internal/app/store/audit"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Sync controls logging for membership sync events (runs, creates, prunes, capacity).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Sync string
	// Merge controls logging for person merges and the legacy merge outbox.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Merge string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.EventCode != "" {
		fields = append(fields, zap.String("event_code", event.EventCode))
	}
	if event.PersonID != nil {
		fields = append(fields, zap.String("person_id", event.PersonID.Hex()))
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategorySync:
		setting = l.config.Sync
	case audit.CategoryMerge:
		setting = l.config.Merge
	default:
		setting = "all" // Default to logging everything for unknown categories
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Sync Events ---

// SyncCompleted logs a finished membership sync run.
func (l *Logger) SyncCompleted(ctx context.Context, runID, eventCode string, created, updated, pruned, failed int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySync,
		EventType: audit.EventSyncCompleted,
		EventCode: eventCode,
		RunID:     runID,
		Success:   failed == 0,
		Details: map[string]string{
			"created": strconv.Itoa(created),
			"updated": strconv.Itoa(updated),
			"pruned":  strconv.Itoa(pruned),
			"failed":  strconv.Itoa(failed),
		},
	})
}

// SyncFailed logs a sync run that aborted before touching local data.
func (l *Logger) SyncFailed(ctx context.Context, runID, eventCode, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySync,
		EventType:     audit.EventSyncFailed,
		EventCode:     eventCode,
		RunID:         runID,
		Success:       false,
		FailureReason: reason,
	})
}

// MembershipCreated logs a membership created from a legacy member row.
func (l *Logger) MembershipCreated(ctx context.Context, runID, eventCode string, personID primitive.ObjectID, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySync,
		EventType: audit.EventMembershipCreated,
		EventCode: eventCode,
		PersonID:  &personID,
		RunID:     runID,
		Success:   true,
		Details: map[string]string{
			"role": role,
		},
	})
}

// MembershipPruned logs a local membership removed because the legacy system no longer lists it.
func (l *Logger) MembershipPruned(ctx context.Context, runID, eventCode string, personID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySync,
		EventType: audit.EventMembershipPruned,
		EventCode: eventCode,
		PersonID:  &personID,
		RunID:     runID,
		Success:   true,
		Details: map[string]string{
			"email": email,
		},
	})
}

// EventOverbooked logs a failed capacity check.
func (l *Logger) EventOverbooked(ctx context.Context, runID, eventCode string, total, max int, counts map[string]int) {
	details := map[string]string{
		"total": strconv.Itoa(total),
		"max":   strconv.Itoa(max),
	}
	for k, v := range counts {
		details[k] = strconv.Itoa(v)
	}
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySync,
		EventType:     audit.EventEventOverbooked,
		EventCode:     eventCode,
		RunID:         runID,
		Success:       false,
		FailureReason: "overbooked",
		Details:       details,
	})
}

// InvitationIssued logs an invitation materialized from the legacy RSVP check.
func (l *Logger) InvitationIssued(ctx context.Context, eventCode string, personID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySync,
		EventType: audit.EventInvitationIssued,
		EventCode: eventCode,
		PersonID:  &personID,
		Success:   true,
	})
}

// --- Merge Events ---

// PersonMerged logs that loser was folded into survivor.
func (l *Logger) PersonMerged(ctx context.Context, loser, survivor *models.Person) {
	survivorID := survivor.ID
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMerge,
		EventType: audit.EventPersonMerged,
		PersonID:  &survivorID,
		Success:   true,
		Details: map[string]string{
			"loser_id":           loser.ID.Hex(),
			"loser_email":        loser.Email,
			"loser_legacy_id":    legacyID(loser),
			"survivor_legacy_id": legacyID(survivor),
		},
	})
}

// RemoteMergeQueued logs a legacy merge request written to the outbox.
func (l *Logger) RemoteMergeQueued(ctx context.Context, replaceID, withID int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMerge,
		EventType: audit.EventRemoteMergeQueued,
		Success:   true,
		Details:   mergeDetails(replaceID, withID, 0),
	})
}

// RemoteMergeDelivered logs a legacy merge request the legacy system accepted.
func (l *Logger) RemoteMergeDelivered(ctx context.Context, replaceID, withID int64, attempts int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMerge,
		EventType: audit.EventRemoteMergeDelivered,
		Success:   true,
		Details:   mergeDetails(replaceID, withID, attempts),
	})
}

// RemoteMergeDead logs a legacy merge request that ran out of attempts.
func (l *Logger) RemoteMergeDead(ctx context.Context, replaceID, withID int64, attempts int, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryMerge,
		EventType:     audit.EventRemoteMergeDead,
		Success:       false,
		FailureReason: reason,
		Details:       mergeDetails(replaceID, withID, attempts),
	})
}

func mergeDetails(replaceID, withID int64, attempts int) map[string]string {
	d := map[string]string{
		"replace_legacy_id": strconv.FormatInt(replaceID, 10),
		"with_legacy_id":    strconv.FormatInt(withID, 10),
	}
	if attempts > 0 {
		d["attempts"] = strconv.Itoa(attempts)
	}
	return d
}

func legacyID(p *models.Person) string {
	if !p.HasLegacyID() {
		return ""
	}
	return strconv.FormatInt(*p.LegacyID, 10)
}
