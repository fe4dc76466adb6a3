// internal/domain/models/synclock.go
package models

import (
	"errors"
	"time"
)

// ErrSyncLocked is returned when another run holds an event's sync lease.
var ErrSyncLocked = errors.New("event sync already in progress")

// SyncLock is the per-event exclusive lease held for the duration of a
// membership sync run. ID is the event code.
type SyncLock struct {
	ID         string    `bson:"_id"`
	Owner      string    `bson:"owner"`
	AcquiredAt time.Time `bson:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}
