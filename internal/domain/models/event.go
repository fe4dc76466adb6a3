// internal/domain/models/event.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event formats.
const (
	FormatPhysical = "Physical"
	FormatOnline   = "Online"
	FormatHybrid   = "Hybrid"
)

// Event is a workshop or conference that people hold memberships in.
//
// SyncTime is the throttle marker: the last time a full membership sync
// completed for this event. It is advisory; the sync lease is the lock.
type Event struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code     string             `bson:"code" json:"code"`
	Name     string             `bson:"name" json:"name"`
	TimeZone string             `bson:"time_zone" json:"time_zone"`

	StartDate time.Time `bson:"start_date" json:"start_date"`
	EndDate   time.Time `bson:"end_date" json:"end_date"`

	EventFormat     string `bson:"event_format" json:"event_format"`
	MaxParticipants int    `bson:"max_participants" json:"max_participants"`
	MaxVirtual      int    `bson:"max_virtual" json:"max_virtual"`

	SyncTime *time.Time `bson:"sync_time,omitempty" json:"sync_time,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Location returns the event's time zone, falling back to UTC when unset or unknown.
func (e *Event) Location() *time.Location {
	if e == nil || e.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsOnline reports whether the event is held online only.
func (e *Event) IsOnline() bool { return e.EventFormat == FormatOnline }

// IsHybrid reports whether the event has both in-person and virtual attendance.
func (e *Event) IsHybrid() bool { return e.EventFormat == FormatHybrid }

// Kind names the entity class for error reporting.
func (e *Event) Kind() string { return "Event" }

// Validate is a no-op; events are owned by the scheduling side of the app.
func (e *Event) Validate() error { return nil }
