// internal/domain/models/lecture.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lecture is a talk or other activity a person gives at an event.
type Lecture struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID  primitive.ObjectID `bson:"event_id" json:"event_id"`
	PersonID primitive.ObjectID `bson:"person_id" json:"person_id"`
	LegacyID *int64             `bson:"legacy_id,omitempty" json:"legacy_id,omitempty"`
	Title    string             `bson:"title" json:"title"`

	StartTime *time.Time `bson:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime   *time.Time `bson:"end_time,omitempty" json:"end_time,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
