// internal/domain/models/login.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Login is the sign-in account linked to a Person.
//
// UnconfirmedEmail holds an email change that is waiting for the owner to
// confirm it. Administrative re-points clear it and set Email directly.
type Login struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PersonID         primitive.ObjectID `bson:"person_id" json:"person_id"`
	Email            string             `bson:"email" json:"email"`
	UnconfirmedEmail string             `bson:"unconfirmed_email,omitempty" json:"unconfirmed_email,omitempty"`
	ConfirmedAt      *time.Time         `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}
