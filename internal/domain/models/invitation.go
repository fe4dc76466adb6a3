// internal/domain/models/invitation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvitationCodeLength is the fixed length of local invitation codes.
const InvitationCodeLength = 50

// Invitation is a single-use RSVP token for one Membership.
// It is deleted once the RSVP outcome has been recorded.
type Invitation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code         string             `bson:"code" json:"code"`
	MembershipID primitive.ObjectID `bson:"membership_id" json:"membership_id"`
	Expires      time.Time          `bson:"expires" json:"expires"`
	InvitedBy    string             `bson:"invited_by" json:"invited_by"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// IsExpired reports whether the invitation is past its expiry at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !i.Expires.IsZero() && i.Expires.Before(now)
}
