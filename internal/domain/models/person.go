// internal/domain/models/person.go
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Person is the local identity record for anyone attached to an event.
//
// NOTE:
//   - Email is stored normalized (trimmed, lowercase) and is unique.
//   - LegacyID is the identifier of the mirrored record in the legacy system.
//     It is nil until the first sync encounter assigns one.
//   - UpdatedAt/UpdatedBy form the provenance pair used to decide merge direction.
type Person struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LegacyID   *int64             `bson:"legacy_id,omitempty" json:"legacy_id,omitempty"`
	Email      string             `bson:"email" json:"email"`
	Firstname  string             `bson:"firstname" json:"firstname"`
	Lastname   string             `bson:"lastname" json:"lastname"`
	Salutation string             `bson:"salutation,omitempty" json:"salutation,omitempty"`

	Affiliation    string `bson:"affiliation,omitempty" json:"affiliation,omitempty"`
	Department     string `bson:"department,omitempty" json:"department,omitempty"`
	Title          string `bson:"title,omitempty" json:"title,omitempty"`
	AcademicStatus string `bson:"academic_status,omitempty" json:"academic_status,omitempty"`
	PhdYear        string `bson:"phd_year,omitempty" json:"phd_year,omitempty"`
	URL            string `bson:"url,omitempty" json:"url,omitempty"`
	Phone          string `bson:"phone,omitempty" json:"phone,omitempty"`
	Gender         string `bson:"gender,omitempty" json:"gender,omitempty"`

	Address1   string `bson:"address1,omitempty" json:"address1,omitempty"`
	Address2   string `bson:"address2,omitempty" json:"address2,omitempty"`
	Address3   string `bson:"address3,omitempty" json:"address3,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	Region     string `bson:"region,omitempty" json:"region,omitempty"`
	PostalCode string `bson:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`

	Biography        string `bson:"biography,omitempty" json:"biography,omitempty"`
	ResearchAreas    string `bson:"research_areas,omitempty" json:"research_areas,omitempty"`
	EmergencyContact string `bson:"emergency_contact,omitempty" json:"emergency_contact,omitempty"`
	EmergencyPhone   string `bson:"emergency_phone,omitempty" json:"emergency_phone,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	UpdatedBy string    `bson:"updated_by" json:"updated_by"`
}

// Name returns the display name used for attribution ("Firstname Lastname").
func (p *Person) Name() string {
	return strings.TrimSpace(p.Firstname + " " + p.Lastname)
}

// HasLegacyID reports whether the person is linked to a legacy record.
func (p *Person) HasLegacyID() bool {
	return p.LegacyID != nil && *p.LegacyID > 0
}

// Kind names the entity class for error reporting.
func (p *Person) Kind() string { return "Person" }

// Validate checks the fields a Person must carry to be saved.
func (p *Person) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Firstname) == "" {
		errs = append(errs, errors.New("firstname can't be blank"))
	}
	if strings.TrimSpace(p.Lastname) == "" {
		errs = append(errs, errors.New("lastname can't be blank"))
	}
	if strings.TrimSpace(p.Email) == "" {
		errs = append(errs, errors.New("email can't be blank"))
	} else if !EmailValid(p.Email) {
		errs = append(errs, fmt.Errorf("email %q is invalid", p.Email))
	}
	if p.LegacyID != nil && *p.LegacyID <= 0 {
		errs = append(errs, errors.New("legacy_id must be a positive integer"))
	}
	return errors.Join(errs...)
}

// EmailValid reports whether s is a bare address. Display-name forms
// ("Ann <ann@x.com>") and embedded whitespace are rejected.
func EmailValid(s string) bool {
	if strings.ContainsAny(s, " \t\r\n<>,;\"") {
		return false
	}
	return validate.SimpleEmailValid(s)
}

// LegacyIDPtr is a small helper for building Person literals.
func LegacyIDPtr(id int64) *int64 { return &id }
