package legacy

import (
	"errors"
	"strings"
)

// ErrMalformedEntry is returned for remote rows that cannot identify a person.
var ErrMalformedEntry = errors.New("legacy member entry has neither legacy_id nor email")

// MemberEntry is one row of a remote member list: the person and their
// membership in the event, as reported by the legacy system.
type MemberEntry struct {
	EventCode  string
	Person     Snapshot
	Membership Snapshot
}

// ParseMemberEntry builds a MemberEntry from a raw row of the form
//
//	{"Workshop": "24w5001", "Person": {...}, "Membership": {...}}
//
// A blank or missing nested record becomes an empty Snapshot. Rows whose
// person carries neither legacy_id nor email are rejected here rather
// than deep in the merge logic.
func ParseMemberEntry(raw map[string]any) (MemberEntry, error) {
	e := MemberEntry{
		Person:     ParseSnapshot(nested(raw, "Person")),
		Membership: ParseSnapshot(nested(raw, "Membership")),
	}
	if code, ok := raw["Workshop"].(string); ok {
		e.EventCode = strings.TrimSpace(code)
	}
	if _, ok := e.LegacyID(); !ok && e.Email() == "" {
		return e, ErrMalformedEntry
	}
	return e, nil
}

func nested(raw map[string]any, key string) map[string]any {
	m, ok := raw[key].(map[string]any)
	if !ok || m == nil {
		return map[string]any{}
	}
	return m
}

// LegacyID returns the person's legacy identifier.
func (e MemberEntry) LegacyID() (int64, bool) {
	id, ok := e.Person.Int("legacy_id")
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// Email returns the person's normalized email, or "" when absent.
func (e MemberEntry) Email() string {
	v, _ := e.Person.String("email")
	return strings.ToLower(v)
}

// RSVPResult is the parsed response of the legacy RSVP-check endpoint.
type RSVPResult struct {
	Denied    string
	EventCode string
	LegacyID  int64
}

// ParseRSVPResult reads the RSVP-check response. Missing keys stay zero;
// the caller decides which absences are fatal.
func ParseRSVPResult(raw map[string]any) RSVPResult {
	s := ParseSnapshot(raw)
	var r RSVPResult
	r.Denied, _ = s.String("denied")
	r.EventCode, _ = s.String("event_code")
	r.LegacyID, _ = s.Int("legacy_id")
	return r
}
