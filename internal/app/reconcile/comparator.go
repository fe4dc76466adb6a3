package reconcile

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
)

// loginBonus is added to the score of a person with a login account.
const loginBonus = 200

// RecordCounts is the dependent data attached to one person.
type RecordCounts struct {
	Memberships int64
	Lectures    int64
	HasLogin    bool
}

// SelfEdited reports whether p was last edited by the person themselves.
// Whitespace differences between the attribution and the name are ignored.
func SelfEdited(p *models.Person) bool {
	name := normalize.Name(p.Name())
	return name != "" && normalize.Name(p.UpdatedBy) == name
}

// Score measures how much data hangs off p.
func Score(p *models.Person, c RecordCounts) int64 {
	s := c.Memberships + c.Lectures
	if c.HasLogin {
		s += loginBonus
	}
	for _, f := range personFields {
		s += int64(utf8.RuneCountInString(*f.get(p)))
	}
	s += int64(utf8.RuneCountInString(p.Email))
	s += int64(utf8.RuneCountInString(p.UpdatedBy))
	return s
}

// BetterRecord picks which of two people describing the same human to keep.
// A self-edited record beats one that is not; otherwise the higher Score
// wins and ties go to p2.
func BetterRecord(p1, p2 *models.Person, c1, c2 RecordCounts) *models.Person {
	s1, s2 := SelfEdited(p1), SelfEdited(p2)
	switch {
	case s1 && !s2:
		return p1
	case s2 && !s1:
		return p2
	}
	if Score(p1, c1) > Score(p2, c2) {
		return p1
	}
	return p2
}

func (e *Engine) recordCounts(ctx context.Context, p *models.Person) (RecordCounts, error) {
	var c RecordCounts
	var err error
	if c.Memberships, err = e.memberships.CountByPerson(ctx, p.ID); err != nil {
		return c, fmt.Errorf("count memberships: %w", err)
	}
	if c.Lectures, err = e.lectures.CountByPerson(ctx, p.ID); err != nil {
		return c, fmt.Errorf("count lectures: %w", err)
	}
	login, err := e.findLogin(ctx, p)
	if err != nil {
		return c, err
	}
	c.HasLogin = login != nil
	return c, nil
}

// betterRecord is BetterRecord with counts loaded from the stores.
func (e *Engine) betterRecord(ctx context.Context, p1, p2 *models.Person) (*models.Person, error) {
	c1, err := e.recordCounts(ctx, p1)
	if err != nil {
		return nil, err
	}
	c2, err := e.recordCounts(ctx, p2)
	if err != nil {
		return nil, err
	}
	return BetterRecord(p1, p2, c1, c2), nil
}
