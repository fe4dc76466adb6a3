package reconcile

import (
	"context"
	"fmt"

	"github.com/dalemusser/workshophub/internal/domain/models"
)

// countedAttendances are the statuses that hold a place at an event.
var countedAttendances = []string{
	models.AttendanceConfirmed,
	models.AttendanceInvited,
	models.AttendanceUndecided,
}

// CapacityLimit is the number of places an event offers. Online events
// are capped by MaxVirtual, hybrid events by the sum of both caps, and
// everything else by MaxParticipants. An unset cap is zero, so any
// counted attendance overbooks it.
func CapacityLimit(ev *models.Event) int {
	switch {
	case ev.IsOnline():
		return ev.MaxVirtual
	case ev.IsHybrid():
		return ev.MaxParticipants + ev.MaxVirtual
	default:
		return ev.MaxParticipants
	}
}

// Capacity is the place count of one event.
type Capacity struct {
	EventCode string
	Limit     int
	Counts    map[string]int // per counted attendance status
}

// Total is the number of places taken.
func (c Capacity) Total() int {
	n := 0
	for _, a := range countedAttendances {
		n += c.Counts[a]
	}
	return n
}

// Overbooked reports whether more places are taken than offered.
func (c Capacity) Overbooked() bool {
	return c.Total() > c.Limit
}

func (c Capacity) String() string {
	return fmt.Sprintf("%s is overbooked: %d places taken of %d (Confirmed: %d, Invited: %d, Undecided: %d)",
		c.EventCode, c.Total(), c.Limit,
		c.Counts[models.AttendanceConfirmed],
		c.Counts[models.AttendanceInvited],
		c.Counts[models.AttendanceUndecided])
}

func (e *Engine) capacity(ctx context.Context, ev *models.Event) (Capacity, error) {
	counts, err := e.memberships.CountByAttendance(ctx, ev.ID)
	if err != nil {
		return Capacity{}, fmt.Errorf("count attendance: %w", err)
	}
	c := Capacity{EventCode: ev.Code, Limit: CapacityLimit(ev), Counts: make(map[string]int, len(countedAttendances))}
	for _, a := range countedAttendances {
		c.Counts[a] = counts[a]
	}
	return c, nil
}
