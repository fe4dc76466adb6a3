package reconcile

import (
	"testing"

	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/stretchr/testify/assert"
)

func TestCapacityLimit(t *testing.T) {
	tests := []struct {
		format string
		want   int
	}{
		{models.FormatPhysical, 40},
		{"", 40},
		{models.FormatOnline, 15},
		{models.FormatHybrid, 55},
	}
	for _, tt := range tests {
		ev := &models.Event{EventFormat: tt.format, MaxParticipants: 40, MaxVirtual: 15}
		assert.Equal(t, tt.want, CapacityLimit(ev), "format %q", tt.format)
	}
}

func TestCapacity_Overbooked(t *testing.T) {
	c := Capacity{Limit: 3, Counts: map[string]int{
		models.AttendanceConfirmed: 2,
		models.AttendanceInvited:   1,
		models.AttendanceUndecided: 0,
	}}
	assert.False(t, c.Overbooked(), "at capacity is not over")

	c.Counts[models.AttendanceUndecided] = 1
	assert.True(t, c.Overbooked())

	c.Limit = 0
	assert.True(t, c.Overbooked(), "unset cap")

	c.Counts = map[string]int{models.AttendanceDeclined: 4}
	assert.False(t, c.Overbooked(), "nothing counted")
}

func TestCapacityLimit_UnsetCaps(t *testing.T) {
	online := &models.Event{EventFormat: models.FormatOnline, MaxParticipants: 40}
	assert.Equal(t, 0, CapacityLimit(online), "online ignores the physical cap")

	hybrid := &models.Event{EventFormat: models.FormatHybrid, MaxParticipants: 2}
	assert.Equal(t, 2, CapacityLimit(hybrid))
}
