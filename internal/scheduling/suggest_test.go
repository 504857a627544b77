package scheduling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestAlternativeTimes(t *testing.T) {
	tests := []struct {
		clock string
		want  []string
	}{
		{"08:00", []string{"09:00", "10:00"}},
		{"12:15", []string{"10:15", "11:15", "13:15"}},
		{"09:30", []string{"08:30", "10:30", "11:30"}},
		{"19:45", []string{"17:45", "18:45"}},
		{"06:00", []string{"08:00"}},
		{"bad", nil},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestAlternativeTimes(tt.clock))
		})
	}
}

func TestSuggestAlternativeTimesStayInsideOperatingHours(t *testing.T) {
	for h := 0; h < 24; h++ {
		for _, m := range []int{0, 15, 30, 45, 59} {
			clock := FormatClock(h, m)
			got := SuggestAlternativeTimes(clock)
			assert.LessOrEqual(t, len(got), 3, clock)
			for _, s := range got {
				hour, minute, err := ParseClock(s)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, hour, OpeningHour, clock)
				assert.Less(t, hour, ClosingHour, clock)
				assert.Equal(t, m, minute, clock)
				assert.NotEqual(t, h, hour, clock)
			}
		}
	}
}

func TestSuggestAlternativeRoomsMatchesExactStartTimeOnly(t *testing.T) {
	repo := newMemRepo()
	th := repo.addTherapist("Ana", "Silva", AccountApproved)
	p := repo.addPatient("Joao", "Costa")
	for _, name := range []string{"Room 1", "Room 2", "Room 3", "Room 4"} {
		repo.addRoom(name, true)
	}
	repo.addRoom("Closed", false)

	// overlaps 09:30 but starts at a different time, so still offered
	repo.addBooking(th, p, testDay, "09:15", 60, "Room 2", StatusPending)
	repo.addBooking(th, p, testDay, "09:30", 30, "Room 3", StatusPending)
	repo.addBooking(th, p, testDay, "09:30", 30, "Room 4", StatusCancelled)

	c := NewChecker(repo, nil)
	rooms, err := c.SuggestAlternativeRooms(context.Background(), testDay, "09:30", "Room 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Room 2", "Room 4"}, rooms)
}
