package scheduling

import (
	"context"
	"time"
)

const (
	OpeningHour    = 8
	ClosingHour    = 20
	maxSuggestions = 3
)

var suggestionOffsets = []int{-2, -1, 1, 2}

// SuggestAlternativeTimes proposes the same minute one and two hours either side
// of clock, in offset order, keeping only hours inside the operating window.
// The suggestions are hints and are not checked for availability.
func SuggestAlternativeTimes(clock string) []string {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return nil
	}
	out := make([]string, 0, maxSuggestions)
	for _, off := range suggestionOffsets {
		h := hour + off
		if h < OpeningHour || h >= ClosingHour {
			continue
		}
		out = append(out, FormatClock(h, minute))
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// SuggestAlternativeRooms returns active rooms other than currentRoom with no
// occupying booking starting at exactly clock on that day. Only the start time
// string is compared, not the full interval.
func (c *Checker) SuggestAlternativeRooms(ctx context.Context, date time.Time, clock, currentRoom string) ([]string, error) {
	rooms, err := c.store.ListActiveRooms(ctx)
	if err != nil {
		return nil, wrapStore("list active rooms", err)
	}
	day := Day(date)
	var out []string
	for _, r := range rooms {
		if r.Name == currentRoom || !r.IsActive {
			continue
		}
		taken, err := c.store.RoomHasBookingAt(ctx, r.Name, day, clock)
		if err != nil {
			return nil, wrapStore("check alternative room", err)
		}
		if !taken {
			out = append(out, r.Name)
		}
	}
	return out, nil
}
