package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// TherapistBuffer pads each side of a request when testing it against the therapist's own day.
	TherapistBuffer = 15 * time.Minute

	// DailyCap is the maximum number of occupying bookings a therapist may hold on one day.
	DailyCap = 12
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Durations lists the accepted booking lengths in minutes.
var Durations = []int{30, 45, 60}

// Interval is a half-open [Start, End) span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval anchors an HH:MM clock time on the given calendar day.
func NewInterval(date time.Time, clock string, minutes int) (Interval, error) {
	h, m, err := ParseClock(clock)
	if err != nil {
		return Interval{}, err
	}
	day := Day(date)
	start := day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}, nil
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Expand widens the interval by d on both sides.
func (i Interval) Expand(d time.Duration) Interval {
	return Interval{Start: i.Start.Add(-d), End: i.End.Add(d)}
}

// OverlapsBuffered expands i by buffer before testing it against o.
func (i Interval) OverlapsBuffered(o Interval, buffer time.Duration) bool {
	return i.Expand(buffer).Overlaps(o)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format("15:04"), i.End.Format("15:04"))
}

// ParseClock validates a 24h HH:MM string.
func ParseClock(clock string) (hour, minute int, err error) {
	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return 0, 0, invalid("invalid_time", "time must be formatted as HH:MM (24h)")
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// FormatClock renders hour and minute as HH:MM.
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// ValidDuration reports whether minutes is one of the accepted booking lengths.
func ValidDuration(minutes int) bool {
	for _, d := range Durations {
		if d == minutes {
			return true
		}
	}
	return false
}
