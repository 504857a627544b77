package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/physio-scheduling/internal/observability/metrics"
)

var tracer = otel.Tracer("physio.internal.scheduling")

// ConflictReason names the first check a rejected slot failed.
type ConflictReason string

const (
	ReasonDailyLimit        ConflictReason = "therapist_daily_limit"
	ReasonRoomConflict      ConflictReason = "room_conflict"
	ReasonTherapistConflict ConflictReason = "therapist_conflict"
)

// AvailabilityRequest is one (therapist, date, time, duration, room) slot to check.
type AvailabilityRequest struct {
	TherapistID uuid.UUID
	Date        time.Time
	Time        string
	Duration    int
	Room        string
	// ExcludeBookingID ignores one booking in the overlap checks, used when
	// re-checking a slot it occupies. It leaves the daily count only while pending.
	ExcludeBookingID *uuid.UUID
}

// ConflictDetail exposes the public fields of the booking that blocked a request.
type ConflictDetail struct {
	Therapist string `json:"therapist,omitempty"`
	Patient   string `json:"patient,omitempty"`
	Time      string `json:"time"`
	Room      string `json:"room,omitempty"`
}

// AvailabilityResult is the checker's verdict. Alternatives are set only for
// room and therapist conflicts.
type AvailabilityResult struct {
	IsAvailable            bool            `json:"isAvailable"`
	Reason                 ConflictReason  `json:"reason,omitempty"`
	Message                string          `json:"message,omitempty"`
	ConflictingAppointment *ConflictDetail `json:"conflictingAppointment,omitempty"`
	AlternativeTimes       []string        `json:"alternativeTimes,omitempty"`
	AlternativeRooms       []string        `json:"alternativeRooms,omitempty"`
}

// AvailabilityStore is the read side the checker needs.
type AvailabilityStore interface {
	GetRoom(ctx context.Context, name string) (*Room, error)
	ListActiveRooms(ctx context.Context) ([]Room, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	CountActiveBookings(ctx context.Context, therapistID uuid.UUID, date time.Time) (int, error)
	FindBookingsByRoomAndDate(ctx context.Context, room string, date time.Time) ([]Booking, error)
	FindBookingsByTherapistAndDate(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]Booking, error)
	RoomHasBookingAt(ctx context.Context, room string, date time.Time, clock string) (bool, error)
}

// Checker decides whether a slot may be booked. It only reads, so it is safe
// for concurrent use.
type Checker struct {
	store   AvailabilityStore
	metrics *metrics.SchedulingMetrics
}

// NewChecker returns a checker over store. A nil m disables metrics.
func NewChecker(store AvailabilityStore, m *metrics.SchedulingMetrics) *Checker {
	return &Checker{store: store, metrics: m}
}

// ValidateSlot checks the request shape before any storage read.
func ValidateSlot(date time.Time, clock string, duration int, room string) error {
	if date.IsZero() || clock == "" || duration == 0 || room == "" {
		return invalid("missing_fields", "date, time, duration and room are required")
	}
	if _, _, err := ParseClock(clock); err != nil {
		return err
	}
	if !ValidDuration(duration) {
		return invalid("invalid_duration", "duration must be one of 30, 45 or 60 minutes")
	}
	return nil
}

// Check runs the daily-cap, room and therapist checks in that order and stops
// at the first failure. Room and therapist conflicts carry suggestions.
func (c *Checker) Check(ctx context.Context, req AvailabilityRequest) (AvailabilityResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.check_availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduling.therapist_id", req.TherapistID.String()),
		attribute.String("scheduling.room", req.Room),
		attribute.String("scheduling.date", Day(req.Date).Format(time.DateOnly)),
		attribute.String("scheduling.time", req.Time),
	)

	start := time.Now()
	res, err := c.check(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AvailabilityResult{}, err
	}

	outcome := "available"
	if !res.IsAvailable {
		outcome = string(res.Reason)
	}
	span.SetAttributes(attribute.String("scheduling.outcome", outcome))
	c.metrics.ObserveAvailability(outcome, time.Since(start))
	return res, nil
}

func (c *Checker) check(ctx context.Context, req AvailabilityRequest) (AvailabilityResult, error) {
	if err := ValidateSlot(req.Date, req.Time, req.Duration, req.Room); err != nil {
		return AvailabilityResult{}, err
	}
	if req.TherapistID == uuid.Nil {
		return AvailabilityResult{}, invalid("missing_fields", "therapist is required")
	}

	day := Day(req.Date)
	requested, err := NewInterval(day, req.Time, req.Duration)
	if err != nil {
		return AvailabilityResult{}, err
	}

	room, err := c.store.GetRoom(ctx, req.Room)
	if err != nil {
		return AvailabilityResult{}, wrapStore("load room", err)
	}
	if !room.IsActive {
		return AvailabilityResult{}, ErrRoomInactive
	}

	// 1. daily cap
	count, err := c.store.CountActiveBookings(ctx, req.TherapistID, day)
	if err != nil {
		return AvailabilityResult{}, wrapStore("count therapist bookings", err)
	}
	if req.ExcludeBookingID != nil && count > 0 {
		excluded, err := c.store.GetBookingByID(ctx, *req.ExcludeBookingID)
		switch {
		case errors.Is(err, ErrBookingNotFound):
		case err != nil:
			return AvailabilityResult{}, wrapStore("load excluded booking", err)
		// a no-show keeps its place in the day's count even while its slot is
		// reused, so only a pending booking being edited is subtracted
		case excluded.Status == StatusPending && excluded.TherapistID == req.TherapistID && Day(excluded.Date).Equal(day):
			count--
		}
	}
	if count >= DailyCap {
		return AvailabilityResult{
			IsAvailable: false,
			Reason:      ReasonDailyLimit,
			Message:     "Therapist has reached daily limit of 12 appointments",
		}, nil
	}

	// 2. room overlap, unbuffered
	roomBookings, err := c.store.FindBookingsByRoomAndDate(ctx, req.Room, day)
	if err != nil {
		return AvailabilityResult{}, wrapStore("load room bookings", err)
	}
	if hit := firstConflict(roomBookings, req.ExcludeBookingID, func(b Booking) bool {
		return requested.Overlaps(b.Interval())
	}); hit != nil {
		return c.rejected(ctx, req, day, ReasonRoomConflict, "Room is already booked at this time", hit)
	}

	// 3. therapist overlap, request buffered on both sides
	therapistBookings, err := c.store.FindBookingsByTherapistAndDate(ctx, req.TherapistID, day)
	if err != nil {
		return AvailabilityResult{}, wrapStore("load therapist bookings", err)
	}
	if hit := firstConflict(therapistBookings, req.ExcludeBookingID, func(b Booking) bool {
		return requested.OverlapsBuffered(b.Interval(), TherapistBuffer)
	}); hit != nil {
		return c.rejected(ctx, req, day, ReasonTherapistConflict, "Therapist has a conflicting appointment", hit)
	}

	return AvailabilityResult{IsAvailable: true, Message: "Time slot is available"}, nil
}

func (c *Checker) rejected(ctx context.Context, req AvailabilityRequest, day time.Time, reason ConflictReason, msg string, hit *Booking) (AvailabilityResult, error) {
	rooms, err := c.SuggestAlternativeRooms(ctx, day, req.Time, req.Room)
	if err != nil {
		return AvailabilityResult{}, err
	}
	return AvailabilityResult{
		IsAvailable: false,
		Reason:      reason,
		Message:     msg,
		ConflictingAppointment: &ConflictDetail{
			Therapist: hit.TherapistName,
			Patient:   hit.PatientName,
			Time:      hit.Time,
			Room:      hit.Room,
		},
		AlternativeTimes: SuggestAlternativeTimes(req.Time),
		AlternativeRooms: rooms,
	}, nil
}

func firstConflict(bookings []Booking, exclude *uuid.UUID, overlaps func(Booking) bool) *Booking {
	for i := range bookings {
		b := bookings[i]
		if !b.Status.Occupying() {
			continue
		}
		if exclude != nil && b.ID == *exclude {
			continue
		}
		if overlaps(b) {
			return &b
		}
	}
	return nil
}
