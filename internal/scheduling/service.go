package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentUpdated   = "appointment_updated"
	EventAppointmentCancelled = "appointment_cancelled"
	EventAppointmentDeleted   = "appointment_deleted"
	EventWaitingListPromoted  = "waiting_list_promoted"
	EventUserApproval         = "user_approval"
	EventUserRejection        = "user_rejection"
	EventTherapistStatus      = "therapist_status_changed"
	EventRoomCreated          = "room_created"
)

// Notifier is told about bookings made on a patient's behalf. Implementations
// must not block for long and must swallow their own failures.
type Notifier interface {
	BookingPromoted(ctx context.Context, b Booking, p Patient)
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	checker  *Checker
	notifier Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("scheduling")
	s.checker = NewChecker(repo, s.metrics)
	return s
}

// Checker exposes the availability checker used by the service.
func (s *Service) Checker() *Checker {
	return s.checker
}

type AvailabilityQuery struct {
	TherapistID      *uuid.UUID // honoured for admins only
	Date             time.Time
	Time             string
	Duration         int
	Room             string
	ExcludeBookingID *uuid.UUID
}

// CheckAvailability runs the checker for the caller. Therapists always check
// their own schedule; admins may name any therapist.
func (s *Service) CheckAvailability(ctx context.Context, actor Actor, q AvailabilityQuery) (AvailabilityResult, error) {
	if !actor.IsTherapist() && !actor.IsAdmin() {
		return AvailabilityResult{}, ErrAccessDenied
	}
	therapistID := actor.UserID
	if actor.IsAdmin() && q.TherapistID != nil {
		therapistID = *q.TherapistID
	}
	return s.checker.Check(ctx, AvailabilityRequest{
		TherapistID:      therapistID,
		Date:             q.Date,
		Time:             q.Time,
		Duration:         q.Duration,
		Room:             q.Room,
		ExcludeBookingID: q.ExcludeBookingID,
	})
}

type CreateBookingInput struct {
	PatientID           uuid.UUID
	Date                time.Time
	Time                string
	Duration            int
	AppointmentType     AppointmentType
	Room                string
	MedicalNotes        *string
	SpecialRequirements *string
}

// CreateBooking books a slot for the calling therapist. The availability check
// and the insert run under the therapist-day and room-day locks.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, in CreateBookingInput) (*Booking, error) {
	b, err := s.createBooking(ctx, actor, in)
	s.metrics.ObserveBooking("create", err)
	return b, err
}

func (s *Service) createBooking(ctx context.Context, actor Actor, in CreateBookingInput) (*Booking, error) {
	if !actor.IsTherapist() {
		return nil, ErrNotTherapist
	}
	if in.PatientID == uuid.Nil || in.AppointmentType == "" {
		return nil, invalid("missing_fields", "missing required fields")
	}
	if err := ValidateSlot(in.Date, in.Time, in.Duration, in.Room); err != nil {
		return nil, err
	}
	if !in.AppointmentType.Valid() {
		return nil, invalid("invalid_appointment_type", "unknown appointment type")
	}

	therapist, err := s.approvedTherapist(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		return nil, wrapStore("load patient", err)
	}

	now := s.now()
	candidate := Booking{
		ID:                  uuid.New(),
		TherapistID:         therapist.ID,
		TherapistName:       therapist.FullName(),
		PatientID:           patient.ID,
		PatientName:         patient.FullName(),
		PatientPhone:        patient.PhoneNumber,
		Date:                Day(in.Date),
		Time:                in.Time,
		Duration:            in.Duration,
		AppointmentType:     in.AppointmentType,
		Room:                in.Room,
		Status:              StatusPending,
		MedicalNotes:        in.MedicalNotes,
		SpecialRequirements: in.SpecialRequirements,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	var created *Booking
	err = s.withSlotLock(ctx, slotKeys(candidate.TherapistID, candidate.Room, candidate.Date), func(lockCtx context.Context) error {
		res, err := s.checker.Check(lockCtx, AvailabilityRequest{
			TherapistID: candidate.TherapistID,
			Date:        candidate.Date,
			Time:        candidate.Time,
			Duration:    candidate.Duration,
			Room:        candidate.Room,
		})
		if err != nil {
			return err
		}
		if !res.IsAvailable {
			return &ConflictError{Result: res}
		}
		created, err = s.repo.CreateBooking(lockCtx, candidate)
		if err != nil {
			return wrapStore("create booking", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordBooked(ctx, *created, actor.UserID, EventAppointmentCreated, nil)
	return created, nil
}

// GetBooking returns a booking visible to the caller.
func (s *Service) GetBooking(ctx context.Context, actor Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, wrapStore("load booking", err)
	}
	if !actor.canAccess(b.TherapistID) {
		return nil, ErrAccessDenied
	}
	return b, nil
}

// ListBookings returns the caller's bookings; admins may list everyone's or
// narrow to one therapist.
func (s *Service) ListBookings(ctx context.Context, actor Actor, filter BookingFilter) ([]Booking, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsTherapist():
		own := actor.UserID
		filter.TherapistID = &own
	default:
		return nil, ErrAccessDenied
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, invalid("invalid_range", "endDate must not be before startDate")
	}
	out, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, wrapStore("list bookings", err)
	}
	return out, nil
}

type UpdateBookingInput struct {
	Status              *BookingStatus
	MedicalNotes        *string
	SpecialRequirements *string
}

// UpdateBooking applies a status change and/or note edits. A move from pending
// to cancelled or no-show frees the slot and runs the promotion engine, whose
// failure never fails the update.
func (s *Service) UpdateBooking(ctx context.Context, actor Actor, id uuid.UUID, in UpdateBookingInput) (*Booking, error) {
	b, err := s.updateBooking(ctx, actor, id, in)
	s.metrics.ObserveBooking("update", err)
	return b, err
}

func (s *Service) updateBooking(ctx context.Context, actor Actor, id uuid.UUID, in UpdateBookingInput) (*Booking, error) {
	current, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, wrapStore("load booking", err)
	}
	if !actor.canAccess(current.TherapistID) {
		return nil, ErrAccessDenied
	}
	if current.Status == StatusCompleted {
		return nil, ErrBookingCompleted
	}

	next := *current
	if in.Status != nil {
		to := *in.Status
		if !to.Valid() {
			return nil, invalid("invalid_status", "unknown appointment status")
		}
		if err := checkTransition(current.Status, to); err != nil {
			return nil, err
		}
		next.Status = to
	}
	if in.MedicalNotes != nil {
		next.MedicalNotes = in.MedicalNotes
	}
	if in.SpecialRequirements != nil {
		next.SpecialRequirements = in.SpecialRequirements
	}
	next.UpdatedAt = s.now()

	updated, err := s.repo.UpdateBooking(ctx, next, current.Status)
	if err != nil {
		return nil, wrapStore("update booking", err)
	}

	event := EventAppointmentUpdated
	if vacates(current.Status, updated.Status) {
		event = EventAppointmentCancelled
	}
	s.logEvent(ctx, event, &actor.UserID, &updated.ID, map[string]any{
		"from": current.Status,
		"to":   updated.Status,
	})

	if vacates(current.Status, updated.Status) {
		s.promoteVacancy(ctx, actor, *updated)
	}
	return updated, nil
}

// DeleteBooking hard-deletes a booking that is not completed and offers its
// slot to the waiting list.
func (s *Service) DeleteBooking(ctx context.Context, actor Actor, id uuid.UUID) error {
	err := s.deleteBooking(ctx, actor, id)
	s.metrics.ObserveBooking("delete", err)
	return err
}

func (s *Service) deleteBooking(ctx context.Context, actor Actor, id uuid.UUID) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return wrapStore("load booking", err)
	}
	if !actor.canAccess(b.TherapistID) {
		return ErrAccessDenied
	}
	if b.Status == StatusCompleted {
		return ErrBookingCompleted
	}
	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return wrapStore("delete booking", err)
	}

	s.logEvent(ctx, EventAppointmentDeleted, &actor.UserID, &b.ID, map[string]any{
		"status": b.Status,
		"date":   b.Date.Format(time.DateOnly),
		"time":   b.Time,
		"room":   b.Room,
	})

	// an already-filled slot fails the re-check, so a second run is harmless
	s.promoteVacancy(ctx, actor, *b)
	return nil
}

// checkTransition enforces pending -> {completed, cancelled, no-show}; every
// other status is terminal. Re-asserting the current status is a no-op.
func checkTransition(from, to BookingStatus) error {
	if from == to {
		return nil
	}
	switch from {
	case StatusPending:
		return nil
	case StatusCompleted:
		return ErrBookingCompleted
	default:
		return ErrInvalidStatusTransition
	}
}

func vacates(from, to BookingStatus) bool {
	return from == StatusPending && (to == StatusCancelled || to == StatusNoShow)
}

func (s *Service) approvedTherapist(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	t, err := s.repo.GetTherapistByID(ctx, id)
	if err != nil {
		return nil, wrapStore("load therapist", err)
	}
	if !t.Status.CanBook() {
		return nil, ErrAccountNotApproved
	}
	return t, nil
}

// recordBooked runs the collaborator side effects of a new booking. The
// booking is already committed, so failures are logged and not returned.
func (s *Service) recordBooked(ctx context.Context, b Booking, performedBy uuid.UUID, event string, extra map[string]any) {
	err := s.repo.AppendPatientHistory(ctx, b.PatientID, HistoryEntry{
		BookingID: b.ID,
		Date:      b.Date,
		Therapist: b.TherapistName,
		Type:      b.AppointmentType,
		Status:    b.Status,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID.String()).Msg("append patient history failed")
	}
	if err := s.repo.IncrementTherapistAppointments(ctx, b.TherapistID); err != nil {
		s.logger.Error().Err(err).Str("therapist_id", b.TherapistID.String()).Msg("increment therapist appointments failed")
	}

	payload := map[string]any{
		"therapist_id": b.TherapistID.String(),
		"patient_id":   b.PatientID.String(),
		"date":         b.Date.Format(time.DateOnly),
		"time":         b.Time,
		"room":         b.Room,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.logEvent(ctx, event, &performedBy, &b.ID, payload)
}

func (s *Service) logEvent(ctx context.Context, eventType string, performedBy, bookingID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:   eventType,
		PerformedBy: performedBy,
		BookingID:   bookingID,
		Payload:     data,
		CreatedAt:   s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to insert event log")
	}
}

func slotKeys(therapistID uuid.UUID, room string, day time.Time) []string {
	d := Day(day).Format(time.DateOnly)
	return []string{
		"therapist:" + therapistID.String() + ":" + d,
		"room:" + room + ":" + d,
	}
}

func (s *Service) withSlotLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, keys, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.ObserveLockContention()
		return ErrSlotBeingBooked
	}
	return err
}
