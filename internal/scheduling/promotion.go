package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// promoteVacancy offers a freed slot to the waiting list. It never fails the
// caller: the vacating change is already committed.
func (s *Service) promoteVacancy(ctx context.Context, actor Actor, vacated Booking) {
	promoted, err := s.fillVacancy(ctx, actor, vacated)
	log := s.logger.Logger.With().
		Str("vacated_booking_id", vacated.ID.String()).
		Str("therapist_id", vacated.TherapistID.String()).
		Logger()

	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict), errors.Is(err, ErrSlotBeingBooked):
		s.metrics.ObservePromotion("blocked")
		log.Warn().Err(err).Msg("waiting list promotion blocked")
	case err != nil:
		s.metrics.ObservePromotion("failed")
		log.Error().Err(err).Msg("waiting list promotion failed")
	case promoted == nil:
		s.metrics.ObservePromotion("none")
		log.Debug().Msg("no waiting list entry for vacated slot")
	default:
		s.metrics.ObservePromotion("promoted")
		log.Info().Str("booking_id", promoted.ID.String()).Msg("waiting list entry promoted")
	}
}

// fillVacancy books the highest-priority waiting entry for the vacated
// therapist and day into the vacated time and room. It returns nil, nil when
// nobody is waiting.
func (s *Service) fillVacancy(ctx context.Context, actor Actor, vacated Booking) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "scheduling.fill_vacancy",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("scheduling.vacated_booking_id", vacated.ID.String()),
			attribute.String("scheduling.room", vacated.Room),
		),
	)
	defer span.End()

	b, err := s.bookNextWaiting(ctx, actor, vacated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return b, err
}

func (s *Service) bookNextWaiting(ctx context.Context, actor Actor, vacated Booking) (*Booking, error) {
	day := Day(vacated.Date)
	entry, err := s.repo.NextWaitingEntry(ctx, vacated.TherapistID, day)
	if errors.Is(err, ErrWaitingEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStore("load next waiting entry", err)
	}
	patient, err := s.repo.GetPatientByID(ctx, entry.PatientID)
	if err != nil {
		return nil, wrapStore("load waiting patient", err)
	}

	now := s.now()
	candidate := Booking{
		ID:              uuid.New(),
		TherapistID:     vacated.TherapistID,
		TherapistName:   vacated.TherapistName,
		PatientID:       patient.ID,
		PatientName:     patient.FullName(),
		PatientPhone:    patient.PhoneNumber,
		Date:            day,
		Time:            vacated.Time,
		Duration:        entry.Duration,
		AppointmentType: entry.AppointmentType,
		Room:            vacated.Room,
		Status:          StatusPending,
		MedicalNotes:    entry.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	exclude := vacated.ID
	created, err := s.bookFromWaitingList(ctx, entry.ID, candidate, &exclude)
	if err != nil {
		return nil, err
	}

	s.recordBooked(ctx, *created, actor.UserID, EventWaitingListPromoted, map[string]any{
		"waiting_entry_id":   entry.ID.String(),
		"priority_number":    entry.PriorityNumber,
		"vacated_booking_id": vacated.ID.String(),
	})
	s.notify(ctx, *created, *patient)
	return created, nil
}

// bookFromWaitingList re-checks the slot under lock and converts the entry
// into the candidate booking in one transaction.
func (s *Service) bookFromWaitingList(ctx context.Context, entryID uuid.UUID, candidate Booking, exclude *uuid.UUID) (*Booking, error) {
	var created *Booking
	err := s.withSlotLock(ctx, slotKeys(candidate.TherapistID, candidate.Room, candidate.Date), func(lockCtx context.Context) error {
		res, err := s.checker.Check(lockCtx, AvailabilityRequest{
			TherapistID:      candidate.TherapistID,
			Date:             candidate.Date,
			Time:             candidate.Time,
			Duration:         candidate.Duration,
			Room:             candidate.Room,
			ExcludeBookingID: exclude,
		})
		if err != nil {
			return err
		}
		if !res.IsAvailable {
			return &ConflictError{Result: res}
		}
		created, err = s.repo.PromoteWaitingEntry(lockCtx, entryID, candidate)
		if err != nil {
			return wrapStore("promote waiting entry", err)
		}
		return nil
	})
	return created, err
}

type PromoteInput struct {
	Date time.Time
	Time string
	Room string
}

// PromoteWaitingEntry manually books a waiting entry into a slot chosen by its
// therapist. The entry's duration and appointment type are kept.
func (s *Service) PromoteWaitingEntry(ctx context.Context, actor Actor, entryID uuid.UUID, in PromoteInput) (*Booking, error) {
	b, err := s.promoteManually(ctx, actor, entryID, in)
	s.metrics.ObserveBooking("promote", err)
	return b, err
}

func (s *Service) promoteManually(ctx context.Context, actor Actor, entryID uuid.UUID, in PromoteInput) (*Booking, error) {
	if !actor.IsTherapist() {
		return nil, ErrNotTherapist
	}
	entry, err := s.repo.GetWaitingEntry(ctx, entryID)
	if err != nil {
		return nil, wrapStore("load waiting entry", err)
	}
	if entry.TherapistID != actor.UserID {
		return nil, ErrAccessDenied
	}
	if err := ValidateSlot(in.Date, in.Time, entry.Duration, in.Room); err != nil {
		return nil, err
	}

	therapist, err := s.approvedTherapist(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	patient, err := s.repo.GetPatientByID(ctx, entry.PatientID)
	if err != nil {
		return nil, wrapStore("load waiting patient", err)
	}

	now := s.now()
	candidate := Booking{
		ID:              uuid.New(),
		TherapistID:     therapist.ID,
		TherapistName:   therapist.FullName(),
		PatientID:       patient.ID,
		PatientName:     patient.FullName(),
		PatientPhone:    patient.PhoneNumber,
		Date:            Day(in.Date),
		Time:            in.Time,
		Duration:        entry.Duration,
		AppointmentType: entry.AppointmentType,
		Room:            in.Room,
		Status:          StatusPending,
		MedicalNotes:    entry.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.bookFromWaitingList(ctx, entry.ID, candidate, nil)
	if err != nil {
		return nil, err
	}

	s.recordBooked(ctx, *created, actor.UserID, EventWaitingListPromoted, map[string]any{
		"waiting_entry_id": entry.ID.String(),
		"priority_number":  entry.PriorityNumber,
		"manual":           true,
	})
	s.notify(ctx, *created, *patient)
	return created, nil
}

func (s *Service) notify(ctx context.Context, b Booking, p Patient) {
	if s.notifier == nil {
		return
	}
	s.notifier.BookingPromoted(ctx, b, p)
}
