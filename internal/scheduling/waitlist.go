package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AddWaitingEntryInput struct {
	PatientID       uuid.UUID
	DesiredDate     time.Time
	DesiredTime     string
	AppointmentType AppointmentType
	Duration        int
	RoomPreference  *string
	Notes           *string
}

// AddToWaitingList queues a patient for the calling therapist. The priority
// number is assigned by the store as one more than the current maximum for the
// therapist and day, under the therapist-day lock.
func (s *Service) AddToWaitingList(ctx context.Context, actor Actor, in AddWaitingEntryInput) (*WaitingListEntry, error) {
	if !actor.IsTherapist() {
		return nil, ErrNotTherapist
	}
	if in.PatientID == uuid.Nil || in.DesiredDate.IsZero() || in.DesiredTime == "" || in.AppointmentType == "" || in.Duration == 0 {
		return nil, invalid("missing_fields", "missing required fields")
	}
	if _, _, err := ParseClock(in.DesiredTime); err != nil {
		return nil, err
	}
	if !ValidDuration(in.Duration) {
		return nil, invalid("invalid_duration", "duration must be one of 30, 45 or 60 minutes")
	}
	if !in.AppointmentType.Valid() {
		return nil, invalid("invalid_appointment_type", "unknown appointment type")
	}

	if _, err := s.approvedTherapist(ctx, actor.UserID); err != nil {
		return nil, err
	}
	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		return nil, wrapStore("load patient", err)
	}

	entry := WaitingListEntry{
		ID:              uuid.New(),
		TherapistID:     actor.UserID,
		PatientID:       patient.ID,
		PatientName:     patient.FullName(),
		PatientPhone:    patient.PhoneNumber,
		DesiredDate:     Day(in.DesiredDate),
		DesiredTime:     in.DesiredTime,
		AppointmentType: in.AppointmentType,
		Duration:        in.Duration,
		RoomPreference:  in.RoomPreference,
		Notes:           in.Notes,
		DateAdded:       s.now(),
	}

	key := "therapist:" + actor.UserID.String() + ":" + entry.DesiredDate.Format(time.DateOnly)
	var created *WaitingListEntry
	err = s.withSlotLock(ctx, []string{key}, func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.CreateWaitingEntry(lockCtx, entry)
		if err != nil {
			return wrapStore("create waiting entry", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListWaitingList returns entries ordered by priority. Therapists only see
// their own queue.
func (s *Service) ListWaitingList(ctx context.Context, actor Actor, therapistID *uuid.UUID) ([]WaitingListEntry, error) {
	filter := WaitingListFilter{TherapistID: therapistID}
	switch {
	case actor.IsAdmin():
	case actor.IsTherapist():
		own := actor.UserID
		filter.TherapistID = &own
	default:
		return nil, ErrAccessDenied
	}
	out, err := s.repo.ListWaitingEntries(ctx, filter)
	if err != nil {
		return nil, wrapStore("list waiting entries", err)
	}
	return out, nil
}

func (s *Service) RemoveWaitingEntry(ctx context.Context, actor Actor, id uuid.UUID) error {
	entry, err := s.repo.GetWaitingEntry(ctx, id)
	if err != nil {
		return wrapStore("load waiting entry", err)
	}
	if !actor.canAccess(entry.TherapistID) {
		return ErrAccessDenied
	}
	if err := s.repo.DeleteWaitingEntry(ctx, id); err != nil {
		return wrapStore("delete waiting entry", err)
	}
	return nil
}

// SweepWaitingList drops entries whose desired date is already in the past.
func (s *Service) SweepWaitingList(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteWaitingEntriesBefore(ctx, Day(s.now()))
	if err != nil {
		return 0, wrapStore("sweep waiting list", err)
	}
	return n, nil
}
