package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// SetTherapistStatus lets an admin approve, reject or deactivate a therapist
// account. Only approved and active therapists can book.
func (s *Service) SetTherapistStatus(ctx context.Context, actor Actor, id uuid.UUID, status AccountStatus) (*Therapist, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotAdmin
	}
	if !status.Valid() {
		return nil, invalid("invalid_status", "unknown account status")
	}

	t, err := s.repo.UpdateTherapistStatus(ctx, id, status)
	if err != nil {
		return nil, wrapStore("update therapist status", err)
	}

	event := EventTherapistStatus
	switch status {
	case AccountApproved, AccountActive:
		event = EventUserApproval
	case AccountRejected:
		event = EventUserRejection
	}
	s.logEvent(ctx, event, &actor.UserID, nil, map[string]any{
		"therapist_id": id.String(),
		"status":       status,
	})
	return t, nil
}
