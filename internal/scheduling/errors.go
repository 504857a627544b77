package scheduling

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers can render them without string matching.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Error is the typed error returned by every engine operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConflictError is returned when an availability check rejects a request.
type ConflictError struct {
	Result AvailabilityResult
}

func (e *ConflictError) Error() string {
	if e.Result.Message != "" {
		return e.Result.Message
	}
	return "time slot not available"
}

var (
	ErrPatientNotFound      = &Error{Kind: KindNotFound, Code: "patient_not_found", Message: "patient not found"}
	ErrTherapistNotFound    = &Error{Kind: KindNotFound, Code: "therapist_not_found", Message: "therapist not found"}
	ErrBookingNotFound      = &Error{Kind: KindNotFound, Code: "appointment_not_found", Message: "appointment not found"}
	ErrRoomNotFound         = &Error{Kind: KindNotFound, Code: "room_not_found", Message: "room not found"}
	ErrWaitingEntryNotFound = &Error{Kind: KindNotFound, Code: "waiting_list_entry_not_found", Message: "waiting list entry not found"}

	ErrNotTherapist       = &Error{Kind: KindForbidden, Code: "therapist_required", Message: "only therapists can perform this action"}
	ErrNotAdmin           = &Error{Kind: KindForbidden, Code: "admin_required", Message: "admin access required"}
	ErrAccountNotApproved = &Error{Kind: KindForbidden, Code: "account_not_approved", Message: "your account is not approved yet"}
	ErrAccessDenied       = &Error{Kind: KindForbidden, Code: "access_denied", Message: "access denied"}
	ErrBookingCompleted   = &Error{Kind: KindForbidden, Code: "appointment_completed", Message: "cannot modify completed appointment"}

	ErrInvalidStatusTransition = &Error{Kind: KindValidation, Code: "invalid_status_transition", Message: "invalid status transition"}
	ErrRoomInactive            = &Error{Kind: KindValidation, Code: "room_inactive", Message: "room is not active"}

	ErrSlotTaken       = &Error{Kind: KindConflict, Code: "slot_taken", Message: "room is already booked at this time"}
	ErrSlotBeingBooked = &Error{Kind: KindConflict, Code: "slot_being_booked", Message: "slot is currently being booked, please retry"}
	ErrBookingModified = &Error{Kind: KindConflict, Code: "appointment_modified", Message: "appointment was modified concurrently"}
	ErrRoomExists      = &Error{Kind: KindConflict, Code: "room_exists", Message: "room with this name already exists"}
	ErrPriorityTaken   = &Error{Kind: KindConflict, Code: "priority_taken", Message: "waiting list priority was assigned concurrently"}
)

func invalid(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: op, Err: err}
}

// KindOf reports the Kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return KindConflict
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the machine readable code of err.
func CodeOf(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return string(ce.Result.Reason)
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// wrapStore keeps engine errors intact and classifies anything else as internal.
func wrapStore(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return internalError(op, err)
}
