package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusCompleted BookingStatus = "completed"
	StatusNoShow    BookingStatus = "no-show"
	StatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Occupying reports whether a booking in this status still counts against
// room, therapist and daily-cap checks.
func (s BookingStatus) Occupying() bool {
	return s != StatusCancelled
}

// AppointmentType is the clinical category a booking is made for.
type AppointmentType string

const (
	TypeInitialAssessment AppointmentType = "initial-assessment"
	TypeFollowUp          AppointmentType = "follow-up"
	TypeRehabilitation    AppointmentType = "rehabilitation"
	TypePostOperative     AppointmentType = "post-operative"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeInitialAssessment, TypeFollowUp, TypeRehabilitation, TypePostOperative:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountPending  AccountStatus = "pending"
	AccountApproved AccountStatus = "approved"
	AccountRejected AccountStatus = "rejected"
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountPending, AccountApproved, AccountRejected, AccountActive, AccountInactive:
		return true
	}
	return false
}

// CanBook reports whether a therapist in this state may create bookings.
func (s AccountStatus) CanBook() bool {
	return s == AccountApproved || s == AccountActive
}

type Therapist struct {
	ID                uuid.UUID
	FirstName         string
	LastName          string
	Email             string
	Status            AccountStatus
	TotalAppointments int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (t Therapist) FullName() string {
	return t.FirstName + " " + t.LastName
}

type Patient struct {
	ID                  uuid.UUID
	MedicalRecordNumber string
	FirstName           string
	LastName            string
	PhoneNumber         string
	Email               *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// HistoryEntry is appended to a patient's record whenever a booking is made for them.
type HistoryEntry struct {
	BookingID uuid.UUID
	Date      time.Time
	Therapist string
	Type      AppointmentType
	Status    BookingStatus
}

type Room struct {
	Name      string
	Capacity  int
	Equipment []string
	IsActive  bool
	CreatedAt time.Time
}

type Booking struct {
	ID                  uuid.UUID
	TherapistID         uuid.UUID
	TherapistName       string
	PatientID           uuid.UUID
	PatientName         string
	PatientPhone        string
	Date                time.Time // calendar day, midnight UTC
	Time                string    // HH:MM, 24h
	Duration            int       // minutes
	AppointmentType     AppointmentType
	Room                string
	Status              BookingStatus
	MedicalNotes        *string
	SpecialRequirements *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Interval returns the booking's [start, end) slot. The stored time is
// validated on write, so a parse failure here yields a zero interval.
func (b Booking) Interval() Interval {
	iv, _ := NewInterval(b.Date, b.Time, b.Duration)
	return iv
}

type WaitingListEntry struct {
	ID              uuid.UUID
	TherapistID     uuid.UUID
	PatientID       uuid.UUID
	PatientName     string
	PatientPhone    string
	DesiredDate     time.Time
	DesiredTime     string
	AppointmentType AppointmentType
	Duration        int
	RoomPreference  *string
	PriorityNumber  int
	Notes           *string
	DateAdded       time.Time
}

type EventLog struct {
	ID          int64
	EventType   string
	PerformedBy *uuid.UUID
	BookingID   *uuid.UUID
	Payload     []byte
	CreatedAt   time.Time
}

// BookingFilter narrows ListBookings. Zero values mean "no constraint".
type BookingFilter struct {
	TherapistID *uuid.UUID
	From        time.Time
	To          time.Time
}

// WaitingListFilter narrows ListWaitingEntries.
type WaitingListFilter struct {
	TherapistID *uuid.UUID
}

// Day truncates t to its calendar day at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date. RFC 3339 timestamps are accepted and
// bucketed to their own calendar day.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalid("invalid_date", "date must be formatted as YYYY-MM-DD")
	}
	return Day(t), nil
}
