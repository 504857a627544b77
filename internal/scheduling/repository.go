package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
// Booking reads used by the availability checker only return occupying
// (non-cancelled) bookings.
type Repository interface {
	// Directory
	GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error)
	UpdateTherapistStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Therapist, error)
	IncrementTherapistAppointments(ctx context.Context, id uuid.UUID) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	AppendPatientHistory(ctx context.Context, patientID uuid.UUID, entry HistoryEntry) error

	// Rooms
	GetRoom(ctx context.Context, name string) (*Room, error)
	ListActiveRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, room Room) (*Room, error)

	// For conflict checks
	CountActiveBookings(ctx context.Context, therapistID uuid.UUID, date time.Time) (int, error)
	FindBookingsByRoomAndDate(ctx context.Context, room string, date time.Time) ([]Booking, error)
	FindBookingsByTherapistAndDate(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]Booking, error)
	RoomHasBookingAt(ctx context.Context, room string, date time.Time, clock string) (bool, error)

	// Bookings
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	CreateBooking(ctx context.Context, b Booking) (*Booking, error)
	// UpdateBooking writes status, notes and updated_at only if the stored
	// status still equals prev.
	UpdateBooking(ctx context.Context, b Booking, prev BookingStatus) (*Booking, error)
	// DeleteBooking removes a booking unless it is completed.
	DeleteBooking(ctx context.Context, id uuid.UUID) error

	// Waiting list
	CreateWaitingEntry(ctx context.Context, e WaitingListEntry) (*WaitingListEntry, error)
	GetWaitingEntry(ctx context.Context, id uuid.UUID) (*WaitingListEntry, error)
	ListWaitingEntries(ctx context.Context, filter WaitingListFilter) ([]WaitingListEntry, error)
	// NextWaitingEntry returns the lowest priority number for the therapist
	// and day, ties broken by earliest date added.
	NextWaitingEntry(ctx context.Context, therapistID uuid.UUID, date time.Time) (*WaitingListEntry, error)
	DeleteWaitingEntry(ctx context.Context, id uuid.UUID) error
	DeleteWaitingEntriesBefore(ctx context.Context, day time.Time) (int64, error)
	// PromoteWaitingEntry atomically removes the entry and inserts the booking.
	PromoteWaitingEntry(ctx context.Context, entryID uuid.UUID, b Booking) (*Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
