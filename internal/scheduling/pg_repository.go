package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DBTX
}

func NewPgRepository(db DBTX) *PgRepository {
	return &PgRepository{db: db}
}

const (
	therapistColumns = `id, first_name, last_name, email, status, total_appointments, created_at, updated_at`
	patientColumns   = `id, medical_record_number, first_name, last_name, phone_number, email, created_at, updated_at`
	roomColumns      = `name, capacity, equipment, is_active, created_at`
	bookingColumns   = `id, therapist_id, therapist_name, patient_id, patient_name, patient_phone, date, time, duration,
		appointment_type, room, status, medical_notes, special_requirements, created_at, updated_at`
	waitingColumns = `id, therapist_id, patient_id, patient_name, patient_phone, desired_date, desired_time,
		appointment_type, duration, room_preference, priority_number, notes, date_added`
)

// Helpers

func scanTherapist(row pgx.Row) (*Therapist, error) {
	var t Therapist
	var status string

	err := row.Scan(
		&t.ID,
		&t.FirstName,
		&t.LastName,
		&t.Email,
		&status,
		&t.TotalAppointments,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTherapistNotFound
		}
		return nil, err
	}

	t.Status = AccountStatus(status)
	return &t, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.MedicalRecordNumber,
		&p.FirstName,
		&p.LastName,
		&p.PhoneNumber,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanRoom(row pgx.Row) (*Room, error) {
	var r Room

	err := row.Scan(
		&r.Name,
		&r.Capacity,
		&r.Equipment,
		&r.IsActive,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return &r, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var apptType, status string
	var notes, requirements *string

	err := row.Scan(
		&b.ID,
		&b.TherapistID,
		&b.TherapistName,
		&b.PatientID,
		&b.PatientName,
		&b.PatientPhone,
		&b.Date,
		&b.Time,
		&b.Duration,
		&apptType,
		&b.Room,
		&status,
		&notes,
		&requirements,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Date = Day(b.Date)
	b.AppointmentType = AppointmentType(apptType)
	b.Status = BookingStatus(status)
	b.MedicalNotes = notes
	b.SpecialRequirements = requirements
	return &b, nil
}

func scanWaitingEntry(row pgx.Row) (*WaitingListEntry, error) {
	var e WaitingListEntry
	var apptType string
	var roomPref, notes *string

	err := row.Scan(
		&e.ID,
		&e.TherapistID,
		&e.PatientID,
		&e.PatientName,
		&e.PatientPhone,
		&e.DesiredDate,
		&e.DesiredTime,
		&apptType,
		&e.Duration,
		&roomPref,
		&e.PriorityNumber,
		&notes,
		&e.DateAdded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWaitingEntryNotFound
		}
		return nil, err
	}

	e.DesiredDate = Day(e.DesiredDate)
	e.AppointmentType = AppointmentType(apptType)
	e.RoomPreference = roomPref
	e.Notes = notes
	return &e, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// mapPgError turns constraint violations into engine errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		return ErrSlotTaken
	case "23505":
		switch pgErr.ConstraintName {
		case "rooms_pkey":
			return ErrRoomExists
		case "waiting_list_priority_key":
			return ErrPriorityTaken
		}
	}
	return err
}

// Directory

func (r *PgRepository) GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+therapistColumns+`
		FROM therapists
		WHERE id = $1
	`, id)
	return scanTherapist(row)
}

func (r *PgRepository) UpdateTherapistStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Therapist, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE therapists
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+therapistColumns, id, string(status))
	return scanTherapist(row)
}

func (r *PgRepository) IncrementTherapistAppointments(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE therapists
		SET total_appointments = total_appointments + 1,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment therapist appointments: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTherapistNotFound
	}
	return nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) AppendPatientHistory(ctx context.Context, patientID uuid.UUID, entry HistoryEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_history (patient_id, booking_id, date, therapist, appointment_type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, patientID, entry.BookingID, entry.Date, entry.Therapist, string(entry.Type), string(entry.Status))
	if err != nil {
		return fmt.Errorf("append patient history: %w", err)
	}
	return nil
}

// Rooms

func (r *PgRepository) GetRoom(ctx context.Context, name string) (*Room, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE name = $1
	`, name)
	return scanRoom(row)
}

func (r *PgRepository) ListActiveRooms(ctx context.Context) ([]Room, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE is_active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRoom)
}

func (r *PgRepository) CreateRoom(ctx context.Context, room Room) (*Room, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO rooms (name, capacity, equipment, is_active, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		RETURNING `+roomColumns,
		room.Name, room.Capacity, room.Equipment, room.IsActive, nullableTime(room.CreatedAt))
	created, err := scanRoom(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return created, nil
}

// For conflict checks

func (r *PgRepository) CountActiveBookings(ctx context.Context, therapistID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE therapist_id = $1
		  AND date = $2
		  AND status <> 'cancelled'
	`, therapistID, Day(date)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}

func (r *PgRepository) FindBookingsByRoomAndDate(ctx context.Context, room string, date time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE room = $1
		  AND date = $2
		  AND status <> 'cancelled'
		ORDER BY time
	`, room, Day(date))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func (r *PgRepository) FindBookingsByTherapistAndDate(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE therapist_id = $1
		  AND date = $2
		  AND status <> 'cancelled'
		ORDER BY time
	`, therapistID, Day(date))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func (r *PgRepository) RoomHasBookingAt(ctx context.Context, room string, date time.Time, clock string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM bookings
			WHERE room = $1
			  AND date = $2
			  AND time = $3
			  AND status <> 'cancelled'
		)
	`, room, Day(date), clock).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("room booking lookup: %w", err)
	}
	return exists, nil
}

// Bookings

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.TherapistID != nil {
		args = append(args, *filter.TherapistID)
		where = append(where, fmt.Sprintf("therapist_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, Day(filter.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, Day(filter.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, time`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func insertBooking(ctx context.Context, q rowQuerier, b Booking) (*Booking, error) {
	slot := b.Interval()
	row := q.QueryRow(ctx, `
		INSERT INTO bookings (id, therapist_id, therapist_name, patient_id, patient_name, patient_phone,
			date, time, duration, appointment_type, room, status, medical_notes, special_requirements,
			slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			tsrange($15, $16, '[)'), COALESCE($17, now()), COALESCE($18, now()))
		RETURNING `+bookingColumns,
		b.ID, b.TherapistID, b.TherapistName, b.PatientID, b.PatientName, b.PatientPhone,
		Day(b.Date), b.Time, b.Duration, string(b.AppointmentType), b.Room, string(b.Status),
		b.MedicalNotes, b.SpecialRequirements,
		slot.Start, slot.End, nullableTime(b.CreatedAt), nullableTime(b.UpdatedAt))
	created, err := scanBooking(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return created, nil
}

func (r *PgRepository) CreateBooking(ctx context.Context, b Booking) (*Booking, error) {
	return insertBooking(ctx, r.db, b)
}

func (r *PgRepository) UpdateBooking(ctx context.Context, b Booking, prev BookingStatus) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    medical_notes = $3,
		    special_requirements = $4,
		    updated_at = COALESCE($5, now())
		WHERE id = $1
		  AND status = $6
		RETURNING `+bookingColumns,
		b.ID, string(b.Status), b.MedicalNotes, b.SpecialRequirements, nullableTime(b.UpdatedAt), string(prev))
	updated, err := scanBooking(row)
	if errors.Is(err, ErrBookingNotFound) {
		// the caller loaded the row just before, so a miss means the status moved
		return nil, ErrBookingModified
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return updated, nil
}

func (r *PgRepository) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM bookings
		WHERE id = $1
		  AND status <> 'completed'
	`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return ErrBookingCompleted
}

// Waiting list

func (r *PgRepository) CreateWaitingEntry(ctx context.Context, e WaitingListEntry) (*WaitingListEntry, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO waiting_list (id, therapist_id, patient_id, patient_name, patient_phone, desired_date,
			desired_time, appointment_type, duration, room_preference, priority_number, notes, date_added)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::text, $6::date, $7::text, $8::text, $9::int,
			$10::text, COALESCE(MAX(priority_number), 0) + 1, $11::text, COALESCE($12::timestamptz, now())
		FROM waiting_list
		WHERE therapist_id = $2::uuid
		  AND desired_date = $6::date
		RETURNING `+waitingColumns,
		e.ID, e.TherapistID, e.PatientID, e.PatientName, e.PatientPhone, Day(e.DesiredDate),
		e.DesiredTime, string(e.AppointmentType), e.Duration, e.RoomPreference, e.Notes, nullableTime(e.DateAdded))
	created, err := scanWaitingEntry(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return created, nil
}

func (r *PgRepository) GetWaitingEntry(ctx context.Context, id uuid.UUID) (*WaitingListEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+waitingColumns+`
		FROM waiting_list
		WHERE id = $1
	`, id)
	return scanWaitingEntry(row)
}

func (r *PgRepository) ListWaitingEntries(ctx context.Context, filter WaitingListFilter) ([]WaitingListEntry, error) {
	query := `SELECT ` + waitingColumns + ` FROM waiting_list`
	var args []any
	if filter.TherapistID != nil {
		query += ` WHERE therapist_id = $1`
		args = append(args, *filter.TherapistID)
	}
	query += ` ORDER BY desired_date, priority_number, date_added`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWaitingEntry)
}

func (r *PgRepository) NextWaitingEntry(ctx context.Context, therapistID uuid.UUID, date time.Time) (*WaitingListEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+waitingColumns+`
		FROM waiting_list
		WHERE therapist_id = $1
		  AND desired_date = $2
		ORDER BY priority_number, date_added
		LIMIT 1
	`, therapistID, Day(date))
	return scanWaitingEntry(row)
}

func (r *PgRepository) DeleteWaitingEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM waiting_list WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete waiting entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWaitingEntryNotFound
	}
	return nil
}

func (r *PgRepository) DeleteWaitingEntriesBefore(ctx context.Context, day time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM waiting_list WHERE desired_date < $1`, Day(day))
	if err != nil {
		return 0, fmt.Errorf("sweep waiting list: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) PromoteWaitingEntry(ctx context.Context, entryID uuid.UUID, b Booking) (*Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin promotion: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM waiting_list WHERE id = $1`, entryID)
	if err != nil {
		return nil, fmt.Errorf("remove waiting entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrWaitingEntryNotFound
	}

	created, err := insertBooking(ctx, tx, b)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", err)
	}
	return created, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, performed_by, booking_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.PerformedBy, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
