package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
)

// memRepo is an in-memory Repository used by the engine tests.
type memRepo struct {
	mu          sync.Mutex
	therapists  map[uuid.UUID]*Therapist
	patients    map[uuid.UUID]*Patient
	history     map[uuid.UUID][]HistoryEntry
	rooms       map[string]*Room
	bookings    map[uuid.UUID]*Booking
	waiting     map[uuid.UUID]*WaitingListEntry
	events      []EventLog
	failHistory error
	failPromote error
}

func newMemRepo() *memRepo {
	return &memRepo{
		therapists: map[uuid.UUID]*Therapist{},
		patients:   map[uuid.UUID]*Patient{},
		history:    map[uuid.UUID][]HistoryEntry{},
		rooms:      map[string]*Room{},
		bookings:   map[uuid.UUID]*Booking{},
		waiting:    map[uuid.UUID]*WaitingListEntry{},
	}
}

func (r *memRepo) addTherapist(first, last string, status AccountStatus) *Therapist {
	t := &Therapist{ID: uuid.New(), FirstName: first, LastName: last, Status: status}
	r.therapists[t.ID] = t
	return t
}

func (r *memRepo) addPatient(first, last string) *Patient {
	p := &Patient{ID: uuid.New(), FirstName: first, LastName: last, PhoneNumber: "555-0100"}
	r.patients[p.ID] = p
	return p
}

func (r *memRepo) addRoom(name string, active bool) {
	r.rooms[name] = &Room{Name: name, Capacity: 1, Equipment: []string{}, IsActive: active}
}

func (r *memRepo) addBooking(t *Therapist, p *Patient, date time.Time, clock string, duration int, room string, status BookingStatus) *Booking {
	b := &Booking{
		ID:              uuid.New(),
		TherapistID:     t.ID,
		TherapistName:   t.FullName(),
		PatientID:       p.ID,
		PatientName:     p.FullName(),
		Date:            Day(date),
		Time:            clock,
		Duration:        duration,
		AppointmentType: TypeFollowUp,
		Room:            room,
		Status:          status,
	}
	r.bookings[b.ID] = b
	return b
}

func (r *memRepo) addWaiting(t *Therapist, p *Patient, date time.Time, priority int, added time.Time) *WaitingListEntry {
	e := &WaitingListEntry{
		ID:              uuid.New(),
		TherapistID:     t.ID,
		PatientID:       p.ID,
		PatientName:     p.FullName(),
		DesiredDate:     Day(date),
		DesiredTime:     "09:00",
		AppointmentType: TypeRehabilitation,
		Duration:        30,
		PriorityNumber:  priority,
		DateAdded:       added,
	}
	r.waiting[e.ID] = e
	return e
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepo) GetTherapistByID(_ context.Context, id uuid.UUID) (*Therapist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.therapists[id]
	if !ok {
		return nil, ErrTherapistNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) UpdateTherapistStatus(_ context.Context, id uuid.UUID, status AccountStatus) (*Therapist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.therapists[id]
	if !ok {
		return nil, ErrTherapistNotFound
	}
	t.Status = status
	cp := *t
	return &cp, nil
}

func (r *memRepo) IncrementTherapistAppointments(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.therapists[id]
	if !ok {
		return ErrTherapistNotFound
	}
	t.TotalAppointments++
	return nil
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) AppendPatientHistory(_ context.Context, patientID uuid.UUID, entry HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failHistory != nil {
		return r.failHistory
	}
	r.history[patientID] = append(r.history[patientID], entry)
	return nil
}

func (r *memRepo) GetRoom(_ context.Context, name string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *memRepo) ListActiveRooms(_ context.Context) ([]Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Room
	for _, room := range r.rooms {
		if room.IsActive {
			out = append(out, *room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) CreateRoom(_ context.Context, room Room) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.Name]; ok {
		return nil, ErrRoomExists
	}
	cp := room
	r.rooms[room.Name] = &cp
	return &room, nil
}

func (r *memRepo) occupying(match func(*Booking) bool) []Booking {
	var out []Booking
	for _, b := range r.bookings {
		if b.Status.Occupying() && match(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func (r *memRepo) CountActiveBookings(_ context.Context, therapistID uuid.UUID, date time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupying(func(b *Booking) bool {
		return b.TherapistID == therapistID && b.Date.Equal(Day(date))
	})), nil
}

func (r *memRepo) FindBookingsByRoomAndDate(_ context.Context, room string, date time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupying(func(b *Booking) bool {
		return b.Room == room && b.Date.Equal(Day(date))
	}), nil
}

func (r *memRepo) FindBookingsByTherapistAndDate(_ context.Context, therapistID uuid.UUID, date time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupying(func(b *Booking) bool {
		return b.TherapistID == therapistID && b.Date.Equal(Day(date))
	}), nil
}

func (r *memRepo) RoomHasBookingAt(_ context.Context, room string, date time.Time, clock string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupying(func(b *Booking) bool {
		return b.Room == room && b.Date.Equal(Day(date)) && b.Time == clock
	})) > 0, nil
}

func (r *memRepo) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memRepo) ListBookings(_ context.Context, filter BookingFilter) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if filter.TherapistID != nil && b.TherapistID != *filter.TherapistID {
			continue
		}
		if !filter.From.IsZero() && b.Date.Before(Day(filter.From)) {
			continue
		}
		if !filter.To.IsZero() && b.Date.After(Day(filter.To)) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// insertLocked mimics the room exclusion constraint.
func (r *memRepo) insertLocked(b Booking) (*Booking, error) {
	if b.Status == StatusPending || b.Status == StatusCompleted {
		for _, other := range r.bookings {
			if other.Room != b.Room || !other.Date.Equal(b.Date) {
				continue
			}
			if other.Status != StatusPending && other.Status != StatusCompleted {
				continue
			}
			if b.Interval().Overlaps(other.Interval()) {
				return nil, ErrSlotTaken
			}
		}
	}
	cp := b
	r.bookings[b.ID] = &cp
	return &b, nil
}

func (r *memRepo) CreateBooking(_ context.Context, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(b)
}

func (r *memRepo) UpdateBooking(_ context.Context, b Booking, prev BookingStatus) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.bookings[b.ID]
	if !ok || cur.Status != prev {
		return nil, ErrBookingModified
	}
	cur.Status = b.Status
	cur.MedicalNotes = b.MedicalNotes
	cur.SpecialRequirements = b.SpecialRequirements
	cur.UpdatedAt = b.UpdatedAt
	cp := *cur
	return &cp, nil
}

func (r *memRepo) DeleteBooking(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	if b.Status == StatusCompleted {
		return ErrBookingCompleted
	}
	delete(r.bookings, id)
	return nil
}

func (r *memRepo) CreateWaitingEntry(_ context.Context, e WaitingListEntry) (*WaitingListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxPriority := 0
	for _, other := range r.waiting {
		if other.TherapistID == e.TherapistID && other.DesiredDate.Equal(e.DesiredDate) && other.PriorityNumber > maxPriority {
			maxPriority = other.PriorityNumber
		}
	}
	e.PriorityNumber = maxPriority + 1
	cp := e
	r.waiting[e.ID] = &cp
	return &e, nil
}

func (r *memRepo) GetWaitingEntry(_ context.Context, id uuid.UUID) (*WaitingListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.waiting[id]
	if !ok {
		return nil, ErrWaitingEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memRepo) sortedWaiting(match func(*WaitingListEntry) bool) []WaitingListEntry {
	var out []WaitingListEntry
	for _, e := range r.waiting {
		if match(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DesiredDate.Equal(out[j].DesiredDate) {
			return out[i].DesiredDate.Before(out[j].DesiredDate)
		}
		if out[i].PriorityNumber != out[j].PriorityNumber {
			return out[i].PriorityNumber < out[j].PriorityNumber
		}
		return out[i].DateAdded.Before(out[j].DateAdded)
	})
	return out
}

func (r *memRepo) ListWaitingEntries(_ context.Context, filter WaitingListFilter) ([]WaitingListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedWaiting(func(e *WaitingListEntry) bool {
		return filter.TherapistID == nil || e.TherapistID == *filter.TherapistID
	}), nil
}

func (r *memRepo) NextWaitingEntry(_ context.Context, therapistID uuid.UUID, date time.Time) (*WaitingListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedWaiting(func(e *WaitingListEntry) bool {
		return e.TherapistID == therapistID && e.DesiredDate.Equal(Day(date))
	})
	if len(out) == 0 {
		return nil, ErrWaitingEntryNotFound
	}
	return &out[0], nil
}

func (r *memRepo) DeleteWaitingEntry(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waiting[id]; !ok {
		return ErrWaitingEntryNotFound
	}
	delete(r.waiting, id)
	return nil
}

func (r *memRepo) DeleteWaitingEntriesBefore(_ context.Context, day time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.waiting {
		if e.DesiredDate.Before(day) {
			delete(r.waiting, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) PromoteWaitingEntry(_ context.Context, entryID uuid.UUID, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPromote != nil {
		return nil, r.failPromote
	}
	if _, ok := r.waiting[entryID]; !ok {
		return nil, ErrWaitingEntryNotFound
	}
	created, err := r.insertLocked(b)
	if err != nil {
		return nil, err
	}
	delete(r.waiting, entryID)
	return created, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// mutexLocker serialises critical sections in-process. busy simulates a lock
// held by another instance.
type mutexLocker struct {
	mu    sync.Mutex
	busy  bool
	calls [][]string
}

func (l *mutexLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, keys)
	return fn(ctx)
}

// recordingNotifier captures promotion notices.
type recordingNotifier struct {
	mu       sync.Mutex
	promoted []Booking
}

func (n *recordingNotifier) BookingPromoted(_ context.Context, b Booking, _ Patient) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.promoted = append(n.promoted, b)
}
