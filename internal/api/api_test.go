package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/physio-scheduling/internal/scheduling"
)

const testSecret = "test-secret"

// stubScheduler overrides the methods a test needs; anything else panics via
// the nil embedded interface.
type stubScheduler struct {
	Scheduler

	actor       scheduling.Actor
	availQuery  scheduling.AvailabilityQuery
	availResult scheduling.AvailabilityResult
	createIn    scheduling.CreateBookingInput
	listFilter  scheduling.BookingFilter
	updateIn    scheduling.UpdateBookingInput
	promoteIn   scheduling.PromoteInput
	booking     *scheduling.Booking
	bookings    []scheduling.Booking
	rooms       []scheduling.Room
	err         error
}

func (s *stubScheduler) CheckAvailability(_ context.Context, actor scheduling.Actor, q scheduling.AvailabilityQuery) (scheduling.AvailabilityResult, error) {
	s.actor, s.availQuery = actor, q
	return s.availResult, s.err
}

func (s *stubScheduler) CreateBooking(_ context.Context, actor scheduling.Actor, in scheduling.CreateBookingInput) (*scheduling.Booking, error) {
	s.actor, s.createIn = actor, in
	return s.booking, s.err
}

func (s *stubScheduler) GetBooking(_ context.Context, actor scheduling.Actor, _ uuid.UUID) (*scheduling.Booking, error) {
	s.actor = actor
	return s.booking, s.err
}

func (s *stubScheduler) ListBookings(_ context.Context, actor scheduling.Actor, filter scheduling.BookingFilter) ([]scheduling.Booking, error) {
	s.actor, s.listFilter = actor, filter
	return s.bookings, s.err
}

func (s *stubScheduler) UpdateBooking(_ context.Context, actor scheduling.Actor, _ uuid.UUID, in scheduling.UpdateBookingInput) (*scheduling.Booking, error) {
	s.actor, s.updateIn = actor, in
	return s.booking, s.err
}

func (s *stubScheduler) DeleteBooking(_ context.Context, actor scheduling.Actor, _ uuid.UUID) error {
	s.actor = actor
	return s.err
}

func (s *stubScheduler) PromoteWaitingEntry(_ context.Context, actor scheduling.Actor, _ uuid.UUID, in scheduling.PromoteInput) (*scheduling.Booking, error) {
	s.actor, s.promoteIn = actor, in
	return s.booking, s.err
}

func (s *stubScheduler) ListRooms(context.Context) ([]scheduling.Room, error) {
	return s.rooms, s.err
}

func newTestRouter(svc Scheduler) http.Handler {
	return NewRouter(RouterConfig{Service: svc, JWTSecret: testSecret})
}

func token(t *testing.T, userID uuid.UUID, roles ...string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, roles, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleBooking() *scheduling.Booking {
	return &scheduling.Booking{
		ID:              uuid.New(),
		TherapistID:     uuid.New(),
		TherapistName:   "Ana Silva",
		PatientID:       uuid.New(),
		PatientName:     "Joao Costa",
		Date:            time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Time:            "10:00",
		Duration:        45,
		AppointmentType: scheduling.TypeFollowUp,
		Room:            "Room 1",
		Status:          scheduling.StatusPending,
	}
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	h := newTestRouter(&stubScheduler{})

	rec := do(t, h, http.MethodGet, "/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/rooms", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := IssueToken("other-secret", uuid.New(), []string{"therapist"}, time.Hour)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/rooms", other, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueToken(testSecret, uuid.New(), []string{"therapist"}, -time.Minute)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/rooms", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsNonUUIDSubject(t *testing.T) {
	claims := Claims{Role: "therapist", RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := do(t, newTestRouter(&stubScheduler{}), http.MethodGet, "/rooms", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAcceptsSingleRoleClaim(t *testing.T) {
	userID := uuid.New()
	claims := Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	svc := &stubScheduler{bookings: []scheduling.Booking{}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/appointments", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.actor.UserID)
	assert.True(t, svc.actor.IsAdmin())
	assert.False(t, svc.actor.IsTherapist())
}

func TestAvailabilityPassesQuery(t *testing.T) {
	therapistID := uuid.New()
	svc := &stubScheduler{availResult: scheduling.AvailabilityResult{IsAvailable: true}}
	tok := token(t, uuid.New(), "admin")

	rec := do(t, newTestRouter(svc), http.MethodGet,
		"/availability?date=2024-06-10&time=10:00&duration=45&room=Room%201&therapistId="+therapistID.String(), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "10:00", svc.availQuery.Time)
	assert.Equal(t, 45, svc.availQuery.Duration)
	assert.Equal(t, "Room 1", svc.availQuery.Room)
	require.NotNil(t, svc.availQuery.TherapistID)
	assert.Equal(t, therapistID, *svc.availQuery.TherapistID)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), svc.availQuery.Date)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["isAvailable"])
}

func TestAvailabilityValidatesQuery(t *testing.T) {
	tok := token(t, uuid.New(), "therapist")
	h := newTestRouter(&stubScheduler{})

	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing room", "/availability?date=2024-06-10&time=10:00&duration=45", "missing_fields"},
		{"bad duration", "/availability?date=2024-06-10&time=10:00&duration=abc&room=Room%201", "invalid_duration"},
		{"bad date", "/availability?date=10/06/2024&time=10:00&duration=45&room=Room%201", "invalid_date"},
		{"bad therapist", "/availability?date=2024-06-10&time=10:00&duration=45&room=Room%201&therapistId=x", "invalid_therapist_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, tok, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestCreateBookingReturnsCreated(t *testing.T) {
	b := sampleBooking()
	svc := &stubScheduler{booking: b}
	userID := uuid.New()

	rec := do(t, newTestRouter(svc), http.MethodPost, "/appointments", token(t, userID, "therapist"), CreateBookingRequest{
		PatientID:       b.PatientID.String(),
		Date:            "2024-06-10",
		Time:            "10:00",
		Duration:        45,
		AppointmentType: "follow-up",
		Room:            "Room 1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, userID, svc.actor.UserID)
	assert.Equal(t, b.PatientID, svc.createIn.PatientID)
	assert.Equal(t, scheduling.TypeFollowUp, svc.createIn.AppointmentType)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, b.ID, resp.ID)
	assert.Equal(t, "2024-06-10", resp.Date)
	assert.Equal(t, "pending", resp.Status)
}

func TestCreateBookingRejectsMissingFields(t *testing.T) {
	rec := do(t, newTestRouter(&stubScheduler{}), http.MethodPost, "/appointments", token(t, uuid.New(), "therapist"),
		CreateBookingRequest{PatientID: uuid.NewString(), Date: "2024-06-10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingConflictCarriesSuggestions(t *testing.T) {
	svc := &stubScheduler{err: &scheduling.ConflictError{Result: scheduling.AvailabilityResult{
		Reason:                 scheduling.ReasonRoomConflict,
		Message:                "Room 1 is already booked at this time",
		ConflictingAppointment: &scheduling.ConflictDetail{Therapist: "Rui Pereira", Time: "10:00", Room: "Room 1"},
		AlternativeTimes:       []string{"09:00", "11:00"},
		AlternativeRooms:       []string{"Room 2"},
	}}}

	rec := do(t, newTestRouter(svc), http.MethodPost, "/appointments", token(t, uuid.New(), "therapist"), CreateBookingRequest{
		PatientID:       uuid.NewString(),
		Date:            "2024-06-10",
		Time:            "10:00",
		Duration:        45,
		AppointmentType: "follow-up",
		Room:            "Room 1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ConflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Room 1 is already booked at this time", resp.Error)
	assert.Equal(t, scheduling.ReasonRoomConflict, resp.Reason)
	require.NotNil(t, resp.ConflictingAppointment)
	assert.Equal(t, "Rui Pereira", resp.ConflictingAppointment.Therapist)
	assert.Equal(t, []string{"09:00", "11:00"}, resp.AlternativeTimes)
	assert.Equal(t, []string{"Room 2"}, resp.AlternativeRooms)
}

func TestEngineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", scheduling.ErrBookingNotFound, http.StatusNotFound, "appointment_not_found"},
		{"forbidden", scheduling.ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{"completed", scheduling.ErrBookingCompleted, http.StatusForbidden, "appointment_completed"},
		{"transition", scheduling.ErrInvalidStatusTransition, http.StatusBadRequest, "invalid_status_transition"},
		{"lock", scheduling.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubScheduler{err: tt.err}
			rec := do(t, newTestRouter(svc), http.MethodGet, "/appointments/"+uuid.NewString(), token(t, uuid.New(), "therapist"), nil)
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
			assert.NotContains(t, body.Details, "connection reset")
		})
	}
}

func TestGetBookingRejectsBadID(t *testing.T) {
	rec := do(t, newTestRouter(&stubScheduler{}), http.MethodGet, "/appointments/not-a-uuid", token(t, uuid.New(), "therapist"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookingsParsesDates(t *testing.T) {
	tok := token(t, uuid.New(), "therapist")

	svc := &stubScheduler{bookings: []scheduling.Booking{*sampleBooking()}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/appointments?date=2024-06-10", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, day, svc.listFilter.From)
	assert.Equal(t, day, svc.listFilter.To)

	var resp []BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)

	svc = &stubScheduler{}
	rec = do(t, newTestRouter(svc), http.MethodGet, "/appointments?startDate=2024-06-01&endDate=2024-06-30", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), svc.listFilter.From)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), svc.listFilter.To)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestUpdateBookingPassesStatus(t *testing.T) {
	b := sampleBooking()
	b.Status = scheduling.StatusCancelled
	svc := &stubScheduler{booking: b}

	rec := do(t, newTestRouter(svc), http.MethodPut, "/appointments/"+b.ID.String(), token(t, uuid.New(), "therapist"),
		map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updateIn.Status)
	assert.Equal(t, scheduling.StatusCancelled, *svc.updateIn.Status)
	assert.Nil(t, svc.updateIn.MedicalNotes)
}

func TestDeleteBooking(t *testing.T) {
	svc := &stubScheduler{}
	rec := do(t, newTestRouter(svc), http.MethodDelete, "/appointments/"+uuid.NewString(), token(t, uuid.New(), "therapist"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPromoteWaitingEntry(t *testing.T) {
	svc := &stubScheduler{booking: sampleBooking()}
	rec := do(t, newTestRouter(svc), http.MethodPost, "/waiting-list/"+uuid.NewString()+"/promote", token(t, uuid.New(), "therapist"),
		PromoteRequest{Date: "2024-06-10", Time: "14:00", Room: "Room 2"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "14:00", svc.promoteIn.Time)
	assert.Equal(t, "Room 2", svc.promoteIn.Room)

	rec = do(t, newTestRouter(svc), http.MethodPost, "/waiting-list/"+uuid.NewString()+"/promote", token(t, uuid.New(), "therapist"),
		PromoteRequest{Date: "2024-06-10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRoomsNeverReturnsNullEquipment(t *testing.T) {
	svc := &stubScheduler{rooms: []scheduling.Room{{Name: "Room 1", Capacity: 1, IsActive: true}}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/rooms", token(t, uuid.New(), "therapist"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"equipment":[]`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	newTestRouter(&stubScheduler{}).ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestReadiness(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	serve := func(h *HealthHandler) (int, ReadinessResponse) {
		router := NewRouter(RouterConfig{Service: &stubScheduler{}, Health: h})
		rec := do(t, router, http.MethodGet, "/health/ready", "", nil)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return rec.Code, resp
	}

	code, resp := serve(NewHealthHandler(fakePinger{}, rdb, "test", "v1"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	code, resp = serve(NewHealthHandler(fakePinger{err: errors.New("down")}, rdb, "test", "v1"))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["postgres"])

	mr.Close()
	code, resp = serve(NewHealthHandler(fakePinger{}, rdb, "test", "v1"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["redis"])
}

func TestLivenessSkipsAuth(t *testing.T) {
	router := NewRouter(RouterConfig{Service: &stubScheduler{}, Health: NewHealthHandler(fakePinger{}, nil, "test", "v1")})
	rec := do(t, router, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
