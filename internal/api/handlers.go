package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/scheduling"
)

// Scheduler is the engine surface the HTTP layer drives.
type Scheduler interface {
	CheckAvailability(ctx context.Context, actor scheduling.Actor, q scheduling.AvailabilityQuery) (scheduling.AvailabilityResult, error)
	CreateBooking(ctx context.Context, actor scheduling.Actor, in scheduling.CreateBookingInput) (*scheduling.Booking, error)
	GetBooking(ctx context.Context, actor scheduling.Actor, id uuid.UUID) (*scheduling.Booking, error)
	ListBookings(ctx context.Context, actor scheduling.Actor, filter scheduling.BookingFilter) ([]scheduling.Booking, error)
	UpdateBooking(ctx context.Context, actor scheduling.Actor, id uuid.UUID, in scheduling.UpdateBookingInput) (*scheduling.Booking, error)
	DeleteBooking(ctx context.Context, actor scheduling.Actor, id uuid.UUID) error

	AddToWaitingList(ctx context.Context, actor scheduling.Actor, in scheduling.AddWaitingEntryInput) (*scheduling.WaitingListEntry, error)
	ListWaitingList(ctx context.Context, actor scheduling.Actor, therapistID *uuid.UUID) ([]scheduling.WaitingListEntry, error)
	RemoveWaitingEntry(ctx context.Context, actor scheduling.Actor, id uuid.UUID) error
	PromoteWaitingEntry(ctx context.Context, actor scheduling.Actor, entryID uuid.UUID, in scheduling.PromoteInput) (*scheduling.Booking, error)

	ListRooms(ctx context.Context) ([]scheduling.Room, error)
	CreateRoom(ctx context.Context, actor scheduling.Actor, in scheduling.RoomInput) (*scheduling.Room, error)

	SetTherapistStatus(ctx context.Context, actor scheduling.Actor, id uuid.UUID, status scheduling.AccountStatus) (*scheduling.Therapist, error)
}

func availabilityHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		q := r.URL.Query()

		if q.Get("date") == "" || q.Get("time") == "" || q.Get("duration") == "" || q.Get("room") == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "date, time, duration and room are required")
			return
		}
		date, err := scheduling.ParseDay(q.Get("date"))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		duration, err := strconv.Atoi(q.Get("duration"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a number of minutes")
			return
		}
		therapistID, ok := optionalUUID(w, q.Get("therapistId"), "invalid_therapist_id")
		if !ok {
			return
		}
		excludeID, ok := optionalUUID(w, q.Get("excludeAppointmentId"), "invalid_appointment_id")
		if !ok {
			return
		}

		res, err := svc.CheckAvailability(r.Context(), actor, scheduling.AvailabilityQuery{
			TherapistID:      therapistID,
			Date:             date,
			Time:             q.Get("time"),
			Duration:         duration,
			Room:             q.Get("room"),
			ExcludeBookingID: excludeID,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func createBookingHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientID == "" || req.Date == "" || req.Time == "" || req.Duration == 0 || req.AppointmentType == "" || req.Room == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "missing required fields")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}
		date, err := scheduling.ParseDay(req.Date)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		b, err := svc.CreateBooking(r.Context(), actor, scheduling.CreateBookingInput{
			PatientID:           patientID,
			Date:                date,
			Time:                req.Time,
			Duration:            req.Duration,
			AppointmentType:     scheduling.AppointmentType(req.AppointmentType),
			Room:                req.Room,
			MedicalNotes:        req.MedicalNotes,
			SpecialRequirements: req.SpecialRequirements,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBookingResponse(*b))
	}
}

func getBookingHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), actor, id)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

// listBookingsHandler accepts either ?date= for a single day or a
// ?startDate=&endDate= range, plus an optional therapistId for admins.
func listBookingsHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		q := r.URL.Query()

		var filter scheduling.BookingFilter
		if d := q.Get("date"); d != "" {
			day, err := scheduling.ParseDay(d)
			if err != nil {
				writeEngineError(w, r, err)
				return
			}
			filter.From, filter.To = day, day
		} else {
			for _, p := range []struct {
				name string
				dst  *time.Time
			}{{"startDate", &filter.From}, {"endDate", &filter.To}} {
				if v := q.Get(p.name); v != "" {
					day, err := scheduling.ParseDay(v)
					if err != nil {
						writeEngineError(w, r, err)
						return
					}
					*p.dst = day
				}
			}
		}

		therapistID, ok := optionalUUID(w, q.Get("therapistId"), "invalid_therapist_id")
		if !ok {
			return
		}
		filter.TherapistID = therapistID

		bookings, err := svc.ListBookings(r.Context(), actor, filter)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		resp := make([]BookingResponse, 0, len(bookings))
		for _, b := range bookings {
			resp = append(resp, toBookingResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateBookingHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := scheduling.UpdateBookingInput{
			MedicalNotes:        req.MedicalNotes,
			SpecialRequirements: req.SpecialRequirements,
		}
		if req.Status != nil {
			status := scheduling.BookingStatus(*req.Status)
			in.Status = &status
		}

		b, err := svc.UpdateBooking(r.Context(), actor, id, in)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

func deleteBookingHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		if err := svc.DeleteBooking(r.Context(), actor, id); err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "appointment deleted"})
	}
}

func addWaitingEntryHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		var req AddWaitingEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientID == "" || req.DesiredDate == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "missing required fields")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}
		date, err := scheduling.ParseDay(req.DesiredDate)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		entry, err := svc.AddToWaitingList(r.Context(), actor, scheduling.AddWaitingEntryInput{
			PatientID:       patientID,
			DesiredDate:     date,
			DesiredTime:     req.DesiredTime,
			AppointmentType: scheduling.AppointmentType(req.AppointmentType),
			Duration:        req.Duration,
			RoomPreference:  req.RoomPreference,
			Notes:           req.Notes,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWaitingEntryResponse(*entry))
	}
}

func listWaitingListHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		therapistID, ok := optionalUUID(w, r.URL.Query().Get("therapistId"), "invalid_therapist_id")
		if !ok {
			return
		}

		entries, err := svc.ListWaitingList(r.Context(), actor, therapistID)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		resp := make([]WaitingEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, toWaitingEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func removeWaitingEntryHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := pathUUID(w, r, "invalid_waiting_list_id")
		if !ok {
			return
		}

		if err := svc.RemoveWaitingEntry(r.Context(), actor, id); err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "waiting list entry removed"})
	}
}

func promoteWaitingEntryHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := pathUUID(w, r, "invalid_waiting_list_id")
		if !ok {
			return
		}

		var req PromoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Date == "" || req.Time == "" || req.Room == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "date, time and room are required")
			return
		}
		date, err := scheduling.ParseDay(req.Date)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		b, err := svc.PromoteWaitingEntry(r.Context(), actor, id, scheduling.PromoteInput{
			Date: date,
			Time: req.Time,
			Room: req.Room,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBookingResponse(*b))
	}
}

func listRoomsHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := svc.ListRooms(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		resp := make([]RoomResponse, 0, len(rooms))
		for _, room := range rooms {
			resp = append(resp, toRoomResponse(room))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createRoomHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		var req CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		room, err := svc.CreateRoom(r.Context(), actor, scheduling.RoomInput{
			Name:      req.Name,
			Capacity:  req.Capacity,
			Equipment: req.Equipment,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRoomResponse(*room))
	}
}

func therapistStatusHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := pathUUID(w, r, "invalid_therapist_id")
		if !ok {
			return
		}

		var req TherapistStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		t, err := svc.SetTherapistStatus(r.Context(), actor, id, scheduling.AccountStatus(req.Status))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, TherapistResponse{
			ID:                t.ID,
			Name:              t.FullName(),
			Email:             t.Email,
			Status:            string(t.Status),
			TotalAppointments: t.TotalAppointments,
		})
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(w http.ResponseWriter, raw, code string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "value must be a valid UUID")
		return nil, false
	}
	return &id, true
}
