package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/scheduling"
)

type CreateBookingRequest struct {
	PatientID           string  `json:"patientId"`
	Date                string  `json:"date"`
	Time                string  `json:"time"`
	Duration            int     `json:"duration"`
	AppointmentType     string  `json:"appointmentType"`
	Room                string  `json:"room"`
	MedicalNotes        *string `json:"medicalNotes,omitempty"`
	SpecialRequirements *string `json:"specialRequirements,omitempty"`
}

type UpdateBookingRequest struct {
	Status              *string `json:"status,omitempty"`
	MedicalNotes        *string `json:"medicalNotes,omitempty"`
	SpecialRequirements *string `json:"specialRequirements,omitempty"`
}

type AddWaitingEntryRequest struct {
	PatientID       string  `json:"patientId"`
	DesiredDate     string  `json:"desiredDate"`
	DesiredTime     string  `json:"desiredTime"`
	AppointmentType string  `json:"appointmentType"`
	Duration        int     `json:"duration"`
	RoomPreference  *string `json:"roomPreference,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type PromoteRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
	Room string `json:"room"`
}

type CreateRoomRequest struct {
	Name      string   `json:"name"`
	Capacity  int      `json:"capacity"`
	Equipment []string `json:"equipment"`
}

type TherapistStatusRequest struct {
	Status string `json:"status"`
}

type BookingResponse struct {
	ID                  uuid.UUID `json:"id"`
	TherapistID         uuid.UUID `json:"therapistId"`
	TherapistName       string    `json:"therapistName"`
	PatientID           uuid.UUID `json:"patientId"`
	PatientName         string    `json:"patientName"`
	PatientPhone        string    `json:"patientPhone,omitempty"`
	Date                string    `json:"date"`
	Time                string    `json:"time"`
	Duration            int       `json:"duration"`
	AppointmentType     string    `json:"appointmentType"`
	Room                string    `json:"room"`
	Status              string    `json:"status"`
	MedicalNotes        *string   `json:"medicalNotes,omitempty"`
	SpecialRequirements *string   `json:"specialRequirements,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toBookingResponse(b scheduling.Booking) BookingResponse {
	return BookingResponse{
		ID:                  b.ID,
		TherapistID:         b.TherapistID,
		TherapistName:       b.TherapistName,
		PatientID:           b.PatientID,
		PatientName:         b.PatientName,
		PatientPhone:        b.PatientPhone,
		Date:                b.Date.Format(time.DateOnly),
		Time:                b.Time,
		Duration:            b.Duration,
		AppointmentType:     string(b.AppointmentType),
		Room:                b.Room,
		Status:              string(b.Status),
		MedicalNotes:        b.MedicalNotes,
		SpecialRequirements: b.SpecialRequirements,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

type WaitingEntryResponse struct {
	ID              uuid.UUID `json:"id"`
	TherapistID     uuid.UUID `json:"therapistId"`
	PatientID       uuid.UUID `json:"patientId"`
	PatientName     string    `json:"patientName"`
	PatientPhone    string    `json:"patientPhone,omitempty"`
	DesiredDate     string    `json:"desiredDate"`
	DesiredTime     string    `json:"desiredTime"`
	AppointmentType string    `json:"appointmentType"`
	Duration        int       `json:"duration"`
	RoomPreference  *string   `json:"roomPreference,omitempty"`
	PriorityNumber  int       `json:"priorityNumber"`
	Notes           *string   `json:"notes,omitempty"`
	DateAdded       time.Time `json:"dateAdded"`
}

func toWaitingEntryResponse(e scheduling.WaitingListEntry) WaitingEntryResponse {
	return WaitingEntryResponse{
		ID:              e.ID,
		TherapistID:     e.TherapistID,
		PatientID:       e.PatientID,
		PatientName:     e.PatientName,
		PatientPhone:    e.PatientPhone,
		DesiredDate:     e.DesiredDate.Format(time.DateOnly),
		DesiredTime:     e.DesiredTime,
		AppointmentType: string(e.AppointmentType),
		Duration:        e.Duration,
		RoomPreference:  e.RoomPreference,
		PriorityNumber:  e.PriorityNumber,
		Notes:           e.Notes,
		DateAdded:       e.DateAdded,
	}
}

type RoomResponse struct {
	Name      string   `json:"name"`
	Capacity  int      `json:"capacity"`
	Equipment []string `json:"equipment"`
	IsActive  bool     `json:"isActive"`
}

func toRoomResponse(r scheduling.Room) RoomResponse {
	equipment := r.Equipment
	if equipment == nil {
		equipment = []string{}
	}
	return RoomResponse{Name: r.Name, Capacity: r.Capacity, Equipment: equipment, IsActive: r.IsActive}
}

type TherapistResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Status            string    `json:"status"`
	TotalAppointments int       `json:"totalAppointments"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ConflictResponse is returned with 409 when a slot is unavailable.
type ConflictResponse struct {
	Error                  string                     `json:"error"`
	Reason                 scheduling.ConflictReason  `json:"reason"`
	ConflictingAppointment *scheduling.ConflictDetail `json:"conflictingAppointment,omitempty"`
	AlternativeTimes       []string                   `json:"alternativeTimes"`
	AlternativeRooms       []string                   `json:"alternativeRooms"`
}
