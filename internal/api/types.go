package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

type IntervalRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type PublishSlotsRequest struct {
	Intervals []IntervalRequest `json:"intervals"`
}

type CreateAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	TherapistID string `json:"therapist_id"`
	SlotID      string `json:"slot_id"`
}

type UpdateAppointmentRequest struct {
	SummaryNotes *string `json:"summary_notes"`
	MeetingURL   *string `json:"meeting_url"`
}

type CompleteAppointmentRequest struct {
	SummaryNotes string                        `json:"summary_notes"`
	Meeting      *consultation.MeetingSnapshot `json:"meeting,omitempty"`
	Resources    *consultation.Resources       `json:"resources,omitempty"`
	FollowUp     *consultation.FollowUp        `json:"follow_up,omitempty"`
	UpdatedBy    string                        `json:"updated_by"`
}

type RegenerateMeetingRequest struct {
	Provider   string         `json:"provider,omitempty"`
	BaseURL    string         `json:"base_url,omitempty"`
	RoomPrefix string         `json:"room_prefix,omitempty"`
	TTLMinutes int            `json:"ttl_minutes,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}

type SlotResponse struct {
	ID          string     `json:"id"`
	TherapistID string     `json:"therapist_id"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	Status      string     `json:"status"`
	RequestedBy *string    `json:"requested_by,omitempty"`
	HeldAt      *time.Time `json:"held_at,omitempty"`
	Version     int64      `json:"version"`
}

type MeetingResponse struct {
	Provider  string         `json:"provider,omitempty"`
	Room      string         `json:"room,omitempty"`
	URL       string         `json:"url,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID        `json:"id"`
	TherapistID   string           `json:"therapist_id"`
	PatientID     string           `json:"patient_id"`
	SlotID        string           `json:"slot_id"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	Status        string           `json:"status"`
	SessionStatus string           `json:"session_status"`
	Meeting       *MeetingResponse `json:"meeting,omitempty"`
	SummaryNotes  string           `json:"summary_notes,omitempty"`
	HistoryID     *uuid.UUID       `json:"history_id,omitempty"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type ConsultationResponse struct {
	ID            uuid.UUID                    `json:"id"`
	AppointmentID uuid.UUID                    `json:"appointment_id"`
	TherapistID   string                       `json:"therapist_id"`
	PatientID     string                       `json:"patient_id"`
	StartsAt      time.Time                    `json:"starts_at"`
	EndsAt        time.Time                    `json:"ends_at"`
	SessionStatus string                       `json:"session_status"`
	Meeting       consultation.MeetingSnapshot `json:"meeting"`
	SummaryNotes  string                       `json:"summary_notes"`
	Resources     consultation.Resources       `json:"resources"`
	FollowUp      consultation.FollowUp        `json:"follow_up"`
	CompletedAt   time.Time                    `json:"completed_at"`
	CreatedBy     string                       `json:"created_by,omitempty"`
	UpdatedBy     string                       `json:"updated_by,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		TherapistID: s.TherapistID,
		StartsAt:    s.StartsAt,
		EndsAt:      s.EndsAt,
		Status:      string(s.Status),
		RequestedBy: s.RequestedBy,
		HeldAt:      s.HeldAt,
		Version:     s.Version,
	}
}

func toSlotResponses(items []slot.Slot) []SlotResponse {
	out := make([]SlotResponse, len(items))
	for i, s := range items {
		out[i] = toSlotResponse(s)
	}
	return out
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:            a.ID,
		TherapistID:   a.TherapistID,
		PatientID:     a.PatientID,
		SlotID:        a.SlotID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        string(a.Status),
		SessionStatus: string(a.SessionStatus),
		SummaryNotes:  a.SummaryNotes,
		HistoryID:     a.HistoryID,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if !a.Meeting.IsZero() {
		resp.Meeting = &MeetingResponse{
			Provider:  a.Meeting.Provider,
			Room:      a.Meeting.Room,
			URL:       a.Meeting.URL,
			Config:    a.Meeting.Config,
			ExpiresAt: a.Meeting.ExpiresAt,
		}
	}
	return resp
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(items))
	for i, a := range items {
		out[i] = toAppointmentResponse(a)
	}
	return out
}

func toConsultationResponse(c consultation.Consultation) ConsultationResponse {
	return ConsultationResponse{
		ID:            c.ID,
		AppointmentID: c.AppointmentID,
		TherapistID:   c.TherapistID,
		PatientID:     c.PatientID,
		StartsAt:      c.StartsAt,
		EndsAt:        c.EndsAt,
		SessionStatus: c.SessionStatus,
		Meeting:       c.Meeting,
		SummaryNotes:  c.SummaryNotes,
		Resources:     c.Resources,
		FollowUp:      c.FollowUp,
		CompletedAt:   c.CompletedAt,
		CreatedBy:     c.CreatedBy,
		UpdatedBy:     c.UpdatedBy,
	}
}

func toConsultationResponses(items []consultation.Consultation) []ConsultationResponse {
	out := make([]ConsultationResponse, len(items))
	for i, c := range items {
		out[i] = toConsultationResponse(c)
	}
	return out
}
