package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/meeting"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
	"github.com/hackgods/therapy-session-scheduling/internal/scheduling"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose body may be omitted. An empty body, chunked
// or not, reports present=false.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) (present, ok bool) {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return false, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false, false
	}
	return true, true
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Slots

func publishSlotsHandler(slots *slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Intervals) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "at least one interval is required")
			return
		}

		intervals := make([]slot.Interval, len(req.Intervals))
		for i, iv := range req.Intervals {
			intervals[i] = slot.Interval{StartsAt: iv.StartsAt, EndsAt: iv.EndsAt}
		}

		published, err := slots.Publish(r.Context(), chi.URLParam(r, "therapistID"), intervals)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponses(published))
	}
}

func listSlotsHandler(slots *slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var from time.Time
		if raw := r.URL.Query().Get("from"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
				return
			}
			from = parsed
		}

		items, err := slots.ListOpen(r.Context(), chi.URLParam(r, "therapistID"), from)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(items))
	}
}

func deleteSlotHandler(slots *slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := slots.Delete(r.Context(), chi.URLParam(r, "therapistID"), chi.URLParam(r, "slotID")); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Appointments

func createAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.PatientID == "" || req.TherapistID == "" || req.SlotID == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "patient_id, therapist_id and slot_id are required")
			return
		}

		appt, err := engine.RequestAppointment(r.Context(), req.PatientID, req.TherapistID, req.SlotID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(appointments *appointment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "user_id is required")
			return
		}
		role, err := profile.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			handleError(w, r, err)
			return
		}

		items, err := appointments.ListByUser(r.Context(), userID, role)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(items))
	}
}

func getAppointmentHandler(appointments *appointment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		appt, err := appointments.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req UpdateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := engine.UpdateAppointmentDetails(r.Context(), id, scheduling.DetailsInput{
			SummaryNotes: req.SummaryNotes,
			MeetingURL:   req.MeetingURL,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

type transition func(engine *scheduling.Engine, r *http.Request, id uuid.UUID) (*appointment.Appointment, error)

func approveAction(engine *scheduling.Engine, r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
	return engine.ApproveAppointment(r.Context(), id)
}

func declineAction(engine *scheduling.Engine, r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
	return engine.DeclineAppointment(r.Context(), id)
}

func cancelAction(engine *scheduling.Engine, r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
	return engine.CancelAppointment(r.Context(), id)
}

// transitionHandler serves the body-less state changes.
func transitionHandler(engine *scheduling.Engine, fn transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		appt, err := fn(engine, r, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req CompleteAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := engine.CompleteAppointment(r.Context(), id, scheduling.CompletionInput{
			SummaryNotes: req.SummaryNotes,
			Meeting:      req.Meeting,
			Resources:    req.Resources,
			FollowUp:     req.FollowUp,
			UpdatedBy:    req.UpdatedBy,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func regenerateMeetingHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var opts *meeting.Options
		var req RegenerateMeetingRequest
		present, ok := decodeOptionalBody(w, r, &req)
		if !ok {
			return
		}
		if present {
			opts = &meeting.Options{
				Provider:   req.Provider,
				BaseURL:    req.BaseURL,
				RoomPrefix: req.RoomPrefix,
				TTLMinutes: req.TTLMinutes,
				Config:     req.Config,
			}
		}

		appt, err := engine.RegenerateMeeting(r.Context(), id, opts)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// Consultations

func getConsultationHandler(consultations *consultation.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}
		c, err := consultations.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(*c))
	}
}

func listConsultationsHandler(consultations *consultation.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patientID, therapistID := q.Get("patient_id"), q.Get("therapist_id")

		var (
			items []consultation.Consultation
			err   error
		)
		switch {
		case patientID != "" && therapistID == "":
			items, err = consultations.ListByPatient(r.Context(), patientID)
		case therapistID != "" && patientID == "":
			items, err = consultations.ListByTherapist(r.Context(), therapistID)
		default:
			writeError(w, http.StatusBadRequest, "invalid_input",
				fmt.Sprintf("exactly one of patient_id or therapist_id is required (got %q, %q)", patientID, therapistID))
			return
		}
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponses(items))
	}
}
