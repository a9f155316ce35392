// Package scheduling is the appointment state machine. It coordinates the slot and appointment
// stores without relying on multi-document transactions: every operation first writes the single
// document whose status decides the outcome (a conditional write), and only then writes the
// documents that follow from it.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/errs"
	"github.com/hackgods/therapy-session-scheduling/internal/eventlog"
	"github.com/hackgods/therapy-session-scheduling/internal/meeting"
	"github.com/hackgods/therapy-session-scheduling/internal/metrics"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
	redisclient "github.com/hackgods/therapy-session-scheduling/internal/redis"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

const DefaultGracePeriod = 60 * time.Second

type Config struct {
	// GracePeriod is how far in the past a slot start may be and still be requested.
	GracePeriod time.Duration
	// HoldTTL bounds how long a slot may stay held. Zero disables the stale hold sweeper.
	HoldTTL time.Duration
}

// Deps are the collaborators the engine drives. Locker, Profiles, Events, Metrics and Clock are optional.
type Deps struct {
	Slots         *slot.Store
	Appointments  *appointment.Store
	Consultations *consultation.Recorder
	Meetings      *meeting.Generator
	Profiles      profile.Directory
	Locker        redisclient.Locker
	Events        eventlog.Sink
	Metrics       *metrics.SchedulingMetrics
	Logger        zerolog.Logger
	Clock         func() time.Time
}

type Engine struct {
	slots         *slot.Store
	appointments  *appointment.Store
	consultations *consultation.Recorder
	meetings      *meeting.Generator
	profiles      profile.Directory
	locker        redisclient.Locker
	events        eventlog.Sink
	metrics       *metrics.SchedulingMetrics
	log           zerolog.Logger
	cfg           Config
	now           func() time.Time
}

func NewEngine(d Deps, cfg Config) *Engine {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	meetings := d.Meetings
	if meetings == nil {
		meetings = meeting.NewGenerator(meeting.DefaultOptions())
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		slots:         d.Slots,
		appointments:  d.Appointments,
		consultations: d.Consultations,
		meetings:      meetings,
		profiles:      d.Profiles,
		locker:        d.Locker,
		events:        d.Events,
		metrics:       d.Metrics,
		log:           d.Logger,
		cfg:           cfg,
		now:           clock,
	}
}

// RequestAppointment claims an open slot for a patient. The slot's OPEN -> HELD conditional write
// is the sole arbiter of the race: of several concurrent callers exactly one holds the slot and
// goes on to create the pending appointment, the rest fail with ErrSlotUnavailable.
func (e *Engine) RequestAppointment(ctx context.Context, patientID, therapistID, slotID string) (_ *appointment.Appointment, err error) {
	defer e.observe("request", time.Now(), &err)

	if patientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", errs.ErrInvalidInput)
	}

	s, err := e.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if s.TherapistID != therapistID {
		return nil, fmt.Errorf("%w: therapist %s has no slot %s", errs.ErrNotFound, therapistID, slotID)
	}
	if s.Status != slot.StatusOpen {
		return nil, fmt.Errorf("%w: slot %s is %s", errs.ErrSlotUnavailable, slotID, s.Status)
	}
	if s.StartsAt.Before(e.now().Add(-e.cfg.GracePeriod)) {
		return nil, fmt.Errorf("%w: slot %s started at %s", errs.ErrSlotExpired, slotID, s.StartsAt.Format(time.RFC3339))
	}

	var created *appointment.Appointment
	claim := func(ctx context.Context) error {
		a, err := e.claim(ctx, s.ID, patientID)
		created = a
		return err
	}

	if e.locker == nil {
		err = claim(ctx)
	} else {
		err = e.locker.WithSlotLock(ctx, slotID, claim)
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, fmt.Errorf("%w: slot %s is being requested by someone else", errs.ErrSlotUnavailable, slotID)
		case errors.Is(err, redisclient.ErrLockUnavailable):
			// the conditional hold still arbitrates, the lock only sheds load
			e.log.Warn().Err(err).Str("slot_id", slotID).Msg("slot lock unavailable, claiming without it")
			err = claim(ctx)
		}
	}
	if err != nil {
		return nil, err
	}

	e.logEvent(ctx, &created.ID, created.SlotID, eventlog.EventAppointmentRequested, map[string]any{
		"patient_id":   patientID,
		"therapist_id": therapistID,
		"starts_at":    created.StartTime,
	})
	return created, nil
}

func (e *Engine) claim(ctx context.Context, slotID, patientID string) (*appointment.Appointment, error) {
	held, err := e.slots.Hold(ctx, slotID, patientID)
	if err != nil {
		if errors.Is(err, slot.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: slot %s was taken by another request", errs.ErrSlotUnavailable, slotID)
		}
		return nil, fmt.Errorf("hold slot: %w", err)
	}

	created, err := e.appointments.Create(ctx, appointment.Appointment{
		TherapistID:   held.TherapistID,
		PatientID:     patientID,
		SlotID:        held.ID,
		SlotStartsAt:  held.StartsAt,
		SlotEndsAt:    held.EndsAt,
		StartTime:     held.StartsAt,
		EndTime:       held.EndsAt,
		Status:        appointment.StatusPending,
		SessionStatus: appointment.SessionScheduled,
	})
	if err != nil {
		if errors.Is(err, appointment.ErrSlotAlreadyClaimed) {
			return nil, fmt.Errorf("%w: slot %s already has an active appointment", errs.ErrSlotUnavailable, slotID)
		}
		// undo the hold so the slot does not stay orphaned
		if _, reopenErr := e.slots.Reopen(context.WithoutCancel(ctx), slotID); reopenErr != nil {
			e.log.Error().Err(reopenErr).Str("slot_id", slotID).Msg("failed to release hold after appointment create error")
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return created, nil
}

// ApproveAppointment confirms a pending appointment: generates meeting metadata, confirms the
// appointment, books the slot, then links the patient to the therapist on a best-effort basis.
func (e *Engine) ApproveAppointment(ctx context.Context, id uuid.UUID) (_ *appointment.Appointment, err error) {
	defer e.observe("approve", time.Now(), &err)

	a, err := e.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != appointment.StatusPending {
		return nil, errs.InvalidState("appointment %s is %s; only pending appointments can be approved", id, a.Status)
	}

	md := e.meetings.Generate(meetingInput(a), nil)
	confirmed := appointment.StatusConfirmed
	updated, err := e.appointments.Update(ctx, id, appointment.Patch{
		Status:       &confirmed,
		Meeting:      meetingFrom(md),
		ExpectStatus: []appointment.Status{appointment.StatusPending},
	})
	if err != nil {
		return nil, e.updateError(err, id, "approved")
	}

	if _, err := e.slots.Book(ctx, a.SlotID); err != nil {
		pending := appointment.StatusPending
		if _, revertErr := e.appointments.Update(context.WithoutCancel(ctx), id, appointment.Patch{
			Status:       &pending,
			ClearMeeting: true,
			ExpectStatus: []appointment.Status{appointment.StatusConfirmed},
		}); revertErr != nil {
			e.log.Error().Err(revertErr).Str("appointment_id", id.String()).Msg("failed to revert approval after slot booking error")
		}
		if errors.Is(err, slot.ErrStatusConflict) {
			return nil, errs.InvalidState("slot %s is not held for appointment %s", a.SlotID, id)
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}

	e.linkPatient(ctx, updated)

	e.logEvent(ctx, &updated.ID, updated.SlotID, eventlog.EventAppointmentApproved, map[string]any{
		"meeting_room":       updated.Meeting.Room,
		"meeting_expires_at": updated.Meeting.ExpiresAt,
	})
	return updated, nil
}

// linkPatient records the therapist on the patient's profile. Failure is logged and counted but
// never undoes the approval.
func (e *Engine) linkPatient(ctx context.Context, a *appointment.Appointment) {
	if e.profiles == nil {
		return
	}
	if err := e.profiles.LinkTherapist(ctx, a.PatientID, a.TherapistID); err != nil {
		e.metrics.IncLinkFailure()
		e.log.Warn().
			Err(fmt.Errorf("%w: %w", errs.ErrLinkingFailure, err)).
			Str("appointment_id", a.ID.String()).
			Str("patient_id", a.PatientID).
			Str("therapist_id", a.TherapistID).
			Msg("approval stands without profile link")
	}
}

// DeclineAppointment rejects a pending appointment and reopens its slot.
func (e *Engine) DeclineAppointment(ctx context.Context, id uuid.UUID) (_ *appointment.Appointment, err error) {
	defer e.observe("decline", time.Now(), &err)

	updated, err := e.terminate(ctx, id, appointment.StatusDeclined, []appointment.Status{appointment.StatusPending})
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, &updated.ID, updated.SlotID, eventlog.EventAppointmentDeclined, nil)
	return updated, nil
}

// CancelAppointment withdraws a pending or confirmed appointment, for either party, and reopens
// its slot.
func (e *Engine) CancelAppointment(ctx context.Context, id uuid.UUID) (_ *appointment.Appointment, err error) {
	defer e.observe("cancel", time.Now(), &err)

	updated, err := e.terminate(ctx, id, appointment.StatusCanceled,
		[]appointment.Status{appointment.StatusPending, appointment.StatusConfirmed})
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, &updated.ID, updated.SlotID, eventlog.EventAppointmentCanceled, nil)
	return updated, nil
}

func (e *Engine) terminate(ctx context.Context, id uuid.UUID, to appointment.Status, allowed []appointment.Status) (*appointment.Appointment, error) {
	a, err := e.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(a.Status, allowed) {
		return nil, errs.InvalidState("appointment %s is %s; cannot move to %s", id, a.Status, to)
	}

	canceled := appointment.SessionCanceled
	updated, err := e.appointments.Update(ctx, id, appointment.Patch{
		Status:        &to,
		SessionStatus: &canceled,
		ExpectStatus:  allowed,
	})
	if err != nil {
		return nil, e.updateError(err, id, string(to))
	}

	if err := e.reopenSlot(ctx, updated.SlotID); err != nil {
		return nil, err
	}
	return updated, nil
}

// reopenSlot returns a held or booked slot to open. A slot that is already open is left alone.
func (e *Engine) reopenSlot(ctx context.Context, slotID string) error {
	_, err := e.slots.Reopen(ctx, slotID)
	if errors.Is(err, slot.ErrStatusConflict) {
		e.log.Warn().Str("slot_id", slotID).Msg("slot already open while releasing appointment")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reopen slot %s: %w", slotID, err)
	}
	return nil
}

// CompletionInput is what the therapist supplies when finishing a session. Nil Meeting keeps the
// appointment's current meeting; nil Resources or FollowUp keep what an earlier completion stored.
type CompletionInput struct {
	SummaryNotes string
	Meeting      *consultation.MeetingSnapshot
	Resources    *consultation.Resources
	FollowUp     *consultation.FollowUp
	UpdatedBy    string
}

// CompleteAppointment writes the consultation record and marks the appointment completed.
// The stored historyId is checked first, so calling it again updates the same consultation.
//
// Completion is accepted from pending, confirmed or completed. Declined and canceled appointments
// are rejected as a product policy: they no longer own their slot, and completing them would book
// a slot another patient may already hold. A pending appointment is confirmed and its slot booked
// before the consultation is written, so a later failure leaves a consistent confirmed appointment
// that a retry can complete.
func (e *Engine) CompleteAppointment(ctx context.Context, id uuid.UUID, in CompletionInput) (_ *appointment.Appointment, err error) {
	defer e.observe("complete", time.Now(), &err)

	a, err := e.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(a.Status, []appointment.Status{appointment.StatusPending, appointment.StatusConfirmed, appointment.StatusCompleted}) {
		return nil, errs.InvalidState("appointment %s is %s and cannot be completed", id, a.Status)
	}

	if a.Status == appointment.StatusPending {
		if a, err = e.confirmAndBook(ctx, a); err != nil {
			return nil, err
		}
	}

	record, err := e.recordConsultation(ctx, a, in)
	if err != nil {
		return nil, err
	}

	completed := appointment.StatusCompleted
	sessionCompleted := appointment.SessionCompleted
	historyID := record.ID
	notes := in.SummaryNotes
	updated, err := e.appointments.Update(ctx, id, appointment.Patch{
		Status:        &completed,
		SessionStatus: &sessionCompleted,
		HistoryID:     &historyID,
		SummaryNotes:  &notes,
		ExpectStatus:  []appointment.Status{appointment.StatusConfirmed, appointment.StatusCompleted},
	})
	if err != nil {
		return nil, e.updateError(err, id, string(completed))
	}

	e.logEvent(ctx, &updated.ID, updated.SlotID, eventlog.EventAppointmentCompleted, map[string]any{
		"consultation_id": record.ID.String(),
		"updated_by":      in.UpdatedBy,
	})
	return updated, nil
}

// confirmAndBook moves a pending appointment to confirmed and then books its slot. The
// appointment's conditional write decides races with decline and cancel; if booking fails the
// appointment goes back to pending so it still matches its held slot.
func (e *Engine) confirmAndBook(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	confirmed := appointment.StatusConfirmed
	updated, err := e.appointments.Update(ctx, a.ID, appointment.Patch{
		Status:       &confirmed,
		ExpectStatus: []appointment.Status{appointment.StatusPending},
	})
	if err != nil {
		return nil, e.updateError(err, a.ID, "completed")
	}

	if _, err := e.slots.Book(ctx, a.SlotID); err != nil {
		pending := appointment.StatusPending
		if _, revertErr := e.appointments.Update(context.WithoutCancel(ctx), a.ID, appointment.Patch{
			Status:       &pending,
			ExpectStatus: []appointment.Status{appointment.StatusConfirmed},
		}); revertErr != nil {
			e.log.Error().Err(revertErr).Str("appointment_id", a.ID.String()).Msg("failed to revert confirmation after slot booking error")
		}
		if errors.Is(err, slot.ErrStatusConflict) {
			return nil, errs.InvalidState("slot %s is not held for appointment %s", a.SlotID, a.ID)
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}
	return updated, nil
}

func (e *Engine) recordConsultation(ctx context.Context, a *appointment.Appointment, in CompletionInput) (*consultation.Consultation, error) {
	payload := consultation.Consultation{
		AppointmentID: a.ID,
		TherapistID:   a.TherapistID,
		PatientID:     a.PatientID,
		StartsAt:      a.StartTime,
		EndsAt:        a.EndTime,
		SessionStatus: string(appointment.SessionCompleted),
		Meeting:       snapshotOf(a.Meeting),
		SummaryNotes:  in.SummaryNotes,
		CompletedAt:   e.now(),
		CreatedBy:     in.UpdatedBy,
		UpdatedBy:     in.UpdatedBy,
	}
	if in.Meeting != nil {
		payload.Meeting = *in.Meeting
	}
	if in.Resources != nil {
		payload.Resources = *in.Resources
	}
	if in.FollowUp != nil {
		payload.FollowUp = *in.FollowUp
	}

	if a.HistoryID != nil {
		existing, err := e.consultations.Get(ctx, *a.HistoryID)
		switch {
		case err == nil:
			if in.Resources == nil {
				payload.Resources = existing.Resources
			}
			if in.FollowUp == nil {
				payload.FollowUp = existing.FollowUp
			}
			updated, err := e.consultations.Update(ctx, existing.ID, payload)
			if err != nil {
				return nil, fmt.Errorf("update consultation: %w", err)
			}
			return updated, nil
		case errors.Is(err, consultation.ErrConsultationNotFound):
			e.log.Warn().Str("appointment_id", a.ID.String()).Str("history_id", a.HistoryID.String()).
				Msg("linked consultation missing, recording a new one")
		default:
			return nil, fmt.Errorf("load consultation: %w", err)
		}
	}

	created, err := e.consultations.Create(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}
	return created, nil
}

// RegenerateMeeting replaces the meeting details of a confirmed appointment.
func (e *Engine) RegenerateMeeting(ctx context.Context, id uuid.UUID, opts *meeting.Options) (_ *appointment.Appointment, err error) {
	defer e.observe("regenerate_meeting", time.Now(), &err)

	a, err := e.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != appointment.StatusConfirmed {
		return nil, errs.InvalidState("appointment %s is %s; meetings can only be regenerated for confirmed appointments", id, a.Status)
	}

	md := e.meetings.Generate(meetingInput(a), opts)
	updated, err := e.appointments.Update(ctx, id, appointment.Patch{
		Meeting:      meetingFrom(md),
		ExpectStatus: []appointment.Status{appointment.StatusConfirmed},
	})
	if err != nil {
		return nil, e.updateError(err, id, "regenerated")
	}

	e.logEvent(ctx, &updated.ID, updated.SlotID, eventlog.EventMeetingRegenerated, map[string]any{
		"meeting_room": updated.Meeting.Room,
	})
	return updated, nil
}

type DetailsInput struct {
	SummaryNotes *string
	MeetingURL   *string
}

// UpdateAppointmentDetails saves notes or a meeting link without touching any status.
func (e *Engine) UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, in DetailsInput) (_ *appointment.Appointment, err error) {
	defer e.observe("update_details", time.Now(), &err)

	if in.SummaryNotes == nil && in.MeetingURL == nil {
		return e.appointments.Get(ctx, id)
	}
	return e.appointments.Update(ctx, id, appointment.Patch{
		SummaryNotes: in.SummaryNotes,
		MeetingURL:   in.MeetingURL,
	})
}

func (e *Engine) updateError(err error, id uuid.UUID, target string) error {
	if errors.Is(err, appointment.ErrStatusConflict) {
		return errs.InvalidState("appointment %s changed concurrently and could not be %s", id, target)
	}
	if errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return fmt.Errorf("update appointment %s: %w", id, err)
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	e.metrics.ObserveOperation(op, outcome(*err), time.Since(start).Seconds())
	if *err != nil {
		e.log.Debug().Err(*err).Str("operation", op).Msg("scheduling operation failed")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, errs.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, errs.ErrSlotExpired):
		return "slot_expired"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

func statusIn(s appointment.Status, allowed []appointment.Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func meetingInput(a *appointment.Appointment) meeting.Input {
	return meeting.Input{
		TherapistID:   a.TherapistID,
		PatientID:     a.PatientID,
		AppointmentID: a.ID.String(),
		StartsAt:      a.StartTime,
		EndsAt:        a.EndTime,
	}
}

func meetingFrom(md meeting.Metadata) *appointment.Meeting {
	expires := md.ExpiresAt
	return &appointment.Meeting{
		Provider:  md.Provider,
		Room:      md.Room,
		URL:       md.URL,
		Config:    md.Config,
		ExpiresAt: &expires,
	}
}

func snapshotOf(m appointment.Meeting) consultation.MeetingSnapshot {
	return consultation.MeetingSnapshot{
		Provider:  m.Provider,
		Room:      m.Room,
		URL:       m.URL,
		ExpiresAt: m.ExpiresAt,
		Config:    m.Config,
	}
}
