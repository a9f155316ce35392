package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/errs"
	"github.com/hackgods/therapy-session-scheduling/internal/eventlog"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

// ReleaseStaleHolds cancels pending requests whose slot has been held longer than the hold TTL and
// reopens those slots. It returns the number of slots released. A zero TTL disables it.
func (e *Engine) ReleaseStaleHolds(ctx context.Context) (released int, err error) {
	defer e.observe("release_stale_holds", time.Now(), &err)

	if e.cfg.HoldTTL <= 0 {
		return 0, nil
	}

	cutoff := e.now().Add(-e.cfg.HoldTTL)
	stale, err := e.slots.HeldBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, s := range stale {
		if err := ctx.Err(); err != nil {
			return released, err
		}

		ok, err := e.releaseHold(ctx, s)
		if err != nil {
			e.log.Error().Err(err).Str("slot_id", s.ID).Msg("failed to release stale hold")
			continue
		}
		if ok {
			released++
		}
	}

	e.metrics.AddHoldsReleased(released)
	if released > 0 {
		e.log.Info().Int("released", released).Time("cutoff", cutoff).Msg("released stale slot holds")
	}
	return released, nil
}

func (e *Engine) releaseHold(ctx context.Context, s slot.Slot) (bool, error) {
	var apptID *uuid.UUID

	a, err := e.appointments.FindActiveBySlot(ctx, s.ID)
	switch {
	case err == nil:
		if a.Status != appointment.StatusPending {
			// an approval is in flight between the appointment and slot writes
			return false, nil
		}
		canceled := appointment.StatusCanceled
		sessionCanceled := appointment.SessionCanceled
		if _, err := e.appointments.Update(ctx, a.ID, appointment.Patch{
			Status:        &canceled,
			SessionStatus: &sessionCanceled,
			ExpectStatus:  []appointment.Status{appointment.StatusPending},
		}); err != nil {
			if errors.Is(err, appointment.ErrStatusConflict) {
				return false, nil
			}
			return false, err
		}
		apptID = &a.ID
	case errors.Is(err, errs.ErrNotFound):
		// orphaned hold left by a failed request
	default:
		return false, err
	}

	if _, err := e.slots.Reopen(ctx, s.ID); err != nil {
		if errors.Is(err, slot.ErrStatusConflict) {
			return false, nil
		}
		return false, err
	}

	payload := map[string]any{}
	if s.HeldAt != nil {
		payload["held_at"] = *s.HeldAt
	}
	if s.RequestedBy != nil {
		payload["requested_by"] = *s.RequestedBy
	}
	e.logEvent(ctx, apptID, s.ID, eventlog.EventHoldReleased, payload)
	return true, nil
}

// ReopenSlot is the operator path for a slot stuck in held or booked. It refuses while an active
// appointment still owns the slot; that appointment has to be declined or canceled instead.
func (e *Engine) ReopenSlot(ctx context.Context, slotID string) (_ *slot.Slot, err error) {
	defer e.observe("reopen_slot", time.Now(), &err)

	s, err := e.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if s.Status == slot.StatusOpen {
		return nil, errs.InvalidState("slot %s is already open", slotID)
	}

	a, err := e.appointments.FindActiveBySlot(ctx, slotID)
	if err == nil {
		return nil, errs.InvalidState("slot %s belongs to %s appointment %s", slotID, a.Status, a.ID)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	reopened, err := e.slots.Reopen(ctx, slotID)
	if err != nil {
		if errors.Is(err, slot.ErrStatusConflict) {
			return nil, errs.InvalidState("slot %s changed concurrently", slotID)
		}
		return nil, err
	}

	e.logEvent(ctx, nil, slotID, eventlog.EventSlotReopened, map[string]any{"previous_status": s.Status})
	return reopened, nil
}

func (e *Engine) logEvent(ctx context.Context, appointmentID *uuid.UUID, slotID, eventType string, payload map[string]any) {
	if e.events == nil {
		return
	}

	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			e.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		} else {
			raw = b
		}
	}

	if err := e.events.Append(context.WithoutCancel(ctx), eventlog.Event{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       raw,
	}); err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to append event log")
	}
}
