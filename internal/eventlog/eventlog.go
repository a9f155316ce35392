// Package eventlog keeps an append-only audit trail of scheduling transitions.
package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/db"
)

const (
	EventAppointmentRequested = "APPOINTMENT_REQUESTED"
	EventAppointmentApproved  = "APPOINTMENT_APPROVED"
	EventAppointmentDeclined  = "APPOINTMENT_DECLINED"
	EventAppointmentCanceled  = "APPOINTMENT_CANCELED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventMeetingRegenerated   = "MEETING_REGENERATED"
	EventHoldReleased         = "HOLD_RELEASED"
	EventSlotReopened         = "SLOT_REOPENED"
)

type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        string
	Payload       []byte
	CreatedAt     time.Time
}

type Sink interface {
	Append(ctx context.Context, ev Event) error
}

type PgSink struct {
	db db.DBTX
}

func NewPgSink(conn db.DBTX) *PgSink {
	return &PgSink{db: conn}
}

func (s *PgSink) Append(ctx context.Context, ev Event) error {
	var slotID *string
	if ev.SlotID != "" {
		slotID = &ev.SlotID
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, slotID, ev.Payload, nullableTime(ev.CreatedAt))
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

// Memory keeps events in process. Used with the in-memory store and in tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the event types in append order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}
