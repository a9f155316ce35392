package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
)

type Appointments struct {
	mu    sync.Mutex
	items map[uuid.UUID]appointment.Appointment
	now   func() time.Time
}

func NewAppointments() *Appointments {
	return &Appointments{items: make(map[uuid.UUID]appointment.Appointment), now: time.Now}
}

func copyAppointment(a appointment.Appointment) *appointment.Appointment {
	if a.Meeting.Config != nil {
		a.Meeting.Config = maps.Clone(a.Meeting.Config)
	}
	if a.Meeting.ExpiresAt != nil {
		v := *a.Meeting.ExpiresAt
		a.Meeting.ExpiresAt = &v
	}
	if a.HistoryID != nil {
		v := *a.HistoryID
		a.HistoryID = &v
	}
	return &a
}

func (m *Appointments) Create(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if appointment.NormalizeStatus(string(a.Status)).IsActive() {
		for _, other := range m.items {
			if other.SlotID == a.SlotID && appointment.NormalizeStatus(string(other.Status)).IsActive() {
				return nil, appointment.ErrSlotAlreadyClaimed
			}
		}
	}

	now := m.now()
	a.Version = 0
	a.CreatedAt = now
	a.UpdatedAt = now
	m.items[a.ID] = *copyAppointment(a)
	return copyAppointment(a), nil
}

func (m *Appointments) Update(_ context.Context, id uuid.UUID, p appointment.Patch) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.items[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if !p.Allows(appointment.NormalizeStatus(string(a.Status))) {
		return nil, appointment.ErrStatusConflict
	}

	p.Apply(&a)
	a.Version++
	a.UpdatedAt = m.now()
	m.items[id] = *copyAppointment(a)
	return copyAppointment(a), nil
}

func (m *Appointments) Get(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.items[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return copyAppointment(a), nil
}

func (m *Appointments) list(match func(appointment.Appointment) bool) []appointment.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []appointment.Appointment
	for _, a := range m.items {
		if match(a) {
			out = append(out, *copyAppointment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *Appointments) ListByTherapist(_ context.Context, therapistID string) ([]appointment.Appointment, error) {
	return m.list(func(a appointment.Appointment) bool { return a.TherapistID == therapistID }), nil
}

func (m *Appointments) ListByPatient(_ context.Context, patientID string) ([]appointment.Appointment, error) {
	return m.list(func(a appointment.Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *Appointments) FindActiveBySlot(_ context.Context, slotID string) (*appointment.Appointment, error) {
	active := m.list(func(a appointment.Appointment) bool {
		return a.SlotID == slotID && appointment.NormalizeStatus(string(a.Status)).IsActive()
	})
	if len(active) == 0 {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &active[0], nil
}

// ListBySlot returns every appointment that ever referenced slotID, for invariant checks in tests.
func (m *Appointments) ListBySlot(slotID string) []appointment.Appointment {
	return m.list(func(a appointment.Appointment) bool { return a.SlotID == slotID })
}

// PutRaw stores a as is, bypassing normalization, to simulate documents written by older clients.
func (m *Appointments) PutRaw(a appointment.Appointment) {
	m.mu.Lock()
	m.items[a.ID] = *copyAppointment(a)
	m.mu.Unlock()
}
