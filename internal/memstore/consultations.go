package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
)

type Consultations struct {
	mu    sync.Mutex
	items map[uuid.UUID]consultation.Consultation
	now   func() time.Time
}

func NewConsultations() *Consultations {
	return &Consultations{items: make(map[uuid.UUID]consultation.Consultation), now: time.Now}
}

func (m *Consultations) Create(_ context.Context, c consultation.Consultation) (*consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.items[c.ID] = c
	return &c, nil
}

func (m *Consultations) Update(_ context.Context, id uuid.UUID, c consultation.Consultation) (*consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[id]
	if !ok {
		return nil, consultation.ErrConsultationNotFound
	}

	c.ID = id
	c.AppointmentID = existing.AppointmentID
	c.TherapistID = existing.TherapistID
	c.PatientID = existing.PatientID
	c.CreatedBy = existing.CreatedBy
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = m.now()
	m.items[id] = c
	return &c, nil
}

func (m *Consultations) Get(_ context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.items[id]
	if !ok {
		return nil, consultation.ErrConsultationNotFound
	}
	return &c, nil
}

func (m *Consultations) list(match func(consultation.Consultation) bool) []consultation.Consultation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []consultation.Consultation
	for _, c := range m.items {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (m *Consultations) ListByPatient(_ context.Context, patientID string) ([]consultation.Consultation, error) {
	return m.list(func(c consultation.Consultation) bool { return c.PatientID == patientID }), nil
}

func (m *Consultations) ListByTherapist(_ context.Context, therapistID string) ([]consultation.Consultation, error) {
	return m.list(func(c consultation.Consultation) bool { return c.TherapistID == therapistID }), nil
}

// Len reports how many consultation documents exist.
func (m *Consultations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
