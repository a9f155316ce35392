// Package memstore is an in-process document store implementing the repository contracts.
// Every conditional write runs under one mutex per collection, which gives the same
// single-document compare-and-swap guarantee the Postgres repositories get from
// UPDATE ... WHERE status = ANY(...).
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

type Slots struct {
	mu    sync.Mutex
	items map[string]slot.Slot
	now   func() time.Time
}

func NewSlots() *Slots {
	return &Slots{items: make(map[string]slot.Slot), now: time.Now}
}

func copySlot(s slot.Slot) *slot.Slot {
	if s.RequestedBy != nil {
		v := *s.RequestedBy
		s.RequestedBy = &v
	}
	if s.HeldAt != nil {
		v := *s.HeldAt
		s.HeldAt = &v
	}
	return &s
}

func (m *Slots) Upsert(_ context.Context, s slot.Slot) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.items[s.ID]; ok {
		if existing.Status == slot.StatusOpen {
			existing.EndsAt = s.EndsAt
			existing.UpdatedAt = now
			m.items[s.ID] = existing
		}
		return copySlot(m.items[s.ID]), nil
	}

	s.Status = slot.StatusOpen
	s.RequestedBy = nil
	s.HeldAt = nil
	s.Version = 0
	s.CreatedAt = now
	s.UpdatedAt = now
	m.items[s.ID] = s
	return copySlot(s), nil
}

func (m *Slots) Get(_ context.Context, id string) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[id]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	return copySlot(s), nil
}

func (m *Slots) ListByTherapist(_ context.Context, therapistID string, from time.Time, statuses []slot.Status) ([]slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []slot.Slot
	for _, s := range m.items {
		if s.TherapistID != therapistID || s.StartsAt.Before(from) || !slices.Contains(statuses, s.Status) {
			continue
		}
		out = append(out, *copySlot(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *Slots) Transition(_ context.Context, id string, from []slot.Status, to slot.Status, requestedBy *string) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[id]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	if !slices.Contains(from, s.Status) {
		return nil, slot.ErrStatusConflict
	}

	now := m.now()
	s.Status = to
	s.RequestedBy = nil
	if requestedBy != nil {
		v := *requestedBy
		s.RequestedBy = &v
	}
	s.HeldAt = nil
	if to == slot.StatusHeld {
		s.HeldAt = &now
	}
	s.Version++
	s.UpdatedAt = now
	m.items[id] = s
	return copySlot(s), nil
}

func (m *Slots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if s.Status != slot.StatusOpen {
		return slot.ErrStatusConflict
	}
	delete(m.items, id)
	return nil
}

func (m *Slots) ListHeldBefore(_ context.Context, cutoff time.Time) ([]slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []slot.Slot
	for _, s := range m.items {
		if s.Status == slot.StatusHeld && s.HeldAt != nil && s.HeldAt.Before(cutoff) {
			out = append(out, *copySlot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldAt.Before(*out[j].HeldAt) })
	return out, nil
}

// SetClock replaces the clock used for timestamps, for tests that age holds.
func (m *Slots) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}
