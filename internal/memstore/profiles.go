package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/hackgods/therapy-session-scheduling/internal/profile"
)

type Profiles struct {
	mu    sync.Mutex
	items map[string]profile.Profile
}

func NewProfiles(seed ...profile.Profile) *Profiles {
	p := &Profiles{items: make(map[string]profile.Profile)}
	for _, s := range seed {
		p.items[s.UID] = s
	}
	return p
}

func (m *Profiles) Put(p profile.Profile) {
	m.mu.Lock()
	m.items[p.UID] = p
	m.mu.Unlock()
}

func (m *Profiles) Get(_ context.Context, uid string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.items[uid]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	return &p, nil
}

func (m *Profiles) GetMany(_ context.Context, uids []string) (map[string]profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]profile.Profile, len(uids))
	for _, uid := range uids {
		if p, ok := m.items[uid]; ok {
			out[uid] = p
		}
	}
	return out, nil
}

func (m *Profiles) LinkTherapist(_ context.Context, patientUID, therapistUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.items[patientUID]
	if !ok || p.Role != profile.RolePatient {
		return profile.ErrProfileNotFound
	}
	p.TherapistUID = &therapistUID
	p.UpdatedAt = time.Now()
	m.items[patientUID] = p
	return nil
}
