package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
	"github.com/hackgods/therapy-session-scheduling/internal/feed"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
)

// Store wraps the repository with change notifications and status normalization.
// Only the scheduling engine should write through it.
type Store struct {
	repo     Repository
	notifier feed.Notifier
	log      zerolog.Logger
}

func NewStore(repo Repository, notifier feed.Notifier, logger zerolog.Logger) *Store {
	return &Store{repo: repo, notifier: notifier, log: logger}
}

// Create inserts a new appointment. The caller supplies the initial status.
func (s *Store) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.StartTime.IsZero() {
		a.StartTime = a.SlotStartsAt
	}
	if a.EndTime.IsZero() {
		a.EndTime = a.SlotEndsAt
	}

	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	normalize(created)
	s.notify(ctx, created)
	return created, nil
}

// Update merges the patch into the stored appointment and stamps updatedAt.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	updated, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	normalize(updated)
	s.notify(ctx, updated)
	return updated, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	normalize(a)
	return a, nil
}

// FindActiveBySlot returns the pending, confirmed or completed appointment holding slotID.
func (s *Store) FindActiveBySlot(ctx context.Context, slotID string) (*Appointment, error) {
	a, err := s.repo.FindActiveBySlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	normalize(a)
	return a, nil
}

// ListByUser is a one-shot fetch ordered by start time, for callers that do not need a stream.
func (s *Store) ListByUser(ctx context.Context, userID string, role profile.Role) ([]Appointment, error) {
	var (
		items []Appointment
		err   error
	)
	switch role {
	case profile.RoleTherapist:
		items, err = s.repo.ListByTherapist(ctx, userID)
	case profile.RolePatient:
		items, err = s.repo.ListByPatient(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, role)
	}
	if err != nil {
		return nil, err
	}
	return normalizeAll(items), nil
}

func (s *Store) SubscribeByTherapist(ctx context.Context, therapistID string) (*feed.Subscription[Appointment], error) {
	return feed.Watch(ctx, s.notifier, feed.TherapistAppointmentsTopic(therapistID), func(ctx context.Context) ([]Appointment, error) {
		items, err := s.repo.ListByTherapist(ctx, therapistID)
		return normalizeAll(items), err
	})
}

func (s *Store) SubscribeByPatient(ctx context.Context, patientID string) (*feed.Subscription[Appointment], error) {
	return feed.Watch(ctx, s.notifier, feed.PatientAppointmentsTopic(patientID), func(ctx context.Context) ([]Appointment, error) {
		items, err := s.repo.ListByPatient(ctx, patientID)
		return normalizeAll(items), err
	})
}

func normalizeAll(items []Appointment) []Appointment {
	for i := range items {
		normalize(&items[i])
	}
	return items
}

func (s *Store) notify(ctx context.Context, a *Appointment) {
	for _, topic := range []string{
		feed.TherapistAppointmentsTopic(a.TherapistID),
		feed.PatientAppointmentsTopic(a.PatientID),
	} {
		if err := s.notifier.Notify(ctx, topic); err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Str("appointment_id", a.ID.String()).Msg("appointment change notification failed")
		}
	}
}
