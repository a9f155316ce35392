package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/feed"
)

// Recorder is CRUD over consultations plus per-patient and per-therapist streams.
// One consultation per completed appointment is enforced by the scheduling engine, not here.
type Recorder struct {
	repo     Repository
	notifier feed.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewRecorder(repo Repository, notifier feed.Notifier, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, notifier: notifier, log: logger, now: time.Now}
}

func (r *Recorder) Create(ctx context.Context, c Consultation) (*Consultation, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = r.now()
	}
	created, err := r.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	r.notify(ctx, created)
	return created, nil
}

func (r *Recorder) Update(ctx context.Context, id uuid.UUID, c Consultation) (*Consultation, error) {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = r.now()
	}
	updated, err := r.repo.Update(ctx, id, c)
	if err != nil {
		return nil, err
	}
	r.notify(ctx, updated)
	return updated, nil
}

func (r *Recorder) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return r.repo.Get(ctx, id)
}

func (r *Recorder) ListByPatient(ctx context.Context, patientID string) ([]Consultation, error) {
	return r.repo.ListByPatient(ctx, patientID)
}

func (r *Recorder) ListByTherapist(ctx context.Context, therapistID string) ([]Consultation, error) {
	return r.repo.ListByTherapist(ctx, therapistID)
}

func (r *Recorder) SubscribeByPatient(ctx context.Context, patientID string) (*feed.Subscription[Consultation], error) {
	return feed.Watch(ctx, r.notifier, feed.PatientConsultationsTopic(patientID), func(ctx context.Context) ([]Consultation, error) {
		return r.repo.ListByPatient(ctx, patientID)
	})
}

func (r *Recorder) SubscribeByTherapist(ctx context.Context, therapistID string) (*feed.Subscription[Consultation], error) {
	return feed.Watch(ctx, r.notifier, feed.TherapistConsultationsTopic(therapistID), func(ctx context.Context) ([]Consultation, error) {
		return r.repo.ListByTherapist(ctx, therapistID)
	})
}

func (r *Recorder) notify(ctx context.Context, c *Consultation) {
	for _, topic := range []string{
		feed.TherapistConsultationsTopic(c.TherapistID),
		feed.PatientConsultationsTopic(c.PatientID),
	} {
		if err := r.notifier.Notify(ctx, topic); err != nil {
			r.log.Warn().Err(err).Str("topic", topic).Msg("consultation change notification failed")
		}
	}
}
