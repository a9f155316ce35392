package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
	"github.com/hackgods/therapy-session-scheduling/internal/feed"
)

var allStatuses = []Status{StatusOpen, StatusHeld, StatusBooked}

// Store is the slot-facing API: publishing availability, listing, subscribing, and the
// conditional transitions the scheduling engine drives.
type Store struct {
	repo     Repository
	notifier feed.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewStore(repo Repository, notifier feed.Notifier, logger zerolog.Logger) *Store {
	return &Store{
		repo:     repo,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
}

// Publish upserts one open slot per interval. Re-publishing an existing start is idempotent and
// never reopens a held or booked slot.
func (s *Store) Publish(ctx context.Context, therapistID string, intervals []Interval) ([]Slot, error) {
	if therapistID == "" {
		return nil, fmt.Errorf("%w: therapist id is required", errs.ErrInvalidInput)
	}
	for _, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return nil, err
		}
	}

	published := make([]Slot, 0, len(intervals))
	for _, iv := range intervals {
		stored, err := s.repo.Upsert(ctx, Slot{
			ID:          CanonicalID(therapistID, iv.StartsAt),
			TherapistID: therapistID,
			StartsAt:    iv.StartsAt.UTC(),
			EndsAt:      iv.EndsAt.UTC(),
			Status:      StatusOpen,
		})
		if err != nil {
			return nil, err
		}
		published = append(published, *stored)
	}

	if len(published) > 0 {
		s.notify(ctx, therapistID)
	}
	return published, nil
}

// ListOpen returns open and held slots starting at or after from, ascending. A zero from means now.
// Held slots are included so viewers can render them as reserved.
func (s *Store) ListOpen(ctx context.Context, therapistID string, from time.Time) ([]Slot, error) {
	if from.IsZero() {
		from = s.now()
	}
	return s.repo.ListByTherapist(ctx, therapistID, from, []Status{StatusOpen, StatusHeld})
}

// Subscribe streams the therapist's complete, time ordered slot list after every slot write.
func (s *Store) Subscribe(ctx context.Context, therapistID string) (*feed.Subscription[Slot], error) {
	return feed.Watch(ctx, s.notifier, feed.SlotsTopic(therapistID), func(ctx context.Context) ([]Slot, error) {
		return s.repo.ListByTherapist(ctx, therapistID, time.Time{}, allStatuses)
	})
}

// Delete retracts unbooked availability. Only open slots owned by therapistID may be deleted.
func (s *Store) Delete(ctx context.Context, therapistID, slotID string) error {
	current, err := s.repo.Get(ctx, slotID)
	if err != nil {
		return err
	}
	if current.TherapistID != therapistID {
		return ErrSlotNotFound
	}
	if current.Status != StatusOpen {
		return errs.InvalidState("slot %s is %s; only open slots can be deleted", slotID, current.Status)
	}

	if err := s.repo.Delete(ctx, slotID); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return errs.InvalidState("slot %s is no longer open; only open slots can be deleted", slotID)
		}
		return err
	}

	s.notify(ctx, therapistID)
	return nil
}

func (s *Store) Get(ctx context.Context, slotID string) (*Slot, error) {
	return s.repo.Get(ctx, slotID)
}

// Hold moves an open slot to held for patientID. The conditional write is the arbiter of
// concurrent requests: exactly one caller gets the slot, the rest see ErrStatusConflict.
func (s *Store) Hold(ctx context.Context, slotID, patientID string) (*Slot, error) {
	return s.transition(ctx, slotID, []Status{StatusOpen}, StatusHeld, &patientID)
}

// Book moves a held slot to booked.
func (s *Store) Book(ctx context.Context, slotID string) (*Slot, error) {
	return s.transition(ctx, slotID, []Status{StatusHeld}, StatusBooked, nil)
}

// Reopen returns a held or booked slot to open and clears requestedBy.
func (s *Store) Reopen(ctx context.Context, slotID string) (*Slot, error) {
	return s.transition(ctx, slotID, []Status{StatusHeld, StatusBooked}, StatusOpen, nil)
}

// HeldBefore lists slots that have been held since before cutoff.
func (s *Store) HeldBefore(ctx context.Context, cutoff time.Time) ([]Slot, error) {
	return s.repo.ListHeldBefore(ctx, cutoff)
}

func (s *Store) transition(ctx context.Context, slotID string, from []Status, to Status, requestedBy *string) (*Slot, error) {
	updated, err := s.repo.Transition(ctx, slotID, from, to, requestedBy)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.TherapistID)
	return updated, nil
}

func (s *Store) notify(ctx context.Context, therapistID string) {
	if err := s.notifier.Notify(ctx, feed.SlotsTopic(therapistID)); err != nil {
		s.log.Warn().Err(err).Str("therapist_id", therapistID).Msg("slot change notification failed")
	}
}
