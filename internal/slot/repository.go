package slot

import (
	"context"
	"time"
)

// Repository is the storage contract for slots. Transition and Delete are conditional
// single-row writes: they only apply when the stored status is one of the allowed ones,
// returning ErrStatusConflict otherwise.
type Repository interface {
	// Upsert inserts an open slot, or refreshes ends_at on an existing slot that is still open.
	// Existing held or booked slots are returned untouched.
	Upsert(ctx context.Context, s Slot) (*Slot, error)
	Get(ctx context.Context, id string) (*Slot, error)
	ListByTherapist(ctx context.Context, therapistID string, from time.Time, statuses []Status) ([]Slot, error)
	Transition(ctx context.Context, id string, from []Status, to Status, requestedBy *string) (*Slot, error)
	Delete(ctx context.Context, id string) error

	// Sweeper
	ListHeldBefore(ctx context.Context, cutoff time.Time) ([]Slot, error)
}
