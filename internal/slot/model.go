package slot

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusHeld   Status = "held"
	StatusBooked Status = "booked"
)

var (
	ErrSlotNotFound = fmt.Errorf("slot %w", errs.ErrNotFound)

	// ErrStatusConflict means a conditional write found the slot in a different status than required.
	ErrStatusConflict = errors.New("slot status changed concurrently")
)

// Slot is one bookable interval owned by a single therapist.
type Slot struct {
	ID          string
	TherapistID string
	StartsAt    time.Time
	EndsAt      time.Time
	Status      Status
	RequestedBy *string // set only while held
	HeldAt      *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Interval struct {
	StartsAt time.Time
	EndsAt   time.Time
}

func (i Interval) Validate() error {
	if i.StartsAt.IsZero() || i.EndsAt.IsZero() {
		return fmt.Errorf("%w: interval bounds are required", errs.ErrInvalidInput)
	}
	if !i.EndsAt.After(i.StartsAt) {
		return fmt.Errorf("%w: interval must end after it starts (%s >= %s)",
			errs.ErrInvalidInput, i.StartsAt.Format(time.RFC3339), i.EndsAt.Format(time.RFC3339))
	}
	return nil
}

// CanonicalID derives the slot id from its owner and start instant, so publishing the same
// start twice addresses the same slot.
func CanonicalID(therapistID string, startsAt time.Time) string {
	return therapistID + "_" + startsAt.UTC().Format("20060102T150405Z")
}

// CanTransition reports whether the slot state machine allows from -> to.
// OPEN never goes straight to BOOKED.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusHeld
	case StatusHeld:
		return to == StatusBooked || to == StatusOpen
	case StatusBooked:
		return to == StatusOpen
	}
	return false
}

func (s Slot) IsRequestedBy(patientID string) bool {
	return s.RequestedBy != nil && *s.RequestedBy == patientID
}
