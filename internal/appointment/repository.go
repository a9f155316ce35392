package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the appointment store.
type Repository interface {
	Create(ctx context.Context, a Appointment) (*Appointment, error)
	Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Ordered by start time ascending
	ListByTherapist(ctx context.Context, therapistID string) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]Appointment, error)

	// For slot conflict checks
	FindActiveBySlot(ctx context.Context, slotID string) (*Appointment, error)
}
