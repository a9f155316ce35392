package consultation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c Consultation) (*Consultation, error)
	// Update overwrites the mutable fields of an existing record; CreatedBy and CreatedAt are kept.
	Update(ctx context.Context, id uuid.UUID, c Consultation) (*Consultation, error)
	Get(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ListByPatient(ctx context.Context, patientID string) ([]Consultation, error)
	ListByTherapist(ctx context.Context, therapistID string) ([]Consultation, error)
}
