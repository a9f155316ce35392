package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RolePatient, RoleTherapist:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, raw)
}

var ErrProfileNotFound = fmt.Errorf("profile %w", errs.ErrNotFound)

// Profile is the identity provider's view of a user. TherapistUID is only meaningful for patients.
type Profile struct {
	UID          string
	Role         Role
	DisplayName  string
	Email        string
	TherapistUID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Directory reads profiles and writes the patient to therapist link.
type Directory interface {
	Get(ctx context.Context, uid string) (*Profile, error)
	GetMany(ctx context.Context, uids []string) (map[string]Profile, error)
	LinkTherapist(ctx context.Context, patientUID, therapistUID string) error
}
