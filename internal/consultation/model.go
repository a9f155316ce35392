package consultation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
)

var ErrConsultationNotFound = fmt.Errorf("consultation %w", errs.ErrNotFound)

// MeetingSnapshot freezes the meeting details as they were when the session completed.
type MeetingSnapshot struct {
	Provider  string         `json:"provider,omitempty"`
	Room      string         `json:"room,omitempty"`
	URL       string         `json:"url,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// Resources are references (typically media URLs) handed to the patient after a session.
type Resources struct {
	Playlists []string `json:"playlists"`
	Exercises []string `json:"exercises"`
	Files     []string `json:"files"`
}

type FollowUp struct {
	Tasks      []string   `json:"tasks"`
	ReminderAt *time.Time `json:"reminderAt,omitempty"`
}

// Consultation is the durable record of a completed session.
type Consultation struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	TherapistID   string
	PatientID     string
	StartsAt      time.Time
	EndsAt        time.Time
	SessionStatus string
	Meeting       MeetingSnapshot
	SummaryNotes  string
	Resources     Resources
	FollowUp      FollowUp
	CompletedAt   time.Time
	CreatedBy     string
	UpdatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
