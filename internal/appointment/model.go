package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCanceled   SessionStatus = "canceled"
)

const (
	// DefaultStatus is what an unrecognized stored status reads back as.
	DefaultStatus = StatusPending
	// DefaultSessionStatus is what an unrecognized stored session status reads back as.
	DefaultSessionStatus = SessionScheduled
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", errs.ErrNotFound)

	// ErrStatusConflict means a conditional update found the appointment in an unexpected status.
	ErrStatusConflict = errors.New("appointment status changed concurrently")

	// ErrSlotAlreadyClaimed means another active appointment already references the slot.
	ErrSlotAlreadyClaimed = errors.New("slot already has an active appointment")
)

// NormalizeStatus maps a stored status string onto a known Status, falling back to DefaultStatus.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending
	case "confirmed", "approved":
		return StatusConfirmed
	case "declined", "rejected":
		return StatusDeclined
	case "canceled", "cancelled":
		return StatusCanceled
	case "completed":
		return StatusCompleted
	}
	return DefaultStatus
}

// NormalizeSessionStatus maps a stored session status onto a known value, falling back to
// DefaultSessionStatus.
func NormalizeSessionStatus(raw string) SessionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scheduled":
		return SessionScheduled
	case "in_progress", "in-progress", "inprogress":
		return SessionInProgress
	case "completed":
		return SessionCompleted
	case "canceled", "cancelled":
		return SessionCanceled
	}
	return DefaultSessionStatus
}

// IsActive reports whether the appointment still claims its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCompleted
}

func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCanceled || s == StatusCompleted
}

// Meeting holds the virtual room details. It is empty until the appointment is approved.
type Meeting struct {
	Provider  string
	Room      string
	URL       string
	Config    map[string]any
	ExpiresAt *time.Time
}

func (m Meeting) IsZero() bool {
	return m.Provider == "" && m.Room == "" && m.URL == "" && len(m.Config) == 0 && m.ExpiresAt == nil
}

type Appointment struct {
	ID            uuid.UUID
	TherapistID   string
	PatientID     string
	SlotID        string
	SlotStartsAt  time.Time
	SlotEndsAt    time.Time
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	SessionStatus SessionStatus
	Meeting       Meeting
	SummaryNotes  string
	HistoryID     *uuid.UUID
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Patch is a partial update. Nil fields are left unchanged. ExpectStatus, when set, makes the
// update conditional on the stored status being one of the listed values.
type Patch struct {
	Status        *Status
	SessionStatus *SessionStatus
	Meeting       *Meeting
	ClearMeeting  bool
	MeetingURL    *string
	SummaryNotes  *string
	HistoryID     *uuid.UUID
	ExpectStatus  []Status
}

// Apply merges p into a. Used by in-memory stores; Postgres applies the same rules in SQL.
func (p Patch) Apply(a *Appointment) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.SessionStatus != nil {
		a.SessionStatus = *p.SessionStatus
	}
	if p.ClearMeeting {
		a.Meeting = Meeting{}
	}
	if p.Meeting != nil {
		a.Meeting = *p.Meeting
	}
	if p.MeetingURL != nil {
		a.Meeting.URL = *p.MeetingURL
	}
	if p.SummaryNotes != nil {
		a.SummaryNotes = *p.SummaryNotes
	}
	if p.HistoryID != nil {
		id := *p.HistoryID
		a.HistoryID = &id
	}
}

// Allows reports whether the conditional part of the patch accepts current.
func (p Patch) Allows(current Status) bool {
	if len(p.ExpectStatus) == 0 {
		return true
	}
	for _, s := range p.ExpectStatus {
		if s == current {
			return true
		}
	}
	return false
}

func normalize(a *Appointment) {
	a.Status = NormalizeStatus(string(a.Status))
	a.SessionStatus = NormalizeSessionStatus(string(a.SessionStatus))
}
