package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/therapy-session-scheduling/internal/db"
)

const appointmentColumns = `id, therapist_id, patient_id, slot_id, slot_starts_at, slot_ends_at, start_time, end_time,
	status, session_status, meeting_provider, meeting_room, meeting_url, meeting_config, meeting_expires_at,
	summary_notes, history_id, version, created_at, updated_at`

const uniqueViolation = "23505"

// normalizedStatus is NormalizeStatus in SQL. Rows written by older clients may still carry
// spellings like 'Approved' or 'cancelled', so every status predicate compares through it.
const normalizedStatus = `(CASE lower(btrim(status))
		WHEN 'confirmed' THEN 'confirmed'
		WHEN 'approved' THEN 'confirmed'
		WHEN 'declined' THEN 'declined'
		WHEN 'rejected' THEN 'declined'
		WHEN 'canceled' THEN 'canceled'
		WHEN 'cancelled' THEN 'canceled'
		WHEN 'completed' THEN 'completed'
		ELSE 'pending'
	END)`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var provider, room, url *string
	var config []byte
	var expiresAt *time.Time
	var status, sessionStatus string

	err := row.Scan(
		&a.ID,
		&a.TherapistID,
		&a.PatientID,
		&a.SlotID,
		&a.SlotStartsAt,
		&a.SlotEndsAt,
		&a.StartTime,
		&a.EndTime,
		&status,
		&sessionStatus,
		&provider,
		&room,
		&url,
		&config,
		&expiresAt,
		&a.SummaryNotes,
		&a.HistoryID,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	a.SessionStatus = SessionStatus(sessionStatus)
	a.Meeting = Meeting{
		Provider:  deref(provider),
		Room:      deref(room),
		URL:       deref(url),
		ExpiresAt: expiresAt,
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &a.Meeting.Config); err != nil {
			return nil, fmt.Errorf("decode meeting config for %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeConfig(cfg map[string]any) ([]byte, error) {
	if len(cfg) == 0 {
		return nil, nil
	}
	return json.Marshal(cfg)
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	config, err := encodeConfig(a.Meeting.Config)
	if err != nil {
		return nil, fmt.Errorf("encode meeting config: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, therapist_id, patient_id, slot_id, slot_starts_at, slot_ends_at,
			start_time, end_time, status, session_status, meeting_provider, meeting_room, meeting_url,
			meeting_config, meeting_expires_at, summary_notes, history_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 0, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.TherapistID, a.PatientID, a.SlotID, a.SlotStartsAt, a.SlotEndsAt,
		a.StartTime, a.EndTime, string(a.Status), string(a.SessionStatus),
		nullable(a.Meeting.Provider), nullable(a.Meeting.Room), nullable(a.Meeting.URL),
		config, a.Meeting.ExpiresAt, a.SummaryNotes, a.HistoryID,
	)
	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotAlreadyClaimed
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

// Update builds the SET clause from the non-nil patch fields. A conditional patch that matches
// no row is reported as ErrStatusConflict when the appointment exists.
func (r *PgRepository) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	sets := []string{"version = version + 1", "updated_at = now()"}
	args := []any{id}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.SessionStatus != nil {
		add("session_status", string(*p.SessionStatus))
	}
	if p.ClearMeeting && p.Meeting == nil {
		p.Meeting = &Meeting{}
	}
	if p.Meeting != nil {
		config, err := encodeConfig(p.Meeting.Config)
		if err != nil {
			return nil, fmt.Errorf("encode meeting config: %w", err)
		}
		add("meeting_provider", nullable(p.Meeting.Provider))
		add("meeting_room", nullable(p.Meeting.Room))
		if p.MeetingURL == nil {
			add("meeting_url", nullable(p.Meeting.URL))
		}
		add("meeting_config", config)
		add("meeting_expires_at", p.Meeting.ExpiresAt)
	}
	if p.MeetingURL != nil {
		add("meeting_url", nullable(*p.MeetingURL))
	}
	if p.SummaryNotes != nil {
		add("summary_notes", *p.SummaryNotes)
	}
	if p.HistoryID != nil {
		add("history_id", *p.HistoryID)
	}

	query := "UPDATE appointments SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if len(p.ExpectStatus) > 0 {
		expected := make([]string, len(p.ExpectStatus))
		for i, s := range p.ExpectStatus {
			expected[i] = string(s)
		}
		args = append(args, expected)
		query += fmt.Sprintf(" AND %s = ANY($%d)", normalizedStatus, len(args))
	}
	query += " RETURNING " + appointmentColumns

	updated, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrAppointmentNotFound) && len(p.ExpectStatus) > 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}
	return updated, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByTherapist(ctx context.Context, therapistID string) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE therapist_id = $1
		ORDER BY start_time ASC
	`, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by therapist: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindActiveBySlot(ctx context.Context, slotID string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
		  AND `+normalizedStatus+` IN ('pending', 'confirmed', 'completed')
	`, slotID)
	return scanAppointment(row)
}
