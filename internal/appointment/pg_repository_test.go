package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "therapist_id", "patient_id", "slot_id", "slot_starts_at", "slot_ends_at", "start_time", "end_time",
	"status", "session_status", "meeting_provider", "meeting_room", "meeting_url", "meeting_config", "meeting_expires_at",
	"summary_notes", "history_id", "version", "created_at", "updated_at",
}

func appointmentRow(id uuid.UUID, status string, start time.Time) *pgxmock.Rows {
	provider, room, url := "jitsi", "tsession-room", "https://meet.jit.si/tsession-room"
	expires := start.Add(30 * time.Minute)
	return pgxmock.NewRows(appointmentRowColumns).AddRow(
		id, "t-1", "p-1", "t-1_slot", start, start.Add(time.Hour), start, start.Add(time.Hour),
		status, "scheduled", &provider, &room, &url, []byte(`{"startWithAudioMuted":true}`), &expires,
		"", (*uuid.UUID)(nil), int64(1), start, start,
	)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPgCreateMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(17)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_idx"})

	_, err = repo.Create(context.Background(), Appointment{
		ID: uuid.New(), TherapistID: "t-1", PatientID: "p-1", SlotID: "t-1_slot", Status: StatusPending,
	})
	assert.ErrorIs(t, err, ErrSlotAlreadyClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	id := uuid.New()
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	confirmed := StatusConfirmed

	mock.ExpectQuery(`UPDATE appointments SET (.+) WHERE id = \$1 AND \(CASE lower\(btrim\(status\)\) (.+) END\) = ANY\(\$3\)`).
		WithArgs(id, "confirmed", []string{"pending"}).
		WillReturnRows(appointmentRow(id, "confirmed", start))

	updated, err := repo.Update(context.Background(), id, Patch{
		Status:       &confirmed,
		ExpectStatus: []Status{StatusPending},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.Equal(t, "https://meet.jit.si/tsession-room", updated.Meeting.URL)
	assert.Equal(t, true, updated.Meeting.Config["startWithAudioMuted"])
	require.NotNil(t, updated.Meeting.ExpiresAt)

	mock.ExpectQuery("UPDATE appointments SET").
		WithArgs(id, "confirmed", []string{"pending"}).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM appointments").WithArgs(id).
		WillReturnRows(appointmentRow(id, "canceled", start))

	_, err = repo.Update(context.Background(), id, Patch{
		Status:       &confirmed,
		ExpectStatus: []Status{StatusPending},
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	id := uuid.New()
	notes := "n"
	mock.ExpectQuery("UPDATE appointments SET").WithArgs(id, notes).WillReturnError(pgx.ErrNoRows)

	_, err = repo.Update(context.Background(), id, Patch{SummaryNotes: &notes})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStatusPredicatesAcceptLegacySpellings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	id := uuid.New()
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	canceled := StatusCanceled

	// a row stored as 'Approved' by an older client must satisfy an expected status of confirmed
	mock.ExpectQuery(`UPDATE appointments SET (.+) AND \(CASE lower\(btrim\(status\)\) (.+) WHEN 'approved' THEN 'confirmed' (.+) END\) = ANY\(\$3\)`).
		WithArgs(id, "canceled", []string{"pending", "confirmed"}).
		WillReturnRows(appointmentRow(id, "canceled", start))

	updated, err := repo.Update(context.Background(), id, Patch{
		Status:       &canceled,
		ExpectStatus: []Status{StatusPending, StatusConfirmed},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, updated.Status)

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE slot_id = \$1 AND \(CASE lower\(btrim\(status\)\) (.+) WHEN 'cancelled' THEN 'canceled' (.+) END\) IN \('pending', 'confirmed', 'completed'\)`).
		WithArgs("t-1_slot").
		WillReturnRows(appointmentRow(id, "Approved", start))

	active, err := repo.FindActiveBySlot(context.Background(), "t-1_slot")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, NormalizeStatus(string(active.Status)))

	require.NoError(t, mock.ExpectationsWereMet())
}
