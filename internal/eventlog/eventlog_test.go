package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgSinkAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewPgSink(mock)
	apptID := uuid.New()
	at := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventAppointmentRequested, pgxmock.AnyArg(), pgxmock.AnyArg(), []byte(`{"k":"v"}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = sink.Append(context.Background(), Event{
		EventType:     EventAppointmentRequested,
		AppointmentID: &apptID,
		SlotID:        "t1_20250110T140000Z",
		Payload:       []byte(`{"k":"v"}`),
		CreatedAt:     at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryKeepsOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, Event{EventType: EventAppointmentRequested}))
	require.NoError(t, m.Append(ctx, Event{EventType: EventAppointmentApproved}))

	assert.Equal(t, []string{EventAppointmentRequested, EventAppointmentApproved}, m.Types())
	assert.EqualValues(t, 2, m.Events()[1].ID)
}
