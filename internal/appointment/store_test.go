package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/errs"
	"github.com/hackgods/therapy-session-scheduling/internal/feed"
	"github.com/hackgods/therapy-session-scheduling/internal/memstore"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
)

func TestStoreNormalizesLegacyDocuments(t *testing.T) {
	repo := memstore.NewAppointments()
	store := appointment.NewStore(repo, feed.NewLocal(), zerolog.Nop())

	id := uuid.New()
	start := time.Now().Add(time.Hour)
	repo.PutRaw(appointment.Appointment{
		ID:            id,
		TherapistID:   "t-1",
		PatientID:     "p-1",
		SlotID:        "t-1_slot",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Status:        "Approved",
		SessionStatus: "",
	})

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
	assert.Equal(t, appointment.SessionScheduled, got.SessionStatus)

	listed, err := store.ListByUser(context.Background(), "t-1", profile.RoleTherapist)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, appointment.StatusConfirmed, listed[0].Status)
}

func TestStoreCreateFillsDefaults(t *testing.T) {
	store := appointment.NewStore(memstore.NewAppointments(), feed.NewLocal(), zerolog.Nop())
	start := time.Now().Add(time.Hour)

	created, err := store.Create(context.Background(), appointment.Appointment{
		TherapistID:  "t-1",
		PatientID:    "p-1",
		SlotID:       "t-1_slot",
		SlotStartsAt: start,
		SlotEndsAt:   start.Add(time.Hour),
		Status:       appointment.StatusPending,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.True(t, created.StartTime.Equal(start))
	assert.True(t, created.EndTime.Equal(start.Add(time.Hour)))
	assert.Equal(t, appointment.SessionScheduled, created.SessionStatus)

	_, err = store.Create(context.Background(), appointment.Appointment{
		TherapistID: "t-1",
		PatientID:   "p-2",
		SlotID:      "t-1_slot",
		Status:      appointment.StatusPending,
	})
	assert.ErrorIs(t, err, appointment.ErrSlotAlreadyClaimed)
}

func TestListByUserRejectsUnknownRole(t *testing.T) {
	store := appointment.NewStore(memstore.NewAppointments(), feed.NewLocal(), zerolog.Nop())

	_, err := store.ListByUser(context.Background(), "u-1", profile.Role("admin"))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSubscribeByPatient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := appointment.NewStore(memstore.NewAppointments(), feed.NewLocal(), zerolog.Nop())

	sub, err := store.SubscribeByPatient(ctx, "p-1")
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, <-sub.Updates())

	start := time.Now().Add(time.Hour)
	_, err = store.Create(ctx, appointment.Appointment{
		TherapistID: "t-1", PatientID: "p-1", SlotID: "s-1",
		StartTime: start, EndTime: start.Add(time.Hour), Status: appointment.StatusPending,
	})
	require.NoError(t, err)

	select {
	case items := <-sub.Updates():
		require.Len(t, items, 1)
		assert.Equal(t, "s-1", items[0].SlotID)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after create")
	}
}
