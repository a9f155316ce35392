package profile

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgDirectoryGetMany(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	dir := NewPgDirectory(mock)

	now := time.Now()
	name := "Dr. Rivera"
	therapist := "t-1"
	mock.ExpectQuery("SELECT (.+) FROM profiles").
		WithArgs([]string{"t-1", "p-1"}).
		WillReturnRows(pgxmock.NewRows([]string{"uid", "role", "display_name", "email", "therapist_uid", "created_at", "updated_at"}).
			AddRow("t-1", RoleTherapist, &name, (*string)(nil), (*string)(nil), now, now).
			AddRow("p-1", RolePatient, (*string)(nil), (*string)(nil), &therapist, now, now))

	got, err := dir.GetMany(context.Background(), []string{"t-1", "p-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Dr. Rivera", got["t-1"].DisplayName)
	require.NotNil(t, got["p-1"].TherapistUID)
	assert.Equal(t, "t-1", *got["p-1"].TherapistUID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDirectoryLinkTherapist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	dir := NewPgDirectory(mock)

	mock.ExpectExec("UPDATE profiles").WithArgs("p-1", "t-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, dir.LinkTherapist(context.Background(), "p-1", "t-1"))

	mock.ExpectExec("UPDATE profiles").WithArgs("t-9", "t-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, dir.LinkTherapist(context.Background(), "t-9", "t-1"), ErrProfileNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
