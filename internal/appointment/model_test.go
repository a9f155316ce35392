package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"pending":    StatusPending,
		"Approved":   StatusConfirmed,
		" confirmed": StatusConfirmed,
		"rejected":   StatusDeclined,
		"cancelled":  StatusCanceled,
		"completed":  StatusCompleted,
		"":           DefaultStatus,
		"archived":   DefaultStatus,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestNormalizeSessionStatus(t *testing.T) {
	assert.Equal(t, SessionInProgress, NormalizeSessionStatus("in-progress"))
	assert.Equal(t, SessionCanceled, NormalizeSessionStatus("CANCELLED"))
	assert.Equal(t, DefaultSessionStatus, NormalizeSessionStatus("paused"))
}

func TestPatchApply(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	a := Appointment{
		Status:  StatusConfirmed,
		Meeting: Meeting{Provider: "jitsi", Room: "room-1", URL: "https://meet.jit.si/room-1", ExpiresAt: &expires},
	}

	url := "https://video.example.org/custom"
	Patch{MeetingURL: &url}.Apply(&a)
	assert.Equal(t, "room-1", a.Meeting.Room)
	assert.Equal(t, url, a.Meeting.URL)

	history := uuid.New()
	pending := StatusPending
	Patch{Status: &pending, ClearMeeting: true, HistoryID: &history}.Apply(&a)
	assert.Equal(t, StatusPending, a.Status)
	assert.True(t, a.Meeting.IsZero())
	assert.Equal(t, history, *a.HistoryID)
}

func TestPatchAllows(t *testing.T) {
	assert.True(t, Patch{}.Allows(StatusCanceled))

	p := Patch{ExpectStatus: []Status{StatusPending, StatusConfirmed}}
	assert.True(t, p.Allows(StatusConfirmed))
	assert.False(t, p.Allows(StatusCompleted))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.IsActive())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusDeclined.IsActive())
	assert.False(t, StatusPending.IsTerminal())
}
