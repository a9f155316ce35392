package slot_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-session-scheduling/internal/errs"
	"github.com/hackgods/therapy-session-scheduling/internal/feed"
	"github.com/hackgods/therapy-session-scheduling/internal/memstore"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

func newStore() *slot.Store {
	return slot.NewStore(memstore.NewSlots(), feed.NewLocal(), zerolog.Nop())
}

func TestPublishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)

	first, err := store.Publish(ctx, "t-1", []slot.Interval{{StartsAt: start, EndsAt: start.Add(time.Hour)}})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, slot.CanonicalID("t-1", start), first[0].ID)
	assert.Equal(t, slot.StatusOpen, first[0].Status)

	_, err = store.Hold(ctx, first[0].ID, "p-1")
	require.NoError(t, err)

	again, err := store.Publish(ctx, "t-1", []slot.Interval{{StartsAt: start, EndsAt: start.Add(90 * time.Minute)}})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, slot.StatusHeld, again[0].Status, "re-publishing must not reopen a held slot")
	assert.True(t, again[0].EndsAt.Equal(start.Add(time.Hour)))

	listed, err := store.ListOpen(ctx, "t-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestPublishRejectsBadIntervals(t *testing.T) {
	store := newStore()
	start := time.Now().Add(time.Hour)

	_, err := store.Publish(context.Background(), "t-1", []slot.Interval{{StartsAt: start, EndsAt: start}})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = store.Publish(context.Background(), "", []slot.Interval{{StartsAt: start, EndsAt: start.Add(time.Hour)}})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestListOpenOrderingAndBooked(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	base := time.Now().Add(48 * time.Hour).Truncate(time.Hour)

	published, err := store.Publish(ctx, "t-1", []slot.Interval{
		{StartsAt: base.Add(3 * time.Hour), EndsAt: base.Add(4 * time.Hour)},
		{StartsAt: base, EndsAt: base.Add(time.Hour)},
		{StartsAt: base.Add(time.Hour), EndsAt: base.Add(2 * time.Hour)},
	})
	require.NoError(t, err)
	require.Len(t, published, 3)

	booked := slot.CanonicalID("t-1", base.Add(time.Hour))
	_, err = store.Hold(ctx, booked, "p-1")
	require.NoError(t, err)
	_, err = store.Book(ctx, booked)
	require.NoError(t, err)

	listed, err := store.ListOpen(ctx, "t-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].StartsAt.Equal(base))
	assert.True(t, listed[1].StartsAt.Equal(base.Add(3*time.Hour)))
}

func TestDeleteOnlyOpenOwnedSlots(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	start := time.Now().Add(time.Hour)

	published, err := store.Publish(ctx, "t-1", []slot.Interval{
		{StartsAt: start, EndsAt: start.Add(time.Hour)},
		{StartsAt: start.Add(2 * time.Hour), EndsAt: start.Add(3 * time.Hour)},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, "t-2", published[0].ID), errs.ErrNotFound)

	_, err = store.Hold(ctx, published[1].ID, "p-1")
	require.NoError(t, err)
	assert.ErrorIs(t, store.Delete(ctx, "t-1", published[1].ID), errs.ErrInvalidState)

	require.NoError(t, store.Delete(ctx, "t-1", published[0].ID))
	_, err = store.Get(ctx, published[0].ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestHoldIsConditional(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	start := time.Now().Add(time.Hour)

	published, err := store.Publish(ctx, "t-1", []slot.Interval{{StartsAt: start, EndsAt: start.Add(time.Hour)}})
	require.NoError(t, err)
	id := published[0].ID

	_, err = store.Hold(ctx, id, "p-1")
	require.NoError(t, err)
	_, err = store.Hold(ctx, id, "p-2")
	assert.ErrorIs(t, err, slot.ErrStatusConflict)

	reopened, err := store.Reopen(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, slot.StatusOpen, reopened.Status)
	assert.Nil(t, reopened.RequestedBy)
	assert.Nil(t, reopened.HeldAt)

	_, err = store.Book(ctx, id)
	assert.ErrorIs(t, err, slot.ErrStatusConflict)
}

func TestSubscribeSeesEveryWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newStore()
	start := time.Now().Add(time.Hour)

	sub, err := store.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	defer sub.Close()

	initial := <-sub.Updates()
	assert.Empty(t, initial)

	published, err := store.Publish(ctx, "t-1", []slot.Interval{{StartsAt: start, EndsAt: start.Add(time.Hour)}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snapshot := <-sub.Updates():
			return len(snapshot) == 1 && snapshot[0].ID == published[0].ID
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	_, err = store.Hold(ctx, published[0].ID, "p-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snapshot := <-sub.Updates():
			return len(snapshot) == 1 && snapshot[0].Status == slot.StatusHeld
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
