package profile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	mu       sync.Mutex
	profiles map[string]Profile
	gets     int
	linkErr  error
}

func (d *countingDirectory) Get(_ context.Context, uid string) (*Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gets++
	p, ok := d.profiles[uid]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (d *countingDirectory) GetMany(_ context.Context, uids []string) (map[string]Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gets++
	out := make(map[string]Profile)
	for _, uid := range uids {
		if p, ok := d.profiles[uid]; ok {
			out[uid] = p
		}
	}
	return out, nil
}

func (d *countingDirectory) LinkTherapist(_ context.Context, patientUID, therapistUID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.linkErr != nil {
		return d.linkErr
	}
	p := d.profiles[patientUID]
	p.TherapistUID = &therapistUID
	d.profiles[patientUID] = p
	return nil
}

func newDirectory() *countingDirectory {
	return &countingDirectory{profiles: map[string]Profile{
		"t-1": {UID: "t-1", Role: RoleTherapist, DisplayName: "Dr. Rivera"},
		"p-1": {UID: "p-1", Role: RolePatient, DisplayName: "Sam"},
	}}
}

func TestCacheReadsThroughOnce(t *testing.T) {
	dir := newDirectory()
	cache := NewCache(dir)

	for i := 0; i < 3; i++ {
		p, err := cache.Get(context.Background(), "t-1")
		require.NoError(t, err)
		assert.Equal(t, "Dr. Rivera", p.DisplayName)
	}
	assert.Equal(t, 1, dir.gets)

	_, err := cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestCacheGetManyFetchesOnlyMissing(t *testing.T) {
	dir := newDirectory()
	cache := NewCache(dir)

	_, err := cache.Get(context.Background(), "t-1")
	require.NoError(t, err)

	got, err := cache.GetMany(context.Background(), []string{"t-1", "p-1", "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, dir.gets)

	_, err = cache.GetMany(context.Background(), []string{"t-1", "p-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dir.gets)
}

func TestCacheLinkInvalidatesPatient(t *testing.T) {
	dir := newDirectory()
	cache := NewCache(dir)

	before, err := cache.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Nil(t, before.TherapistUID)

	require.NoError(t, cache.LinkTherapist(context.Background(), "p-1", "t-1"))

	after, err := cache.Get(context.Background(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, after.TherapistUID)
	assert.Equal(t, "t-1", *after.TherapistUID)
}

func TestCacheLinkFailureKeepsEntry(t *testing.T) {
	dir := newDirectory()
	dir.linkErr = errors.New("directory down")
	cache := NewCache(dir)

	_, err := cache.Get(context.Background(), "p-1")
	require.NoError(t, err)

	assert.Error(t, cache.LinkTherapist(context.Background(), "p-1", "t-1"))
	_, err = cache.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.gets)

	cache.InvalidateAll()
	_, err = cache.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, dir.gets)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("therapist")
	require.NoError(t, err)
	assert.Equal(t, RoleTherapist, r)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}
