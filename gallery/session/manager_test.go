package session

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.jsonl")
	require.NoError(t, dataset.Save(path, []dataset.Record{{ImagePath: "a.jpg"}}))

	return NewManager(Options{
		Open:        func() (*dataset.Store, error) { return dataset.Open(path, zerolog.Nop()) },
		Changes:     func() uint64 { return 7 },
		Temperature: func() float32 { return 0.42 },
		IdleTTL:     ttl,
	}, zerolog.Nop())
}

func TestManager_AcquireCreatesAndReuses(t *testing.T) {
	m := newTestManager(t, 0)

	s, release, err := m.Acquire("")
	require.NoError(t, err)
	id := s.ID
	assert.NotEmpty(t, id)
	assert.Equal(t, uint64(7), s.SeenChanges)
	assert.Equal(t, float32(0.42), s.Temperature)
	assert.Equal(t, 1, s.Store.Len())
	s.Index = 3
	release()

	again, release, err := m.Acquire(id)
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, 3, again.Index)
	release()

	other, release, err := m.Acquire("unknown-id")
	require.NoError(t, err)
	assert.NotEqual(t, id, other.ID)
	release()

	assert.Equal(t, 2, m.Len())
	m.Delete(id)
	assert.Equal(t, 1, m.Len())
}

func TestManager_SerializesRequestsPerSession(t *testing.T) {
	m := newTestManager(t, 0)
	s, release, err := m.Acquire("")
	require.NoError(t, err)
	id := s.ID
	release()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, release, err := m.Acquire(id)
			if err != nil {
				return
			}
			defer release()
			st.Index++
		}()
	}
	wg.Wait()

	st, release, err := m.Acquire(id)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 50, st.Index)
}

func TestManager_OpenFailure(t *testing.T) {
	m := NewManager(Options{
		Open: func() (*dataset.Store, error) { return nil, errors.New("permission denied") },
	}, zerolog.Nop())

	_, _, err := m.Acquire("")
	assert.ErrorContains(t, err, "permission denied")
	assert.Equal(t, 0, m.Len())
}

func TestManager_Sweep(t *testing.T) {
	m := newTestManager(t, time.Hour)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	old, release, err := m.Acquire("")
	require.NoError(t, err)
	release()

	now = now.Add(30 * time.Minute)
	fresh, release, err := m.Acquire("")
	require.NoError(t, err)
	release()

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, m.Sweep())

	_, release, err = m.Acquire(fresh.ID)
	require.NoError(t, err)
	release()

	s, release, err := m.Acquire(old.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, s.ID)
	release()
}

func TestState_FlashesAndUser(t *testing.T) {
	s := &State{}
	assert.False(t, s.LoggedIn())
	assert.Equal(t, "", s.Username())

	s.User = &auth.User{Username: "alice", Role: "editor"}
	assert.True(t, s.LoggedIn())
	assert.Equal(t, "alice", s.Username())

	s.AddFlash(LevelSuccess, "saved")
	s.AddFlash(LevelError, "failed")
	assert.Equal(t, []Flash{{LevelSuccess, "saved"}, {LevelError, "failed"}}, s.TakeFlashes())
	assert.Empty(t, s.TakeFlashes())
}
