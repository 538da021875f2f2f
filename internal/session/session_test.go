package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStateFile(t *testing.T, path string, savedAt time.Time) {
	t.Helper()

	data, err := json.Marshal(&State{
		SavedAt: savedAt,
		Storage: json.RawMessage(`{"cookies":[],"origins":[]}`),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path)

	assert.False(t, store.Exists())

	err := store.Save(json.RawMessage(`{"cookies":[{"name":"li_at","value":"x"}],"origins":[]}`))
	require.NoError(t, err)
	assert.True(t, store.Exists())

	state, err := store.Load()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), state.SavedAt, 5*time.Second)
	assert.Contains(t, string(state.Storage), "li_at")
}

func TestStore_SaveRejectsEmptyState(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))
	assert.Error(t, store.Save(nil))
}

func TestStore_AgeClassification(t *testing.T) {
	tests := []struct {
		name    string
		savedAt time.Time
		expired bool
	}{
		{"saved 23 hours ago is not expired", time.Now().Add(-23 * time.Hour), false},
		{"saved 25 hours ago is expired", time.Now().Add(-25 * time.Hour), true},
		{"freshly saved is not expired", time.Now(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			writeStateFile(t, path, tt.savedAt)

			store := NewStore(path)
			expired, err := store.Expired()
			require.NoError(t, err)
			assert.Equal(t, tt.expired, expired)
		})
	}
}

func TestStore_MissingFileIsNotFoundNotExpired(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))

	_, err := store.Age()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Expired()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewStore(path)
	assert.True(t, store.Exists())

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path)

	require.NoError(t, store.Save(json.RawMessage(`{"cookies":[]}`)))
	require.NoError(t, store.Clear())
	assert.False(t, store.Exists())

	// Clearing again must not fail.
	require.NoError(t, store.Clear())
}
