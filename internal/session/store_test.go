package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eja/tazlink/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStoreAt(t.TempDir())
	require.NoError(t, err)

	sess := &HostSession{
		ID:          NewID(),
		Credentials: credential.Credentials{NetworkName: "taz-ab12", Passphrase: "secret123", Address: "10.42.0.1"},
		State:       StateServing,
		Interface:   "wlan0",
		HostPID:     4242,
		BackendPID:  4343,
		StartedAt:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(sess))

	info, err := os.Stat(filepath.Join(store.Dir(), sess.ID+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, loaded)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStoreAt(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListOrderAndSkipsInvalid(t *testing.T) {
	store, err := NewStoreAt(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"cccc", "aaaa", "bbbb"} {
		require.NoError(t, store.Save(&HostSession{
			ID:        id,
			State:     StateReserved,
			StartedAt: base.Add(time.Duration(3-i) * time.Minute),
		}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0600))

	sessions, err := store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "bbbb", sessions[0].ID)
	assert.Equal(t, "aaaa", sessions[1].ID)
	assert.Equal(t, "cccc", sessions[2].ID)
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStoreAt(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(&HostSession{ID: "aaaa"}))
	require.NoError(t, store.Delete("aaaa"))
	require.NoError(t, store.Delete("aaaa"), "deleting twice is not an error")

	_, err = store.Load("aaaa")
	assert.ErrorIs(t, err, ErrNotFound)
}
