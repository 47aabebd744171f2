package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostSessionSerialization(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("omits empty optional fields", func(t *testing.T) {
		s := HostSession{ID: "abcd1234", State: StateReserved, StartedAt: now}

		data, err := json.Marshal(s)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))

		assert.Equal(t, "abcd1234", m["id"])
		assert.Equal(t, "reserved", m["state"])
		assert.NotContains(t, m, "stopped_at")
		assert.NotContains(t, m, "exit_reason")
		assert.NotContains(t, m, "interface")
	})

	t.Run("deserializes stopped session", func(t *testing.T) {
		input := `{
			"id": "abcd1234",
			"credentials": {"network_name": "taz-ab12", "passphrase": "secret123", "address": "10.42.0.1"},
			"state": "stopped",
			"host_pid": 10,
			"backend_pid": 0,
			"started_at": "2024-01-15T10:00:00Z",
			"stopped_at": "2024-01-15T11:00:00Z",
			"exit_reason": "signal"
		}`

		var s HostSession
		require.NoError(t, json.Unmarshal([]byte(input), &s))
		assert.Equal(t, "taz-ab12", s.Credentials.NetworkName)
		assert.Equal(t, "10.42.0.1", s.Credentials.Address)
		assert.False(t, s.Active())
		require.NotNil(t, s.StoppedAt)
		assert.Equal(t, now.Add(time.Hour), *s.StoppedAt)
	})
}

func TestMarkStopped(t *testing.T) {
	s := HostSession{ID: "abcd1234", State: StateServing, BackendPID: 99}
	assert.True(t, s.Active())

	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.MarkStopped("stopped", at)

	assert.False(t, s.Active())
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, "stopped", s.ExitReason)
	assert.Zero(t, s.BackendPID)
	assert.Equal(t, at, *s.StoppedAt)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
