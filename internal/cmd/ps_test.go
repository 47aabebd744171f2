package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/eja/tazlink/internal/credential"
	"github.com/eja/tazlink/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStatus(t *testing.T) {
	alive := func(pid int) bool { return pid == 100 }

	tests := []struct {
		name string
		sess session.HostSession
		want string
	}{
		{name: "running host", sess: session.HostSession{State: session.StateBroadcasting, HostPID: 100}, want: session.StateBroadcasting},
		{name: "dead owner", sess: session.HostSession{State: session.StateServing, HostPID: 200}, want: "stale"},
		{name: "stopped", sess: session.HostSession{State: session.StateStopped, HostPID: 200}, want: session.StateStopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionStatus(&tt.sess, alive))
		})
	}
}

func TestWriteSessions(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	sessions := []*session.HostSession{
		{
			ID:          "abcd1234",
			State:       session.StateBroadcasting,
			HostPID:     100,
			BackendName: "brave-otter",
			Credentials: credential.Credentials{NetworkName: "taz-1a2b", Passphrase: "secret", Address: "10.42.0.1"},
			StartedAt:   started,
		},
		{ID: "ef567890", State: session.StateServing, HostPID: 200, StartedAt: started},
	}

	var buf bytes.Buffer
	writeSessions(&buf, sessions, func(pid int) bool { return pid == 100 })

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"ID", "STATUS", "NETWORK", "ADDRESS", "BACKEND", "STARTED"}, strings.Fields(lines[0]))
	assert.Equal(t,
		[]string{"abcd1234", "broadcasting", "taz-1a2b", "10.42.0.1", "brave-otter", "2026-03-01", "12:30:00"},
		strings.Fields(lines[2]))
	assert.Equal(t,
		[]string{"ef567890", "stale", "-", "-", "-", "2026-03-01", "12:30:00"},
		strings.Fields(lines[3]))
	assert.NotContains(t, buf.String(), "secret", "passphrases are not listed")
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "wlan0", orDash("wlan0"))
}
