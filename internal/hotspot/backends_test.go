package hotspot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	out string
	err error
}

// scriptRunner answers commands by the longest matching prefix of the joined
// command line and records every call.
type scriptRunner struct {
	replies map[string]reply
	calls   []string
}

func (r *scriptRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)

	best := ""
	for prefix := range r.replies {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, nil
	}
	rep := r.replies[best]
	return []byte(rep.out), rep.err
}

func (r *scriptRunner) called(prefix string) bool {
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestNMAccessPointStart(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"nmcli -s -g": {out: "taz-ab12\nsecret\\:123\nwlan0\n"},
	}}
	ap := &NMAccessPoint{Runner: run, SSID: "taz-ab12", Password: "ignored"}

	nw, err := ap.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Network{SSID: "taz-ab12", Passphrase: "secret:123", Interface: "wlan0"}, nw)
	assert.True(t, run.called("nmcli device wifi hotspot con-name tazlink-hotspot ssid taz-ab12 password ignored"))
}

func TestNMAccessPointGeneratesCredentials(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"nmcli -s -g": {err: errors.New("no such connection")},
	}}
	ap := &NMAccessPoint{Runner: run, Interface: "wlp2s0"}

	nw, err := ap.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nw.SSID, "taz-"))
	assert.Len(t, nw.Passphrase, 16)
	assert.Equal(t, "wlp2s0", nw.Interface)
	assert.True(t, strings.HasSuffix(run.calls[0], "ifname wlp2s0"))
}

func TestNMAccessPointStartFailure(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"nmcli device wifi hotspot": {err: errors.New("no wifi device")},
	}}
	ap := &NMAccessPoint{Runner: run}

	_, err := ap.Start(context.Background())
	assert.Error(t, err)
}

func TestNMAccessPointRelease(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"nmcli connection down": {err: errors.New("not active")},
	}}
	ap := &NMAccessPoint{Runner: run}

	require.NoError(t, ap.Release(context.Background()))
	assert.Equal(t, []string{
		"nmcli connection down tazlink-hotspot",
		"nmcli connection delete tazlink-hotspot",
	}, run.calls)
}

func TestNMScopedSupported(t *testing.T) {
	tests := []struct {
		name string
		rep  reply
		want bool
	}{
		{name: "running", rep: reply{out: "running\n"}, want: true},
		{name: "starting", rep: reply{out: "starting\n"}, want: false},
		{name: "missing", rep: reply{err: errors.New("executable file not found")}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &scriptRunner{replies: map[string]reply{"nmcli -t -f RUNNING general": tt.rep}}
			s := &NMScoped{Runner: run}
			assert.Equal(t, tt.want, s.Supported(context.Background()))
		})
	}
}

func TestNMScopedJoin(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"nmcli -g GENERAL.DEVICES": {out: "wlan1\n"},
	}}
	s := &NMScoped{Runner: run}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	assoc, err := s.Join(ctx, "taz-ab12", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "wlan1", assoc.Interface)

	var add string
	for _, c := range run.calls {
		if strings.HasPrefix(c, "nmcli connection add") {
			add = c
		}
	}
	assert.Contains(t, add, "ssid taz-ab12")
	assert.Contains(t, add, "wifi-sec.psk secret123")
	assert.Contains(t, add, "ipv4.never-default yes")
	assert.Contains(t, add, "ipv6.never-default yes")
	assert.Contains(t, add, "connection.autoconnect no")
	assert.True(t, run.called("nmcli --wait 19 connection up tazlink-join") || run.called("nmcli --wait 20 connection up tazlink-join"))
}

func TestNMScopedJoinRefused(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"nmcli --wait": {err: errors.New("secrets were required")},
	}}
	s := &NMScoped{Runner: run}

	_, err := s.Join(context.Background(), "taz-ab12", "wrong")
	assert.Error(t, err)
	assert.Equal(t, "nmcli connection delete tazlink-join", run.calls[len(run.calls)-1])
}

func TestWPALegacyJoin(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"wpa_cli -i wlan0 add_network": {out: "3\n"},
		"wpa_cli -i wlan0":             {out: "OK\n"},
	}}
	w := &WPALegacy{Runner: run}

	assoc, err := w.Join(context.Background(), "taz-ab12", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", assoc.Interface)
	assert.Equal(t, []string{
		"wpa_cli -i wlan0 add_network",
		"wpa_cli -i wlan0 set_network 3 ssid 74617a2d61623132",
		`wpa_cli -i wlan0 set_network 3 psk "secret123"`,
		"wpa_cli -i wlan0 disconnect",
		"wpa_cli -i wlan0 enable_network 3",
		"wpa_cli -i wlan0 reconnect",
	}, run.calls)
}

func TestWPALegacyJoinQuotedCharacters(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"wpa_cli -i wlan0 add_network": {out: "0\n"},
		"wpa_cli -i wlan0":             {out: "OK\n"},
	}}
	w := &WPALegacy{Runner: run}

	_, err := w.Join(context.Background(), `say "hi"`, `pa"ss"word`)
	require.NoError(t, err)

	want, err := derivePSK(`pa"ss"word`, `say "hi"`)
	require.NoError(t, err)
	assert.Equal(t, "wpa_cli -i wlan0 set_network 0 ssid 7361792022686922", run.calls[1])
	assert.Equal(t, "wpa_cli -i wlan0 set_network 0 psk "+want, run.calls[2])
	assert.NotContains(t, run.calls[2], `"`)
}

func TestWPALegacyJoinRejectsShortQuotedPassphrase(t *testing.T) {
	run := &scriptRunner{replies: map[string]reply{
		"wpa_cli -i wlan0 add_network": {out: "0\n"},
		"wpa_cli -i wlan0":             {out: "OK\n"},
	}}
	w := &WPALegacy{Runner: run}

	_, err := w.Join(context.Background(), "n", `a"b`)
	assert.ErrorIs(t, err, ErrProfileRejected)
}

func TestDerivePSK(t *testing.T) {
	// IEEE 802.11i test vector
	got, err := derivePSK("password", "IEEE")
	require.NoError(t, err)
	assert.Equal(t, "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e", got)
}

func TestWPALegacyJoinFailures(t *testing.T) {
	tests := []struct {
		name    string
		replies map[string]reply
		wantErr error
	}{
		{
			name:    "negative id",
			replies: map[string]reply{"wpa_cli -i wlan0 add_network": {out: "-1\n"}},
			wantErr: ErrProfileRejected,
		},
		{
			name:    "add fails",
			replies: map[string]reply{"wpa_cli -i wlan0 add_network": {out: "FAIL\n"}},
			wantErr: ErrProfileRejected,
		},
		{
			name:    "not a number",
			replies: map[string]reply{"wpa_cli -i wlan0 add_network": {out: "Selected interface 'wlan0'\nbusy\n"}},
			wantErr: ErrProfileRejected,
		},
		{
			name: "psk refused",
			replies: map[string]reply{
				"wpa_cli -i wlan0 add_network":        {out: "0\n"},
				"wpa_cli -i wlan0 set_network 0 psk": {out: "FAIL\n"},
				"wpa_cli -i wlan0":                    {out: "OK\n"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &WPALegacy{Runner: &scriptRunner{replies: tt.replies}}
			_, err := w.Join(context.Background(), "n", "short")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAssociationDialer(t *testing.T) {
	assert.NotNil(t, Association{}.Dialer())
	assert.NotNil(t, Association{Interface: "wlan0"}.Dialer())
}
