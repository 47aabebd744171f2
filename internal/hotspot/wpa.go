package hotspot

import (
	"context"
	"crypto/pbkdf2"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const defaultWPAInterface = "wlan0"

// ErrProfileRejected is returned when the supplicant refuses a new network
// profile.
var ErrProfileRejected = errors.New("network profile rejected")

// WPALegacy joins through wpa_supplicant. It cannot confirm association, so
// the manager waits a settle delay after it returns.
type WPALegacy struct {
	Runner    Runner
	Interface string
}

func (w *WPALegacy) iface() string {
	if w.Interface != "" {
		return w.Interface
	}
	return defaultWPAInterface
}

func (w *WPALegacy) cli(ctx context.Context, args ...string) (string, error) {
	out, err := w.Runner.Run(ctx, "wpa_cli", append([]string{"-i", w.iface()}, args...)...)
	if err != nil {
		return "", err
	}
	reply := lastLine(string(out))
	if reply == "FAIL" {
		return reply, fmt.Errorf("wpa_cli %s: FAIL", args[0])
	}
	return reply, nil
}

// Join registers a profile for the network, drops the current association
// and asks the supplicant to connect to the new profile.
func (w *WPALegacy) Join(ctx context.Context, ssid, passphrase string) (Association, error) {
	reply, err := w.cli(ctx, "add_network")
	if err != nil {
		return Association{}, fmt.Errorf("%w: %v", ErrProfileRejected, err)
	}
	id, err := strconv.Atoi(reply)
	if err != nil || id < 0 {
		return Association{}, fmt.Errorf("%w: %q", ErrProfileRejected, reply)
	}
	netID := strconv.Itoa(id)

	steps := [][]string{
		{"set_network", netID, "ssid", hex.EncodeToString([]byte(ssid))},
	}
	if passphrase != "" {
		psk, err := pskValue(ssid, passphrase)
		if err != nil {
			return Association{}, err
		}
		steps = append(steps, []string{"set_network", netID, "psk", psk})
	} else {
		steps = append(steps, []string{"set_network", netID, "key_mgmt", "NONE"})
	}
	steps = append(steps,
		[]string{"disconnect"},
		[]string{"enable_network", netID},
		[]string{"reconnect"},
	)
	for _, step := range steps {
		if _, err := w.cli(ctx, step...); err != nil {
			return Association{}, err
		}
	}
	return Association{Interface: w.iface()}, nil
}

// pskValue renders a passphrase for set_network psk. The supplicant cannot
// take a quoted passphrase that itself contains a double quote, so such a
// passphrase is turned into the raw 256-bit key instead.
func pskValue(ssid, passphrase string) (string, error) {
	if !strings.Contains(passphrase, `"`) {
		return `"` + passphrase + `"`, nil
	}
	if len(passphrase) < 8 || len(passphrase) > 63 {
		return "", fmt.Errorf("%w: passphrase must be 8 to 63 characters", ErrProfileRejected)
	}
	return derivePSK(passphrase, ssid)
}

// derivePSK computes the WPA pre-shared key for a passphrase and SSID.
func derivePSK(passphrase, ssid string) (string, error) {
	key, err := pbkdf2.Key(sha1.New, passphrase, []byte(ssid), 4096, 32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
