package hotspot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHotspotConn = "tazlink-hotspot"
	defaultJoinConn    = "tazlink-join"
)

// NMAccessPoint starts a hotspot through NetworkManager. The hotspot shares
// no upstream connection, so clients only reach this device.
type NMAccessPoint struct {
	Runner    Runner
	Interface string
	ConnName  string
	// SSID and Password are generated when empty.
	SSID     string
	Password string
}

func (n *NMAccessPoint) conn() string {
	if n.ConnName != "" {
		return n.ConnName
	}
	return defaultHotspotConn
}

// Start brings the hotspot up and reads back the effective name and key.
func (n *NMAccessPoint) Start(ctx context.Context) (Network, error) {
	ssid, password := n.SSID, n.Password
	if ssid == "" {
		ssid = "taz-" + uuid.NewString()[:4]
	}
	if password == "" {
		password = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}

	args := []string{"device", "wifi", "hotspot", "con-name", n.conn(), "ssid", ssid, "password", password}
	if n.Interface != "" {
		args = append(args, "ifname", n.Interface)
	}
	if _, err := n.Runner.Run(ctx, "nmcli", args...); err != nil {
		return Network{}, err
	}

	out, err := n.Runner.Run(ctx, "nmcli", "-s", "-g",
		"802-11-wireless.ssid,802-11-wireless-security.psk,GENERAL.DEVICES",
		"connection", "show", n.conn())
	if err != nil {
		return Network{SSID: ssid, Passphrase: password, Interface: n.Interface}, nil
	}

	nw := Network{SSID: ssid, Passphrase: password, Interface: n.Interface}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > 0 && lines[0] != "" {
		nw.SSID = unescapeNM(lines[0])
	}
	if len(lines) > 1 && lines[1] != "" {
		nw.Passphrase = unescapeNM(lines[1])
	}
	if len(lines) > 2 && lines[2] != "" {
		nw.Interface = unescapeNM(lines[2])
	}
	return nw, nil
}

// Release takes the hotspot down and removes its profile.
func (n *NMAccessPoint) Release(ctx context.Context) error {
	_, downErr := n.Runner.Run(ctx, "nmcli", "connection", "down", n.conn())
	if _, err := n.Runner.Run(ctx, "nmcli", "connection", "delete", n.conn()); err != nil {
		if downErr != nil {
			return downErr
		}
		return err
	}
	return nil
}

// NMScoped joins through a dedicated NetworkManager profile that never
// becomes the default route.
type NMScoped struct {
	Runner    Runner
	Interface string
	ConnName  string
}

func (n *NMScoped) conn() string {
	if n.ConnName != "" {
		return n.ConnName
	}
	return defaultJoinConn
}

// Supported reports whether NetworkManager is running.
func (n *NMScoped) Supported(ctx context.Context) bool {
	out, err := n.Runner.Run(ctx, "nmcli", "-t", "-f", "RUNNING", "general")
	return err == nil && strings.TrimSpace(string(out)) == "running"
}

// Join adds the profile and activates it, waiting at most until ctx expires.
func (n *NMScoped) Join(ctx context.Context, ssid, passphrase string) (Association, error) {
	_, _ = n.Runner.Run(ctx, "nmcli", "connection", "delete", n.conn())

	args := []string{"connection", "add", "type", "wifi", "con-name", n.conn(), "ssid", ssid}
	if n.Interface != "" {
		args = append(args, "ifname", n.Interface)
	}
	if passphrase != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", passphrase)
	}
	args = append(args,
		"ipv4.never-default", "yes",
		"ipv6.never-default", "yes",
		"connection.autoconnect", "no",
	)
	if _, err := n.Runner.Run(ctx, "nmcli", args...); err != nil {
		return Association{}, err
	}

	wait := 30
	if deadline, ok := ctx.Deadline(); ok {
		wait = int(time.Until(deadline).Seconds())
		if wait < 1 {
			wait = 1
		}
	}
	if _, err := n.Runner.Run(ctx, "nmcli", "--wait", strconv.Itoa(wait), "connection", "up", n.conn()); err != nil {
		_, _ = n.Runner.Run(context.Background(), "nmcli", "connection", "delete", n.conn())
		return Association{}, fmt.Errorf("activation refused: %w", err)
	}

	iface := n.Interface
	if out, err := n.Runner.Run(ctx, "nmcli", "-g", "GENERAL.DEVICES", "connection", "show", n.conn()); err == nil {
		if dev := strings.TrimSpace(string(out)); dev != "" {
			iface = unescapeNM(dev)
		}
	}
	return Association{Interface: iface}, nil
}

// unescapeNM undoes the backslash escaping nmcli applies to -g output.
func unescapeNM(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
