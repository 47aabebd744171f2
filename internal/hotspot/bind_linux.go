//go:build linux

package hotspot

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Dialer returns a dialer whose sockets are bound to the joined interface, so
// traffic to the host goes over the access point even when another network
// holds the default route.
func (a Association) Dialer() *net.Dialer {
	d := &net.Dialer{}
	if a.Interface == "" {
		return d
	}
	iface := a.Interface
	d.Control = func(network, address string, c syscall.RawConn) error {
		var bindErr error
		if err := c.Control(func(fd uintptr) {
			bindErr = unix.BindToDevice(int(fd), iface)
		}); err != nil {
			return err
		}
		return bindErr
	}
	return d
}
