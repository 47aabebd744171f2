//go:build !linux

package hotspot

import "net"

// Dialer returns a plain dialer; interface binding is only supported on linux.
func (a Association) Dialer() *net.Dialer {
	return &net.Dialer{}
}
