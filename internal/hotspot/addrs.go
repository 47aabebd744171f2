package hotspot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	gnet "github.com/shirou/gopsutil/v3/net"
)

var (
	// ErrNoNewAddress is returned when starting an access point added no
	// local address.
	ErrNoNewAddress = errors.New("no new local address appeared")
	// ErrAmbiguousAddress is returned when more than one new local address
	// appeared, so the access point address cannot be told apart.
	ErrAmbiguousAddress = errors.New("more than one new local address appeared")
)

// AddressLister returns the current set of local IPv4 addresses mapped to the
// interface carrying each one.
type AddressLister func(ctx context.Context) (map[string]string, error)

// InterfaceAddresses lists the IPv4 addresses of every interface that is up
// and not loopback, keyed by address.
func InterfaceAddresses(ctx context.Context) (map[string]string, error) {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	addrs := make(map[string]string)
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				ip = net.ParseIP(a.Addr)
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				addrs[v4.String()] = iface.Name
			}
		}
	}
	return addrs, nil
}

// AllAddresses returns the sorted local IPv4 addresses.
func AllAddresses(ctx context.Context) ([]string, error) {
	addrs, err := InterfaceAddresses(ctx)
	if err != nil {
		return nil, err
	}
	return sortedKeys(addrs), nil
}

// NewAddress returns the single address present in after but not in before.
func NewAddress(before, after []string) (string, error) {
	seen := make(map[string]bool, len(before))
	for _, a := range before {
		seen[a] = true
	}

	var added []string
	for _, a := range after {
		if !seen[a] {
			seen[a] = true
			added = append(added, a)
		}
	}

	switch len(added) {
	case 0:
		return "", ErrNoNewAddress
	case 1:
		return added[0], nil
	default:
		sort.Strings(added)
		return "", fmt.Errorf("%w: %v", ErrAmbiguousAddress, added)
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
