package hotspot

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAddress(t *testing.T) {
	tests := []struct {
		name    string
		before  []string
		after   []string
		want    string
		wantErr error
	}{
		{
			name:   "single new address",
			before: []string{"192.168.1.20"},
			after:  []string{"192.168.1.20", "10.42.0.1"},
			want:   "10.42.0.1",
		},
		{
			name:   "from nothing",
			before: nil,
			after:  []string{"192.168.49.1"},
			want:   "192.168.49.1",
		},
		{
			name:   "duplicates in after",
			before: []string{"192.168.1.20"},
			after:  []string{"10.42.0.1", "10.42.0.1", "192.168.1.20"},
			want:   "10.42.0.1",
		},
		{
			name:    "nothing new",
			before:  []string{"192.168.1.20"},
			after:   []string{"192.168.1.20"},
			wantErr: ErrNoNewAddress,
		},
		{
			name:    "address went away",
			before:  []string{"192.168.1.20", "10.0.0.5"},
			after:   []string{"192.168.1.20"},
			wantErr: ErrNoNewAddress,
		},
		{
			name:    "two new addresses",
			before:  []string{"192.168.1.20"},
			after:   []string{"10.42.0.1", "192.168.1.20", "172.16.0.1"},
			wantErr: ErrAmbiguousAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAddress(tt.before, tt.after)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAddressIsOrderIndependent(t *testing.T) {
	before := []string{"192.168.1.20", "10.0.0.5"}
	a, errA := NewAddress(before, []string{"10.0.0.5", "192.168.1.20", "10.42.0.1"})
	b, errB := NewAddress(before, []string{"10.42.0.1", "10.0.0.5", "192.168.1.20"})
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)

	_, errA = NewAddress(before, []string{"10.42.0.1", "172.16.0.1"})
	_, errB = NewAddress(before, []string{"172.16.0.1", "10.42.0.1"})
	assert.Equal(t, errA.Error(), errB.Error())
}

func TestInterfaceAddressesSkipsLoopback(t *testing.T) {
	addrs, err := InterfaceAddresses(context.Background())
	require.NoError(t, err)

	for addr, iface := range addrs {
		ip := net.ParseIP(addr)
		require.NotNil(t, ip, addr)
		assert.NotNil(t, ip.To4(), "%s is not IPv4", addr)
		assert.False(t, ip.IsLoopback(), "%s on %s is loopback", addr, iface)
		assert.NotEmpty(t, iface)
	}

	list, err := AllAddresses(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, len(addrs))
	assert.IsIncreasing(t, list)
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"home"`, "home"},
		{"home", "home"},
		{`"`, `"`},
		{`""`, ""},
		{`"a"b"`, `a"b`},
		{`"open`, `"open`},
		{`""x""`, `"x"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripQuotes(tt.in))
		})
	}
}
