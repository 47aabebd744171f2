package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"host"},
		{"join"},
		{"scan"},
		{"addrs"},
		{"ps"},
		{"stop"},
		{"prune"},
		{"server", "run"},
		{"server", "status"},
		{"server", "restart"},
	} {
		found, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestJoinFlagsDefaults(t *testing.T) {
	f := joinCmd.Flags().Lookup("timeout")
	require.NotNil(t, f)
	assert.Equal(t, "1m0s", f.DefValue)

	f = hostCmd.Flags().Lookup("no-ble")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}
