package hotspot

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a system command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. On failure the error carries the command's
// output, which is where nmcli and wpa_cli report what went wrong.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		verb := name
		if len(args) > 0 {
			verb += " " + args[0]
		}
		return out, fmt.Errorf("%s failed: %w: %s", verb, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}
