package cmd

import (
	"context"
	"fmt"
	"syscall"

	"github.com/eja/tazlink/internal/credential"
	"github.com/eja/tazlink/internal/dispatch"
	"github.com/eja/tazlink/internal/hotspot"
	"github.com/eja/tazlink/internal/logger"
	"github.com/eja/tazlink/internal/sandbox"
	"github.com/eja/tazlink/internal/scanner"
	"github.com/eja/tazlink/internal/supervisor"
	"github.com/shirou/gopsutil/v3/process"
)

func newHotspotManager(exec dispatch.Executor) *hotspot.Manager {
	run := hotspot.ExecRunner{}
	iface := cfg.Hotspot.Interface
	return hotspot.NewManager(hotspot.Options{
		AccessPoint: &hotspot.NMAccessPoint{Runner: run, Interface: iface},
		Scoped:      &hotspot.NMScoped{Runner: run, Interface: iface},
		Legacy:      &hotspot.WPALegacy{Runner: run, Interface: iface},
		Executor:    exec,
		Logger:      logger.Component(log, "hotspot"),
		JoinTimeout: cfg.Hotspot.JoinTimeout,
		SettleDelay: cfg.Hotspot.SettleDelay,
	})
}

// newChannel opens the short-range radio when enabled. Without a radio the
// returned channel reports ErrUnsupported on every operation.
func newChannel(exec dispatch.Executor) (*credential.Channel, func()) {
	opts := credential.Options{
		Executor: exec,
		Logger:   logger.Component(log, "credential"),
	}
	if !cfg.BLE.IsEnabled() {
		return credential.NewChannel(opts), func() {}
	}

	dev, err := credential.NewBLE(cfg.BLE.DeviceName, logger.Component(log, "ble"))
	if err != nil {
		log.Warn().Err(err).Msg("bluetooth unavailable")
		return credential.NewChannel(opts), func() {}
	}
	opts.Peripheral = dev
	opts.Central = dev
	return credential.NewChannel(opts), func() { _ = dev.Close() }
}

// newSupervisor prepares the sandbox, locates (or downloads) the backend
// binary and returns a supervisor for it.
func newSupervisor(ctx context.Context, exec dispatch.Executor) (*supervisor.Supervisor, error) {
	sb, err := sandbox.NewManager(logger.Component(log, "sandbox"))
	if err != nil {
		return nil, err
	}
	if err := sb.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	bin, err := sb.EnsureBinary(ctx, cfg.Backend.Binary, cfg.Backend.URL)
	if err != nil {
		return nil, err
	}
	return supervisor.New(supervisor.Config{
		Binary:   bin,
		Home:     sb.HomeDir(),
		Tmp:      sb.TmpDir(),
		Executor: exec,
		Logger:   logger.Component(log, "supervisor"),
	}), nil
}

// healthSupervisor returns a supervisor used only for status queries.
func healthSupervisor(exec dispatch.Executor) *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		Executor: exec,
		Logger:   logger.Component(log, "supervisor"),
	})
}

func newScanner(exec dispatch.Executor) *scanner.Scanner {
	return scanner.New(scanner.Options{
		Workers:  cfg.Scan.Workers,
		Budget:   cfg.Scan.Budget,
		Executor: exec,
		Logger:   logger.Component(log, "scanner"),
	})
}

// backendArgs resolves the backend command line once per run so that a
// generated name survives restarts.
func backendArgs() (supervisor.BackendArgs, []string) {
	ba := supervisor.BackendArgs{
		Name:     cfg.Backend.Name,
		Password: cfg.Backend.Password,
		Public:   cfg.Backend.IsPublic(),
	}.WithDefaultName()
	return ba, ba.Args()
}

// processAlive reports whether pid names a live, non-zombie process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	if err != nil || !ok {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	st, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range st {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

func signalProcess(pid int, sig syscall.Signal) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	return p.SendSignal(sig)
}

func killProcess(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	return p.Kill()
}
