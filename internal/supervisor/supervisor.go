// Package supervisor runs the backend executable as a child process and
// polls its status endpoint.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/eja/tazlink/internal/dispatch"
	"github.com/eja/tazlink/internal/status"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	defaultHealthConnect = 1 * time.Second
	defaultHealthRead    = 1500 * time.Millisecond
	defaultRestartDelay  = 200 * time.Millisecond
	defaultPollInterval  = 500 * time.Millisecond
	defaultOutputLines   = 200
)

// ErrBinaryNotFound is returned by Start when the backend executable is missing.
var ErrBinaryNotFound = errors.New("backend binary not found")

// State is the lifecycle state of the backend process.
type State int

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProcessHandle is a snapshot of the supervised process.
type ProcessHandle struct {
	PID   int   `json:"pid"`
	State State `json:"state"`
}

// Config configures a Supervisor.
type Config struct {
	Binary string
	// Home and Tmp become the child's HOME and TMPDIR. Home is also its
	// working directory.
	Home string
	Tmp  string

	StatusURL     string
	HealthConnect time.Duration
	HealthRead    time.Duration
	RestartDelay  time.Duration
	PollInterval  time.Duration
	OutputLines   int

	Executor dispatch.Executor
	Logger   zerolog.Logger
}

// Supervisor keeps at most one backend process alive.
type Supervisor struct {
	cfg    Config
	client *http.Client
	exec   dispatch.Executor
	log    zerolog.Logger
	output *ring

	mu    sync.Mutex
	state State
	pid   int
	gen   uint64
}

// New creates a supervisor. Nothing is started.
func New(cfg Config) *Supervisor {
	if cfg.StatusURL == "" {
		cfg.StatusURL = status.URL("127.0.0.1")
	}
	if cfg.HealthConnect <= 0 {
		cfg.HealthConnect = defaultHealthConnect
	}
	if cfg.HealthRead <= 0 {
		cfg.HealthRead = defaultHealthRead
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.OutputLines <= 0 {
		cfg.OutputLines = defaultOutputLines
	}
	ex := cfg.Executor
	if ex == nil {
		ex = dispatch.Inline{}
	}
	return &Supervisor{
		cfg:    cfg,
		client: status.NewClient(cfg.HealthConnect, cfg.HealthRead),
		exec:   ex,
		log:    cfg.Logger,
		output: newRing(cfg.OutputLines),
	}
}

// Handle returns the current process handle.
func (s *Supervisor) Handle() ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ProcessHandle{PID: s.pid, State: s.state}
}

// Output returns the most recent lines the backend wrote.
func (s *Supervisor) Output() []string {
	return s.output.snapshot()
}

// Start launches the backend with args unless it is already starting or
// running, in which case it does nothing.
func (s *Supervisor) Start(args []string) error {
	s.mu.Lock()
	if s.state != Stopped {
		s.mu.Unlock()
		return nil
	}
	s.state = Starting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	pid, err := s.spawn(gen, args)
	if err != nil {
		s.reset(gen)
		return err
	}

	s.mu.Lock()
	superseded := s.gen != gen
	if !superseded {
		s.state = Running
		s.pid = pid
	}
	s.mu.Unlock()

	// A Stop or Restart ran while spawning and could not see this pid.
	if superseded {
		killTree(int32(pid))
		s.log.Info().Int("pid", pid).Msg("backend start superseded, killed")
		return nil
	}

	s.log.Info().Int("pid", pid).Str("binary", s.cfg.Binary).Strs("args", redact(args)).Msg("backend started")
	return nil
}

func (s *Supervisor) spawn(gen uint64, args []string) (int, error) {
	if _, err := os.Stat(s.cfg.Binary); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBinaryNotFound, s.cfg.Binary)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(s.cfg.Binary, args...)
	cmd.Dir = s.cfg.Home
	cmd.Env = []string{"HOME=" + s.cfg.Home, "TMPDIR=" + s.cfg.Tmp}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return 0, fmt.Errorf("failed to start backend: %w", err)
	}
	_ = w.Close()

	go s.drain(gen, cmd, r)
	return cmd.Process.Pid, nil
}

// drain reads the merged output until the child closes it, then reaps the
// child and resets the state if no newer start has happened.
func (s *Supervisor) drain(gen uint64, cmd *exec.Cmd, r *os.File) {
	out := s.log.With().Str("component", "backend").Logger()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		s.output.add(line)
		out.Debug().Msg(line)
	}
	_ = r.Close()

	err := cmd.Wait()
	s.reset(gen)

	ev := s.log.Info().Int("pid", cmd.Process.Pid)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("backend exited")
}

func (s *Supervisor) reset(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.state = Stopped
		s.pid = 0
	}
}

// Stop kills the backend and any children it spawned. It is safe to call at
// any time and more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	pid := s.pid
	s.state = Stopped
	s.pid = 0
	s.gen++
	s.mu.Unlock()

	if pid <= 0 {
		return
	}
	killTree(int32(pid))
	s.log.Info().Int("pid", pid).Msg("backend stopped")
}

// Restart stops the backend, waits briefly for the port to be released and
// starts it again.
func (s *Supervisor) Restart(args []string) error {
	s.Stop()
	time.Sleep(s.cfg.RestartDelay)
	return s.Start(args)
}

func killTree(pid int32) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return
	}
	if children, err := p.Children(); err == nil {
		for _, c := range children {
			killTree(c.Pid)
		}
	}
	_ = p.Kill()
}

// PollHealth queries the status endpoint once in the background and
// delivers the snapshot, or nil on any failure.
func (s *Supervisor) PollHealth(cb func(*status.Snapshot)) {
	go func() {
		snap := s.fetch(context.Background())
		s.exec.Post(func() { cb(snap) })
	}()
}

// Health queries the status endpoint once and returns nil on any failure.
func (s *Supervisor) Health(ctx context.Context) *status.Snapshot {
	return s.fetch(ctx)
}

func (s *Supervisor) fetch(ctx context.Context) *status.Snapshot {
	snap, err := status.Fetch(ctx, s.client, s.cfg.StatusURL)
	if err != nil {
		s.log.Debug().Err(err).Str("url", s.cfg.StatusURL).Msg("health poll failed")
		return nil
	}
	return &snap
}

// WaitReady polls the status endpoint at the poll interval until it answers
// or ctx ends.
func (s *Supervisor) WaitReady(ctx context.Context) (*status.Snapshot, error) {
	op := func() (*status.Snapshot, error) {
		if snap := s.fetch(ctx); snap != nil {
			return snap, nil
		}
		return nil, errors.New("backend not ready")
	}
	snap, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.PollInterval)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return nil, fmt.Errorf("backend did not become ready: %w", err)
	}
	return snap, nil
}

// redact hides the value following --password.
func redact(args []string) []string {
	out := append([]string(nil), args...)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == "--password" {
			out[i+1] = "***"
		}
	}
	return out
}
