// Package sandbox owns the private directories the backend runs in and
// locates or downloads the backend executable.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
)

// BinaryName is the backend executable looked up in bin/ and on PATH.
const BinaryName = "taz"

// ErrNoBinary is returned when no backend executable can be found.
var ErrNoBinary = errors.New("backend binary not found; set backend.binary or backend.url")

// Manager handles the sandbox layout at ~/.tazlink/{home,tmp,bin}
type Manager struct {
	dir    string
	client *http.Client
	log    zerolog.Logger
}

// NewManager creates a manager rooted at ~/.tazlink
func NewManager(log zerolog.Logger) (*Manager, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewManagerAt(filepath.Join(home, ".tazlink"), log), nil
}

// NewManagerAt creates a manager rooted at dir
func NewManagerAt(dir string, log zerolog.Logger) *Manager {
	return &Manager{dir: dir, client: http.DefaultClient, log: log}
}

// Dir returns the sandbox root
func (m *Manager) Dir() string {
	return m.dir
}

// HomeDir is the backend's HOME and working directory
func (m *Manager) HomeDir() string {
	return filepath.Join(m.dir, "home")
}

// TmpDir is the backend's TMPDIR
func (m *Manager) TmpDir() string {
	return filepath.Join(m.dir, "tmp")
}

// BinDir holds a downloaded backend executable
func (m *Manager) BinDir() string {
	return filepath.Join(m.dir, "bin")
}

// BinaryPath is where a downloaded backend executable lives
func (m *Manager) BinaryPath() string {
	return filepath.Join(m.BinDir(), BinaryName)
}

// EnsureDirs creates the sandbox directories
func (m *Manager) EnsureDirs() error {
	for _, dir := range []string{m.HomeDir(), m.TmpDir(), m.BinDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// ResolveBinary returns the configured path if set, else bin/taz, else taz
// from PATH.
func (m *Manager) ResolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNoBinary, configured)
		}
		return configured, nil
	}
	if _, err := os.Stat(m.BinaryPath()); err == nil {
		return m.BinaryPath(), nil
	}
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}
	return "", ErrNoBinary
}

// EnsureBinary resolves the backend executable, downloading it from url into
// bin/ when nothing is found and url is set.
func (m *Manager) EnsureBinary(ctx context.Context, configured, url string) (string, error) {
	path, err := m.ResolveBinary(configured)
	if err == nil || configured != "" || url == "" {
		return path, err
	}
	if err := m.Fetch(ctx, url); err != nil {
		return "", err
	}
	return m.BinaryPath(), nil
}

// Fetch downloads the backend executable from url into bin/
func (m *Manager) Fetch(ctx context.Context, url string) error {
	if err := os.MkdirAll(m.BinDir(), 0700); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}
	destPath := m.BinaryPath()

	m.log.Info().Str("url", url).Msg("downloading backend")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to download backend: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download backend: HTTP %d", resp.StatusCode)
	}

	// Create temp file for atomic write
	tmpPath := destPath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write backend: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close backend: %w", err)
	}
	if err := os.Chmod(tmpPath, 0755); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to mark backend executable: %w", err)
	}

	// Rename to final path (atomic)
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize backend: %w", err)
	}

	m.log.Info().Int64("bytes", written).Str("path", destPath).Msg("backend downloaded")
	return nil
}

// Clean removes the sandbox home and tmp directories. The downloaded binary
// is kept.
func (m *Manager) Clean() error {
	for _, dir := range []string{m.HomeDir(), m.TmpDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to clean %s: %w", dir, err)
		}
	}
	return nil
}
