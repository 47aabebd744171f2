package session

import (
	"time"

	"github.com/eja/tazlink/internal/credential"
	"github.com/google/uuid"
)

// Host session states
const (
	StateReserved     = "reserved"
	StateBroadcasting = "broadcasting"
	StateServing      = "serving"
	StateStopped      = "stopped"
)

// HostSession records one `tazlink host` run so that other invocations can
// list and stop it.
type HostSession struct {
	ID          string                 `json:"id"`
	Credentials credential.Credentials `json:"credentials"`
	State       string                 `json:"state"`
	Interface   string                 `json:"interface,omitempty"`
	HostPID     int                    `json:"host_pid"`    // the tazlink process owning the access point
	BackendPID  int                    `json:"backend_pid"` // 0 when no backend is running
	BackendName string                 `json:"backend_name,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	StoppedAt   *time.Time             `json:"stopped_at,omitempty"`
	ExitReason  string                 `json:"exit_reason,omitempty"` // "signal" | "stopped" | "failed"
}

// NewID returns a short random session ID
func NewID() string {
	return uuid.New().String()[:8]
}

// Active reports whether the session has not been stopped.
func (s *HostSession) Active() bool {
	return s.State != StateStopped
}

// MarkStopped records the end of the session.
func (s *HostSession) MarkStopped(reason string, at time.Time) {
	s.State = StateStopped
	s.StoppedAt = &at
	s.ExitReason = reason
	s.BackendPID = 0
}
