// Package session tracks one usage interval per device. Each device has at
// most one running session at a time; the tracker force-aborts a stale
// running session before opening a new one, so crashed clients never wedge a
// device.
package session

import (
	"context"
	"time"

	"licgate/internal/license"
)

// Status is the lifecycle state of a session record. Running is the only
// non-terminal state; there is no transition out of ended or aborted.
type Status string

const (
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
	StatusAborted Status = "aborted"
)

// Session is one tracked usage interval for a device.
//
// Level is a label copied at start time from the caller's request; it is not
// re-validated against the license afterwards. EndTime is nil while the
// session runs and set exactly once on close.
type Session struct {
	ID          string        `json:"session_id"`
	DeviceID    string        `json:"device_id"`
	Level       license.Level `json:"level"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Status      Status        `json:"status"`
	DurationSec int64         `json:"duration_sec"`
}

// Filter narrows session listings. Zero values mean "no constraint".
type Filter struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
}

// Store is the persistence surface the tracker depends on. Close must be an
// atomic conditional update: it closes the row only while it is still
// running and reports whether it did, so concurrent closers cannot both win.
type Store interface {
	// Create inserts a new session record in state running.
	Create(ctx context.Context, s *Session) error

	// Get returns the session by ID, or store.ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// FindRunning returns the running session for a device with the latest
	// start time, or store.ErrNotFound when none is running.
	FindRunning(ctx context.Context, deviceID string) (*Session, error)

	// Close transitions a running session to the given terminal status.
	// It returns false without error when the row was not running anymore.
	Close(ctx context.Context, sessionID string, status Status, endTime time.Time, durationSec int64) (bool, error)

	// List returns sessions matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Session, error)
}
