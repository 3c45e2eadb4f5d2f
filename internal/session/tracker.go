package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"licgate/internal/license"
	"licgate/internal/store"
)

// StartResult reports the outcome of a session start.
type StartResult struct {
	SessionID string
	// Aborted is the stale running session that was force-closed to make
	// room for the new one, if any.
	Aborted *Session
}

// EndResult reports the outcome of a session end. Found is false when no
// matching running session existed; that is a normal outcome, not an error.
type EndResult struct {
	Found       bool
	SessionID   string
	DurationSec int64
}

// Tracker drives the per-device session state machine. All read-modify-write
// sequences for one device run under that device's lock, so concurrent
// starts or ends for the same device serialize while different devices
// proceed independently.
//
// The tracker does not consult the license store; callers gate Start and End
// on a valid evaluation first.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a session tracker backed by the given store.
func NewTracker(s Store, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:  s,
		logger: logger.With(slog.String("component", "session_tracker")),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start opens a new running session for the device. A stale running session
// is first force-closed as aborted with its elapsed wall time; a device only
// ever has one logical session. The session ID is the client-supplied value
// when present, otherwise freshly generated.
func (t *Tracker) Start(ctx context.Context, deviceID string, level license.Level, clientSessionID string) (*StartResult, error) {
	lock := t.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	res := &StartResult{}

	stale, err := t.store.FindRunning(ctx, deviceID)
	switch {
	case err == nil:
		now := t.now()
		closed, err := t.store.Close(ctx, stale.ID, StatusAborted, now, elapsedSeconds(stale.StartTime, now))
		if err != nil {
			return nil, fmt.Errorf("abort stale session %s: %w", stale.ID, err)
		}
		if closed {
			res.Aborted = stale
			t.logger.WarnContext(ctx, "aborted stale running session",
				slog.String("device_id", deviceID),
				slog.String("session_id", stale.ID),
			)
		}
	case errors.Is(err, store.ErrNotFound):
		// Nothing running; the common case.
	default:
		return nil, fmt.Errorf("find running session: %w", err)
	}

	id := clientSessionID
	if id == "" {
		id = NewSessionID()
	}

	s := &Session{
		ID:        id,
		DeviceID:  deviceID,
		Level:     level,
		StartTime: t.now(),
		Status:    StatusRunning,
	}
	if err := t.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	res.SessionID = id
	return res, nil
}

// End closes a running session for the device. When clientSessionID is
// given, exactly that record is closed if it belongs to the device and is
// still running; otherwise the most recent running session for the device
// is closed. No matching session is reported via Found=false, never as an
// error.
//
// The stored duration is clientDuration when supplied and non-negative
// (callers that track their own timers are trusted), else the elapsed wall
// time floored to whole seconds and at zero.
func (t *Tracker) End(ctx context.Context, deviceID, clientSessionID string, clientDuration *int64) (*EndResult, error) {
	lock := t.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	var target *Session
	var err error
	if clientSessionID != "" {
		target, err = t.store.Get(ctx, clientSessionID)
		if err == nil && (target.DeviceID != deviceID || target.Status != StatusRunning) {
			return &EndResult{}, nil
		}
	} else {
		target, err = t.store.FindRunning(ctx, deviceID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return &EndResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locate session: %w", err)
	}

	now := t.now()
	duration := elapsedSeconds(target.StartTime, now)
	if clientDuration != nil && *clientDuration >= 0 {
		duration = *clientDuration
	}

	closed, err := t.store.Close(ctx, target.ID, StatusEnded, now, duration)
	if err != nil {
		return nil, fmt.Errorf("close session %s: %w", target.ID, err)
	}
	if !closed {
		// Lost a race against another closer; same outcome as not found.
		return &EndResult{}, nil
	}

	return &EndResult{Found: true, SessionID: target.ID, DurationSec: duration}, nil
}

// deviceLock returns the mutex serializing session mutations for one device.
// Locks are never evicted; the map is bounded by the device population.
func (t *Tracker) deviceLock(deviceID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[deviceID] = lock
	}
	return lock
}

// NewSessionID generates a collision-resistant session identifier:
// 16 random bytes, hex encoded.
func NewSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken.
		panic(fmt.Sprintf("session id generation: %v", err))
	}
	return hex.EncodeToString(buf)
}

// elapsedSeconds returns whole seconds between start and now, floored at 0.
func elapsedSeconds(start, now time.Time) int64 {
	secs := int64(now.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
