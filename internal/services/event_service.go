package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licgate/internal/audit"
	"licgate/internal/infrastructure"
	"licgate/internal/license"
	"licgate/internal/session"
	"licgate/internal/store"
)

// StartOutcome reports a session start attempt. Reason is the evaluator
// status when the license did not grant.
type StartOutcome struct {
	Started   bool
	SessionID string
	Reason    license.Status
}

// EndOutcome reports a session end attempt. NotFound means no matching
// running session existed; Reason is set when the license did not grant.
type EndOutcome struct {
	Ended       bool
	NotFound    bool
	SessionID   string
	DurationSec int64
	Reason      license.Status
}

// EventService drives session starts/ends and generic event recording.
// The license gates every session mutation: inactive, expired and
// unauthorised devices are audited but never get session records.
type EventService interface {
	StartSession(ctx context.Context, deviceID string, level license.Level, clientSessionID string, meta ClientMeta) (*StartOutcome, error)
	EndSession(ctx context.Context, deviceID, clientSessionID string, clientDuration *int64, meta ClientMeta) (*EndOutcome, error)
	RecordEvent(ctx context.Context, deviceID, event, result string, data map[string]any, meta ClientMeta)
}

type eventService struct {
	licenses store.LicenseStore
	tracker  *session.Tracker
	recorder *audit.Recorder
	metrics  *infrastructure.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// EventServiceOption configures the event service.
type EventServiceOption func(*eventService)

// WithEventClock overrides the service time source. Used by tests.
func WithEventClock(now func() time.Time) EventServiceOption {
	return func(s *eventService) { s.now = now }
}

// NewEventService creates the session event service. metrics may be nil.
func NewEventService(licenses store.LicenseStore, tracker *session.Tracker, recorder *audit.Recorder, metrics *infrastructure.Metrics, logger *slog.Logger, opts ...EventServiceOption) EventService {
	s := &eventService{
		licenses: licenses,
		tracker:  tracker,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With(slog.String("service", "event")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// evaluate loads and evaluates the device's license, failing closed on a
// store fault.
func (s *eventService) evaluate(ctx context.Context, deviceID string) (license.Evaluation, error) {
	lic, err := s.licenses.Get(ctx, deviceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return license.Evaluation{}, fmt.Errorf("license lookup: %w", err)
	}
	return license.Evaluate(lic, s.now()), nil
}

func (s *eventService) StartSession(ctx context.Context, deviceID string, level license.Level, clientSessionID string, meta ClientMeta) (*StartOutcome, error) {
	ev, err := s.evaluate(ctx, deviceID)
	if err != nil {
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventStart, Result: "error_store",
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		return nil, err
	}

	if !ev.Grantable() {
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventStart, Result: string(ev.Status),
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		s.countSession(audit.EventStart, "refused")
		return &StartOutcome{Reason: ev.Status}, nil
	}

	res, err := s.tracker.Start(ctx, deviceID, level, clientSessionID)
	if err != nil {
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventStart, Result: "error_store",
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		return nil, err
	}

	data := map[string]any{"session_id": res.SessionID, "level": string(level)}
	if res.Aborted != nil {
		data["aborted_session_id"] = res.Aborted.ID
	}
	s.recorder.Record(ctx, audit.Record{
		DeviceID: deviceID, Event: audit.EventStart, Result: "ok",
		IP: meta.IP, UserAgent: meta.UserAgent, Data: data,
	})
	s.countSession(audit.EventStart, "ok")

	s.logger.InfoContext(ctx, "session started",
		slog.String("device_id", deviceID),
		slog.String("session_id", res.SessionID),
		slog.String("level", string(level)),
	)
	return &StartOutcome{Started: true, SessionID: res.SessionID}, nil
}

func (s *eventService) EndSession(ctx context.Context, deviceID, clientSessionID string, clientDuration *int64, meta ClientMeta) (*EndOutcome, error) {
	ev, err := s.evaluate(ctx, deviceID)
	if err != nil {
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventEnd, Result: "error_store",
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		return nil, err
	}

	if !ev.Grantable() {
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventEnd, Result: string(ev.Status),
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		s.countSession(audit.EventEnd, "refused")
		return &EndOutcome{Reason: ev.Status}, nil
	}

	res, err := s.tracker.End(ctx, deviceID, clientSessionID, clientDuration)
	if err != nil {
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventEnd, Result: "error_store",
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		return nil, err
	}

	if !res.Found {
		// Normal no-op: nothing was running for this device.
		s.recorder.Record(ctx, audit.Record{
			DeviceID: deviceID, Event: audit.EventEnd, Result: "not_found",
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		s.countSession(audit.EventEnd, "not_found")
		return &EndOutcome{NotFound: true}, nil
	}

	s.recorder.Record(ctx, audit.Record{
		DeviceID: deviceID, Event: audit.EventEnd, Result: "ok",
		IP: meta.IP, UserAgent: meta.UserAgent,
		Data: map[string]any{"session_id": res.SessionID, "duration_sec": res.DurationSec},
	})
	s.countSession(audit.EventEnd, "ok")

	s.logger.InfoContext(ctx, "session ended",
		slog.String("device_id", deviceID),
		slog.String("session_id", res.SessionID),
		slog.Int64("duration_sec", res.DurationSec),
	)
	return &EndOutcome{Ended: true, SessionID: res.SessionID, DurationSec: res.DurationSec}, nil
}

// RecordEvent writes a freeform audit record. Like all audit writes it is
// fire-and-forget; there is nothing to fail.
func (s *eventService) RecordEvent(ctx context.Context, deviceID, event, result string, data map[string]any, meta ClientMeta) {
	if result == "" {
		result = "ok"
	}
	s.recorder.Record(ctx, audit.Record{
		DeviceID: deviceID, Event: event, Result: result,
		IP: meta.IP, UserAgent: meta.UserAgent, Data: data,
	})
}

func (s *eventService) countSession(event, outcome string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event, outcome).Inc()
	}
}
