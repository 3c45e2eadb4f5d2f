// Package services holds the business logic between the HTTP handlers and
// the domain packages: license checking, session events, admin management
// and health.
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
	"licgate/internal/store"
)

// ClientMeta carries request metadata recorded in the audit log.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// LicenseService answers license checks.
type LicenseService interface {
	// Check evaluates the device's license. A store fault fails the check
	// (fail closed); evaluator outcomes including unauthorised are normal
	// results. Every attempt is audited.
	Check(ctx context.Context, deviceID string, meta ClientMeta) (license.Evaluation, error)
}

type licenseService struct {
	licenses store.LicenseStore
	recorder *audit.Recorder
	metrics  *infrastructure.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// LicenseServiceOption configures the license service.
type LicenseServiceOption func(*licenseService)

// WithLicenseClock overrides the service time source. Used by tests.
func WithLicenseClock(now func() time.Time) LicenseServiceOption {
	return func(s *licenseService) { s.now = now }
}

// NewLicenseService creates the license check service. metrics may be nil.
func NewLicenseService(licenses store.LicenseStore, recorder *audit.Recorder, metrics *infrastructure.Metrics, logger *slog.Logger, opts ...LicenseServiceOption) LicenseService {
	s := &licenseService{
		licenses: licenses,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With(slog.String("service", "license")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *licenseService) Check(ctx context.Context, deviceID string, meta ClientMeta) (license.Evaluation, error) {
	lic, err := s.licenses.Get(ctx, deviceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// Fail closed: an undetermined license is never reported valid.
		s.recorder.Record(ctx, audit.Record{
			DeviceID:  deviceID,
			Event:     audit.EventCheck,
			Result:    "error_store",
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
		})
		s.logger.ErrorContext(ctx, "license lookup failed",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		return license.Evaluation{}, fmt.Errorf("license lookup: %w", err)
	}

	ev := license.Evaluate(lic, s.now())

	s.recorder.Record(ctx, audit.Record{
		DeviceID:  deviceID,
		Event:     audit.EventCheck,
		Result:    string(ev.Status),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	if s.metrics != nil {
		s.metrics.LicenseChecks.WithLabelValues(string(ev.Status)).Inc()
	}

	s.logger.InfoContext(ctx, "license checked",
		slog.String("device_id", deviceID),
		slog.String("status", string(ev.Status)),
	)
	return ev, nil
}
