package services

import (
	"context"
	"log/slog"

	"licgate/internal/audit"
	"licgate/internal/license"
	"licgate/internal/session"
	"licgate/internal/store"
)

// AdminService is the administrative surface: the only write path into the
// license store, plus audit and session reporting.
type AdminService interface {
	ListLicenses(ctx context.Context) ([]license.License, error)
	UpsertLicense(ctx context.Context, lic *license.License) error
	DeleteLicense(ctx context.Context, deviceID string) error
	ListAudit(ctx context.Context, f audit.Filter) ([]audit.Record, error)
	ListSessions(ctx context.Context, f session.Filter) ([]session.Session, error)
}

type adminService struct {
	licenses store.LicenseStore
	sessions session.Store
	auditLog audit.Store
	logger   *slog.Logger
}

// NewAdminService creates the admin service.
func NewAdminService(licenses store.LicenseStore, sessions session.Store, auditLog audit.Store, logger *slog.Logger) AdminService {
	return &adminService{
		licenses: licenses,
		sessions: sessions,
		auditLog: auditLog,
		logger:   logger.With(slog.String("service", "admin")),
	}
}

func (s *adminService) ListLicenses(ctx context.Context) ([]license.License, error) {
	return s.licenses.List(ctx)
}

func (s *adminService) UpsertLicense(ctx context.Context, lic *license.License) error {
	if err := s.licenses.Upsert(ctx, lic); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "license upserted",
		slog.String("device_id", lic.DeviceID),
		slog.String("level", string(lic.Level)),
		slog.String("status", string(lic.Status)),
		slog.String("expiry", lic.ExpiryString()),
	)
	return nil
}

func (s *adminService) DeleteLicense(ctx context.Context, deviceID string) error {
	if err := s.licenses.Delete(ctx, deviceID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "license deleted", slog.String("device_id", deviceID))
	return nil
}

func (s *adminService) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	return s.auditLog.List(ctx, f)
}

func (s *adminService) ListSessions(ctx context.Context, f session.Filter) ([]session.Session, error) {
	return s.sessions.List(ctx, f)
}
