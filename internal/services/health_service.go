package services

import (
	"context"
	"log/slog"
	"time"

	"licgate/internal/store"
)

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status    string    `json:"status"` // healthy|degraded
	Store     string    `json:"store"`  // ok|unreachable
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthService reports process and store health.
type HealthService struct {
	licenses store.LicenseStore
	version  string
	logger   *slog.Logger
}

// NewHealthService creates the health service.
func NewHealthService(licenses store.LicenseStore, version string, logger *slog.Logger) *HealthService {
	return &HealthService{
		licenses: licenses,
		version:  version,
		logger:   logger.With(slog.String("service", "health")),
	}
}

// Check pings the store; an unreachable store degrades the report but the
// endpoint itself still answers.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Store:     "ok",
		Version:   s.version,
		Timestamp: time.Now().UTC(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.licenses.Ping(pingCtx); err != nil {
		status.Status = "degraded"
		status.Store = "unreachable"
		s.logger.WarnContext(ctx, "store ping failed", slog.String("error", err.Error()))
	}
	return status
}
