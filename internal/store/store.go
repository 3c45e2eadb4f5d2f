// Package store defines the persistence boundary for license records.
// Concrete implementations live in subpackages; the rest of the application
// depends only on these interfaces so the backing technology stays a wiring
// decision.
package store

import (
	"context"
	"errors"

	"licgate/internal/license"
)

// ErrNotFound is returned by lookups when no record exists for the given
// key. Callers must treat it as a normal outcome, not a store fault.
var ErrNotFound = errors.New("record not found")

// LicenseStore is the read/write surface over license records. Get serves
// the check path; Upsert, Delete and List are admin-only.
type LicenseStore interface {
	// Get returns the license for a device, or ErrNotFound.
	Get(ctx context.Context, deviceID string) (*license.License, error)

	// Upsert inserts or fully replaces the record keyed by DeviceID.
	Upsert(ctx context.Context, lic *license.License) error

	// Delete removes the record, returning ErrNotFound when absent.
	Delete(ctx context.Context, deviceID string) error

	// List returns all license records ordered by device ID.
	List(ctx context.Context) ([]license.License, error)

	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error
}
