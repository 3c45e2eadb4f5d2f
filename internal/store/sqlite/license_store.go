package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"licgate/internal/license"
	"licgate/internal/store"
)

// LicenseStore persists license records in the licenses table.
type LicenseStore struct {
	db *sql.DB
}

func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

func (s *LicenseStore) Get(ctx context.Context, deviceID string) (*license.License, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, store.ErrNotFound
	}

	var lic license.License
	var expiry string
	var updatedMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT device_id, username, level, expiry, status, updated_at_ms
FROM licenses
WHERE device_id = ?;
`, deviceID).Scan(&lic.DeviceID, &lic.Username, &lic.Level, &expiry, &lic.Status, &updatedMs)

	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("license get: %w", err)
	}

	lic.Expiry, err = license.ParseExpiry(expiry)
	if err != nil {
		return nil, fmt.Errorf("license get: corrupt expiry for %s: %w", deviceID, err)
	}
	lic.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &lic, nil
}

// Upsert inserts or fully replaces the record keyed by device ID.
func (s *LicenseStore) Upsert(ctx context.Context, lic *license.License) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO licenses(device_id, username, level, expiry, status, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  username      = excluded.username,
  level         = excluded.level,
  expiry        = excluded.expiry,
  status        = excluded.status,
  updated_at_ms = excluded.updated_at_ms;
`,
		lic.DeviceID, lic.Username, lic.Level, lic.ExpiryString(), lic.Status,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("license upsert: %w", err)
	}
	return nil
}

func (s *LicenseStore) Delete(ctx context.Context, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM licenses WHERE device_id = ?;`, deviceID)
	if err != nil {
		return fmt.Errorf("license delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("license delete: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *LicenseStore) List(ctx context.Context) ([]license.License, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id, username, level, expiry, status, updated_at_ms
FROM licenses
ORDER BY device_id;
`)
	if err != nil {
		return nil, fmt.Errorf("license list: %w", err)
	}
	defer rows.Close()

	var out []license.License
	for rows.Next() {
		var lic license.License
		var expiry string
		var updatedMs int64
		if err := rows.Scan(&lic.DeviceID, &lic.Username, &lic.Level, &expiry, &lic.Status, &updatedMs); err != nil {
			return nil, fmt.Errorf("license list scan: %w", err)
		}
		lic.Expiry, err = license.ParseExpiry(expiry)
		if err != nil {
			return nil, fmt.Errorf("license list: corrupt expiry for %s: %w", lic.DeviceID, err)
		}
		lic.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		out = append(out, lic)
	}
	return out, rows.Err()
}

func (s *LicenseStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
