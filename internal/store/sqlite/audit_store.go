package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"licgate/internal/audit"
)

// AuditStore persists append-only audit records in the audit_log table.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(ctx context.Context, rec *audit.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var data any
	if len(rec.Data) > 0 {
		b, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("audit insert: marshal data: %w", err)
		}
		data = string(b)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log(device_id, event, result, ip, user_agent, data, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`,
		rec.DeviceID, rec.Event, rec.Result,
		nullable(rec.IP), nullable(rec.UserAgent), data,
		rec.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	query := `
SELECT id, device_id, event, result, ip, user_agent, data, created_at_ms
FROM audit_log
WHERE 1=1`
	var args []any
	if f.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, f.DeviceID)
	}
	if !f.From.IsZero() {
		query += " AND created_at_ms >= ?"
		args = append(args, f.From.UTC().UnixMilli())
	}
	if !f.To.IsZero() {
		query += " AND created_at_ms <= ?"
		args = append(args, f.To.UTC().UnixMilli())
	}
	query += " ORDER BY created_at_ms DESC, id DESC LIMIT ?;"
	args = append(args, listLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var rec audit.Record
		var ip, userAgent, data sql.NullString
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Event, &rec.Result, &ip, &userAgent, &data, &createdMs); err != nil {
			return nil, fmt.Errorf("audit list scan: %w", err)
		}
		rec.IP = ip.String
		rec.UserAgent = userAgent.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &rec.Data); err != nil {
				return nil, fmt.Errorf("audit list: corrupt data for record %d: %w", rec.ID, err)
			}
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
