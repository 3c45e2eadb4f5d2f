package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"licgate/internal/session"
	"licgate/internal/store"
)

// SessionStore persists session records in the sessions table.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, rec *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(session_id, device_id, level, start_time_ms, status, duration_sec)
VALUES (?, ?, ?, ?, ?, 0);
`,
		rec.ID, rec.DeviceID, rec.Level, rec.StartTime.UTC().UnixMilli(), rec.Status,
	)
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, device_id, level, start_time_ms, end_time_ms, status, duration_sec
FROM sessions
WHERE session_id = ?;
`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) FindRunning(ctx context.Context, deviceID string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, device_id, level, start_time_ms, end_time_ms, status, duration_sec
FROM sessions
WHERE device_id = ? AND status = 'running'
ORDER BY start_time_ms DESC
LIMIT 1;
`, deviceID)
	return scanSession(row)
}

// Close transitions a running row to a terminal status as one conditional
// UPDATE. A row that is no longer running matches nothing, so two racing
// closers cannot both report success.
func (s *SessionStore) Close(ctx context.Context, sessionID string, status session.Status, endTime time.Time, durationSec int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, end_time_ms = ?, duration_sec = ?
WHERE session_id = ? AND status = 'running';
`, status, endTime.UTC().UnixMilli(), durationSec, sessionID)
	if err != nil {
		return false, fmt.Errorf("session close: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session close: %w", err)
	}
	return n > 0, nil
}

func (s *SessionStore) List(ctx context.Context, f session.Filter) ([]session.Session, error) {
	query := `
SELECT session_id, device_id, level, start_time_ms, end_time_ms, status, duration_sec
FROM sessions
WHERE 1=1`
	var args []any
	if f.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, f.DeviceID)
	}
	if !f.From.IsZero() {
		query += " AND start_time_ms >= ?"
		args = append(args, f.From.UTC().UnixMilli())
	}
	if !f.To.IsZero() {
		query += " AND start_time_ms <= ?"
		args = append(args, f.To.UTC().UnixMilli())
	}
	query += " ORDER BY start_time_ms DESC LIMIT ?;"
	args = append(args, listLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session list: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		rec, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*session.Session, error) {
	rec, err := scanFrom(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return rec, err
}

func scanSessionRows(rows *sql.Rows) (*session.Session, error) {
	return scanFrom(rows)
}

func scanFrom(sc rowScanner) (*session.Session, error) {
	var rec session.Session
	var startMs int64
	var endMs sql.NullInt64
	if err := sc.Scan(&rec.ID, &rec.DeviceID, &rec.Level, &startMs, &endMs, &rec.Status, &rec.DurationSec); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("session scan: %w", err)
	}
	rec.StartTime = time.UnixMilli(startMs).UTC()
	if endMs.Valid {
		t := time.UnixMilli(endMs.Int64).UTC()
		rec.EndTime = &t
	}
	return &rec, nil
}

// listLimit caps result sizes for the admin listing endpoints.
func listLimit(requested int) int {
	const (
		defaultLimit = 200
		maxLimit     = 1000
	)
	if requested <= 0 {
		return defaultLimit
	}
	if requested > maxLimit {
		return maxLimit
	}
	return requested
}
