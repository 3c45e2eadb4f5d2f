// Package audit appends one record per inbound check or event attempt.
// The log is observability data only: business logic never reads it, and a
// failed write must never fail the request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Well-known event kinds. Event is otherwise freeform; callers may record
// arbitrary kinds through the generic event endpoint.
const (
	EventCheck = "check"
	EventStart = "start"
	EventEnd   = "end"
)

// Record is one immutable audit entry. Data carries arbitrary structured
// payload supplied by the caller.
type Record struct {
	ID        int64          `json:"id,omitempty"`
	DeviceID  string         `json:"device_id"`
	Event     string         `json:"event"`
	Result    string         `json:"result"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows audit listings. Zero values mean "no constraint".
type Filter struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
}

// Store is the persistence surface for audit records. Records are only ever
// inserted and listed; normal traffic never updates or deletes them.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
}

// Recorder writes audit records fire-and-forget. Store failures are logged
// and counted but swallowed, trading audit durability for availability of
// the primary check/event path.
type Recorder struct {
	store  Store
	logger *slog.Logger
	drops  prometheus.Counter
	now    func() time.Time
}

// NewRecorder creates an audit recorder. drops counts swallowed write
// failures and may be nil when metrics are not wired (tests).
func NewRecorder(s Store, logger *slog.Logger, drops prometheus.Counter) *Recorder {
	return &Recorder{
		store:  s,
		logger: logger.With(slog.String("component", "audit")),
		drops:  drops,
		now:    time.Now,
	}
}

// Record persists an audit entry. It never returns an error; callers must
// not gate their response on the audit write.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if err := r.store.Insert(ctx, &rec); err != nil {
		if r.drops != nil {
			r.drops.Inc()
		}
		r.logger.ErrorContext(ctx, "audit write dropped",
			slog.String("device_id", rec.DeviceID),
			slog.String("event", rec.Event),
			slog.String("error", err.Error()),
		)
	}
}
