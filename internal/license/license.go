package license

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for license expiry dates.
// Expiry carries no time component; a license is valid through the end of
// its expiry day in UTC.
const DateLayout = "2006-01-02"

// Status is the total output of the evaluator. Every device identifier maps
// to exactly one status.
type Status string

const (
	StatusValid        Status = "valid"
	StatusExpired      Status = "expired"
	StatusInactive     Status = "inactive"
	StatusUnauthorised Status = "unauthorised"
)

// Level is the license tier.
type Level string

const (
	LevelLite    Level = "lite"
	LevelPremium Level = "premium"
)

// ParseLevel validates and normalizes a tier string.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelLite:
		return LevelLite, nil
	case LevelPremium:
		return LevelPremium, nil
	default:
		return "", fmt.Errorf("unknown license level %q", s)
	}
}

// AdminStatus is the administrative kill switch on a license record,
// independent of expiry.
type AdminStatus string

const (
	AdminActive   AdminStatus = "active"
	AdminInactive AdminStatus = "inactive"
)

// License is one record in the license store, keyed by device ID. Records
// are written only through the admin upsert/delete path; check and event
// traffic never mutates them.
type License struct {
	DeviceID  string      `json:"device_id"`
	Username  string      `json:"username"`
	Level     Level       `json:"level"`
	Expiry    time.Time   `json:"-"`
	Status    AdminStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}

// ExpiryString renders the expiry in the canonical date-only format.
func (l *License) ExpiryString() string {
	return l.Expiry.UTC().Format(DateLayout)
}

// ParseExpiry parses a date-only expiry string as midnight UTC.
func ParseExpiry(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry date %q: expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// expiredAt reports whether the license has lapsed at the given instant.
// The expiry date is inclusive: a license expiring 2026-12-31 is still valid
// at 23:59:59 UTC that day and expired from midnight the next day.
func (l *License) expiredAt(now time.Time) bool {
	notAfter := l.Expiry.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	return !now.UTC().Before(notAfter)
}
