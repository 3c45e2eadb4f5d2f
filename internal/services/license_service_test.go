package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licgate/internal/audit"
	"licgate/internal/license"
)

func activeLicense(t *testing.T, deviceID, expiry string) *license.License {
	t.Helper()
	exp, err := license.ParseExpiry(expiry)
	require.NoError(t, err)
	return &license.License{
		DeviceID: deviceID,
		Username: "alice",
		Level:    license.LevelPremium,
		Expiry:   exp,
		Status:   license.AdminActive,
	}
}

func TestLicenseService_CheckValid(t *testing.T) {
	licenses := newMemLicenseStore()
	auditStore := &memAuditStore{}
	recorder := audit.NewRecorder(auditStore, testLogger(), nil)
	svc := NewLicenseService(licenses, recorder, nil, testLogger())

	ctx := context.Background()
	require.NoError(t, licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	ev, err := svc.Check(ctx, "D1", ClientMeta{IP: "192.0.2.1", UserAgent: "client/1.0"})
	require.NoError(t, err)

	assert.Equal(t, license.StatusValid, ev.Status)
	assert.Equal(t, "alice", ev.Username)
	assert.Equal(t, license.LevelPremium, ev.Level)
	assert.Equal(t, "2099-01-01", ev.Expiry)

	// Check attempt is audited with the evaluator result.
	records := auditStore.byEvent(audit.EventCheck)
	require.Len(t, records, 1)
	assert.Equal(t, "valid", records[0].Result)
	assert.Equal(t, "192.0.2.1", records[0].IP)
}

func TestLicenseService_CheckUnknownDeviceIsUnauthorised(t *testing.T) {
	licenses := newMemLicenseStore()
	recorder := audit.NewRecorder(&memAuditStore{}, testLogger(), nil)
	svc := NewLicenseService(licenses, recorder, nil, testLogger())

	ev, err := svc.Check(context.Background(), "D2", ClientMeta{})
	require.NoError(t, err, "unauthorised is a normal result, not a fault")

	assert.Equal(t, license.StatusUnauthorised, ev.Status)
	assert.Empty(t, ev.Username)
	assert.Empty(t, ev.Expiry)
}

func TestLicenseService_CheckFailsClosedOnStoreFault(t *testing.T) {
	licenses := newMemLicenseStore()
	licenses.failing = true
	auditStore := &memAuditStore{}
	recorder := audit.NewRecorder(auditStore, testLogger(), nil)
	svc := NewLicenseService(licenses, recorder, nil, testLogger())

	_, err := svc.Check(context.Background(), "D1", ClientMeta{})
	require.Error(t, err, "undetermined license must never be reported valid")
}

func TestLicenseService_CheckHonorsInjectedClock(t *testing.T) {
	licenses := newMemLicenseStore()
	recorder := audit.NewRecorder(&memAuditStore{}, testLogger(), nil)

	ctx := context.Background()
	require.NoError(t, licenses.Upsert(ctx, activeLicense(t, "D1", "2026-12-31")))

	lastSecond := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	svc := NewLicenseService(licenses, recorder, nil, testLogger(),
		WithLicenseClock(func() time.Time { return lastSecond }))
	ev, err := svc.Check(ctx, "D1", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, license.StatusValid, ev.Status)

	nextDay := time.Date(2027, 1, 1, 0, 0, 1, 0, time.UTC)
	svc = NewLicenseService(licenses, recorder, nil, testLogger(),
		WithLicenseClock(func() time.Time { return nextDay }))
	ev, err = svc.Check(ctx, "D1", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, license.StatusExpired, ev.Status)
}
