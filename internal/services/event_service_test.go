package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licgate/internal/audit"
	"licgate/internal/license"
	"licgate/internal/session"
)

type eventFixture struct {
	licenses *memLicenseStore
	sessions *memSessionStore
	auditLog *memAuditStore
	svc      EventService
}

func newEventFixture(t *testing.T, opts ...EventServiceOption) *eventFixture {
	t.Helper()
	licenses := newMemLicenseStore()
	sessions := newMemSessionStore()
	auditLog := &memAuditStore{}
	recorder := audit.NewRecorder(auditLog, testLogger(), nil)
	tracker := session.NewTracker(sessions, testLogger())
	return &eventFixture{
		licenses: licenses,
		sessions: sessions,
		auditLog: auditLog,
		svc:      NewEventService(licenses, tracker, recorder, nil, testLogger(), opts...),
	}
}

func TestEventService_StartSessionWithValidLicense(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	require.NoError(t, f.licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	out, err := f.svc.StartSession(ctx, "D1", license.LevelPremium, "", ClientMeta{IP: "192.0.2.1"})
	require.NoError(t, err)

	assert.True(t, out.Started)
	assert.NotEmpty(t, out.SessionID)
	assert.Len(t, f.sessions.byStatus("D1", session.StatusRunning), 1)

	records := f.auditLog.byEvent(audit.EventStart)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Result)
}

func TestEventService_StartRefusedForUnauthorisedDevice(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()

	out, err := f.svc.StartSession(ctx, "D2", license.LevelLite, "", ClientMeta{})
	require.NoError(t, err, "a refused start is a normal response")

	assert.False(t, out.Started)
	assert.Equal(t, license.StatusUnauthorised, out.Reason)
	assert.Empty(t, f.sessions.byStatus("D2", session.StatusRunning), "no session row created")

	// Refusal is still audited.
	records := f.auditLog.byEvent(audit.EventStart)
	require.Len(t, records, 1)
	assert.Equal(t, "unauthorised", records[0].Result)
}

func TestEventService_StartRefusedForInactiveAndExpired(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()

	inactive := activeLicense(t, "D-inactive", "2099-01-01")
	inactive.Status = license.AdminInactive
	require.NoError(t, f.licenses.Upsert(ctx, inactive))

	expired := activeLicense(t, "D-expired", "2020-01-01")
	require.NoError(t, f.licenses.Upsert(ctx, expired))

	out, err := f.svc.StartSession(ctx, "D-inactive", license.LevelLite, "", ClientMeta{})
	require.NoError(t, err)
	assert.False(t, out.Started)
	assert.Equal(t, license.StatusInactive, out.Reason)

	out, err = f.svc.StartSession(ctx, "D-expired", license.LevelLite, "", ClientMeta{})
	require.NoError(t, err)
	assert.False(t, out.Started)
	assert.Equal(t, license.StatusExpired, out.Reason)

	assert.Empty(t, f.sessions.byStatus("D-inactive", session.StatusRunning))
	assert.Empty(t, f.sessions.byStatus("D-expired", session.StatusRunning))
}

func TestEventService_DoubleStartAbortsStaleSession(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	require.NoError(t, f.licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	first, err := f.svc.StartSession(ctx, "D1", license.LevelPremium, "", ClientMeta{})
	require.NoError(t, err)
	second, err := f.svc.StartSession(ctx, "D1", license.LevelPremium, "", ClientMeta{})
	require.NoError(t, err)

	running := f.sessions.byStatus("D1", session.StatusRunning)
	require.Len(t, running, 1)
	assert.Equal(t, second.SessionID, running[0].ID)

	aborted := f.sessions.byStatus("D1", session.StatusAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, first.SessionID, aborted[0].ID)
	assert.GreaterOrEqual(t, aborted[0].DurationSec, int64(0))
}

func TestEventService_EndToEndFlowWithServerDuration(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	licenses := newMemLicenseStore()
	sessions := newMemSessionStore()
	auditLog := &memAuditStore{}
	recorder := audit.NewRecorder(auditLog, testLogger(), nil)
	tracker := session.NewTracker(sessions, testLogger(), session.WithClock(clock))
	svc := NewEventService(licenses, tracker, recorder, nil, testLogger(), WithEventClock(clock))

	ctx := context.Background()
	require.NoError(t, licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	started, err := svc.StartSession(ctx, "D1", license.LevelPremium, "", ClientMeta{})
	require.NoError(t, err)
	require.True(t, started.Started)

	now = base.Add(30 * time.Second)
	ended, err := svc.EndSession(ctx, "D1", "", nil, ClientMeta{})
	require.NoError(t, err)

	assert.True(t, ended.Ended)
	assert.Equal(t, started.SessionID, ended.SessionID)
	assert.EqualValues(t, 30, ended.DurationSec)
}

func TestEventService_EndTrustsClientDuration(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	require.NoError(t, f.licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	_, err := f.svc.StartSession(ctx, "D1", license.LevelPremium, "", ClientMeta{})
	require.NoError(t, err)

	clientDuration := int64(120)
	out, err := f.svc.EndSession(ctx, "D1", "", &clientDuration, ClientMeta{})
	require.NoError(t, err)

	assert.True(t, out.Ended)
	assert.EqualValues(t, 120, out.DurationSec)
}

func TestEventService_EndWithNothingRunningIsNotFound(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	require.NoError(t, f.licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	out, err := f.svc.EndSession(ctx, "D1", "", nil, ClientMeta{})
	require.NoError(t, err, "not found is a no-op, not a fault")
	assert.True(t, out.NotFound)
	assert.False(t, out.Ended)

	records := f.auditLog.byEvent(audit.EventEnd)
	require.Len(t, records, 1)
	assert.Equal(t, "not_found", records[0].Result)
}

func TestEventService_EndRefusedWhenLicenseNoLongerGrants(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	require.NoError(t, f.licenses.Upsert(ctx, activeLicense(t, "D1", "2099-01-01")))

	_, err := f.svc.StartSession(ctx, "D1", license.LevelPremium, "", ClientMeta{})
	require.NoError(t, err)

	// Kill switch flips mid-session. The running session is untouched, but
	// the end call is refused.
	inactive := activeLicense(t, "D1", "2099-01-01")
	inactive.Status = license.AdminInactive
	require.NoError(t, f.licenses.Upsert(ctx, inactive))

	out, err := f.svc.EndSession(ctx, "D1", "", nil, ClientMeta{})
	require.NoError(t, err)
	assert.False(t, out.Ended)
	assert.Equal(t, license.StatusInactive, out.Reason)
	assert.Len(t, f.sessions.byStatus("D1", session.StatusRunning), 1,
		"mid-session status change never force-ends the session")
}

func TestEventService_RecordEventWritesAudit(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()

	f.svc.RecordEvent(ctx, "D1", "heartbeat", "", map[string]any{"uptime": 42}, ClientMeta{IP: "192.0.2.9"})

	records := f.auditLog.byEvent("heartbeat")
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Result, "empty result defaults to ok")
	assert.Equal(t, "192.0.2.9", records[0].IP)
}
