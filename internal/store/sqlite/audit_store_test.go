package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licgate/internal/audit"
)

func TestAuditStore_InsertAndList(t *testing.T) {
	s := NewAuditStore(openTestDB(t))
	ctx := context.Background()

	rec := &audit.Record{
		DeviceID:  "D1",
		Event:     audit.EventCheck,
		Result:    "valid",
		IP:        "192.0.2.10",
		UserAgent: "client/1.0",
		Data:      map[string]any{"level": "premium"},
	}
	require.NoError(t, s.Insert(ctx, rec))
	assert.NotZero(t, rec.ID)

	got, err := s.List(ctx, audit.Filter{DeviceID: "D1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, audit.EventCheck, got[0].Event)
	assert.Equal(t, "valid", got[0].Result)
	assert.Equal(t, "192.0.2.10", got[0].IP)
	assert.Equal(t, "client/1.0", got[0].UserAgent)
	assert.Equal(t, "premium", got[0].Data["level"])
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestAuditStore_InsertWithoutOptionalFields(t *testing.T) {
	s := NewAuditStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &audit.Record{DeviceID: "D1", Event: "custom", Result: "ok"}))

	got, err := s.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].IP)
	assert.Empty(t, got[0].UserAgent)
	assert.Nil(t, got[0].Data)
}

func TestAuditStore_ListFiltersByDeviceAndRange(t *testing.T) {
	s := NewAuditStore(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(ctx, &audit.Record{
			DeviceID:  "D1",
			Event:     audit.EventCheck,
			Result:    "valid",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.Insert(ctx, &audit.Record{
		DeviceID:  "D2",
		Event:     audit.EventCheck,
		Result:    "unauthorised",
		CreatedAt: base,
	}))

	got, err := s.List(ctx, audit.Filter{DeviceID: "D1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt), "newest first")

	got, err = s.List(ctx, audit.Filter{DeviceID: "D1", From: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.List(ctx, audit.Filter{To: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.List(ctx, audit.Filter{DeviceID: "D1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
