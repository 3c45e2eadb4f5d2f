package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"licgate/internal/audit"
	"licgate/internal/license"
	"licgate/internal/session"
	"licgate/internal/store"
)

// In-memory store fakes shared by the service tests. They mirror the sqlite
// semantics: ErrNotFound on missing keys, conditional session close.

type memLicenseStore struct {
	mu       sync.Mutex
	licenses map[string]license.License
	failing  bool
}

func newMemLicenseStore() *memLicenseStore {
	return &memLicenseStore{licenses: make(map[string]license.License)}
}

func (m *memLicenseStore) Get(_ context.Context, deviceID string) (*license.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errors.New("store unavailable")
	}
	lic, ok := m.licenses[deviceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := lic
	return &cp, nil
}

func (m *memLicenseStore) Upsert(_ context.Context, lic *license.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("store unavailable")
	}
	m.licenses[lic.DeviceID] = *lic
	return nil
}

func (m *memLicenseStore) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.licenses[deviceID]; !ok {
		return store.ErrNotFound
	}
	delete(m.licenses, deviceID)
	return nil
}

func (m *memLicenseStore) List(_ context.Context) ([]license.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]license.License, 0, len(m.licenses))
	for _, lic := range m.licenses {
		out = append(out, lic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (m *memLicenseStore) Ping(context.Context) error {
	if m.failing {
		return errors.New("store unavailable")
	}
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*session.Session)}
}

func (m *memSessionStore) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionStore) Get(_ context.Context, sessionID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) FindRunning(_ context.Context, deviceID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *session.Session
	for _, s := range m.sessions {
		if s.DeviceID != deviceID || s.Status != session.StatusRunning {
			continue
		}
		if latest == nil || s.StartTime.After(latest.StartTime) {
			latest = s
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memSessionStore) Close(_ context.Context, sessionID string, status session.Status, endTime time.Time, durationSec int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != session.StatusRunning {
		return false, nil
	}
	s.Status = status
	s.EndTime = &endTime
	s.DurationSec = durationSec
	return true, nil
}

func (m *memSessionStore) List(_ context.Context, f session.Filter) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Session
	for _, s := range m.sessions {
		if f.DeviceID != "" && s.DeviceID != f.DeviceID {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *memSessionStore) byStatus(deviceID string, status session.Status) []session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Session
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && s.Status == status {
			out = append(out, *s)
		}
	}
	return out
}

type memAuditStore struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memAuditStore) Insert(_ context.Context, rec *audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memAuditStore) List(_ context.Context, f audit.Filter) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, rec := range m.records {
		if f.DeviceID != "" && rec.DeviceID != f.DeviceID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memAuditStore) byEvent(event string) []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, rec := range m.records {
		if rec.Event == event {
			out = append(out, rec)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
