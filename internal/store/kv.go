package store

import (
	"context"
	"sync"
)

// Well-known keys. Values are JSON-serialized.
const (
	KeyAttendanceDB = "attendanceDB"       // []record.AttendanceRecord
	KeyQRHistory    = "qrHistory"          // []issuer.HistoryEntry, most recent first
	KeySessions     = "attendanceSessions" // []issuer.SessionCode, most recent first
	KeyLoggedInUser = "loggedInUser"       // plain string, written by the login flow
	KeyRole         = "role"               // plain string, written by the login flow
)

// KV is the string-keyed storage every component persists through.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites the value under key.
	Set(ctx context.Context, key, value string) error
	// Delete removes the key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool
	Close() error
}

// Memory is a map-backed KV for dev and testing.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Healthy(context.Context) bool { return true }

func (m *Memory) Close() error { return nil }
