// Package journal records the lifecycle of download jobs.
package journal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Job states as stored in the journal.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Entry is the latest known state of one download job.
type Entry struct {
	JobID     string    `db:"job_id" bson:"_id"`
	UserID    int64     `db:"user_id" bson:"user_id"`
	Query     string    `db:"query" bson:"query"`
	Format    string    `db:"format" bson:"format"`
	State     string    `db:"state" bson:"state"`
	Error     string    `db:"error" bson:"error,omitempty"`
	SizeBytes int64     `db:"size_bytes" bson:"size_bytes"`
	CreatedAt time.Time `db:"created_at" bson:"created_at"`
	UpdatedAt time.Time `db:"updated_at" bson:"updated_at"`
}

// Journal stores job entries, upserting by JobID.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

const (
	// DriverMemory keeps a bounded ring of recent entries in process.
	DriverMemory = "memory"
	// DriverPostgres stores entries in the download_jobs table.
	DriverPostgres = "postgres"
	// DriverMongo stores entries in a MongoDB collection.
	DriverMongo = "mongo"
	// DriverNone discards entries.
	DriverNone = "none"
)

// NormalizeDriver lower-cases the driver name and maps empty to memory.
func NormalizeDriver(driver string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(driver))
	switch d {
	case "":
		return DriverMemory, nil
	case DriverMemory, DriverPostgres, DriverMongo, DriverNone:
		return d, nil
	case "postgresql", "pg":
		return DriverPostgres, nil
	case "mongodb":
		return DriverMongo, nil
	}
	return "", fmt.Errorf("journal: unknown driver %q", driver)
}

// Nop discards every entry.
type Nop struct{}

// Record implements Journal.
func (Nop) Record(context.Context, Entry) error { return nil }

// Recent implements Journal.
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

// Close implements Journal.
func (Nop) Close() error { return nil }

// Memory keeps the most recent entries in insertion order of their first record.
type Memory struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string]Entry
}

// NewMemory returns a Memory journal holding at most max jobs (100 when max <= 0).
func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 100
	}
	return &Memory{max: max, entries: make(map[string]Entry)}
}

// Record upserts the entry, keeping its original CreatedAt.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.entries[e.JobID]; ok {
		if !prev.CreatedAt.IsZero() {
			e.CreatedAt = prev.CreatedAt
		}
		m.entries[e.JobID] = e
		return nil
	}
	m.entries[e.JobID] = e
	m.order = append(m.order, e.JobID)
	for len(m.order) > m.max {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[m.order[i]])
	}
	return out, nil
}

// Close implements Journal.
func (m *Memory) Close() error { return nil }
