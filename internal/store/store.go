// Package store provides storage backends for CardioGenie intake records.
//
// It includes an in-memory store for tests and DSN-less deployments, plus
// SQLite and PostgreSQL backed stores selected by DSN detection.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

// Store persists intake records keyed by conversation id. Load and save are
// atomic per id; cross-call serialization for the engine's read-modify-write
// cycle is handled by the engine's per-conversation lock.
type Store interface {
	// GetIntakeRecord returns the record for the conversation, or (nil, nil)
	// when none exists.
	GetIntakeRecord(conversationID string) (*models.IntakeRecord, error)
	SaveIntakeRecord(record models.IntakeRecord) error
	DeleteIntakeRecord(conversationID string) error
	// ListIntakeRecords returns all records, most recently updated first.
	ListIntakeRecords() ([]models.IntakeRecord, error)
	Close() error
}

// Opts holds configuration options for persistent stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded map store for tests and ephemeral runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.IntakeRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.IntakeRecord)}
}

// GetIntakeRecord returns a copy of the stored record, or (nil, nil).
func (s *InMemoryStore) GetIntakeRecord(conversationID string) (*models.IntakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[conversationID]
	if !ok {
		return nil, nil
	}
	// Round-trip through JSON so callers never share slices or maps with
	// the stored copy.
	data, err := record.ToJSON()
	if err != nil {
		return nil, err
	}
	var out models.IntakeRecord
	if err := out.FromJSON(data); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveIntakeRecord stores a detached copy of the record.
func (s *InMemoryStore) SaveIntakeRecord(record models.IntakeRecord) error {
	data, err := record.ToJSON()
	if err != nil {
		return err
	}
	var copied models.IntakeRecord
	if err := copied.FromJSON(data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ConversationID] = copied
	return nil
}

// DeleteIntakeRecord removes the record if present.
func (s *InMemoryStore) DeleteIntakeRecord(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, conversationID)
	return nil
}

// ListIntakeRecords returns all records, most recently updated first.
func (s *InMemoryStore) ListIntakeRecords() ([]models.IntakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IntakeRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
