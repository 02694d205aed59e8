// Package store provides storage backends for CardioGenie intake records.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists intake records in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// GetIntakeRecord retrieves the record for a conversation.
func (s *SQLiteStore) GetIntakeRecord(conversationID string) (*models.IntakeRecord, error) {
	var recordJSON string
	err := s.db.QueryRow(`SELECT record FROM intake_records WHERE conversation_id = ?`, conversationID).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetIntakeRecord not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIntakeRecord failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query intake record: %w", err)
	}

	var record models.IntakeRecord
	if err := record.FromJSON(recordJSON); err != nil {
		slog.Error("SQLiteStore GetIntakeRecord unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, err
	}
	slog.Debug("SQLiteStore GetIntakeRecord found", "conversationID", conversationID, "status", record.Status)
	return &record, nil
}

// SaveIntakeRecord stores or updates the record for a conversation.
func (s *SQLiteStore) SaveIntakeRecord(record models.IntakeRecord) error {
	recordJSON, err := record.ToJSON()
	if err != nil {
		slog.Error("SQLiteStore SaveIntakeRecord marshal failed", "error", err, "conversationID", record.ConversationID)
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO intake_records (conversation_id, status, record, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.ConversationID, string(record.Status), recordJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveIntakeRecord failed", "error", err, "conversationID", record.ConversationID)
		return fmt.Errorf("failed to save intake record for %s: %w", record.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveIntakeRecord succeeded", "conversationID", record.ConversationID, "status", record.Status)
	return nil
}

// DeleteIntakeRecord removes the record for a conversation.
func (s *SQLiteStore) DeleteIntakeRecord(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM intake_records WHERE conversation_id = ?`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore DeleteIntakeRecord failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete intake record for %s: %w", conversationID, err)
	}
	slog.Debug("SQLiteStore DeleteIntakeRecord succeeded", "conversationID", conversationID)
	return nil
}

// ListIntakeRecords returns all records, most recently updated first.
func (s *SQLiteStore) ListIntakeRecords() ([]models.IntakeRecord, error) {
	rows, err := s.db.Query(`SELECT record FROM intake_records ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListIntakeRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query intake records: %w", err)
	}
	defer rows.Close()

	var records []models.IntakeRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			slog.Error("SQLiteStore ListIntakeRecords scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan intake record row: %w", err)
		}
		var record models.IntakeRecord
		if err := record.FromJSON(recordJSON); err != nil {
			slog.Error("SQLiteStore ListIntakeRecords unmarshal failed", "error", err)
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListIntakeRecords rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate intake record rows: %w", err)
	}
	slog.Debug("SQLiteStore ListIntakeRecords succeeded", "count", len(records))
	return records, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
