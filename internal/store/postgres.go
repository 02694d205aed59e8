package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool settings for the Postgres backend.
const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists intake records in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// GetIntakeRecord retrieves the record for a conversation.
func (s *PostgresStore) GetIntakeRecord(conversationID string) (*models.IntakeRecord, error) {
	var recordJSON string
	err := s.db.QueryRow(`SELECT record FROM intake_records WHERE conversation_id = $1`, conversationID).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetIntakeRecord not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIntakeRecord failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query intake record: %w", err)
	}

	var record models.IntakeRecord
	if err := record.FromJSON(recordJSON); err != nil {
		slog.Error("PostgresStore GetIntakeRecord unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, err
	}
	slog.Debug("PostgresStore GetIntakeRecord found", "conversationID", conversationID, "status", record.Status)
	return &record, nil
}

// SaveIntakeRecord stores or updates the record for a conversation.
func (s *PostgresStore) SaveIntakeRecord(record models.IntakeRecord) error {
	recordJSON, err := record.ToJSON()
	if err != nil {
		slog.Error("PostgresStore SaveIntakeRecord marshal failed", "error", err, "conversationID", record.ConversationID)
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO intake_records (conversation_id, status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id)
		DO UPDATE SET status = EXCLUDED.status, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		record.ConversationID, string(record.Status), recordJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveIntakeRecord failed", "error", err, "conversationID", record.ConversationID)
		return fmt.Errorf("failed to save intake record for %s: %w", record.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveIntakeRecord succeeded", "conversationID", record.ConversationID, "status", record.Status)
	return nil
}

// DeleteIntakeRecord removes the record for a conversation.
func (s *PostgresStore) DeleteIntakeRecord(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM intake_records WHERE conversation_id = $1`, conversationID)
	if err != nil {
		slog.Error("PostgresStore DeleteIntakeRecord failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete intake record for %s: %w", conversationID, err)
	}
	slog.Debug("PostgresStore DeleteIntakeRecord succeeded", "conversationID", conversationID)
	return nil
}

// ListIntakeRecords returns all records, most recently updated first.
func (s *PostgresStore) ListIntakeRecords() ([]models.IntakeRecord, error) {
	rows, err := s.db.Query(`SELECT record FROM intake_records ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListIntakeRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query intake records: %w", err)
	}
	defer rows.Close()

	var records []models.IntakeRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			slog.Error("PostgresStore ListIntakeRecords scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan intake record row: %w", err)
		}
		var record models.IntakeRecord
		if err := record.FromJSON(recordJSON); err != nil {
			slog.Error("PostgresStore ListIntakeRecords unmarshal failed", "error", err)
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListIntakeRecords rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate intake record rows: %w", err)
	}
	slog.Debug("PostgresStore ListIntakeRecords succeeded", "count", len(records))
	return records, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
