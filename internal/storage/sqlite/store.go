// Package sqlite is the durable storage.Store implementation backed by an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/gitunderstand/gitunderstand-go/internal/storage"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// New opens (creating if necessary) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// DB returns the underlying sqlx.DB for advanced operations.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS digests (
			id TEXT PRIMARY KEY,
			repo_url TEXT NOT NULL,
			short_repo_url TEXT NOT NULL,
			summary TEXT,
			digest_url TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			digest_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (digest_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_digests_created ON digests(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// History returns the stored chat turns for a digest, oldest first. A digest
// with no saved history yields an empty slice.
func (s *Store) History(ctx context.Context, digestID string) ([]storage.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM chat_messages WHERE digest_id = ? ORDER BY seq ASC`,
		digestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []storage.StoredMessage
	for rows.Next() {
		var msg storage.StoredMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SaveHistory replaces the stored history for a digest.
func (s *Store) SaveHistory(ctx context.Context, digestID string, messages []storage.StoredMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE digest_id = ?`, digestID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	for i, msg := range messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (digest_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			digestID, i, msg.Role, msg.Content); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// ClearHistory removes all stored turns for a digest.
func (s *Store) ClearHistory(ctx context.Context, digestID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE digest_id = ?`, digestID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// SaveDigest upserts a digest record.
func (s *Store) SaveDigest(ctx context.Context, rec *storage.DigestRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digests (id, repo_url, short_repo_url, summary, digest_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			repo_url = excluded.repo_url,
			short_repo_url = excluded.short_repo_url,
			summary = excluded.summary,
			digest_url = excluded.digest_url`,
		rec.ID, rec.RepoURL, rec.ShortRepoURL, rec.Summary, rec.DigestURL, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save digest: %w", err)
	}
	return nil
}

// Digest returns the record for id.
func (s *Store) Digest(ctx context.Context, id string) (*storage.DigestRecord, error) {
	var rec storage.DigestRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repo_url, short_repo_url, summary, digest_url, created_at
		 FROM digests WHERE id = ?`, id).Scan(
		&rec.ID, &rec.RepoURL, &rec.ShortRepoURL, &rec.Summary, &rec.DigestURL, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("digest %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	return &rec, nil
}

// ListDigests returns the most recent records, newest first.
func (s *Store) ListDigests(ctx context.Context, limit int) ([]*storage.DigestRecord, error) {
	if limit == 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repo_url, short_repo_url, summary, digest_url, created_at
		 FROM digests ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query digests: %w", err)
	}
	defer rows.Close()

	var records []*storage.DigestRecord
	for rows.Next() {
		var rec storage.DigestRecord
		if err := rows.Scan(&rec.ID, &rec.RepoURL, &rec.ShortRepoURL,
			&rec.Summary, &rec.DigestURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// DeleteDigest removes a record and its chat history.
func (s *Store) DeleteDigest(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM digests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete digest: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("digest %s not found", id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE digest_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}

	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
