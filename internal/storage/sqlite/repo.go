package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"datapeek/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no native TIMESTAMPTZ type, and modernc.org/sqlite stores
// timestamps with TEXT affinity. Timestamps are therefore written as
// RFC3339Nano strings for reliable round-trip behavior and easy debugging.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSchema creates the files and reports tables if they do not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  size INTEGER NOT NULL,
  encoding TEXT NOT NULL,
  content_hash TEXT NOT NULL UNIQUE,
  payload BLOB NOT NULL,
  uploaded_at TEXT NOT NULL,
  processed INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS reports (
  file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  body BLOB NOT NULL,
  created_at TEXT NOT NULL
);`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertFile(ctx context.Context, rec storage.FileRecord, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (id, name, size, encoding, content_hash, payload, uploaded_at, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Size, rec.Encoding, rec.ContentHash, payload,
		formatTime(rec.UploadedAt), boolToInt(rec.Processed),
	)
	if err != nil && strings.Contains(err.Error(), "files.content_hash") {
		return storage.ErrDuplicateHash
	}
	return err
}

func (r *Repo) GetFile(ctx context.Context, id string) (storage.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func (r *Repo) FindByHash(ctx context.Context, hash string) (storage.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files WHERE content_hash = ?`, hash)
	return scanFile(row)
}

func (r *Repo) GetPayload(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM files WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *Repo) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteFile(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Delete the report explicitly; ON DELETE CASCADE only fires when
	// PRAGMA foreign_keys is enabled, which depends on the DSN.
	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE file_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

// SaveReport upserts the report and marks the file processed in one
// transaction.
func (r *Repo) SaveReport(ctx context.Context, rep storage.Report) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE files SET processed = 1 WHERE id = ?`, rep.FileID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (file_id, status, body, created_at) VALUES (?, ?, ?, ?)`,
		rep.FileID, rep.Status, rep.Body, formatTime(rep.CreatedAt),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) GetReport(ctx context.Context, fileID string) (storage.Report, error) {
	var (
		rep   storage.Report
		tsRaw string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT file_id, status, body, created_at FROM reports WHERE file_id = ?`, fileID,
	).Scan(&rep.FileID, &rep.Status, &rep.Body, &tsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Report{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Report{}, err
	}
	rep.CreatedAt, err = parseTime(tsRaw)
	if err != nil {
		return storage.Report{}, fmt.Errorf("sqlite: reports.created_at=%q: %w", tsRaw, err)
	}
	return rep, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (storage.FileRecord, error) {
	var (
		rec       storage.FileRecord
		tsRaw     string
		processed int64
	)
	err := s.Scan(&rec.ID, &rec.Name, &rec.Size, &rec.Encoding, &rec.ContentHash, &tsRaw, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.FileRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.FileRecord{}, err
	}
	rec.UploadedAt, err = parseTime(tsRaw)
	if err != nil {
		return storage.FileRecord{}, fmt.Errorf("sqlite: files.uploaded_at=%q: %w", tsRaw, err)
	}
	rec.Processed = processed != 0
	return rec, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// formatTime formats a time as RFC3339Nano in UTC. Timestamps are stored as
// TEXT for reliable scanning with modernc.org/sqlite.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses timestamps returned by SQLite. Accepts RFC3339Nano (what
// this package writes) plus common forms written by other tools.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if layout == "2006-01-02 15:04:05" {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts.UTC(), nil
			}
			continue
		}
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
