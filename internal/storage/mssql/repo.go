package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"datapeek/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Note on driver registration:
//   - This package intentionally does NOT blank-import a SQL Server driver.
//     The application must register the "sqlserver" driver elsewhere.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureSchema creates the files and reports tables if they do not exist.
// SQL Server has no CREATE TABLE IF NOT EXISTS; an OBJECT_ID guard keeps
// this idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		wrapCreateIfMissing("files", `
  id NVARCHAR(64) NOT NULL PRIMARY KEY,
  name NVARCHAR(512) NOT NULL,
  size BIGINT NOT NULL,
  encoding NVARCHAR(64) NOT NULL,
  content_hash NVARCHAR(128) NOT NULL UNIQUE,
  payload VARBINARY(MAX) NOT NULL,
  uploaded_at DATETIMEOFFSET NOT NULL,
  processed BIT NOT NULL DEFAULT 0`),
		wrapCreateIfMissing("reports", `
  file_id NVARCHAR(64) NOT NULL PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
  status NVARCHAR(32) NOT NULL,
  body VARBINARY(MAX) NOT NULL,
  created_at DATETIMEOFFSET NOT NULL`),
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertFile(ctx context.Context, rec storage.FileRecord, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (id, name, size, encoding, content_hash, payload, uploaded_at, processed)
		 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8)`,
		rec.ID, rec.Name, rec.Size, rec.Encoding, rec.ContentHash, payload, rec.UploadedAt, rec.Processed,
	)
	// content_hash carries the only UNIQUE KEY constraint on files; primary
	// key collisions report "PRIMARY KEY constraint" instead. Matched on the
	// message because importing the driver package for its error type would
	// also register the driver.
	if err != nil && strings.Contains(err.Error(), "UNIQUE KEY constraint") {
		return storage.ErrDuplicateHash
	}
	return err
}

func (r *Repo) GetFile(ctx context.Context, id string) (storage.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files WHERE id = @p1`, id)
	return scanFile(row)
}

func (r *Repo) FindByHash(ctx context.Context, hash string) (storage.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files WHERE content_hash = @p1`, hash)
	return scanFile(row)
}

func (r *Repo) GetPayload(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM files WHERE id = @p1`, id).Scan(&payload)
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = @p1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SaveReport upserts the report and marks the file processed in one
// transaction. Avoids MERGE: UPDATE first, INSERT when no row was touched.
func (r *Repo) SaveReport(ctx context.Context, rep storage.Report) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE files SET processed = 1 WHERE id = @p1`, rep.FileID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE reports SET status = @p2, body = @p3, created_at = @p4 WHERE file_id = @p1`,
		rep.FileID, rep.Status, rep.Body, rep.CreatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reports (file_id, status, body, created_at) VALUES (@p1, @p2, @p3, @p4)`,
			rep.FileID, rep.Status, rep.Body, rep.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) GetReport(ctx context.Context, fileID string) (storage.Report, error) {
	var rep storage.Report
	err := r.db.QueryRowContext(ctx,
		`SELECT file_id, status, body, created_at FROM reports WHERE file_id = @p1`, fileID,
	).Scan(&rep.FileID, &rep.Status, &rep.Body, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Report{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Report{}, err
	}
	return rep, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (storage.FileRecord, error) {
	var rec storage.FileRecord
	err := s.Scan(&rec.ID, &rec.Name, &rec.Size, &rec.Encoding, &rec.ContentHash, &rec.UploadedAt, &rec.Processed)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.FileRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.FileRecord{}, err
	}
	rec.UploadedAt = rec.UploadedAt.UTC()
	return rec, nil
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
func wrapCreateIfMissing(table, columns string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s\n); END;",
		table, table, columns,
	)
}
