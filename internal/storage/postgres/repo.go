package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"datapeek/internal/storage"
)

// Repo implements storage.Repository for Postgres using pgxpool.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed Repo and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the files and reports tables if they do not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  size BIGINT NOT NULL,
  encoding TEXT NOT NULL,
  content_hash TEXT NOT NULL UNIQUE,
  payload BYTEA NOT NULL,
  uploaded_at TIMESTAMPTZ NOT NULL,
  processed BOOLEAN NOT NULL DEFAULT FALSE
);`,
		`CREATE TABLE IF NOT EXISTS reports (
  file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  body BYTEA NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);`,
	}
	for _, q := range stmts {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) InsertFile(ctx context.Context, rec storage.FileRecord, payload []byte) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO files (id, name, size, encoding, content_hash, payload, uploaded_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Name, rec.Size, rec.Encoding, rec.ContentHash, payload, rec.UploadedAt, rec.Processed,
	)
	// 23505 is unique_violation.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "files_content_hash_key" {
		return storage.ErrDuplicateHash
	}
	return err
}

func (r *Repo) GetFile(ctx context.Context, id string) (storage.FileRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files WHERE id = $1`, id)
	return scanFile(row)
}

func (r *Repo) FindByHash(ctx context.Context, hash string) (storage.FileRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, size, encoding, content_hash, uploaded_at, processed
		 FROM files WHERE content_hash = $1`, hash)
	return scanFile(row)
}

func (r *Repo) GetPayload(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM files WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *Repo) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	rows, err := r.pool.Query(ctx,
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SaveReport upserts the report and marks the file processed in one
// transaction.
func (r *Repo) SaveReport(ctx context.Context, rep storage.Report) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE files SET processed = TRUE WHERE id = $1`, rep.FileID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reports (file_id, status, body, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (file_id) DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body, created_at = EXCLUDED.created_at`,
		rep.FileID, rep.Status, rep.Body, rep.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetReport(ctx context.Context, fileID string) (storage.Report, error) {
	var rep storage.Report
	err := r.pool.QueryRow(ctx,
		`SELECT file_id, status, body, created_at FROM reports WHERE file_id = $1`, fileID,
	).Scan(&rep.FileID, &rep.Status, &rep.Body, &rep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Report{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Report{}, err
	}
	return rep, nil
}

func scanFile(row pgx.Row) (storage.FileRecord, error) {
	var rec storage.FileRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.Size, &rec.Encoding, &rec.ContentHash, &rec.UploadedAt, &rec.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.FileRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.FileRecord{}, err
	}
	return rec, nil
}
