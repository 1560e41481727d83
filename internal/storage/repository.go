// Package storage defines the backend-agnostic persistence surface for
// uploaded files and their analysis reports, plus the factory registry used
// to select a backend at startup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Config is the minimal configuration needed to create a repository.
//
// Kind must match a registered backend kind ("postgres", "sqlite", "mssql").
// DSN is passed through to the backend factory; validation is
// backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// FileRecord is the stored metadata for one uploaded file. The raw payload
// is stored alongside it but fetched separately, since listings never need
// the bytes.
type FileRecord struct {
	ID          string
	Name        string
	Size        int64
	Encoding    string
	ContentHash string
	UploadedAt  time.Time
	Processed   bool
}

// Report is a persisted analysis result for one file. Body holds the
// serialized report document; Status mirrors the validation outcome so
// listings can filter without decoding Body.
type Report struct {
	FileID    string
	Status    string
	Body      []byte
	CreatedAt time.Time
}

// ErrNotFound is returned when a file or report id does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateHash is returned by InsertFile when another file with the same
// content hash already exists. Backends map their unique-constraint errors
// onto it so concurrent identical uploads resolve the same way as a lookup
// hit.
var ErrDuplicateHash = errors.New("storage: content hash already stored")

// Repository is a backend-agnostic interface over file and report
// persistence. Each backend implements these semantics in its own idiomatic
// way (Postgres ON CONFLICT, SQLite OR REPLACE, MSSQL MERGE-free upserts).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates tables and constraints as needed. Idempotent;
	// safe to run on every startup.
	EnsureSchema(ctx context.Context) error

	// InsertFile stores a file record together with its raw payload.
	InsertFile(ctx context.Context, rec FileRecord, payload []byte) error

	// GetFile returns the metadata for one file, or ErrNotFound.
	GetFile(ctx context.Context, id string) (FileRecord, error)

	// GetPayload returns the raw uploaded bytes for one file, or ErrNotFound.
	GetPayload(ctx context.Context, id string) ([]byte, error)

	// FindByHash returns the file with the given content hash, or
	// ErrNotFound. Used for duplicate-upload detection.
	FindByHash(ctx context.Context, hash string) (FileRecord, error)

	// ListFiles returns all file records, newest upload first.
	ListFiles(ctx context.Context) ([]FileRecord, error)

	// DeleteFile removes a file and any report attached to it. Returns
	// ErrNotFound when the id does not exist.
	DeleteFile(ctx context.Context, id string) error

	// SaveReport stores (or replaces) the report for a file and marks the
	// file processed, atomically. Returns ErrNotFound when the file id does
	// not exist.
	SaveReport(ctx context.Context, rep Report) error

	// GetReport returns the stored report for a file, or ErrNotFound when
	// either the file or its report is missing.
	GetReport(ctx context.Context, fileID string) (Report, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind (e.g. "postgres").
//
// Call Register from an init() function in a backend package. Registering
// the same kind twice panics, to fail fast on ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Returns an error if cfg.Kind is empty or unsupported, otherwise whatever
// the factory returns. Safe for concurrent use with Register.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
