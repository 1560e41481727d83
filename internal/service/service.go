// Package service implements the upload-and-inspect workflow on top of the
// analysis engine and the storage layer: accepting files, deduplicating
// them by content, running analysis, and persisting reports.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"datapeek/internal/engine"
	"datapeek/internal/logging"
	"datapeek/internal/metrics"
	"datapeek/internal/storage"
)

// ErrNotCSV is returned by Upload when the filename does not carry a .csv
// extension.
var ErrNotCSV = errors.New("only .csv files are accepted")

// ErrEmptyName is returned by Upload when the filename is blank.
var ErrEmptyName = errors.New("filename is required")

// DuplicateError is returned by Upload when a file with identical content
// already exists.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	if e.ExistingID == "" {
		return "identical file already uploaded"
	}
	return fmt.Sprintf("identical file already uploaded as %s", e.ExistingID)
}

// Service wires the analysis engine to persistence and instrumentation.
type Service struct {
	repo    storage.Repository
	metrics metrics.Backend
	limits  engine.Limits
	infer   engine.InferenceConfig

	// now is a clock seam for tests. Production uses time.Now.
	now func() time.Time
}

// New constructs a Service. backend may be metrics.Nop{} when
// instrumentation is disabled.
func New(repo storage.Repository, backend metrics.Backend, limits engine.Limits, infer engine.InferenceConfig) *Service {
	return &Service{
		repo:    repo,
		metrics: backend,
		limits:  limits,
		infer:   infer,
		now:     time.Now,
	}
}

// Upload validates and stores one uploaded file without analyzing it.
//
// The filename must end in .csv (case-insensitive). Content is hashed with
// SHA-256; an identical payload that was already uploaded yields a
// DuplicateError carrying the existing id.
func (s *Service) Upload(ctx context.Context, name, encodingHint string, payload []byte) (storage.FileRecord, error) {
	log := logging.FromContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		s.countUpload("invalid")
		return storage.FileRecord{}, ErrEmptyName
	}
	if !strings.EqualFold(path.Ext(name), ".csv") {
		s.countUpload("invalid")
		return storage.FileRecord{}, ErrNotCSV
	}
	if s.limits.MaxBytes > 0 && int64(len(payload)) > s.limits.MaxBytes {
		s.countUpload("invalid")
		return storage.FileRecord{}, rejectSize(int64(len(payload)), s.limits.MaxBytes)
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	if existing, err := s.repo.FindByHash(ctx, hash); err == nil {
		s.countUpload("duplicate")
		return storage.FileRecord{}, &DuplicateError{ExistingID: existing.ID}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.FileRecord{}, err
	}

	if encodingHint == "" {
		encodingHint = "utf-8"
	}

	rec := storage.FileRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Size:        int64(len(payload)),
		Encoding:    encodingHint,
		ContentHash: hash,
		UploadedAt:  s.now().UTC(),
	}
	if err := s.repo.InsertFile(ctx, rec, payload); err != nil {
		// A concurrent identical upload can win the race between the hash
		// lookup and the insert; resolve it like a lookup hit.
		if errors.Is(err, storage.ErrDuplicateHash) {
			s.countUpload("duplicate")
			if existing, lookupErr := s.repo.FindByHash(ctx, hash); lookupErr == nil {
				return storage.FileRecord{}, &DuplicateError{ExistingID: existing.ID}
			}
			return storage.FileRecord{}, &DuplicateError{}
		}
		return storage.FileRecord{}, fmt.Errorf("store upload: %w", err)
	}

	s.countUpload("stored")
	log.Info("file uploaded", "file_id", rec.ID, "name", rec.Name, "size", rec.Size, "encoding", rec.Encoding)
	return rec, nil
}

// MaxUploadBytes returns the configured upload byte cap, or zero when
// unlimited. Transports use it to bound request bodies before buffering.
func (s *Service) MaxUploadBytes() int64 {
	return s.limits.MaxBytes
}

// List returns all uploaded files, newest first.
func (s *Service) List(ctx context.Context) ([]storage.FileRecord, error) {
	return s.repo.ListFiles(ctx)
}

// Get returns the metadata for one file.
func (s *Service) Get(ctx context.Context, id string) (storage.FileRecord, error) {
	return s.repo.GetFile(ctx, id)
}

// Delete removes a file and its report.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteFile(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("file deleted", "file_id", id)
	return nil
}

// Process runs the analysis engine over a stored file and persists the
// outcome. Reprocessing a file replaces its previous report.
//
// Structural rejections are persisted as rejected reports and returned as
// *engine.RejectedError, so the caller sees the failure while the outcome
// stays queryable. Encoding failures are returned without persisting: the
// stored hint may simply be wrong, and a later upload can carry a better
// one.
func (s *Service) Process(ctx context.Context, id string) (*engine.AnalysisReport, error) {
	log := logging.FromContext(ctx)

	rec, err := s.repo.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	payload, err := s.repo.GetPayload(ctx, id)
	if err != nil {
		return nil, err
	}

	start := s.now()
	report, err := engine.Analyze(payload, rec.Encoding, s.limits, s.infer)
	elapsed := s.now().Sub(start).Seconds()

	var rejected *engine.RejectedError
	switch {
	case err == nil:
		s.metrics.ObserveHistogram(metrics.MetricAnalysisDuration, elapsed, metrics.Labels{"status": engine.StatusAccepted})
		s.metrics.IncCounter(metrics.MetricAnalysisRuns, 1, metrics.Labels{"status": engine.StatusAccepted})
		s.metrics.IncCounter(metrics.MetricAnalysisRows, float64(report.RowCount), nil)

		if err := s.saveReport(ctx, id, engine.StatusAccepted, report); err != nil {
			return nil, err
		}
		log.Info("file analyzed", "file_id", id, "rows", report.RowCount, "columns", report.ColumnCount, "malformed_rows", report.MalformedRows)
		return report, nil

	case errors.As(err, &rejected):
		s.metrics.ObserveHistogram(metrics.MetricAnalysisDuration, elapsed, metrics.Labels{"status": engine.StatusRejected})
		s.metrics.IncCounter(metrics.MetricAnalysisRuns, 1, metrics.Labels{"status": engine.StatusRejected, "rule": rejected.Rule})

		rejReport := &engine.AnalysisReport{
			Validation: engine.ValidationOutcome{
				Status: engine.StatusRejected,
				Rule:   rejected.Rule,
				Detail: rejected.Detail,
			},
		}
		if saveErr := s.saveReport(ctx, id, engine.StatusRejected, rejReport); saveErr != nil {
			return nil, saveErr
		}
		log.Warn("file rejected", "file_id", id, "rule", rejected.Rule, "detail", rejected.Detail)
		return nil, err

	default:
		log.Warn("analysis failed", "file_id", id, "error", err)
		return nil, err
	}
}

// Report returns the persisted analysis report for a file. The file must
// exist; a file that was never processed yields storage.ErrNotFound from
// the report lookup.
func (s *Service) Report(ctx context.Context, id string) (*engine.AnalysisReport, error) {
	if _, err := s.repo.GetFile(ctx, id); err != nil {
		return nil, err
	}
	stored, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	var report engine.AnalysisReport
	if err := json.Unmarshal(stored.Body, &report); err != nil {
		return nil, fmt.Errorf("decode stored report for %s: %w", id, err)
	}
	return &report, nil
}

func (s *Service) saveReport(ctx context.Context, id, status string, report *engine.AnalysisReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report for %s: %w", id, err)
	}
	rep := storage.Report{
		FileID:    id,
		Status:    status,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.SaveReport(ctx, rep); err != nil {
		return fmt.Errorf("persist report for %s: %w", id, err)
	}
	return nil
}

func (s *Service) countUpload(status string) {
	s.metrics.IncCounter(metrics.MetricUploads, 1, metrics.Labels{"status": status})
}

func rejectSize(size, limit int64) error {
	return &engine.RejectedError{
		Rule:   engine.RuleFileTooLarge,
		Detail: fmt.Sprintf("file size %d bytes exceeds limit of %d bytes", size, limit),
	}
}
