package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"datapeek/internal/engine"
	"datapeek/internal/metrics"
	"datapeek/internal/storage"
)

// memRepo is an in-memory storage.Repository for service tests.
type memRepo struct {
	files    map[string]storage.FileRecord
	payloads map[string][]byte
	reports  map[string]storage.Report

	insertErr error
	saveErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{
		files:    map[string]storage.FileRecord{},
		payloads: map[string][]byte{},
		reports:  map[string]storage.Report{},
	}
}

func (m *memRepo) Close()                                 {}
func (m *memRepo) EnsureSchema(ctx context.Context) error { return nil }

func (m *memRepo) InsertFile(ctx context.Context, rec storage.FileRecord, payload []byte) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.files[rec.ID] = rec
	m.payloads[rec.ID] = payload
	return nil
}

func (m *memRepo) GetFile(ctx context.Context, id string) (storage.FileRecord, error) {
	rec, ok := m.files[id]
	if !ok {
		return storage.FileRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memRepo) GetPayload(ctx context.Context, id string) ([]byte, error) {
	p, ok := m.payloads[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) FindByHash(ctx context.Context, hash string) (storage.FileRecord, error) {
	for _, rec := range m.files {
		if rec.ContentHash == hash {
			return rec, nil
		}
	}
	return storage.FileRecord{}, storage.ErrNotFound
}

func (m *memRepo) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	out := make([]storage.FileRecord, 0, len(m.files))
	for _, rec := range m.files {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memRepo) DeleteFile(ctx context.Context, id string) error {
	if _, ok := m.files[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, id)
	delete(m.payloads, id)
	delete(m.reports, id)
	return nil
}

func (m *memRepo) SaveReport(ctx context.Context, rep storage.Report) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	rec, ok := m.files[rep.FileID]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Processed = true
	m.files[rep.FileID] = rec
	m.reports[rep.FileID] = rep
	return nil
}

func (m *memRepo) GetReport(ctx context.Context, fileID string) (storage.Report, error) {
	rep, ok := m.reports[fileID]
	if !ok {
		return storage.Report{}, storage.ErrNotFound
	}
	return rep, nil
}

// recordingBackend captures counter increments for assertions.
type recordingBackend struct {
	metrics.Nop
	counters map[string]float64
	labels   map[string]metrics.Labels
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters: map[string]float64{},
		labels:   map[string]metrics.Labels{},
	}
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	r.counters[name] += delta
	r.labels[name] = labels
}

func newTestService(repo storage.Repository, backend metrics.Backend) *Service {
	s := New(repo, backend, engine.DefaultLimits(), engine.DefaultInference())
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestUploadStoresFile(t *testing.T) {
	repo := newMemRepo()
	backend := newRecordingBackend()
	s := newTestService(repo, backend)

	rec, err := s.Upload(context.Background(), "people.csv", "latin-1", []byte("id,name\n1,a\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.ID == "" {
		t.Error("Upload returned empty id")
	}
	if rec.Name != "people.csv" || rec.Encoding != "latin-1" || rec.Size != 12 {
		t.Errorf("record = %+v", rec)
	}
	if rec.ContentHash == "" {
		t.Error("content hash not computed")
	}
	if rec.Processed {
		t.Error("fresh upload marked processed")
	}
	if got := backend.counters[metrics.MetricUploads]; got != 1 {
		t.Errorf("uploads counter = %v, want 1", got)
	}
	if got := backend.labels[metrics.MetricUploads]["status"]; got != "stored" {
		t.Errorf("uploads status label = %q, want stored", got)
	}
	if _, ok := repo.payloads[rec.ID]; !ok {
		t.Error("payload not stored")
	}
}

func TestUploadDefaultsEncoding(t *testing.T) {
	s := newTestService(newMemRepo(), metrics.Nop{})

	rec, err := s.Upload(context.Background(), "x.csv", "", []byte("a\n1\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", rec.Encoding)
	}
}

func TestUploadRejectsBadNames(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  error
	}{
		{name: "blank", filename: "   ", wantErr: ErrEmptyName},
		{name: "wrong_extension", filename: "data.xlsx", wantErr: ErrNotCSV},
		{name: "no_extension", filename: "data", wantErr: ErrNotCSV},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			backend := newRecordingBackend()
			s := newTestService(newMemRepo(), backend)

			_, err := s.Upload(context.Background(), tt.filename, "", []byte("a\n1\n"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Upload error = %v, want %v", err, tt.wantErr)
			}
			if got := backend.labels[metrics.MetricUploads]["status"]; got != "invalid" {
				t.Errorf("uploads status label = %q, want invalid", got)
			}
		})
	}
}

func TestUploadAcceptsUppercaseExtension(t *testing.T) {
	s := newTestService(newMemRepo(), metrics.Nop{})

	if _, err := s.Upload(context.Background(), "DATA.CSV", "", []byte("a\n1\n")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestUploadRejectsOversizedPayload(t *testing.T) {
	repo := newMemRepo()
	s := New(repo, metrics.Nop{}, engine.Limits{MaxBytes: 10}, engine.DefaultInference())

	_, err := s.Upload(context.Background(), "big.csv", "", []byte("0123456789abcdef"))
	var rej *engine.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("Upload error = %v, want *engine.RejectedError", err)
	}
	if rej.Rule != engine.RuleFileTooLarge {
		t.Errorf("rule = %q, want %q", rej.Rule, engine.RuleFileTooLarge)
	}
	if len(repo.files) != 0 {
		t.Error("oversized file was stored")
	}
}

func TestUploadDetectsDuplicateContent(t *testing.T) {
	backend := newRecordingBackend()
	s := newTestService(newMemRepo(), backend)
	ctx := context.Background()

	payload := []byte("id,name\n1,a\n")
	first, err := s.Upload(ctx, "one.csv", "", payload)
	if err != nil {
		t.Fatalf("first Upload: %v", err)
	}

	// Same bytes under a different name are still a duplicate.
	_, err = s.Upload(ctx, "two.csv", "", payload)
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("second Upload error = %v, want *DuplicateError", err)
	}
	if dup.ExistingID != first.ID {
		t.Errorf("ExistingID = %q, want %q", dup.ExistingID, first.ID)
	}
	if got := backend.labels[metrics.MetricUploads]["status"]; got != "duplicate" {
		t.Errorf("uploads status label = %q, want duplicate", got)
	}

	// Different content goes through.
	if _, err := s.Upload(ctx, "three.csv", "", []byte("id,name\n2,b\n")); err != nil {
		t.Fatalf("third Upload: %v", err)
	}
}

// racingRepo simulates losing an insert race: the hash lookup misses until a
// concurrent winner's record appears via the insert failure.
type racingRepo struct {
	*memRepo
	winner  storage.FileRecord
	lookups int
}

func (r *racingRepo) FindByHash(ctx context.Context, hash string) (storage.FileRecord, error) {
	r.lookups++
	if r.lookups == 1 {
		return storage.FileRecord{}, storage.ErrNotFound
	}
	return r.winner, nil
}

func (r *racingRepo) InsertFile(ctx context.Context, rec storage.FileRecord, payload []byte) error {
	return storage.ErrDuplicateHash
}

// TestUploadLosesInsertRace verifies that a unique-constraint failure from
// the insert surfaces as a DuplicateError carrying the winner's id, not as
// an internal error.
func TestUploadLosesInsertRace(t *testing.T) {
	winner := storage.FileRecord{ID: "winner-id", Name: "first.csv"}
	repo := &racingRepo{memRepo: newMemRepo(), winner: winner}
	backend := newRecordingBackend()
	s := newTestService(repo, backend)

	_, err := s.Upload(context.Background(), "second.csv", "", []byte("id\n1\n"))

	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("Upload error = %v, want *DuplicateError", err)
	}
	if dup.ExistingID != winner.ID {
		t.Errorf("ExistingID = %q, want %q", dup.ExistingID, winner.ID)
	}
	if got := backend.labels[metrics.MetricUploads]["status"]; got != "duplicate" {
		t.Errorf("uploads status label = %q, want duplicate", got)
	}
}

func TestProcessAcceptedFile(t *testing.T) {
	repo := newMemRepo()
	backend := newRecordingBackend()
	s := newTestService(repo, backend)
	ctx := context.Background()

	rec, err := s.Upload(ctx, "people.csv", "", []byte("id,name,score\n1,alice,3.5\n2,bob,4.0\n3,carol,\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	report, err := s.Process(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.RowCount != 3 || report.ColumnCount != 3 {
		t.Errorf("report rows/cols = %d/%d, want 3/3", report.RowCount, report.ColumnCount)
	}
	if report.Validation.Status != engine.StatusAccepted {
		t.Errorf("status = %q, want accepted", report.Validation.Status)
	}

	// Report persisted and file marked processed.
	stored, err := repo.GetReport(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if stored.Status != engine.StatusAccepted {
		t.Errorf("stored status = %q", stored.Status)
	}
	var decoded engine.AnalysisReport
	if err := json.Unmarshal(stored.Body, &decoded); err != nil {
		t.Fatalf("stored body not valid JSON: %v", err)
	}
	if decoded.RowCount != 3 {
		t.Errorf("stored row_count = %d, want 3", decoded.RowCount)
	}
	f, _ := repo.GetFile(ctx, rec.ID)
	if !f.Processed {
		t.Error("file not marked processed")
	}

	if got := backend.counters[metrics.MetricAnalysisRows]; got != 3 {
		t.Errorf("rows counter = %v, want 3", got)
	}
	if got := backend.labels[metrics.MetricAnalysisRuns]["status"]; got != engine.StatusAccepted {
		t.Errorf("runs status label = %q", got)
	}
}

func TestProcessRejectedFilePersistsOutcome(t *testing.T) {
	repo := newMemRepo()
	backend := newRecordingBackend()
	s := newTestService(repo, backend)
	ctx := context.Background()

	// Duplicate header names reject the file.
	rec, err := s.Upload(ctx, "dup.csv", "", []byte("id,id\n1,2\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	_, err = s.Process(ctx, rec.ID)
	var rej *engine.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("Process error = %v, want *engine.RejectedError", err)
	}
	if rej.Rule != engine.RuleDuplicateColumn {
		t.Errorf("rule = %q, want %q", rej.Rule, engine.RuleDuplicateColumn)
	}

	stored, err := repo.GetReport(ctx, rec.ID)
	if err != nil {
		t.Fatalf("rejected outcome not persisted: %v", err)
	}
	if stored.Status != engine.StatusRejected {
		t.Errorf("stored status = %q, want rejected", stored.Status)
	}
	var decoded engine.AnalysisReport
	if err := json.Unmarshal(stored.Body, &decoded); err != nil {
		t.Fatalf("stored body not valid JSON: %v", err)
	}
	if decoded.Validation.Rule != engine.RuleDuplicateColumn {
		t.Errorf("stored rule = %q", decoded.Validation.Rule)
	}

	if got := backend.labels[metrics.MetricAnalysisRuns]["rule"]; got != engine.RuleDuplicateColumn {
		t.Errorf("runs rule label = %q", got)
	}
}

func TestProcessEncodingFailureNotPersisted(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(repo, metrics.Nop{})
	ctx := context.Background()

	// Bytes that are invalid UTF-8 under the stored utf-8 hint.
	rec, err := s.Upload(ctx, "bad.csv", "utf-8", []byte{'a', ',', 'b', '\n', 0xff, 0xfe, ',', 'x', '\n'})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	_, err = s.Process(ctx, rec.ID)
	var encErr *engine.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("Process error = %v, want *engine.EncodingError", err)
	}
	if _, err := repo.GetReport(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("encoding failure was persisted: %v", err)
	}
}

func TestProcessUnknownFile(t *testing.T) {
	s := newTestService(newMemRepo(), metrics.Nop{})

	if _, err := s.Process(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Process error = %v, want ErrNotFound", err)
	}
}

func TestReportRoundTrip(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(repo, metrics.Nop{})
	ctx := context.Background()

	rec, err := s.Upload(ctx, "x.csv", "", []byte("id\n1\n2\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want, err := s.Process(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := s.Report(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if got.RowCount != want.RowCount || got.ColumnCount != want.ColumnCount {
		t.Errorf("Report = %+v, want %+v", got, want)
	}
	if len(got.Columns) != 1 || got.Columns[0].Name != "id" {
		t.Errorf("columns = %+v", got.Columns)
	}
}

func TestReportUnprocessedFile(t *testing.T) {
	s := newTestService(newMemRepo(), metrics.Nop{})
	ctx := context.Background()

	rec, err := s.Upload(ctx, "x.csv", "", []byte("id\n1\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := s.Report(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Report error = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(repo, metrics.Nop{})
	ctx := context.Background()

	rec, err := s.Upload(ctx, "x.csv", "", []byte("id\n1\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestDuplicateErrorMessage(t *testing.T) {
	err := &DuplicateError{ExistingID: "abc-123"}
	if !strings.Contains(err.Error(), "abc-123") {
		t.Errorf("error %q does not name the existing id", err)
	}
}
