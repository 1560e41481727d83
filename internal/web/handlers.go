package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"datapeek/internal/storage"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// parts spill to disk.
const maxUploadMemory = 4 << 20

// uploadOverhead covers multipart boundaries and the encoding field on top
// of the file payload when sizing the request body cap.
const uploadOverhead = 64 << 10

// fileResponse is the JSON view of a stored file.
type fileResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Encoding   string    `json:"encoding"`
	UploadedAt time.Time `json:"uploaded_at"`
	Processed  bool      `json:"processed"`
}

func toFileResponse(rec storage.FileRecord) fileResponse {
	return fileResponse{
		ID:         rec.ID,
		Name:       rec.Name,
		Size:       rec.Size,
		Encoding:   rec.Encoding,
		UploadedAt: rec.UploadedAt,
		Processed:  rec.Processed,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart upload with a "file" part and an optional
// "encoding" field, stores it, and returns the file record.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.service.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+uploadOverhead)
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		if isBodyTooLarge(err) {
			respondErrorMessage(w, http.StatusBadRequest, "uploaded file exceeds the size limit")
			return
		}
		respondErrorMessage(w, http.StatusBadRequest, "request is not valid multipart form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, `missing "file" form field`)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			respondErrorMessage(w, http.StatusBadRequest, "uploaded file exceeds the size limit")
			return
		}
		s.respondError(w, r, err)
		return
	}

	encoding := r.FormValue("encoding")

	rec, err := s.service.Upload(r.Context(), header.Filename, encoding, payload)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toFileResponse(rec))
}

// isBodyTooLarge reports whether err came from the MaxBytesReader cap.
// The multipart reader does not always wrap the cause, so the canonical
// message is matched as well.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toFileResponse(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
