package web

// errors.go maps service and engine errors onto HTTP responses. Technical
// details are logged with the request ID for correlation; clients receive a
// compact JSON body.

import (
	"encoding/json"
	"errors"
	"net/http"

	"datapeek/internal/engine"
	"datapeek/internal/logging"
	"datapeek/internal/service"
	"datapeek/internal/storage"
)

// ErrorResponse is the JSON structure for API error responses. Rule is set
// for structural rejections so clients can branch without parsing the
// message.
type ErrorResponse struct {
	Error      string `json:"error"`
	Rule       string `json:"rule,omitempty"`
	ExistingID string `json:"existing_id,omitempty"`
}

// respondError classifies err and writes the matching status and body.
//
// Mapping:
//   - structural rejections and encoding failures -> 400
//   - invalid upload requests (name, extension)   -> 400
//   - duplicate content                           -> 409 with the existing id
//   - unknown file or report                      -> 404
//   - anything else                               -> 500
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejected *engine.RejectedError
		encoding *engine.EncodingError
		dup      *service.DuplicateError
	)

	status := http.StatusInternalServerError
	body := ErrorResponse{Error: "internal server error"}

	switch {
	case errors.As(err, &rejected):
		status = http.StatusBadRequest
		body = ErrorResponse{Error: rejected.Detail, Rule: rejected.Rule}
	case errors.As(err, &encoding):
		status = http.StatusBadRequest
		body = ErrorResponse{Error: err.Error()}
	case errors.Is(err, service.ErrNotCSV), errors.Is(err, service.ErrEmptyName):
		status = http.StatusBadRequest
		body = ErrorResponse{Error: err.Error()}
	case errors.As(err, &dup):
		status = http.StatusConflict
		body = ErrorResponse{Error: err.Error(), ExistingID: dup.ExistingID}
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		body = ErrorResponse{Error: "not found"}
	}

	log := logging.FromContext(r.Context())
	if status >= 500 {
		log.Error("request failed", "path", r.URL.Path, "method", r.Method, "status", status, "error", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "method", r.Method, "status", status, "error", err)
	}

	writeErrorJSON(w, status, body)
}

// respondErrorMessage writes a fixed-message error without classification,
// for malformed requests that never reach the service.
func respondErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeErrorJSON(w, status, ErrorResponse{Error: msg})
}

func writeErrorJSON(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
