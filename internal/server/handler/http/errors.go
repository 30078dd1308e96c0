package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/passe/internal/middleware"
	"github.com/atinyakov/passe/internal/models"
)

// errBadRequest marks a body that could not be decoded.
var errBadRequest = errors.New("invalid request body")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Error is the failure kind, e.g. "SiteNotFound".
	Error string `json:"error"`
	// Message is a human readable description.
	Message string `json:"message"`
	// RequestID matches the X-Request-ID response header and the
	// daemon's log line for the request.
	RequestID string `json:"request_id,omitempty"`
}

var statuses = map[string]int{
	"AlreadyExists":         http.StatusConflict,
	"DuplicateSite":         http.StatusConflict,
	"NotFound":              http.StatusNotFound,
	"SiteNotFound":          http.StatusNotFound,
	"InvalidName":           http.StatusBadRequest,
	"InvalidState":          http.StatusLocked,
	"DerivationRejected":    http.StatusUnprocessableEntity,
	"DerivationUnavailable": http.StatusServiceUnavailable,
	"PersistenceFailure":    http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	if code, ok := statuses[models.Kind(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.Kind(err)
	if errors.Is(err, errBadRequest) {
		kind = "BadRequest"
	}
	writeJSON(w, StatusFor(err), ErrorResponse{
		Error:     kind,
		Message:   err.Error(),
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// pathParam returns the decoded value of a chi URL parameter. chi routes
// on RawPath when the request carries one, so sites like
// "example.com/login" sent as %2F-encoded segments still need decoding;
// otherwise chi already matched against the decoded path.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
