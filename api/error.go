package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/catalog"
	"github.com/erikbos/tvloop/database/model"
	"github.com/erikbos/tvloop/scheduler"
)

// HTTPError represents a structured HTTP error response.
type HTTPError struct {
	Status int                 `json:"status"`
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// statusTypeMap maps HTTP status codes to RFC 9110 types.
var statusTypeMap = map[int]string{
	400: "https://tools.ietf.org/html/rfc9110#section-15.5.1",  // Bad Request
	404: "https://tools.ietf.org/html/rfc9110#section-15.5.5",  // Not Found
	405: "https://tools.ietf.org/html/rfc9110#section-15.5.6",  // Method Not Allowed
	409: "https://tools.ietf.org/html/rfc9110#section-15.5.10", // Conflict
	415: "https://tools.ietf.org/html/rfc9110#section-15.5.16", // Unsupported Media Type
	500: "https://tools.ietf.org/html/rfc9110#section-15.6.1",  // Internal Server Error
	503: "https://tools.ietf.org/html/rfc9110#section-15.6.4",  // Service Unavailable
}

// apierror writes a structured error response.
func apierror(w http.ResponseWriter, msg string, status int) {
	response := HTTPError{
		Status: status,
		Title:  msg,
	}
	if typeUrl, ok := statusTypeMap[status]; ok {
		response.Type = typeUrl
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// serveError maps an error from the domain packages to a status code.
func (a *API) serveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, scheduler.ErrChannelNotFound):
		apierror(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduler.ErrNoTags),
		errors.Is(err, scheduler.ErrMissingVideoID),
		errors.Is(err, catalog.ErrInvalidArgument):
		apierror(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrSearchIndexNotInitialized):
		apierror(w, err.Error(), http.StatusServiceUnavailable)
	default:
		a.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		apierror(w, "internal error", http.StatusInternalServerError)
	}
}

func serveJSON(obj any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	j := json.NewEncoder(w)
	j.SetEscapeHTML(false)
	_ = j.Encode(obj)
}

// decodeJSON reads the request body into v, answering 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierror(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
