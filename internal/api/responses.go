package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/validation"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// QueryBool extracts a boolean query parameter. Returns false, false if
// missing or invalid.
func QueryBool(r *http.Request, name string) (bool, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// QueryInt extracts an integer query parameter. Returns 0, false if missing or invalid.
func QueryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// QueryStringList extracts a comma-separated list of strings from a query param.
func QueryStringList(r *http.Request, name string) []string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	var result []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// transcribeErrorStatus maps a transcription error to an HTTP status:
// rejected input 400, missing credentials 503, anything else 500.
func transcribeErrorStatus(err error) int {
	var verr *validation.Error
	var ferr *transcribe.FeatureError
	var fileErr *transcribe.FileError
	switch {
	case errors.As(err, &verr), errors.As(err, &ferr), errors.As(err, &fileErr):
		return http.StatusBadRequest
	case errors.Is(err, transcribe.ErrBackendNotRegistered), errors.Is(err, transcribe.ErrBackendDisabled):
		return http.StatusBadRequest
	case errors.Is(err, transcribe.ErrNotConfigured), strings.Contains(err.Error(), "API key"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeTranscribeError is the single place transcription errors become
// responses.
func writeTranscribeError(w http.ResponseWriter, r *http.Request, backend string, err error) {
	status := transcribeErrorStatus(err)
	msg := err.Error()
	if errors.Is(err, transcribe.ErrBackendNotRegistered) || errors.Is(err, transcribe.ErrBackendDisabled) {
		msg = fmt.Sprintf("Backend '%s' is not available", backend)
	}
	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Str("backend", backend).Msg("transcription failed")
	}
	WriteError(w, status, msg)
}
