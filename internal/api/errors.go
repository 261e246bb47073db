// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tubemux/tubemux/internal/youtube"
)

// ErrFormatNotFound indicates the variant listing holds no entry matching
// the download constraint.
var ErrFormatNotFound = errors.New("api: no matching format")

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorStatus maps a domain error onto its HTTP status and emits the
// JSON error body.
func writeErrorStatus(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor buckets domain errors into HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidReference), errors.Is(err, ErrFormatNotFound):
		return http.StatusBadRequest
	case errors.Is(err, youtube.ErrVideoNotFound):
		return http.StatusNotFound
	case errors.Is(err, youtube.ErrUnplayable):
		return http.StatusForbidden
	case errors.Is(err, youtube.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, youtube.ErrUpstreamUnavailable),
		errors.Is(err, youtube.ErrUpstreamError),
		errors.Is(err, youtube.ErrBadResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
