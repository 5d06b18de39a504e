// Package web provides the response envelope and request decoding shared by
// all HTTP handlers.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/rs/zerolog"
)

type successEnvelope struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data"`
}

type errorEnvelope struct {
	OK    bool          `json:"ok"`
	Error *apierr.Error `json:"error"`
}

// JSON writes a success envelope with HTTP 200.
func JSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(successEnvelope{OK: true, Data: data})
}

// Error writes an error envelope. Non-API errors are logged and reported as
// INTERNAL_ERROR.
func Error(w http.ResponseWriter, log zerolog.Logger, err error) {
	apiErr := apierr.From(err)
	status := apierr.HTTPStatus(apiErr.Code)
	if status >= 500 {
		log.Error().Err(err).Msg("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{OK: false, Error: apiErr})
}

// DecodeJSON decodes a request body into v, mapping malformed input to
// VALIDATION_ERROR.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validation("invalid JSON body: %v", err)
	}
	return nil
}
