// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Status  string              `json:"status"`
	Code    ResponseCode        `json:"code"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// envelopeStatus derives the envelope status from the HTTP status.
func envelopeStatus(httpStatus int) string {
	switch {
	case httpStatus >= 500:
		return StatusError
	case httpStatus >= 400:
		return StatusFail
	default:
		return StatusSuccess
	}
}

func writeJSON(w http.ResponseWriter, httpStatus int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response body", "error", err)
	}
}

// respond writes an envelope for code with optional data.
func respond(w http.ResponseWriter, httpStatus int, code ResponseCode, data any) {
	writeJSON(w, httpStatus, Envelope{
		Status:  envelopeStatus(httpStatus),
		Code:    code,
		Message: code.Message(),
		Data:    data,
	})
}

// respondValidation writes a 422 with per-field messages.
func respondValidation(w http.ResponseWriter, errs map[string][]string) {
	writeJSON(w, http.StatusUnprocessableEntity, Envelope{
		Status:  StatusFail,
		Code:    CodeValidationError,
		Message: CodeValidationError.Message(),
		Errors:  errs,
	})
}
