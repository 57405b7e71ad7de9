package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatefs/gatefs/internal/logger"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
)

// Envelope is the JSON wrapper every API response uses. Code carries the
// wire-level error name ("ok" on success); ErrorID is an opaque correlation
// id emitted only on 5xx responses.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Success bool   `json:"success"`
	ErrorID string `json:"errorId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode API response", "error", err)
	}
}

// OK writes a 200 with data.
func OK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Code: "ok", Message: "success", Data: data, Success: true})
}

// Created writes a 201 with data.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Code: "ok", Message: "created", Data: data, Success: true})
}

// Error maps an error onto the envelope. Gateway errors keep their code and
// message; anything else becomes an opaque 500 with a logged errorId.
func Error(w http.ResponseWriter, err error) {
	var ge *gwerrors.GatewayError
	if errors.As(err, &ge) {
		status := ge.Code.HTTPStatus()
		body := Envelope{Code: ge.Code.String(), Message: ge.Message, Success: false}
		if status >= 500 {
			body.ErrorID = newErrorID()
			logger.Error("API request failed", "code", ge.Code.String(), "error_id", body.ErrorID, "error", err)
		}
		writeJSON(w, status, body)
		return
	}

	errorID := newErrorID()
	logger.Error("API internal error", "error_id", errorID, "error", err)
	writeJSON(w, http.StatusInternalServerError, Envelope{
		Code:    "internalError",
		Message: "internal error",
		Success: false,
		ErrorID: errorID,
	})
}

// BadRequest writes a 400 for malformed request shapes caught before any
// gateway call is made.
func BadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Code: "invalidPath", Message: message, Success: false})
}

func newErrorID() string {
	return uuid.NewString()[:8]
}

// decodeJSONBody decodes a JSON request body into v, writing a 400 on
// failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}
