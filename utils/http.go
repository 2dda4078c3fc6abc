package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every JSON error reply. Error is a stable
// code; Message is safe to show to the caller.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps a payload under "data"
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// errorCodes maps client-facing statuses to ErrorResponse.Error; anything
// else is reported as internal_error.
var errorCodes = map[int]string{
	http.StatusBadRequest:   "bad_request",
	http.StatusUnauthorized: "unauthorized",
	http.StatusForbidden:    "forbidden",
	http.StatusNotFound:     "not_found",
	http.StatusConflict:     "conflict",
}

// WriteJSON sets the content type and status, then encodes body
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteOK replies 200 with data under "data"
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated replies 201 with the created resource under "data"
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteError replies with a coded error body for status
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	code, ok := errorCodes[status]
	if !ok {
		code = "internal_error"
	}
	return WriteJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// WriteFixedError writes a bare {"error": message} body. Authorization
// boundaries use it so that their failure bodies never vary.
func WriteFixedError(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, ErrorResponse{Error: message})
}
