package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/upb/refdata-portal/services"
	"github.com/upb/refdata-portal/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// HandleServiceError maps client-facing domain errors to JSON responses and
// returns nil once written. Internal and unknown errors are returned so the
// guard replies with its fixed 500 body.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) error {
	if err == nil {
		return nil
	}

	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var status int
	switch {
	case services.IsNotFoundError(err):
		status, details = http.StatusNotFound, nil
	case services.IsValidationError(err):
		status = http.StatusBadRequest
	case services.IsUnauthorizedError(err):
		status, details = http.StatusUnauthorized, nil
	case services.IsForbiddenError(err):
		status, details = http.StatusForbidden, nil
	case services.IsConflictError(err):
		status = http.StatusConflict
	default:
		return err
	}

	logger.Debug("handled service error",
		zap.String("type", string(services.GetErrorType(err))),
		zap.Error(err))
	return utils.WriteError(w, status, message(err), details)
}

// message returns the client-safe message of a domain error
func message(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "request failed"
}

// decodeJSON reads a single JSON object from the request body
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "invalid JSON body", err)
	}
	if dec.More() {
		return services.NewDomainError(services.ErrorTypeValidation, "request body must contain a single JSON object", nil)
	}
	return nil
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("%s must be an integer", key), err)
	}
	return v, nil
}
