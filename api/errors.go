package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/warp/reconciliation-engine/generic"
	"go.uber.org/zap"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeDuplicateInFlight = "duplicate_in_flight"
	CodeInternal          = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: codeFor(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		return CodeInternal
	}
}

// writeEngineError maps an engine error to its HTTP status. Store failures
// are logged and reported without driver detail.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   message,
			Code:    CodeValidation,
			Details: fieldErrors(validationErrs),
		})
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case generic.IsDuplicateInFlight(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   message,
			Code:    CodeDuplicateInFlight,
			Details: err.Error(),
		})
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.logger.Error(message,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

// fieldErrors reports validator failures as field -> tag.
func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// decode reads a JSON body into dst and runs the struct validator.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &generic.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return h.validate.Struct(dst)
}
