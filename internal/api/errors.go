package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the error body.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeDuplicateUpload  = "DUPLICATE_UPLOAD"
	CodeUnsupportedType  = "UNSUPPORTED_EXTENSION"
	CodeDepartmentClosed = "DEPARTMENT_INACTIVE"
	CodeInternalError    = "INTERNAL_ERROR"
)

// errorBody is {"error": {"code": "...", "message": "..."}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func validationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeValidationError, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, CodeNotFound, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal server error")
}
