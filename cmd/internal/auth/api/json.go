package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Error codes returned in {error:{code,message}}.
const (
	codeValidation       = "VALIDATION_ERROR"
	codeUserNotFound     = "USER_NOT_FOUND"
	codeRefreshMissing   = "REFRESH_TOKEN_MISSING"
	codeAccessMissing    = "ACCESS_TOKEN_MISSING"
	codeAccessInvalid    = "ACCESS_TOKEN_INVALID"
	codeEmailNotSent     = "EMAIL_COULD_NOT_BE_SENT"
	codeRateLimited      = "RATE_LIMITED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeInternal         = "INTERNAL_ERROR"
)

const msgInternal = "An internal server error occurred"

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func writeInternal(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
