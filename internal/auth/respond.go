package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/solistry/auth-service/internal/rate"
)

const maxJSONBodyBytes = 1 << 20

// errorBody is the machine-readable failure envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// writeServiceError maps the orchestrator error taxonomy to HTTP statuses.
// Unexpected failures are captured before the uniform 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid request")
	case errors.Is(err, ErrAttestation):
		writeError(w, http.StatusBadRequest, "ValidationError", "attestation rejected")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "invalid credentials")
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "TokenExpired", "token expired")
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrSessionRevoked):
		writeError(w, http.StatusUnauthorized, "InvalidToken", "invalid token")
	case errors.Is(err, ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, "AuthRequired", "authentication required")
	case errors.Is(err, ErrAccountDeleted):
		writeError(w, http.StatusForbidden, "AccountDeleted", "account deleted")
	case errors.Is(err, ErrAccountPending):
		writeError(w, http.StatusForbidden, "AccountPending", "account pending verification")
	case errors.Is(err, ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "TooManyAttempts", "too many attempts")
	case errors.Is(err, rate.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RateLimited", "rate limited")
	case errors.Is(err, ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "Conflict", "account already exists")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "not found")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

// decodeJSON reads a bounded, strict JSON body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid json body")
		return false
	}
	return true
}
