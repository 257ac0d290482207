package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/services"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1_048_576

// decodeRequest reads exactly one JSON object into dst and validates it. It writes the error
// response and returns false when the body is unusable.
func decodeRequest(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

// callerID returns the authenticated subject or writes 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.UserIDFromContext(r.Context())
	if id == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return id, true
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// statusFor maps a service error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.Is(err, services.ErrLedgerInvariantViolation):
		return http.StatusInternalServerError, "unable to process"
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, services.ErrAuthenticationFailure):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrRankNotEligible):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrNoPayoutDestination):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrInvalidStateTransition),
		errors.Is(err, services.ErrDuplicateConfirmation),
		errors.Is(err, services.ErrNonMonotonicConfirmation),
		errors.Is(err, services.ErrIdempotencyConflict),
		errors.Is(err, services.ErrSalaryRunInProgress),
		errors.Is(err, database.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrDailyTaskLimit):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidRankTarget),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrInvalidInvite):
		return http.StatusBadRequest, err.Error()
	case services.IsTransient(err):
		return http.StatusServiceUnavailable, "Temporarily unavailable, retry the request"
	}
	return http.StatusInternalServerError, "An Internal Error Occurred"
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		services.SendErrorResponse(w, message, status, err)
		return
	}
	services.SendErrorResponse(w, message, status, nil)
}
