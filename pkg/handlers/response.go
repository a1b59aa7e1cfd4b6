package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// serviceErrors maps domain errors to a status and a stable error code the
// chat surface can translate into player-facing text.
var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperrors.ErrInvalidCastePairing, http.StatusUnprocessableEntity, "invalid_caste_pairing"},
	{apperrors.ErrInvalidCaste, http.StatusUnprocessableEntity, "invalid_caste"},
	{apperrors.ErrAlreadyHoused, http.StatusConflict, "already_housed"},
	{apperrors.ErrSlotOccupied, http.StatusConflict, "slot_occupied"},
	{apperrors.ErrDuplicateName, http.StatusConflict, "duplicate_name"},
	{apperrors.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{apperrors.ErrHiveLimitReached, http.StatusConflict, "hive_limit_reached"},
	{apperrors.ErrInsufficientQuantity, http.StatusUnprocessableEntity, "insufficient_quantity"},
	{apperrors.ErrNotSellable, http.StatusUnprocessableEntity, "not_sellable"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict"},
}

// WriteServiceError writes the response for an error returned by a service.
// Unknown errors are logged and reported as internal errors.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			if werr := ErrorResponse(w, se.status, se.code, err.Error()); werr != nil {
				logger.Error("Failed to write error response", zap.Error(werr))
			}
			return
		}
	}

	logger.Error("Request failed", zap.Error(err))
	if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error"); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

// decodeJSON reads a JSON request body, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return false
	}
	return true
}

func (h *baseHandler) respond(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// baseHandler carries what every API handler shares.
type baseHandler struct {
	logger *zap.Logger
}
