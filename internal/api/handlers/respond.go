package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/careplan"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeErrorMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// confirmationResponse is the 422 body returned when one or more conflicts
// await confirmation.
type confirmationResponse struct {
	RequiresConfirmation bool          `json:"requires_confirmation"`
	Issues               intake.Issues `json:"issues"`
}

// writeError maps the intake error taxonomy onto HTTP status codes.
// ConfirmationRequired is the expected extra-round-trip outcome and is logged
// at debug only; everything unexpected is a 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validation   *intake.ValidationError
		confirmation *intake.ConfirmationRequired
		notFound     *intake.NotFoundError
		duplicate    *intake.DuplicateKeyError
		generation   *careplan.GenerationError
	)

	switch {
	case errors.As(err, &confirmation):
		logger.Debug("confirmation required", zap.String("issues", confirmation.Issues.String()))
		writeJSON(w, http.StatusUnprocessableEntity, confirmationResponse{
			RequiresConfirmation: true,
			Issues:               confirmation.Issues,
		})
	case errors.As(err, &validation):
		writeErrorMessage(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		writeErrorMessage(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &duplicate):
		logger.Warn("duplicate key at commit", zap.Error(duplicate))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": duplicate.Error(),
			"kind":  "duplicate_key",
		})
	case errors.As(err, &generation):
		logger.Error("care plan generation failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, generation.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
