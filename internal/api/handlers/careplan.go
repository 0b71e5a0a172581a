package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/careplan"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// CarePlan handles GET /patients/{patientID}/orders/{orderID}/care-plan.
// It serves the cached narrative when the background worker already
// generated one, composing live otherwise, and returns the formatted
// plain-text document. Generation runs entirely outside the reconciliation
// state machine.
func (h *PatientHandler) CarePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, h.logger, &intake.NotFoundError{Resource: "patient", ID: chi.URLParam(r, "patientID")})
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.logger, &intake.NotFoundError{Resource: "order", ID: chi.URLParam(r, "orderID")})
		return
	}

	patient, err := h.store.PatientByID(ctx, patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := h.store.OrderByID(ctx, orderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if order.PatientID != patient.ID {
		writeError(w, h.logger, &intake.NotFoundError{Resource: "order", ID: orderID.String()})
		return
	}
	provider, err := h.store.ProviderByID(ctx, patient.ProviderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	body, err := h.carePlanBody(ctx, patient, provider, order)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(careplan.Format(patient, provider, order, body)))
}

// carePlanBody returns cached text when available, composing and caching
// otherwise.
func (h *PatientHandler) carePlanBody(ctx context.Context, patient *intake.Patient, provider *intake.Provider, order *intake.Order) (string, error) {
	if h.cache != nil {
		if cached, err := h.cache.CarePlanByOrderID(ctx, order.ID); err == nil && cached != "" {
			h.logger.Debug("care plan served from cache", zap.String("order_id", order.ID.String()))
			return cached, nil
		}
	}

	if h.composer == nil {
		return "", &careplan.GenerationError{Err: errComposerUnavailable}
	}
	body, err := h.composer.Compose(ctx, patient, provider, order)
	if err != nil {
		return "", err
	}

	if h.cache != nil {
		if err := h.cache.SaveCarePlan(ctx, order.ID, body); err != nil {
			h.logger.Warn("care plan cache write failed", zap.Error(err))
		}
	}
	return body, nil
}

var errComposerUnavailable = errors.New("care plan composer is not configured")
