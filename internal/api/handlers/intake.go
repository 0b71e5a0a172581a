package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/api/middleware"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
	"github.com/lamarhealth/go-intake/internal/observability/metrics"
)

// IntakeHandler handles the reconciliation entry point.
type IntakeHandler struct {
	engine  *intake.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewIntakeHandler creates the intake handler. metrics may be nil in tests.
func NewIntakeHandler(engine *intake.Engine, m *metrics.Metrics, logger *zap.Logger) *IntakeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeHandler{engine: engine, logger: logger, metrics: m}
}

// Routes returns the handler routes.
func (h *IntakeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	return r
}

// SubmitResponse is the success body of an intake submission.
type SubmitResponse struct {
	Message   string `json:"message"`
	PatientID string `json:"patient_id"`
	OrderID   string `json:"order_id"`
}

// Submit handles POST /intake: one reconciliation round trip. The response
// is either 200 with the committed ids, 422 listing outstanding conflicts,
// or 400 for validation failures and commit-time unique races.
func (h *IntakeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("intake-handler")
	ctx, span := tracer.Start(ctx, "submit_intake")
	defer span.End()

	var req intake.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.count(func(m *metrics.Metrics) { m.IntakesSubmitted.Inc() })
	span.SetAttributes(
		attribute.String("mrn", req.MRN),
		attribute.String("provider_npi", req.ProviderNPI),
	)

	start := time.Now()
	res, err := h.engine.Reconcile(ctx, &req)
	h.count(func(m *metrics.Metrics) { m.ReconcileDuration.Observe(time.Since(start).Seconds()) })

	if err != nil {
		h.observeFailure(err)
		writeError(w, h.logger, err)
		return
	}

	h.count(func(m *metrics.Metrics) {
		m.IntakesCommitted.Inc()
		m.OrdersCreated.Inc()
	})
	h.logger.Info("intake submission committed",
		zap.String("patient_id", res.PatientID.String()),
		zap.String("order_id", res.OrderID.String()),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	writeJSON(w, http.StatusOK, SubmitResponse{
		Message:   res.Message,
		PatientID: res.PatientID.String(),
		OrderID:   res.OrderID.String(),
	})
}

func (h *IntakeHandler) observeFailure(err error) {
	var (
		validation   *intake.ValidationError
		confirmation *intake.ConfirmationRequired
		duplicate    *intake.DuplicateKeyError
	)
	switch {
	case errors.As(err, &validation):
		h.count(func(m *metrics.Metrics) { m.ValidationFailures.Inc() })
	case errors.As(err, &confirmation):
		h.count(func(m *metrics.Metrics) {
			if confirmation.Issues.Provider != nil {
				m.ConfirmationsRequired.WithLabelValues(string(intake.ConflictProviderName)).Inc()
			}
			if confirmation.Issues.Patient != nil {
				m.ConfirmationsRequired.WithLabelValues(string(intake.ConflictPatientName)).Inc()
			}
			if confirmation.Issues.Order != nil {
				m.ConfirmationsRequired.WithLabelValues(string(intake.ConflictDuplicateOrder)).Inc()
			}
		})
	case errors.As(err, &duplicate):
		h.count(func(m *metrics.Metrics) { m.DuplicateKeyConflicts.Inc() })
	}
}

func (h *IntakeHandler) count(fn func(m *metrics.Metrics)) {
	if h.metrics != nil {
		fn(h.metrics)
	}
}
