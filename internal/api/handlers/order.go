package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// OrderHandler handles the order-only creation and listing endpoints. This
// path sits outside the reconciliation state machine: the patient must
// already exist, and a same-medication duplicate produces a warning rather
// than a confirmation gate.
type OrderHandler struct {
	store  Store
	logger *zap.Logger
}

// NewOrderHandler creates the order handler.
func NewOrderHandler(store Store, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{store: store, logger: logger}
}

// Routes returns the handler routes.
func (h *OrderHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	return r
}

// CreateOrderRequest is the body for creating an order directly.
type CreateOrderRequest struct {
	PatientID      string `json:"patient_id"`
	MedicationName string `json:"medication_name"`
}

// OrderResponse is an order plus the optional duplicate warning.
type OrderResponse struct {
	ID             string  `json:"id"`
	PatientID      string  `json:"patient_id"`
	MedicationName string  `json:"medication_name"`
	Warning        *string `json:"warning"`
}

// Create handles POST /orders. Unknown patient ids return 404.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MedicationName == "" {
		writeError(w, h.logger, &intake.ValidationError{Field: "medication_name", Reason: "is required"})
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, h.logger, &intake.NotFoundError{Resource: "patient", ID: req.PatientID})
		return
	}

	patient, err := h.store.PatientByID(ctx, patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var warning *string
	if existing, err := h.store.OrderForPatientByMedication(ctx, patient.ID, req.MedicationName); err != nil {
		writeError(w, h.logger, err)
		return
	} else if existing != nil {
		msg := fmt.Sprintf("Similar order for '%s' already exists for this patient.", req.MedicationName)
		warning = &msg
	}

	order := &intake.Order{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		MedicationName: req.MedicationName,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateOrder(ctx, order); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, OrderResponse{
		ID:             order.ID.String(),
		PatientID:      order.PatientID.String(),
		MedicationName: order.MedicationName,
		Warning:        warning,
	})
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListOrders(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderResponse{
			ID:             o.ID.String(),
			PatientID:      o.PatientID.String(),
			MedicationName: o.MedicationName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
