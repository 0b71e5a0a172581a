package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// PatientHandler handles patient read endpoints and the per-order care plan
// endpoint.
type PatientHandler struct {
	store    Store
	cache    CarePlanCache
	composer Composer
	logger   *zap.Logger
}

// NewPatientHandler creates the patient handler. composer and cache may be
// nil when care plan generation is not configured.
func NewPatientHandler(store Store, cache CarePlanCache, composer Composer, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{store: store, cache: cache, composer: composer, logger: logger}
}

// Routes returns the handler routes.
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{patientID}/orders/{orderID}/care-plan", h.CarePlan)
	return r
}

// List handles GET /patients, returning patients joined with their referring
// provider.
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.store.ListPatients(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if patients == nil {
		patients = []*intake.PatientView{}
	}
	writeJSON(w, http.StatusOK, patients)
}
