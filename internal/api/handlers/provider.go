package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

var providerNPIPattern = regexp.MustCompile(`^\d{10}$`)

// ProviderHandler handles provider endpoints.
type ProviderHandler struct {
	store  Store
	logger *zap.Logger
}

// NewProviderHandler creates the provider handler.
func NewProviderHandler(store Store, logger *zap.Logger) *ProviderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderHandler{store: store, logger: logger}
}

// Routes returns the handler routes.
func (h *ProviderHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	return r
}

// CreateProviderRequest is the body for creating a provider.
type CreateProviderRequest struct {
	Name string `json:"name"`
	NPI  string `json:"npi"`
}

// Create handles POST /providers. Providers are get-or-create by NPI: a
// second submission with an NPI already on file returns the stored row.
func (h *ProviderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, h.logger, &intake.ValidationError{Field: "name", Reason: "is required"})
		return
	}
	if !providerNPIPattern.MatchString(req.NPI) {
		writeError(w, h.logger, &intake.ValidationError{Field: "npi", Reason: "must be exactly 10 digits"})
		return
	}

	existing, err := h.store.ProviderByNPI(ctx, req.NPI)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	provider := &intake.Provider{ID: uuid.New(), Name: req.Name, NPI: req.NPI}
	if err := h.store.CreateProvider(ctx, provider); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

// List handles GET /providers.
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.store.ListProviders(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if providers == nil {
		providers = []*intake.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}
