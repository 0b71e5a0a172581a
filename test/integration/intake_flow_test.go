// Package integration exercises the full intake API surface end to end:
// middleware, handlers, reconciliation engine, and care plan caching over the
// in-memory store.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/api/handlers"
	"github.com/lamarhealth/go-intake/internal/api/middleware"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
	"github.com/lamarhealth/go-intake/internal/infrastructure/memstore"
)

const testAPIKey = "integration-test-key"

type fakeComposer struct {
	calls int
}

func (f *fakeComposer) Compose(ctx context.Context, patient *intake.Patient, provider *intake.Provider, order *intake.Order) (string, error) {
	f.calls++
	return fmt.Sprintf("Care plan for %s %s on %s.", patient.FirstName, patient.LastName, order.MedicationName), nil
}

// newServer assembles the router the way the API binary does, minus metrics
// and tracing.
func newServer(store *memstore.Store, composer handlers.Composer) http.Handler {
	logger := zap.NewNop()
	engine := intake.NewEngine(store, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(map[string]string{testAPIKey: "integration-test"}))
		r.Mount("/intake", handlers.NewIntakeHandler(engine, nil, logger).Routes())
		r.Mount("/providers", handlers.NewProviderHandler(store, logger).Routes())
		r.Mount("/patients", handlers.NewPatientHandler(store, store, composer, logger).Routes())
		r.Mount("/orders", handlers.NewOrderHandler(store, logger).Routes())
	})
	return r
}

func do(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func intakePayload() map[string]interface{} {
	return map[string]interface{}{
		"first_name":         "John",
		"last_name":          "Doe",
		"mrn":                "123456",
		"primary_diagnosis":  "Hypertension",
		"referring_provider": "Dr. Jane Smith",
		"provider_npi":       "1234567890",
		"medication_name":    "Lisinopril",
	}
}

func TestRejectsUnauthenticatedRequests(t *testing.T) {
	srv := newServer(memstore.New(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/intake", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIntakeJourney(t *testing.T) {
	store := memstore.New()
	composer := &fakeComposer{}
	srv := newServer(store, composer)

	// First submission creates provider, patient, and order.
	rec := do(t, srv, http.MethodPost, "/api/v1/intake", intakePayload())
	if rec.Code != http.StatusOK {
		t.Fatalf("first submission: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var first handlers.SubmitResponse
	decode(t, rec, &first)
	if first.Message != "Patient and order created successfully." {
		t.Errorf("message = %q", first.Message)
	}

	// A follow-up with a different provider name stops for confirmation
	// without touching the store.
	payload := intakePayload()
	payload["referring_provider"] = "Dr. Janet Smith"
	payload["medication_name"] = "Metformin"
	rec = do(t, srv, http.MethodPost, "/api/v1/intake", payload)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("conflicting submission: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Confirming the mismatch renames the provider and creates the order.
	payload["confirm_provider_name_mismatch"] = true
	rec = do(t, srv, http.MethodPost, "/api/v1/intake", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed submission: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var second handlers.SubmitResponse
	decode(t, rec, &second)
	if !strings.Contains(second.Message, "Provider name updated") {
		t.Errorf("message = %q, want provider rename warning", second.Message)
	}
	if second.PatientID != first.PatientID {
		t.Errorf("patient id changed across submissions: %s vs %s", first.PatientID, second.PatientID)
	}

	// The rename is visible through the provider listing.
	rec = do(t, srv, http.MethodGet, "/api/v1/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list providers: status = %d", rec.Code)
	}
	var providers []map[string]interface{}
	decode(t, rec, &providers)
	if len(providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(providers))
	}
	if providers[0]["name"] != "Dr. Janet Smith" {
		t.Errorf("provider name = %v, want renamed value", providers[0]["name"])
	}

	// The patient listing joins the referring provider.
	rec = do(t, srv, http.MethodGet, "/api/v1/patients", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list patients: status = %d", rec.Code)
	}
	var patients []*intake.PatientView
	decode(t, rec, &patients)
	if len(patients) != 1 {
		t.Fatalf("patients = %d, want 1", len(patients))
	}

	// The care plan endpoint composes once, then serves from cache.
	planPath := fmt.Sprintf("/api/v1/patients/%s/orders/%s/care-plan", first.PatientID, first.OrderID)
	rec = do(t, srv, http.MethodGet, planPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("care plan: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "John Doe") {
		t.Errorf("care plan body = %q", rec.Body.String())
	}
	do(t, srv, http.MethodGet, planPath, nil)
	if composer.calls != 1 {
		t.Errorf("composer calls = %d, want 1 (second read should hit the cache)", composer.calls)
	}

	// Direct order creation warns on a duplicate but still creates.
	rec = do(t, srv, http.MethodPost, "/api/v1/orders", map[string]string{
		"patient_id":      first.PatientID,
		"medication_name": "lisinopril",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create order: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created handlers.OrderResponse
	decode(t, rec, &created)
	if created.Warning == nil {
		t.Error("expected duplicate medication warning")
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/orders", nil)
	var orders []handlers.OrderResponse
	decode(t, rec, &orders)
	if len(orders) != 3 {
		t.Errorf("orders = %d, want 3", len(orders))
	}
}
