package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/api/handlers"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
	"github.com/lamarhealth/go-intake/internal/infrastructure/memstore"
)

func newIntakeServer(store *memstore.Store) http.Handler {
	engine := intake.NewEngine(store, zap.NewNop())
	h := handlers.NewIntakeHandler(engine, nil, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/intake", h.Routes())
	return r
}

func intakeBody(mutate func(map[string]interface{})) *bytes.Buffer {
	body := map[string]interface{}{
		"first_name":        "John",
		"last_name":         "Doe",
		"mrn":               "123456",
		"primary_diagnosis": "Hypertension",
		"referring_provider": "Dr. Jane Smith",
		"provider_npi":      "1234567890",
		"medication_name":   "Lisinopril",
	}
	if mutate != nil {
		mutate(body)
	}
	buf := &bytes.Buffer{}
	json.NewEncoder(buf).Encode(body)
	return buf
}

func TestSubmitIntakeSuccess(t *testing.T) {
	srv := newIntakeServer(memstore.New())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake", intakeBody(nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp handlers.SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "Patient and order created successfully." {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if resp.PatientID == "" || resp.OrderID == "" {
		t.Error("expected committed ids in response")
	}
}

func TestSubmitIntakeMalformedBody(t *testing.T) {
	srv := newIntakeServer(memstore.New())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitIntakeValidationFailure(t *testing.T) {
	srv := newIntakeServer(memstore.New())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake",
		intakeBody(func(b map[string]interface{}) { b["mrn"] = "12ab" })))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp["error"], "mrn") {
		t.Errorf("expected mrn in error, got %q", resp["error"])
	}
}

func TestSubmitIntakeConfirmationRoundTrip(t *testing.T) {
	store := memstore.New()
	srv := newIntakeServer(store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake", intakeBody(nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rec.Code)
	}

	// Conflicting provider name for the same NPI.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake",
		intakeBody(func(b map[string]interface{}) {
			b["referring_provider"] = "Dr. Different Name"
			b["medication_name"] = "Metformin"
		})))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RequiresConfirmation bool          `json:"requires_confirmation"`
		Issues               intake.Issues `json:"issues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode 422 body: %v", err)
	}
	if !resp.RequiresConfirmation {
		t.Error("expected requires_confirmation true")
	}
	if resp.Issues.Provider == nil {
		t.Fatal("expected provider issue")
	}
	if resp.Issues.Provider.NPI != "1234567890" {
		t.Errorf("provider issue keyed by %q", resp.Issues.Provider.NPI)
	}

	// Resubmit with the confirmation flag.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake",
		intakeBody(func(b map[string]interface{}) {
			b["referring_provider"] = "Dr. Different Name"
			b["medication_name"] = "Metformin"
			b["confirm_provider_name_mismatch"] = true
		})))

	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed resubmission status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ok handlers.SubmitResponse
	json.Unmarshal(rec.Body.Bytes(), &ok)
	if ok.Message != "Order created successfully. Provider name updated from existing entry." {
		t.Errorf("unexpected message: %q", ok.Message)
	}

	providers, _ := store.ListProviders(context.Background())
	if len(providers) != 1 || providers[0].Name != "Dr. Different Name" {
		t.Errorf("expected renamed provider, got %v", providers)
	}
}
