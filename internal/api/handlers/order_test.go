package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/api/handlers"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
	"github.com/lamarhealth/go-intake/internal/infrastructure/memstore"
)

// seedPatient commits a provider, patient, and order through the engine and
// returns the committed ids.
func seedPatient(t *testing.T, store *memstore.Store) *intake.Result {
	t.Helper()
	engine := intake.NewEngine(store, zap.NewNop())
	res, err := engine.Reconcile(context.Background(), &intake.Request{
		FirstName:         "John",
		LastName:          "Doe",
		MRN:               "123456",
		PrimaryDiagnosis:  "Hypertension",
		ReferringProvider: "Dr. Jane Smith",
		ProviderNPI:       "1234567890",
		MedicationName:    "Lisinopril",
	})
	if err != nil {
		t.Fatalf("seed reconcile: %v", err)
	}
	return res
}

func newOrderServer(store *memstore.Store) http.Handler {
	h := handlers.NewOrderHandler(store, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/orders", h.Routes())
	return r
}

func TestCreateOrderUnknownPatient(t *testing.T) {
	srv := newOrderServer(memstore.New())

	rec := postJSON(t, srv, "/orders", map[string]string{
		"patient_id":      uuid.NewString(),
		"medication_name": "Metformin",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateOrderForExistingPatient(t *testing.T) {
	store := memstore.New()
	seeded := seedPatient(t, store)
	srv := newOrderServer(store)

	rec := postJSON(t, srv, "/orders", map[string]string{
		"patient_id":      seeded.PatientID.String(),
		"medication_name": "Metformin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp handlers.OrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Warning != nil {
		t.Errorf("unexpected warning: %q", *resp.Warning)
	}
	if resp.MedicationName != "Metformin" {
		t.Errorf("unexpected medication: %q", resp.MedicationName)
	}
}

func TestCreateOrderDuplicateWarnsButCreates(t *testing.T) {
	store := memstore.New()
	seeded := seedPatient(t, store)
	srv := newOrderServer(store)

	// Case-insensitive match against the seeded Lisinopril order.
	rec := postJSON(t, srv, "/orders", map[string]string{
		"patient_id":      seeded.PatientID.String(),
		"medication_name": "lisinopril",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp handlers.OrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Warning == nil {
		t.Fatal("expected duplicate warning")
	}
	if *resp.Warning != "Similar order for 'lisinopril' already exists for this patient." {
		t.Errorf("unexpected warning: %q", *resp.Warning)
	}

	orders, _ := store.ListOrders(context.Background())
	if len(orders) != 2 {
		t.Errorf("expected the duplicate order created, got %d orders", len(orders))
	}
}

func TestCreateOrderRequiresMedication(t *testing.T) {
	store := memstore.New()
	seeded := seedPatient(t, store)
	srv := newOrderServer(store)

	rec := postJSON(t, srv, "/orders", map[string]string{
		"patient_id": seeded.PatientID.String(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListOrders(t *testing.T) {
	store := memstore.New()
	seeded := seedPatient(t, store)
	srv := newOrderServer(store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var orders []handlers.OrderResponse
	json.Unmarshal(rec.Body.Bytes(), &orders)
	if len(orders) != 1 || orders[0].ID != seeded.OrderID.String() {
		t.Errorf("unexpected orders: %+v", orders)
	}
}
