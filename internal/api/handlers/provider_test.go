package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/api/handlers"
	"github.com/lamarhealth/go-intake/internal/domain/intake"
	"github.com/lamarhealth/go-intake/internal/infrastructure/memstore"
)

func newProviderServer(store *memstore.Store) http.Handler {
	h := handlers.NewProviderHandler(store, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/providers", h.Routes())
	return r
}

func postJSON(t *testing.T, srv http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, buf))
	return rec
}

func TestCreateProvider(t *testing.T) {
	srv := newProviderServer(memstore.New())

	rec := postJSON(t, srv, "/providers", map[string]string{
		"name": "Dr. Jane Smith",
		"npi":  "1234567890",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var p intake.Provider
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Name != "Dr. Jane Smith" || p.NPI != "1234567890" {
		t.Errorf("unexpected provider: %+v", p)
	}
}

func TestCreateProviderIsGetOrCreateByNPI(t *testing.T) {
	srv := newProviderServer(memstore.New())

	first := postJSON(t, srv, "/providers", map[string]string{
		"name": "Dr. Jane Smith", "npi": "1234567890",
	})
	var created intake.Provider
	json.Unmarshal(first.Body.Bytes(), &created)

	// Same NPI, different name: the stored row wins.
	second := postJSON(t, srv, "/providers", map[string]string{
		"name": "Dr. J. Smith", "npi": "1234567890",
	})
	if second.Code != http.StatusOK {
		t.Fatalf("status = %d", second.Code)
	}
	var returned intake.Provider
	json.Unmarshal(second.Body.Bytes(), &returned)
	if returned.ID != created.ID || returned.Name != "Dr. Jane Smith" {
		t.Errorf("expected stored row back, got %+v", returned)
	}
}

func TestCreateProviderRejectsBadNPI(t *testing.T) {
	srv := newProviderServer(memstore.New())

	rec := postJSON(t, srv, "/providers", map[string]string{
		"name": "Dr. Jane Smith", "npi": "12345",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListProvidersEmpty(t *testing.T) {
	srv := newProviderServer(memstore.New())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/providers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var providers []intake.Provider
	if err := json.Unmarshal(rec.Body.Bytes(), &providers); err != nil {
		t.Fatalf("expected JSON array, got %s", rec.Body.String())
	}
	if len(providers) != 0 {
		t.Errorf("expected empty list, got %d", len(providers))
	}
}
