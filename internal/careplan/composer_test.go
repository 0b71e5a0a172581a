package careplan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

func testSubjects() (*intake.Patient, *intake.Provider, *intake.Order) {
	provider := &intake.Provider{ID: uuid.New(), Name: "Dr. Jane Smith", NPI: "1234567890"}
	patient := &intake.Patient{
		ID:                  uuid.New(),
		FirstName:           "John",
		LastName:            "Doe",
		MRN:                 "123456",
		PrimaryDiagnosis:    "Hypertension",
		AdditionalDiagnoses: []string{"CKD stage 2"},
		MedicationHistory:   []string{"Amlodipine"},
		ProviderID:          provider.ID,
	}
	order := &intake.Order{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		MedicationName: "Lisinopril",
		CreatedAt:      time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	return patient, provider, order
}

func testComposer(fn generateFunc) *Composer {
	return &Composer{config: DefaultConfig(), generate: fn}
}

func TestComposeReturnsGeneratedText(t *testing.T) {
	patient, provider, order := testSubjects()
	var captured string
	c := testComposer(func(ctx context.Context, prompt string) (string, error) {
		captured = prompt
		return "**Problem list**\nHypertension management.", nil
	})
	c.logger = zap.NewNop()

	text, err := c.Compose(context.Background(), patient, provider, order)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !strings.Contains(text, "Hypertension management.") {
		t.Errorf("unexpected text: %q", text)
	}

	// The prompt carries the full patient context.
	for _, want := range []string{
		"John Doe",
		"MRN: 123456",
		"Primary Diagnosis: Hypertension",
		"CKD stage 2",
		"Amlodipine",
		"Dr. Jane Smith (NPI: 1234567890)",
		"Lisinopril",
		"No additional patient records provided.",
	} {
		if !strings.Contains(captured, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestComposeWrapsGenerationFailure(t *testing.T) {
	patient, provider, order := testSubjects()
	c := testComposer(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("rate limited")
	})
	c.logger = zap.NewNop()

	_, err := c.Compose(context.Background(), patient, provider, order)
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !strings.Contains(gerr.Error(), "rate limited") {
		t.Errorf("cause lost: %v", gerr)
	}
}

func TestComposeRejectsEmptyResponse(t *testing.T) {
	patient, provider, order := testSubjects()
	c := testComposer(func(ctx context.Context, prompt string) (string, error) {
		return "   \n", nil
	})
	c.logger = zap.NewNop()

	_, err := c.Compose(context.Background(), patient, provider, order)
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError for empty response, got %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
