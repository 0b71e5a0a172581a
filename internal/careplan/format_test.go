package careplan

import (
	"strings"
	"testing"
)

func TestFormatHeaderBlock(t *testing.T) {
	patient, provider, order := testSubjects()

	doc := Format(patient, provider, order, "Body text here.")

	for _, want := range []string{
		"CLINICAL CARE PLAN",
		"PATIENT INFORMATION",
		"Patient Name:       John Doe",
		"MRN:                123456",
		"Primary Diagnosis:  Hypertension",
		"Medication:         Lisinopril",
		"Provider:           Dr. Jane Smith (NPI: 1234567890)",
		"Order ID:           " + order.ID.String(),
		"Date Generated:     March 15, 2026",
		"Additional Diagnoses:  CKD stage 2",
		"Medication History:   Amlodipine",
		"CARE PLAN",
		"Body text here.",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}

	if !strings.HasSuffix(doc, "Body text here.") {
		t.Error("body should close the document")
	}
}

func TestFormatOmitsEmptyHistorySections(t *testing.T) {
	patient, provider, order := testSubjects()
	patient.AdditionalDiagnoses = nil
	patient.MedicationHistory = nil

	doc := Format(patient, provider, order, "Body.")
	if strings.Contains(doc, "Additional Diagnoses") || strings.Contains(doc, "Medication History") {
		t.Error("empty sections should be omitted")
	}
}
