// Package intake implements the clinical order intake workflow: validation of
// submitted patient/provider/order triples, conflict detection against stored
// identities, and confirmation-gated reconciliation.
package intake

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a referring clinical provider, keyed by NPI.
// The NPI is immutable once assigned; the name may be corrected later.
type Provider struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	NPI  string    `json:"npi"`
}

// Patient is a patient record, keyed by MRN. One row exists per unique MRN;
// later submissions reuse the row and never rename the patient.
type Patient struct {
	ID                  uuid.UUID `json:"id"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	MRN                 string    `json:"mrn"`
	PrimaryDiagnosis    string    `json:"primary_diagnosis"`
	AdditionalDiagnoses []string  `json:"additional_diagnoses"`
	MedicationHistory   []string  `json:"medication_history"`
	RecordsText         string    `json:"records_text"`
	ProviderID          uuid.UUID `json:"provider_id"`
}

// FullName returns the display name used in conflict reporting.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Order is a medication order for a patient. There is no uniqueness
// constraint on (patient, medication): duplicates are allowed, but only after
// explicit confirmation on the intake path.
type Order struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	MedicationName string    `json:"medication_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// PatientView is the list-endpoint projection of a patient joined with its
// referring provider.
type PatientView struct {
	ID                  uuid.UUID `json:"id"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	MRN                 string    `json:"mrn"`
	PrimaryDiagnosis    string    `json:"primary_diagnosis"`
	ReferringProvider   string    `json:"referring_provider"`
	ProviderNPI         string    `json:"provider_npi"`
	ProviderID          uuid.UUID `json:"provider_id"`
	AdditionalDiagnoses []string  `json:"additional_diagnoses"`
	MedicationHistory   []string  `json:"medication_history"`
	RecordsText         string    `json:"records_text"`
}
