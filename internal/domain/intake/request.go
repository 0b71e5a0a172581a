package intake

import "regexp"

var (
	mrnPattern = regexp.MustCompile(`^\d{6}$`)
	npiPattern = regexp.MustCompile(`^\d{10}$`)
)

// Request is the caller-supplied intake envelope: a patient, its referring
// provider, and a medication order, plus the confirmation flags set on
// resubmission after a 422.
type Request struct {
	FirstName           string   `json:"first_name"`
	LastName            string   `json:"last_name"`
	MRN                 string   `json:"mrn"`
	PrimaryDiagnosis    string   `json:"primary_diagnosis"`
	ReferringProvider   string   `json:"referring_provider"`
	ProviderNPI         string   `json:"provider_npi"`
	MedicationName      string   `json:"medication_name"`
	AdditionalDiagnoses []string `json:"additional_diagnoses"`
	MedicationHistory   []string `json:"medication_history"`
	RecordsText         string   `json:"records_text"`

	ConfirmProviderNameMismatch bool `json:"confirm_provider_name_mismatch"`
	ConfirmPatientNameMismatch  bool `json:"confirm_patient_name_mismatch"`
	ConfirmDuplicateOrder       bool `json:"confirm_duplicate_order"`
}

// Validate checks field presence and identifier shape. It runs strictly
// before any store lookup: malformed identifiers cannot be meaningfully
// compared against stored rows.
func (r *Request) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"mrn", r.MRN},
		{"primary_diagnosis", r.PrimaryDiagnosis},
		{"referring_provider", r.ReferringProvider},
		{"provider_npi", r.ProviderNPI},
		{"medication_name", r.MedicationName},
	}
	for _, f := range required {
		if f.value == "" {
			return &ValidationError{Field: f.field, Reason: "is required"}
		}
	}

	if !mrnPattern.MatchString(r.MRN) {
		return &ValidationError{Field: "mrn", Reason: "must be exactly 6 digits"}
	}
	if !npiPattern.MatchString(r.ProviderNPI) {
		return &ValidationError{Field: "provider_npi", Reason: "must be exactly 10 digits"}
	}
	return nil
}
