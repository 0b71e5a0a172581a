package intake

import "fmt"

// ValidationError reports a malformed intake request. Raised before any store
// lookup; never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced id that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// DuplicateKeyError surfaces a uniqueness-constraint violation at commit
// time: two concurrent submissions raced on the same NPI or MRN and this one
// lost. The caller retries the whole reconciliation from validation.
type DuplicateKeyError struct {
	Key   string
	Value string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key on %s %q", e.Key, e.Value)
}

// ConfirmationRequired carries the set of unresolved conflicts back to the
// caller. It is the normal "needs another round trip" outcome, not a fault:
// the caller resubmits with the corresponding confirm flags set.
type ConfirmationRequired struct {
	Issues Issues
}

func (e *ConfirmationRequired) Error() string {
	return "confirmation required: " + e.Issues.String()
}

// Issues is the structured 422 response body payload. Provider and patient
// issues appear together when both conflict; the order issue only appears in
// a later call once identity is resolved.
type Issues struct {
	Provider *ProviderIssue `json:"provider,omitempty"`
	Patient  *PatientIssue  `json:"patient,omitempty"`
	Order    *OrderIssue    `json:"order,omitempty"`
}

// ProviderIssue reports a provider identity conflict keyed by NPI.
type ProviderIssue struct {
	ExistingName  string `json:"existing_name"`
	SubmittedName string `json:"submitted_name"`
	NPI           string `json:"npi"`
}

// PatientIssue reports a patient identity conflict keyed by MRN.
type PatientIssue struct {
	ExistingName  string `json:"existing_name"`
	SubmittedName string `json:"submitted_name"`
	MRN           string `json:"mrn"`
}

// OrderIssue reports a duplicate order for the resolved patient.
type OrderIssue struct {
	MedicationName  string `json:"medication_name"`
	ExistingOrderID string `json:"existing_order_id"`
}

func (i Issues) String() string {
	var parts []string
	if i.Provider != nil {
		parts = append(parts, "provider name mismatch")
	}
	if i.Patient != nil {
		parts = append(parts, "patient name mismatch")
	}
	if i.Order != nil {
		parts = append(parts, "duplicate order")
	}
	s := ""
	for n, p := range parts {
		if n > 0 {
			s += ", "
		}
		s += p
	}
	return s
}
