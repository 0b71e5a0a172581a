package intake

import "strings"

// ConflictKind identifies one class of conflicting-identity ambiguity.
type ConflictKind string

const (
	ConflictProviderName   ConflictKind = "provider_name_mismatch"
	ConflictPatientName    ConflictKind = "patient_name_mismatch"
	ConflictDuplicateOrder ConflictKind = "duplicate_order"
)

// Conflict is one detected mismatch between submitted data and a stored
// identity. Key is the discriminating identifier: the NPI, MRN, or medication
// name the existing row was matched on.
type Conflict struct {
	Kind      ConflictKind
	Key       string
	Existing  string
	Submitted string

	// ExistingOrderID is set for ConflictDuplicateOrder.
	ExistingOrderID string
}

// Confirmed reports whether the request carries the confirmation flag that
// resolves this conflict.
func (c *Conflict) Confirmed(req *Request) bool {
	switch c.Kind {
	case ConflictProviderName:
		return req.ConfirmProviderNameMismatch
	case ConflictPatientName:
		return req.ConfirmPatientNameMismatch
	case ConflictDuplicateOrder:
		return req.ConfirmDuplicateOrder
	}
	return false
}

// DetectIdentity compares the request against the provider and patient rows
// matched by NPI and MRN (either may be nil). Both checks always run so that
// simultaneous provider and patient conflicts are disclosed in one response.
// Pure and read-only; name comparison is case-insensitive.
func DetectIdentity(req *Request, provider *Provider, patient *Patient) []Conflict {
	var conflicts []Conflict

	if provider != nil && !strings.EqualFold(provider.Name, req.ReferringProvider) {
		conflicts = append(conflicts, Conflict{
			Kind:      ConflictProviderName,
			Key:       provider.NPI,
			Existing:  provider.Name,
			Submitted: req.ReferringProvider,
		})
	}

	if patient != nil &&
		(!strings.EqualFold(patient.FirstName, req.FirstName) ||
			!strings.EqualFold(patient.LastName, req.LastName)) {
		conflicts = append(conflicts, Conflict{
			Kind:      ConflictPatientName,
			Key:       patient.MRN,
			Existing:  patient.FullName(),
			Submitted: req.FirstName + " " + req.LastName,
		})
	}

	return conflicts
}

// DetectOrder checks the resolved patient's existing order (nil when absent)
// against the submitted medication. It must only run after provider and
// patient identities are resolved: the patient it operates on may itself have
// been pending confirmation.
func DetectOrder(req *Request, existing *Order) []Conflict {
	if existing == nil {
		return nil
	}
	return []Conflict{{
		Kind:            ConflictDuplicateOrder,
		Key:             existing.MedicationName,
		Existing:        existing.MedicationName,
		Submitted:       req.MedicationName,
		ExistingOrderID: existing.ID.String(),
	}}
}

// IssuesFrom builds the structured 422 payload from the subset of conflicts
// that remain unconfirmed by the request.
func IssuesFrom(req *Request, conflicts []Conflict) (Issues, bool) {
	var issues Issues
	outstanding := false

	for i := range conflicts {
		c := &conflicts[i]
		if c.Confirmed(req) {
			continue
		}
		outstanding = true
		switch c.Kind {
		case ConflictProviderName:
			issues.Provider = &ProviderIssue{
				ExistingName:  c.Existing,
				SubmittedName: c.Submitted,
				NPI:           c.Key,
			}
		case ConflictPatientName:
			issues.Patient = &PatientIssue{
				ExistingName:  c.Existing,
				SubmittedName: c.Submitted,
				MRN:           c.Key,
			}
		case ConflictDuplicateOrder:
			issues.Order = &OrderIssue{
				MedicationName:  c.Submitted,
				ExistingOrderID: c.ExistingOrderID,
			}
		}
	}

	return issues, outstanding
}
