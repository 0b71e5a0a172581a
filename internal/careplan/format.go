package careplan

import (
	"fmt"
	"strings"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// Format prepends the patient-information header block to generated care plan
// text, producing the document returned for download.
func Format(patient *intake.Patient, provider *intake.Provider, order *intake.Order, body string) string {
	var b strings.Builder

	b.WriteString("\n" + rule + "\n")
	b.WriteString("                        CLINICAL CARE PLAN\n")
	b.WriteString(rule + "\n\n")
	b.WriteString("PATIENT INFORMATION\n")
	b.WriteString(thinRule + "\n")
	fmt.Fprintf(&b, "Patient Name:       %s %s\n", patient.FirstName, patient.LastName)
	fmt.Fprintf(&b, "MRN:                %s\n", patient.MRN)
	fmt.Fprintf(&b, "Primary Diagnosis:  %s\n", patient.PrimaryDiagnosis)
	fmt.Fprintf(&b, "Medication:         %s\n", order.MedicationName)
	fmt.Fprintf(&b, "Provider:           %s (NPI: %s)\n", provider.Name, provider.NPI)
	fmt.Fprintf(&b, "Order ID:           %s\n", order.ID)
	fmt.Fprintf(&b, "Date Generated:     %s\n", order.CreatedAt.Format("January 2, 2006"))
	b.WriteString("\n")

	if len(patient.AdditionalDiagnoses) > 0 {
		fmt.Fprintf(&b, "Additional Diagnoses:  %s\n", strings.Join(patient.AdditionalDiagnoses, ", "))
	}
	if len(patient.MedicationHistory) > 0 {
		fmt.Fprintf(&b, "Medication History:   %s\n", strings.Join(patient.MedicationHistory, ", "))
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("                           CARE PLAN\n")
	b.WriteString(rule + "\n\n")
	b.WriteString(body)

	return b.String()
}
