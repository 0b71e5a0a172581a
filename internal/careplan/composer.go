// Package careplan composes clinical care plan narratives for a persisted
// patient and order. The composer is a collaborator of the intake API, not
// part of the reconciliation core: it runs only after an order exists, and
// its failures never affect committed rows.
package careplan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// GenerationError reports a failed composition attempt. The patient and
// order it was invoked for remain committed.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "care plan generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

const systemInstruction = "You are an experienced clinical pharmacist specializing in specialty medications and care plan development."

// Config holds composer settings.
type Config struct {
	APIKey string
	Model  string
	// Timeout bounds each generation call.
	Timeout time.Duration
}

// DefaultConfig returns composer defaults.
func DefaultConfig() Config {
	return Config{
		Model:   "gemini-2.0-flash",
		Timeout: 60 * time.Second,
	}
}

// generateFunc produces narrative text for a prompt. Swappable in tests.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Composer generates care plan text through an external generation service.
type Composer struct {
	config   Config
	logger   *zap.Logger
	generate generateFunc
}

// New creates a composer backed by the Gemini API.
func New(cfg Config, logger *zap.Logger) (*Composer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	c := &Composer{config: cfg, logger: logger}
	c.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, cfg.Model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
				Temperature:       genai.Ptr[float32](0.7),
				MaxOutputTokens:   3000,
			})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return c, nil
}

// Compose generates the care plan body for a patient and order, returning a
// *GenerationError on any failure. Each call is bounded by the configured
// timeout.
func (c *Composer) Compose(ctx context.Context, patient *intake.Patient, provider *intake.Provider, order *intake.Order) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	prompt := buildPrompt(patient, provider, order)

	start := time.Now()
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Err: fmt.Errorf("generation service returned empty response")}
	}

	c.logger.Info("care plan generated",
		zap.String("order_id", order.ID.String()),
		zap.Duration("duration", time.Since(start)))
	return text, nil
}

// buildPrompt assembles the clinical-pharmacist prompt from patient, provider
// and order context.
func buildPrompt(patient *intake.Patient, provider *intake.Provider, order *intake.Order) string {
	joinOrNone := func(items []string) string {
		if len(items) == 0 {
			return "None"
		}
		return strings.Join(items, ", ")
	}

	records := patient.RecordsText
	if records == "" {
		records = "No additional patient records provided."
	}

	var b strings.Builder
	b.WriteString(`You are a clinical pharmacist generating a comprehensive care plan for a patient.
Generate a detailed care plan following this exact structure:

**Problem list / Drug therapy problems (DTPs)**
[List the key problems and drug therapy issues]

**Goals (SMART)**
[Primary goals, Safety goals, Process goals - make them Specific, Measurable, Achievable, Relevant, Time-bound]

**Pharmacist interventions / plan**
Include detailed sections for:
- Dosing & Administration
- Premedication
- Infusion rates & titration
- Hydration & renal protection
- Thrombosis risk mitigation
- Concomitant medications
- Monitoring during infusion
- Adverse event management
- Documentation & communication

**Monitoring plan & lab schedule**
[Pre-infusion, during infusion, post-infusion monitoring requirements]

Use the following patient information:

PATIENT INFORMATION:
`)
	fmt.Fprintf(&b, "- Name: %s %s\n", patient.FirstName, patient.LastName)
	fmt.Fprintf(&b, "- MRN: %s\n", patient.MRN)
	fmt.Fprintf(&b, "- Primary Diagnosis: %s\n", patient.PrimaryDiagnosis)
	fmt.Fprintf(&b, "- Additional Diagnoses: %s\n", joinOrNone(patient.AdditionalDiagnoses))
	fmt.Fprintf(&b, "- Medication: %s\n", order.MedicationName)
	fmt.Fprintf(&b, "- Medication History: %s\n", joinOrNone(patient.MedicationHistory))
	fmt.Fprintf(&b, "- Provider: %s (NPI: %s)\n", provider.Name, provider.NPI)
	fmt.Fprintf(&b, "\nPATIENT RECORDS:\n%s\n\n", records)
	fmt.Fprintf(&b, `Generate a detailed, clinically appropriate care plan for this patient receiving %s.
Base your recommendations on standard clinical practice guidelines and the patient's specific information provided.
Make it comprehensive and actionable for clinical staff.`, order.MedicationName)

	return b.String()
}
