package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Result is the success outcome of one reconciliation call.
type Result struct {
	PatientID uuid.UUID
	OrderID   uuid.UUID
	Message   string

	ProviderNameUpdated   bool
	PatientNameConfirmed  bool
	DuplicateOrderCreated bool
}

// Engine orchestrates one intake submission: validation, conflict detection,
// confirmation gating, and commit. Each call runs as a single transaction
// against the identity store; the store's unique constraints are the only
// serialization between concurrent submissions.
type Engine struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewEngine creates a reconciliation engine.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("intake-engine"),
	}
}

// Reconcile processes one intake request.
//
// Identity conflicts (provider name, patient name) are detected together and,
// when any is unconfirmed, reported together in one *ConfirmationRequired
// without writing anything. Once identity is confirmed, the provider and
// patient are committed before the duplicate-order check runs: an unconfirmed
// duplicate order therefore leaves the provider and patient rows in place,
// and the retried call finds them again through the same unique-key lookups.
// Order creation is deliberately not idempotent: confirming a duplicate
// creates a second order row.
func (e *Engine) Reconcile(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile",
		trace.WithAttributes(attribute.String("mrn", req.MRN)))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		res          *Result
		confirmation *ConfirmationRequired
	)

	err := e.store.InTx(ctx, func(tx Tx) error {
		provider, err := tx.ProviderByNPI(ctx, req.ProviderNPI)
		if err != nil {
			return fmt.Errorf("provider lookup: %w", err)
		}
		patient, err := tx.PatientByMRN(ctx, req.MRN)
		if err != nil {
			return fmt.Errorf("patient lookup: %w", err)
		}

		identity := DetectIdentity(req, provider, patient)
		if issues, outstanding := IssuesFrom(req, identity); outstanding {
			// Terminal for this call; returning the error rolls back
			// the (read-only so far) transaction.
			return &ConfirmationRequired{Issues: issues}
		}

		res = &Result{}
		for _, c := range identity {
			if c.Kind == ConflictPatientName {
				res.PatientNameConfirmed = true
			}
		}

		provider, err = e.resolveProvider(ctx, tx, req, provider, identity, res)
		if err != nil {
			return err
		}
		patient, err = e.resolvePatient(ctx, tx, req, patient, provider)
		if err != nil {
			return err
		}
		res.PatientID = patient.ID

		existing, err := tx.OrderByMedication(ctx, patient.ID, req.MedicationName)
		if err != nil {
			return fmt.Errorf("order lookup: %w", err)
		}
		orderConflicts := DetectOrder(req, existing)
		if issues, outstanding := IssuesFrom(req, orderConflicts); outstanding {
			// The provider and patient writes above commit: returning
			// nil here keeps the transaction, and the confirmation is
			// carried out of band.
			confirmation = &ConfirmationRequired{Issues: issues}
			return nil
		}
		res.DuplicateOrderCreated = existing != nil

		order := &Order{
			ID:             uuid.New(),
			PatientID:      patient.ID,
			MedicationName: req.MedicationName,
			CreatedAt:      time.Now().UTC(),
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		res.OrderID = order.ID

		if err := enqueueOrderCreated(ctx, tx, order, patient); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if confirmation != nil {
		return nil, confirmation
	}

	res.Message = buildMessage(req, res)
	e.logger.Info("intake committed",
		zap.String("patient_id", res.PatientID.String()),
		zap.String("order_id", res.OrderID.String()),
		zap.Bool("provider_name_updated", res.ProviderNameUpdated),
		zap.Bool("patient_name_confirmed", res.PatientNameConfirmed),
		zap.Bool("duplicate_order_created", res.DuplicateOrderCreated),
	)
	return res, nil
}

// resolveProvider reuses the provider found by NPI, updating its name only
// when the mismatch was explicitly confirmed, or creates a new row.
func (e *Engine) resolveProvider(ctx context.Context, tx Tx, req *Request, provider *Provider, identity []Conflict, res *Result) (*Provider, error) {
	if provider == nil {
		provider = &Provider{
			ID:   uuid.New(),
			Name: req.ReferringProvider,
			NPI:  req.ProviderNPI,
		}
		if err := tx.CreateProvider(ctx, provider); err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
		return provider, nil
	}

	for _, c := range identity {
		if c.Kind == ConflictProviderName {
			if err := tx.UpdateProviderName(ctx, provider.ID, req.ReferringProvider); err != nil {
				return nil, fmt.Errorf("update provider name: %w", err)
			}
			provider.Name = req.ReferringProvider
			res.ProviderNameUpdated = true
		}
	}
	return provider, nil
}

// resolvePatient reuses the patient found by MRN or creates a new row.
// Confirmation of a name mismatch means "proceed with the existing patient",
// never "rename them": the stored name is left untouched.
func (e *Engine) resolvePatient(ctx context.Context, tx Tx, req *Request, patient *Patient, provider *Provider) (*Patient, error) {
	if patient != nil {
		return patient, nil
	}

	patient = &Patient{
		ID:                  uuid.New(),
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		MRN:                 req.MRN,
		PrimaryDiagnosis:    req.PrimaryDiagnosis,
		AdditionalDiagnoses: req.AdditionalDiagnoses,
		MedicationHistory:   req.MedicationHistory,
		RecordsText:         req.RecordsText,
		ProviderID:          provider.ID,
	}
	if err := tx.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"patient_id": patient.ID.String(),
		"mrn":        patient.MRN,
	})
	ev := &Event{
		AggregateID:   patient.ID.String(),
		AggregateType: "Patient",
		EventType:     EventPatientCreated,
		Payload:       payload,
	}
	if err := tx.EnqueueEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("enqueue patient event: %w", err)
	}
	return patient, nil
}

func enqueueOrderCreated(ctx context.Context, tx Tx, order *Order, patient *Patient) error {
	payload, _ := json.Marshal(map[string]string{
		"order_id":        order.ID.String(),
		"patient_id":      patient.ID.String(),
		"medication_name": order.MedicationName,
	})
	ev := &Event{
		AggregateID:   order.ID.String(),
		AggregateType: "Order",
		EventType:     EventOrderCreated,
		Payload:       payload,
	}
	if err := tx.EnqueueEvent(ctx, ev); err != nil {
		return fmt.Errorf("enqueue order event: %w", err)
	}
	return nil
}

// buildMessage enumerates the conditions that were auto-resolved during
// commit. The wording is part of the API contract.
func buildMessage(req *Request, res *Result) string {
	var warnings []string
	if res.ProviderNameUpdated {
		warnings = append(warnings, "Provider name updated from existing entry.")
	}
	if res.PatientNameConfirmed {
		warnings = append(warnings, "Order created for existing patient.")
	}
	if res.DuplicateOrderCreated {
		warnings = append(warnings, fmt.Sprintf("Duplicate order created for '%s'.", req.MedicationName))
	}

	if len(warnings) == 0 {
		return "Patient and order created successfully."
	}
	msg := "Order created successfully."
	for _, w := range warnings {
		msg += " " + w
	}
	return msg
}
