package intake

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event is a domain event recorded in the same transaction as the writes it
// describes, for relay to the event stream via the transactional outbox.
type Event struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
}

// Event types emitted by the reconciliation engine.
const (
	EventPatientCreated = "intake.patient.created"
	EventOrderCreated   = "intake.order.created"
)

// Tx is the transactional view of the identity store. All reconciliation
// reads and writes for one submission happen through a single Tx so the
// conflict check cannot go stale between detection and commit.
//
// Lookup methods keyed by a business identifier (NPI, MRN, medication name)
// return (nil, nil) when no row matches; lookups by id return *NotFoundError.
type Tx interface {
	ProviderByNPI(ctx context.Context, npi string) (*Provider, error)
	CreateProvider(ctx context.Context, p *Provider) error
	UpdateProviderName(ctx context.Context, id uuid.UUID, name string) error

	PatientByMRN(ctx context.Context, mrn string) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error

	// OrderByMedication matches medication_name case-insensitively.
	OrderByMedication(ctx context.Context, patientID uuid.UUID, medication string) (*Order, error)
	CreateOrder(ctx context.Context, o *Order) error

	EnqueueEvent(ctx context.Context, ev *Event) error
}

// Store is the identity store consumed by the engine and the read-side
// handlers. InTx runs fn inside one atomic transaction, rolling back when fn
// returns an error.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	ListProviders(ctx context.Context) ([]*Provider, error)
	ListPatients(ctx context.Context) ([]*PatientView, error)
	ListOrders(ctx context.Context) ([]*Order, error)

	PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	OrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
}
