// Package handlers provides HTTP handlers for the intake API.
package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// Store is the identity store surface the handlers need: the engine-facing
// intake.Store plus the direct read/write paths used by the CRUD listing and
// order-only endpoints. Implemented by the postgres and memstore stores.
type Store interface {
	intake.Store

	ProviderByNPI(ctx context.Context, npi string) (*intake.Provider, error)
	CreateProvider(ctx context.Context, p *intake.Provider) error
	CreateOrder(ctx context.Context, o *intake.Order) error
	OrderForPatientByMedication(ctx context.Context, patientID uuid.UUID, medication string) (*intake.Order, error)
}

// CarePlanCache stores generated care plan text keyed by order id.
type CarePlanCache interface {
	SaveCarePlan(ctx context.Context, orderID uuid.UUID, text string) error
	CarePlanByOrderID(ctx context.Context, orderID uuid.UUID) (string, error)
}

// Composer produces the care plan narrative for a persisted patient/order.
type Composer interface {
	Compose(ctx context.Context, patient *intake.Patient, provider *intake.Provider, order *intake.Order) (string, error)
}
