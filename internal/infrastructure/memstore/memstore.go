// Package memstore provides an in-memory identity store for tests and local
// development. It enforces the same unique constraints as the Postgres store
// (provider NPI, patient MRN) and serializes transactions with a mutex.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// Store is an in-memory intake.Store.
type Store struct {
	mu        sync.Mutex
	providers []*intake.Provider
	patients  []*intake.Patient
	orders    []*intake.Order
	events    []*intake.Event

	carePlans map[uuid.UUID]string
}

// New creates an empty store.
func New() *Store {
	return &Store{carePlans: make(map[uuid.UUID]string)}
}

type memTx struct {
	s       *Store
	created struct {
		providers []*intake.Provider
		patients  []*intake.Patient
		orders    []*intake.Order
		events    []*intake.Event
	}
	renames map[uuid.UUID]string
}

// InTx runs fn under the store lock, applying writes only when fn returns
// nil. Transactions are fully serialized, so commit-time unique races cannot
// occur here the way they can against Postgres.
func (s *Store) InTx(ctx context.Context, fn func(tx intake.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, renames: make(map[uuid.UUID]string)}
	if err := fn(tx); err != nil {
		return err
	}

	for id, name := range tx.renames {
		for _, p := range s.providers {
			if p.ID == id {
				p.Name = name
			}
		}
	}
	s.providers = append(s.providers, tx.created.providers...)
	s.patients = append(s.patients, tx.created.patients...)
	s.orders = append(s.orders, tx.created.orders...)
	s.events = append(s.events, tx.created.events...)
	return nil
}

func (tx *memTx) ProviderByNPI(ctx context.Context, npi string) (*intake.Provider, error) {
	for _, p := range append(tx.s.providers, tx.created.providers...) {
		if p.NPI == npi {
			cp := *p
			if name, ok := tx.renames[p.ID]; ok {
				cp.Name = name
			}
			return &cp, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreateProvider(ctx context.Context, p *intake.Provider) error {
	if existing, _ := tx.ProviderByNPI(ctx, p.NPI); existing != nil {
		return &intake.DuplicateKeyError{Key: "npi", Value: p.NPI}
	}
	cp := *p
	tx.created.providers = append(tx.created.providers, &cp)
	return nil
}

func (tx *memTx) UpdateProviderName(ctx context.Context, id uuid.UUID, name string) error {
	for _, p := range tx.created.providers {
		if p.ID == id {
			p.Name = name
			return nil
		}
	}
	tx.renames[id] = name
	return nil
}

func (tx *memTx) PatientByMRN(ctx context.Context, mrn string) (*intake.Patient, error) {
	for _, p := range append(tx.s.patients, tx.created.patients...) {
		if p.MRN == mrn {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreatePatient(ctx context.Context, p *intake.Patient) error {
	if existing, _ := tx.PatientByMRN(ctx, p.MRN); existing != nil {
		return &intake.DuplicateKeyError{Key: "mrn", Value: p.MRN}
	}
	cp := *p
	tx.created.patients = append(tx.created.patients, &cp)
	return nil
}

func (tx *memTx) OrderByMedication(ctx context.Context, patientID uuid.UUID, medication string) (*intake.Order, error) {
	for _, o := range append(tx.s.orders, tx.created.orders...) {
		if o.PatientID == patientID && strings.EqualFold(o.MedicationName, medication) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreateOrder(ctx context.Context, o *intake.Order) error {
	cp := *o
	tx.created.orders = append(tx.created.orders, &cp)
	return nil
}

func (tx *memTx) EnqueueEvent(ctx context.Context, ev *intake.Event) error {
	cp := *ev
	tx.created.events = append(tx.created.events, &cp)
	return nil
}

func (s *Store) ListProviders(ctx context.Context) ([]*intake.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*intake.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListPatients(ctx context.Context) ([]*intake.PatientView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*intake.PatientView, 0, len(s.patients))
	for _, p := range s.patients {
		view := &intake.PatientView{
			ID:                  p.ID,
			FirstName:           p.FirstName,
			LastName:            p.LastName,
			MRN:                 p.MRN,
			PrimaryDiagnosis:    p.PrimaryDiagnosis,
			ProviderID:          p.ProviderID,
			AdditionalDiagnoses: p.AdditionalDiagnoses,
			MedicationHistory:   p.MedicationHistory,
			RecordsText:         p.RecordsText,
		}
		for _, prov := range s.providers {
			if prov.ID == p.ProviderID {
				view.ReferringProvider = prov.Name
				view.ProviderNPI = prov.NPI
			}
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*intake.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*intake.Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) PatientByID(ctx context.Context, id uuid.UUID) (*intake.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patients {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &intake.NotFoundError{Resource: "patient", ID: id.String()}
}

func (s *Store) ProviderByID(ctx context.Context, id uuid.UUID) (*intake.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &intake.NotFoundError{Resource: "provider", ID: id.String()}
}

func (s *Store) OrderByID(ctx context.Context, id uuid.UUID) (*intake.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, &intake.NotFoundError{Resource: "order", ID: id.String()}
}

// ProviderByNPI is the read-side lookup used by the provider get-or-create
// endpoint.
func (s *Store) ProviderByNPI(ctx context.Context, npi string) (*intake.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if p.NPI == npi {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateProvider inserts a provider outside a reconciliation transaction,
// for the provider get-or-create endpoint.
func (s *Store) CreateProvider(ctx context.Context, p *intake.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.providers {
		if existing.NPI == p.NPI {
			return &intake.DuplicateKeyError{Key: "npi", Value: p.NPI}
		}
	}
	cp := *p
	s.providers = append(s.providers, &cp)
	return nil
}

// CreateOrder inserts an order outside a reconciliation transaction, for the
// order-only creation endpoint.
func (s *Store) CreateOrder(ctx context.Context, o *intake.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	cp := *o
	s.orders = append(s.orders, &cp)
	return nil
}

// OrderForPatientByMedication is the read-side duplicate probe used by the
// order-only creation path.
func (s *Store) OrderForPatientByMedication(ctx context.Context, patientID uuid.UUID, medication string) (*intake.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PatientID == patientID && strings.EqualFold(o.MedicationName, medication) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

// Events returns a copy of all enqueued outbox events, oldest first.
func (s *Store) Events() []*intake.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*intake.Event, 0, len(s.events))
	for _, ev := range s.events {
		cp := *ev
		out = append(out, &cp)
	}
	return out
}

// SaveCarePlan caches generated care plan text by order id.
func (s *Store) SaveCarePlan(ctx context.Context, orderID uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carePlans[orderID] = text
	return nil
}

// CarePlanByOrderID returns cached care plan text, or ("", nil) when absent.
func (s *Store) CarePlanByOrderID(ctx context.Context, orderID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carePlans[orderID], nil
}
