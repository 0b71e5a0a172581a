// Package postgres provides PostgreSQL infrastructure: the identity store
// behind the reconciliation engine, schema migration, the care plan cache,
// and the transactional outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/domain/intake"
)

// eventTopic is the stream topic outbox entries are relayed to. Kept in sync
// with the topic definitions in internal/infrastructure/redpanda.
const eventTopic = "intake.events"

// Store implements intake.Store over a pgxpool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a Postgres-backed identity store.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// InTx runs fn inside one transaction, rolling back on any error. Unique
// constraint violations raised at commit are translated to
// *intake.DuplicateKeyError so commit-time races surface as a conflict kind,
// not a generic fault.
func (s *Store) InTx(ctx context.Context, fn func(tx intake.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return translateUnique(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translateUnique(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// translateUnique maps pg unique_violation (23505) onto the intake taxonomy.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	key := "unique key"
	switch {
	case strings.Contains(pgErr.ConstraintName, "npi"):
		key = "npi"
	case strings.Contains(pgErr.ConstraintName, "mrn"):
		key = "mrn"
	}
	return &intake.DuplicateKeyError{Key: key, Value: pgErr.Detail}
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ProviderByNPI(ctx context.Context, npi string) (*intake.Provider, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, name, npi FROM providers WHERE npi = $1`, npi)
	return scanProvider(row)
}

func (t *pgTx) CreateProvider(ctx context.Context, p *intake.Provider) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO providers (id, name, npi) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.NPI)
	return err
}

func (t *pgTx) UpdateProviderName(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE providers SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &intake.NotFoundError{Resource: "provider", ID: id.String()}
	}
	return nil
}

func (t *pgTx) PatientByMRN(ctx context.Context, mrn string) (*intake.Patient, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, first_name, last_name, mrn, primary_diagnosis,
		       additional_diagnoses, medication_history, records_text, provider_id
		FROM patients WHERE mrn = $1`, mrn)
	return scanPatient(row)
}

func (t *pgTx) CreatePatient(ctx context.Context, p *intake.Patient) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO patients
		(id, first_name, last_name, mrn, primary_diagnosis,
		 additional_diagnoses, medication_history, records_text, provider_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.FirstName, p.LastName, p.MRN, p.PrimaryDiagnosis,
		p.AdditionalDiagnoses, p.MedicationHistory, p.RecordsText, p.ProviderID)
	return err
}

func (t *pgTx) OrderByMedication(ctx context.Context, patientID uuid.UUID, medication string) (*intake.Order, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, patient_id, medication_name, created_at
		FROM orders
		WHERE patient_id = $1 AND lower(medication_name) = lower($2)
		ORDER BY created_at ASC
		LIMIT 1`, patientID, medication)
	return scanOrder(row)
}

func (t *pgTx) CreateOrder(ctx context.Context, o *intake.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, patient_id, medication_name, created_at)
		VALUES ($1, $2, $3, $4)`,
		o.ID, o.PatientID, o.MedicationName, o.CreatedAt)
	return err
}

func (t *pgTx) EnqueueEvent(ctx context.Context, ev *intake.Event) error {
	entry := &OutboxEntry{
		AggregateID:   ev.AggregateID,
		AggregateType: ev.AggregateType,
		EventType:     ev.EventType,
		Payload:       ev.Payload,
		Topic:         eventTopic,
		PartitionKey:  ev.AggregateID,
	}
	return WriteEntry(ctx, t.tx, entry)
}

func (s *Store) ListProviders(ctx context.Context) ([]*intake.Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, npi FROM providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*intake.Provider
	for rows.Next() {
		p := &intake.Provider{}
		if err := rows.Scan(&p.ID, &p.Name, &p.NPI); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListPatients(ctx context.Context) ([]*intake.PatientView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.first_name, p.last_name, p.mrn, p.primary_diagnosis,
		       pr.name, pr.npi, p.provider_id,
		       p.additional_diagnoses, p.medication_history, p.records_text
		FROM patients p
		JOIN providers pr ON pr.id = p.provider_id
		ORDER BY p.last_name, p.first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*intake.PatientView
	for rows.Next() {
		v := &intake.PatientView{}
		err := rows.Scan(&v.ID, &v.FirstName, &v.LastName, &v.MRN, &v.PrimaryDiagnosis,
			&v.ReferringProvider, &v.ProviderNPI, &v.ProviderID,
			&v.AdditionalDiagnoses, &v.MedicationHistory, &v.RecordsText)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context) ([]*intake.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, medication_name, created_at
		FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*intake.Order
	for rows.Next() {
		o := &intake.Order{}
		if err := rows.Scan(&o.ID, &o.PatientID, &o.MedicationName, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) PatientByID(ctx context.Context, id uuid.UUID) (*intake.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, mrn, primary_diagnosis,
		       additional_diagnoses, medication_history, records_text, provider_id
		FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &intake.NotFoundError{Resource: "patient", ID: id.String()}
	}
	return p, nil
}

func (s *Store) ProviderByID(ctx context.Context, id uuid.UUID) (*intake.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, npi FROM providers WHERE id = $1`, id)
	p, err := scanProvider(row)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &intake.NotFoundError{Resource: "provider", ID: id.String()}
	}
	return p, nil
}

func (s *Store) OrderByID(ctx context.Context, id uuid.UUID) (*intake.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, medication_name, created_at
		FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &intake.NotFoundError{Resource: "order", ID: id.String()}
	}
	return o, nil
}

// ProviderByNPI is the read-side lookup used by the provider get-or-create
// endpoint.
func (s *Store) ProviderByNPI(ctx context.Context, npi string) (*intake.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, npi FROM providers WHERE npi = $1`, npi)
	return scanProvider(row)
}

// CreateProvider inserts a provider outside a reconciliation transaction.
func (s *Store) CreateProvider(ctx context.Context, p *intake.Provider) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO providers (id, name, npi) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.NPI)
	return translateUnique(err)
}

// CreateOrder inserts an order outside a reconciliation transaction, for the
// order-only creation path.
func (s *Store) CreateOrder(ctx context.Context, o *intake.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, patient_id, medication_name, created_at)
		VALUES ($1, $2, $3, $4)`,
		o.ID, o.PatientID, o.MedicationName, o.CreatedAt)
	return err
}

// OrderForPatientByMedication is the read-side duplicate probe used by the
// order-only creation path.
func (s *Store) OrderForPatientByMedication(ctx context.Context, patientID uuid.UUID, medication string) (*intake.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, medication_name, created_at
		FROM orders
		WHERE patient_id = $1 AND lower(medication_name) = lower($2)
		ORDER BY created_at ASC
		LIMIT 1`, patientID, medication)
	return scanOrder(row)
}

// SaveCarePlan upserts generated care plan text keyed by order id.
func (s *Store) SaveCarePlan(ctx context.Context, orderID uuid.UUID, text string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO care_plans (order_id, content, generated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (order_id) DO UPDATE
		SET content = EXCLUDED.content, generated_at = now()`,
		orderID, text)
	return err
}

// CarePlanByOrderID returns cached care plan text, or ("", nil) when none was
// generated yet.
func (s *Store) CarePlanByOrderID(ctx context.Context, orderID uuid.UUID) (string, error) {
	var text string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM care_plans WHERE order_id = $1`, orderID).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func scanProvider(row pgx.Row) (*intake.Provider, error) {
	p := &intake.Provider{}
	err := row.Scan(&p.ID, &p.Name, &p.NPI)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanPatient(row pgx.Row) (*intake.Patient, error) {
	p := &intake.Patient{}
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.MRN, &p.PrimaryDiagnosis,
		&p.AdditionalDiagnoses, &p.MedicationHistory, &p.RecordsText, &p.ProviderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanOrder(row pgx.Row) (*intake.Order, error) {
	o := &intake.Order{}
	err := row.Scan(&o.ID, &o.PatientID, &o.MedicationName, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}
