package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// schema is applied idempotently at service start. The unique constraints on
// providers.npi and patients.mrn are the sole serialization between
// concurrent submissions racing on the same identifiers.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id   UUID PRIMARY KEY,
		name TEXT NOT NULL,
		npi  TEXT NOT NULL,
		CONSTRAINT providers_npi_key UNIQUE (npi)
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id                   UUID PRIMARY KEY,
		first_name           TEXT NOT NULL,
		last_name            TEXT NOT NULL,
		mrn                  TEXT NOT NULL,
		primary_diagnosis    TEXT NOT NULL,
		additional_diagnoses TEXT[] NOT NULL DEFAULT '{}',
		medication_history   TEXT[] NOT NULL DEFAULT '{}',
		records_text         TEXT NOT NULL DEFAULT '',
		provider_id          UUID NOT NULL REFERENCES providers(id),
		CONSTRAINT patients_mrn_key UNIQUE (mrn)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              UUID PRIMARY KEY,
		patient_id      UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		medication_name TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_patient_medication_idx
		ON orders (patient_id, lower(medication_name))`,
	`CREATE TABLE IF NOT EXISTS care_plans (
		order_id     UUID PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
		content      TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_id   TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		topic          TEXT NOT NULL,
		partition_key  TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		retry_count    INT NOT NULL DEFAULT 0,
		last_error     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unprocessed_idx
		ON outbox (created_at) WHERE processed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS inbox (
		idempotency_key TEXT NOT NULL,
		handler_name    TEXT NOT NULL,
		status          TEXT NOT NULL,
		payload         JSONB,
		result          JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at      TIMESTAMPTZ,
		PRIMARY KEY (idempotency_key, handler_name)
	)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	logger.Info("schema migrated", zap.Int("statements", len(schema)))
	return nil
}
