package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// statements are idempotent and run in order on every start.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS doctors (
		id          uuid PRIMARY KEY,
		name        text NOT NULL,
		email       text NOT NULL UNIQUE,
		image       text NOT NULL DEFAULT '',
		speciality  text NOT NULL DEFAULT '',
		fee         double precision NOT NULL DEFAULT 0,
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS patients (
		id          uuid PRIMARY KEY,
		name        text NOT NULL,
		email       text NOT NULL DEFAULT '',
		image       text NOT NULL DEFAULT '',
		dob         text NOT NULL DEFAULT '',
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,

	// cancelled and is_completed exist for legacy readers and are derived
	// from status, so they can never disagree with it or both be true.
	`CREATE TABLE IF NOT EXISTS appointments (
		id             uuid PRIMARY KEY,
		patient_id     uuid NOT NULL REFERENCES patients(id),
		doctor_id      uuid NOT NULL REFERENCES doctors(id),
		patient_name   text NOT NULL DEFAULT '',
		patient_email  text NOT NULL DEFAULT '',
		patient_image  text NOT NULL DEFAULT '',
		patient_dob    text NOT NULL DEFAULT '',
		doctor_name    text NOT NULL DEFAULT '',
		doctor_image   text NOT NULL DEFAULT '',
		doctor_fee     double precision NOT NULL DEFAULT 0,
		slot_date      text NOT NULL,
		slot_time      text NOT NULL,
		amount         double precision NOT NULL DEFAULT 0,
		payment        boolean NOT NULL DEFAULT false,
		status         text NOT NULL DEFAULT 'Pending'
		               CHECK (status IN ('Pending', 'Completed', 'Cancelled')),
		cancelled      boolean GENERATED ALWAYS AS (status = 'Cancelled') STORED,
		is_completed   boolean GENERATED ALWAYS AS (status = 'Completed') STORED,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS appointments_doctor_created_idx
		ON appointments (doctor_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS appointments_created_idx
		ON appointments (created_at, id)`,

	`CREATE TABLE IF NOT EXISTS event_logs (
		id              bigserial PRIMARY KEY,
		event_type      text NOT NULL,
		appointment_id  uuid REFERENCES appointments(id),
		payload         jsonb,
		created_at      timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id              uuid PRIMARY KEY,
		appointment_id  uuid NOT NULL REFERENCES appointments(id),
		kind            text NOT NULL,
		recipient       text NOT NULL,
		subject         text NOT NULL,
		body            text NOT NULL,
		status          text NOT NULL DEFAULT 'pending',
		attempts        integer NOT NULL DEFAULT 0,
		last_error      text NOT NULL DEFAULT '',
		created_at      timestamptz NOT NULL DEFAULT now(),
		updated_at      timestamptz NOT NULL DEFAULT now(),
		UNIQUE (appointment_id, kind)
	)`,

	`CREATE INDEX IF NOT EXISTS notifications_retry_idx
		ON notifications (status, updated_at)`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
