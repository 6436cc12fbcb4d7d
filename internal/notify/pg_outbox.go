package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgOutbox struct {
	pool *pgxpool.Pool
}

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

const notificationColumns = `
	id, appointment_id, kind, recipient, subject, body,
	status, attempts, last_error, created_at, updated_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.AppointmentID,
		&n.Kind,
		&n.Recipient,
		&n.Subject,
		&n.Body,
		&n.Status,
		&n.Attempts,
		&n.LastError,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (o *PgOutbox) Enqueue(ctx context.Context, n *Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	err := o.pool.QueryRow(ctx, `
		INSERT INTO notifications (
			id, appointment_id, kind, recipient, subject, body,
			status, attempts, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, '', now(), now())
		ON CONFLICT (appointment_id, kind) DO NOTHING
		RETURNING created_at, updated_at
	`, n.ID, n.AppointmentID, n.Kind, n.Recipient, n.Subject, n.Body, StatusPending).
		Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("enqueue notification: %w", err)
	}

	n.Status = StatusPending
	n.Attempts = 0
	return true, nil
}

func (o *PgOutbox) MarkSent(ctx context.Context, id uuid.UUID) error {
	return o.finish(ctx, id, StatusSent, "")
}

func (o *PgOutbox) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return o.finish(ctx, id, StatusFailed, reason)
}

func (o *PgOutbox) finish(ctx context.Context, id uuid.UUID, status Status, reason string) error {
	tag, err := o.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2,
		    attempts = attempts + 1,
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, status, reason)
	if err != nil {
		return fmt.Errorf("mark notification %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (o *PgOutbox) ClaimRetryable(ctx context.Context, maxAttempts, limit int, staleAfter time.Duration) ([]Notification, error) {
	rows, err := o.pool.Query(ctx, `
		UPDATE notifications
		SET status = 'sending',
		    updated_at = now()
		WHERE id IN (
			SELECT id
			FROM notifications
			WHERE attempts < $1
			  AND (
			    status = 'failed'
			    OR (status IN ('pending', 'sending') AND updated_at < now() - make_interval(secs => $3))
			  )
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+notificationColumns,
		maxAttempts, limit, staleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
