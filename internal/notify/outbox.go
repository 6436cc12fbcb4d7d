package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotificationNotFound = errors.New("notification not found")

type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Notification struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Kind          Kind
	Recipient     string
	Subject       string
	Body          string
	Status        Status
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Outbox records every notification before it is sent. There is at most one
// row per (appointment, kind).
type Outbox interface {
	// Enqueue stores n as pending. inserted is false when a row for the same
	// appointment and kind already exists; n is left untouched in that case.
	Enqueue(ctx context.Context, n *Notification) (inserted bool, err error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// ClaimRetryable moves up to limit failed (or stale in-flight) rows with
	// fewer than maxAttempts attempts to sending and returns them.
	ClaimRetryable(ctx context.Context, maxAttempts, limit int, staleAfter time.Duration) ([]Notification, error)
}
