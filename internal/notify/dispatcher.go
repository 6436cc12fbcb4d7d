package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

const (
	outcomeSent      = "sent"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped_no_email"
	outcomeDuplicate = "duplicate"
	outcomeRetried   = "retried"
)

type DispatcherConfig struct {
	MaxAttempts int
	BatchSize   int
	// StaleAfter is how long a pending or sending row may sit before the
	// retry sweep treats its sender as dead.
	StaleAfter time.Duration
}

// Dispatcher sends the patient emails that follow a finalized appointment.
// It implements appointment.Notifier.
type Dispatcher struct {
	outbox  Outbox
	mailer  Mailer
	log     *zap.Logger
	metrics *metrics.Collector
	cfg     DispatcherConfig
}

var _ appointment.Notifier = (*Dispatcher)(nil)

func NewDispatcher(outbox Outbox, mailer Mailer, log *zap.Logger, m *metrics.Collector, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &Dispatcher{
		outbox:  outbox,
		mailer:  mailer,
		log:     log,
		metrics: m,
		cfg:     cfg,
	}
}

// AppointmentFinalized records the notification and makes the first
// delivery attempt. Patients without an email are skipped. A second call for
// the same appointment and outcome sends nothing.
func (d *Dispatcher) AppointmentFinalized(ctx context.Context, a *appointment.Appointment) error {
	kind, msg, err := Render(a)
	if err != nil {
		return err
	}

	recipient := strings.TrimSpace(a.Patient.Email)
	if recipient == "" {
		d.count(kind, outcomeSkipped)
		d.log.Debug("patient has no email, skipping notification",
			zap.String("appointment_id", a.ID.String()),
		)
		return nil
	}

	n := &Notification{
		AppointmentID: a.ID,
		Kind:          kind,
		Recipient:     recipient,
		Subject:       msg.Subject,
		Body:          msg.Body,
	}

	inserted, err := d.outbox.Enqueue(ctx, n)
	if err != nil {
		d.count(kind, outcomeFailed)
		return err
	}
	if !inserted {
		d.count(kind, outcomeDuplicate)
		d.log.Info("notification already recorded",
			zap.String("appointment_id", a.ID.String()),
			zap.String("kind", string(kind)),
		)
		return nil
	}

	return d.deliver(ctx, n, outcomeSent)
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification, successOutcome string) error {
	if err := d.mailer.Send(ctx, n.Recipient, n.Subject, n.Body); err != nil {
		d.count(n.Kind, outcomeFailed)
		// The row is recorded even if the caller's context is gone.
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if merr := d.outbox.MarkFailed(markCtx, n.ID, err.Error()); merr != nil {
			d.log.Error("failed to record notification failure",
				zap.String("notification_id", n.ID.String()),
				zap.Error(merr),
			)
		}
		return fmt.Errorf("send %s for appointment %s: %w", n.Kind, n.AppointmentID, err)
	}

	d.count(n.Kind, successOutcome)
	if err := d.outbox.MarkSent(ctx, n.ID); err != nil {
		d.log.Warn("notification sent but not marked",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

type RetryReport struct {
	Claimed int
	Sent    int
	Failed  int
}

// RetryFailed re-sends one batch of notifications whose earlier attempts
// failed or never finished.
func (d *Dispatcher) RetryFailed(ctx context.Context) (RetryReport, error) {
	var report RetryReport

	batch, err := d.outbox.ClaimRetryable(ctx, d.cfg.MaxAttempts, d.cfg.BatchSize, d.cfg.StaleAfter)
	if err != nil {
		return report, err
	}
	report.Claimed = len(batch)

	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		n := &batch[i]
		if err := d.deliver(ctx, n, outcomeRetried); err != nil {
			report.Failed++
			d.log.Warn("notification retry failed",
				zap.String("notification_id", n.ID.String()),
				zap.Int("attempt", n.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		report.Sent++
	}

	return report, nil
}

func (d *Dispatcher) count(kind Kind, outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.NotificationsTotal.WithLabelValues(string(kind), outcome).Inc()
}
