package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

type memOutbox struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*Notification
	keys   map[string]uuid.UUID
	enqErr error
}

func newMemOutbox() *memOutbox {
	return &memOutbox{
		rows: make(map[uuid.UUID]*Notification),
		keys: make(map[string]uuid.UUID),
	}
}

func (o *memOutbox) Enqueue(_ context.Context, n *Notification) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enqErr != nil {
		return false, o.enqErr
	}
	key := n.AppointmentID.String() + "/" + string(n.Kind)
	if _, ok := o.keys[key]; ok {
		return false, nil
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.Status = StatusPending
	row := *n
	o.rows[n.ID] = &row
	o.keys[key] = n.ID
	return true, nil
}

func (o *memOutbox) MarkSent(_ context.Context, id uuid.UUID) error {
	return o.finish(id, StatusSent, "")
}

func (o *memOutbox) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return o.finish(id, StatusFailed, reason)
}

func (o *memOutbox) finish(id uuid.UUID, s Status, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok {
		return ErrNotificationNotFound
	}
	row.Status = s
	row.Attempts++
	row.LastError = reason
	return nil
}

func (o *memOutbox) ClaimRetryable(_ context.Context, maxAttempts, limit int, _ time.Duration) ([]Notification, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Notification
	for _, row := range o.rows {
		if len(out) >= limit {
			break
		}
		if row.Status == StatusFailed && row.Attempts < maxAttempts {
			row.Status = StatusSending
			out = append(out, *row)
		}
	}
	return out, nil
}

func (o *memOutbox) only(t *testing.T) *Notification {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.rows, 1)
	for _, row := range o.rows {
		return row
	}
	return nil
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func newTestDispatcher(o Outbox, m Mailer) *Dispatcher {
	col := metrics.NewCollector("test", prometheus.NewRegistry())
	return NewDispatcher(o, m, zap.NewNop(), col, DispatcherConfig{MaxAttempts: 3, BatchSize: 10})
}

func finalized(status appointment.AppointmentStatus) *appointment.Appointment {
	return &appointment.Appointment{
		ID:       uuid.New(),
		Patient:  appointment.PatientSnapshot{Name: "Ana Ortiz", Email: "ana@example.com"},
		Doctor:   appointment.DoctorSnapshot{Name: "Dr. Richard James"},
		SlotDate: "23_5_2025",
		SlotTime: "10:00 AM",
		Status:   status,
	}
}

func TestAppointmentFinalized_SendsOnce(t *testing.T) {
	outbox := newMemOutbox()
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, "ana@example.com", "Appointment Completed", mock.AnythingOfType("string")).Return(nil)
	d := newTestDispatcher(outbox, mailer)

	a := finalized(appointment.StatusCompleted)
	require.NoError(t, d.AppointmentFinalized(context.Background(), a))
	require.NoError(t, d.AppointmentFinalized(context.Background(), a))

	mailer.AssertNumberOfCalls(t, "Send", 1)
	row := outbox.only(t)
	assert.Equal(t, StatusSent, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Equal(t, KindCompleted, row.Kind)
}

func TestAppointmentFinalized_SkipsMissingEmail(t *testing.T) {
	outbox := newMemOutbox()
	mailer := new(mockMailer)
	d := newTestDispatcher(outbox, mailer)

	a := finalized(appointment.StatusCancelled)
	a.Patient.Email = "  "

	require.NoError(t, d.AppointmentFinalized(context.Background(), a))
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, outbox.rows)
}

func TestAppointmentFinalized_RejectsPending(t *testing.T) {
	d := newTestDispatcher(newMemOutbox(), new(mockMailer))

	err := d.AppointmentFinalized(context.Background(), finalized(appointment.StatusPending))
	assert.Error(t, err)
}

func TestAppointmentFinalized_SendFailureIsRecorded(t *testing.T) {
	outbox := newMemOutbox()
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("421 try again later"))
	d := newTestDispatcher(outbox, mailer)

	err := d.AppointmentFinalized(context.Background(), finalized(appointment.StatusCancelled))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421")

	row := outbox.only(t)
	assert.Equal(t, StatusFailed, row.Status)
	assert.Equal(t, "421 try again later", row.LastError)
}

func TestAppointmentFinalized_EnqueueFailure(t *testing.T) {
	outbox := newMemOutbox()
	outbox.enqErr = errors.New("db down")
	mailer := new(mockMailer)
	d := newTestDispatcher(outbox, mailer)

	err := d.AppointmentFinalized(context.Background(), finalized(appointment.StatusCompleted))
	require.Error(t, err)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryFailed(t *testing.T) {
	outbox := newMemOutbox()
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d := newTestDispatcher(outbox, mailer)

	require.Error(t, d.AppointmentFinalized(context.Background(), finalized(appointment.StatusCancelled)))

	report, err := d.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetryReport{Claimed: 1, Sent: 1}, report)

	row := outbox.only(t)
	assert.Equal(t, StatusSent, row.Status)
	assert.Equal(t, 2, row.Attempts)

	report, err = d.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Claimed)
}

func TestRetryFailed_StopsAtMaxAttempts(t *testing.T) {
	outbox := newMemOutbox()
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("mailbox unavailable"))
	d := newTestDispatcher(outbox, mailer)

	_ = d.AppointmentFinalized(context.Background(), finalized(appointment.StatusCompleted))
	for i := 0; i < 5; i++ {
		_, err := d.RetryFailed(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, outbox.only(t).Attempts)
	mailer.AssertNumberOfCalls(t, "Send", 3)
}

func TestRender(t *testing.T) {
	kind, msg, err := Render(finalized(appointment.StatusCancelled))
	require.NoError(t, err)

	assert.Equal(t, KindCancelled, kind)
	assert.Equal(t, "Appointment Cancelled", msg.Subject)
	assert.Contains(t, msg.Body, "Dear Ana Ortiz")
	assert.Contains(t, msg.Body, "Friday, 23 May 2025")
	assert.Contains(t, msg.Body, "10:00 AM")
	assert.Contains(t, msg.Body, "cancelled")
}

func TestRender_KeepsUnresolvableDateText(t *testing.T) {
	a := finalized(appointment.StatusCompleted)
	a.SlotDate = "sometime soon"

	_, msg, err := Render(a)
	require.NoError(t, err)
	assert.Equal(t, "Appointment Completed", msg.Subject)
	assert.Contains(t, msg.Body, "sometime soon")
}
