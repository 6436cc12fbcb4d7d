package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

const (
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

const (
	outcomeSuccess          = "success"
	outcomeInvalid          = "invalid_target"
	outcomeNotFound         = "not_found"
	outcomeUnauthorized     = "unauthorized"
	outcomeAlreadyFinalized = "already_finalized"
	outcomePersistence      = "persistence_error"
)

// Notifier tells the patient their appointment reached a terminal state.
// A returned error is logged and never undoes the transition.
type Notifier interface {
	AppointmentFinalized(ctx context.Context, a *Appointment) error
}

type Service struct {
	repo     Repository
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Collector
	cfg      config.Config
}

func NewService(repo Repository, notifier Notifier, log *zap.Logger, m *metrics.Collector, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log,
		metrics:  m,
		cfg:      cfg,
	}
}

// Transition moves a Pending appointment owned by doctorID to target.
//
// Failures, checked in this order: ErrAppointmentNotFound, ErrUnauthorized,
// *AlreadyFinalizedError. Store failures come back as *PersistenceError.
// The status change is a conditional update on status = Pending, so of two
// concurrent calls for the same appointment exactly one succeeds and the
// other sees *AlreadyFinalizedError. The patient is notified once, after the
// update is durable.
func (s *Service) Transition(ctx context.Context, id, doctorID uuid.UUID, target AppointmentStatus) (*Appointment, error) {
	return s.transition(ctx, id, &doctorID, target)
}

// AdminCancel cancels any Pending appointment regardless of its doctor.
func (s *Service) AdminCancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, nil, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, doctorID *uuid.UUID, target AppointmentStatus) (*Appointment, error) {
	if !target.IsTerminal() {
		s.observe(target, outcomeInvalid)
		return nil, ErrInvalidTargetStatus
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			s.observe(target, outcomeNotFound)
			return nil, err
		}
		s.observe(target, outcomePersistence)
		return nil, &PersistenceError{Op: "load appointment", Err: err}
	}

	if doctorID != nil && appt.DoctorID != *doctorID {
		s.observe(target, outcomeUnauthorized)
		s.log.Warn("transition refused for foreign appointment",
			zap.String("appointment_id", id.String()),
			zap.String("doctor_id", doctorID.String()),
		)
		return nil, ErrUnauthorized
	}

	if !CanTransition(appt.Status, target) {
		s.observe(target, outcomeAlreadyFinalized)
		return nil, &AlreadyFinalizedError{Status: appt.Status}
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusPending, target)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Another request finalized it between the read and the update.
			return nil, s.lostRace(ctx, id, target)
		}
		s.observe(target, outcomePersistence)
		return nil, &PersistenceError{Op: "update appointment status", Err: err}
	}

	s.observe(target, outcomeSuccess)
	s.log.Info("appointment finalized",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)

	s.logEvent(ctx, updated.ID, eventFor(target), map[string]any{
		"from":      StatusPending,
		"to":        target,
		"by_doctor": doctorID != nil,
	})

	s.notify(ctx, updated)

	return updated, nil
}

func (s *Service) lostRace(ctx context.Context, id uuid.UUID, target AppointmentStatus) error {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			s.observe(target, outcomeNotFound)
			return err
		}
		s.observe(target, outcomePersistence)
		return &PersistenceError{Op: "reload appointment", Err: err}
	}
	s.observe(target, outcomeAlreadyFinalized)
	return &AlreadyFinalizedError{Status: current.Status}
}

// notify makes one synchronous delivery attempt. It is detached from the
// caller's cancellation because the transition is already durable.
func (s *Service) notify(ctx context.Context, a *Appointment) {
	timeout := s.cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.notifier.AppointmentFinalized(notifyCtx, a); err != nil {
		s.log.Error("patient notification failed",
			zap.String("appointment_id", a.ID.String()),
			zap.String("status", string(a.Status)),
			zap.Error(err),
		)
	}
}

func (s *Service) observe(target AppointmentStatus, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.TransitionsTotal.WithLabelValues(string(target), outcome).Inc()
}

func eventFor(target AppointmentStatus) string {
	if target == StatusCompleted {
		return EventAppointmentCompleted
	}
	return EventAppointmentCancelled
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		if s.metrics != nil {
			s.metrics.EventLogFailuresTotal.Inc()
		}
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

// GetAppointment retrieves a single appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get appointment", Err: err}
	}
	return a, nil
}

// ListAppointments is the admin "all appointments" view.
func (s *Service) ListAppointments(ctx context.Context, f Filters) (QueryResult, error) {
	all, err := s.load(ctx, ListQuery{})
	if err != nil {
		return QueryResult{}, err
	}
	return s.query(all, f)
}

// ListDoctorAppointments is ListAppointments restricted to one doctor.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, f Filters) (QueryResult, error) {
	all, err := s.load(ctx, ListQuery{DoctorID: &doctorID})
	if err != nil {
		return QueryResult{}, err
	}
	return s.query(all, f)
}

// Stats is the read-only accessor for the current aggregate statistics.
func (s *Service) Stats(ctx context.Context, f Filters) (Stats, error) {
	res, err := s.ListAppointments(ctx, f)
	if err != nil {
		return Stats{}, err
	}
	return res.Stats, nil
}

type AdminDashboard struct {
	Stats              Stats
	LatestAppointments []Appointment
}

// AdminDashboard reports stats over everything in view plus the newest appointments.
func (s *Service) AdminDashboard(ctx context.Context, f Filters) (AdminDashboard, error) {
	res, err := s.ListAppointments(ctx, f)
	if err != nil {
		return AdminDashboard{}, err
	}
	return AdminDashboard{
		Stats:              res.Stats,
		LatestAppointments: Latest(res.Appointments, s.cfg.DashboardLatestLimit),
	}, nil
}

func (s *Service) DoctorDashboard(ctx context.Context, doctorID uuid.UUID) (DoctorDashboard, error) {
	all, err := s.load(ctx, ListQuery{DoctorID: &doctorID})
	if err != nil {
		return DoctorDashboard{}, err
	}
	return BuildDoctorDashboard(all, s.cfg.DashboardLatestLimit), nil
}

func (s *Service) load(ctx context.Context, q ListQuery) ([]Appointment, error) {
	all, err := s.repo.ListAppointments(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "list appointments", Err: err}
	}
	return all, nil
}

func (s *Service) query(all []Appointment, f Filters) (QueryResult, error) {
	return Query(all, f, OnUnresolvableSlotDate(func(a Appointment, err error) {
		if s.metrics != nil {
			s.metrics.UnresolvableDatesTotal.Inc()
		}
		s.log.Debug("slot date excluded from date filter",
			zap.String("appointment_id", a.ID.String()),
			zap.String("slot_date", a.SlotDate),
			zap.Error(err),
		)
	}))
}
