package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, doctor_id,
	patient_name, patient_email, patient_image, patient_dob,
	doctor_name, doctor_image, doctor_fee,
	slot_date, slot_time, amount, payment, status,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Patient.Name,
		&a.Patient.Email,
		&a.Patient.Image,
		&a.Patient.DateOfBirth,
		&a.Doctor.Name,
		&a.Doctor.Image,
		&a.Doctor.Fee,
		&a.SlotDate,
		&a.SlotTime,
		&a.Amount,
		&a.Payment,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, q ListQuery) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if q.DoctorID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE doctor_id = $1
			ORDER BY created_at ASC, id ASC
		`, *q.DoctorID)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			ORDER BY created_at ASC, id ASC
		`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateAppointment inserts a Pending appointment. Booking itself belongs to another
// surface; this exists for seeding and fixtures.
func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id,
			patient_name, patient_email, patient_image, patient_dob,
			doctor_name, doctor_image, doctor_fee,
			slot_date, slot_time, amount, payment, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID,
		a.Patient.Name, a.Patient.Email, a.Patient.Image, a.Patient.DateOfBirth,
		a.Doctor.Name, a.Doctor.Image, a.Doctor.Fee,
		a.SlotDate, a.SlotTime, a.Amount, a.Payment, a.Status,
	)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
