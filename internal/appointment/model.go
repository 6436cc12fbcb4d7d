package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "Pending"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition is the whole state machine:
//
//	Pending → Completed
//	Pending → Cancelled
func CanTransition(from, to AppointmentStatus) bool {
	return from == StatusPending && to.IsTerminal()
}

type Doctor struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Image      string
	Speciality string
	Fee        float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Patient struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Image       string
	DateOfBirth string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PatientSnapshot is the patient display data copied onto the appointment at booking time.
type PatientSnapshot struct {
	Name        string
	Email       string
	Image       string
	DateOfBirth string
}

// DoctorSnapshot is the doctor display data copied onto the appointment at booking time.
type DoctorSnapshot struct {
	Name  string
	Image string
	Fee   float64
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID

	Patient PatientSnapshot
	Doctor  DoctorSnapshot

	// SlotDate is kept exactly as written by the booking surface.
	SlotDate string
	SlotTime string

	Amount  float64
	Payment bool
	Status  AppointmentStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cancelled mirrors the legacy boolean. It is derived from Status and never stored on its own.
func (a *Appointment) Cancelled() bool {
	return a.Status == StatusCancelled
}

// IsCompleted mirrors the legacy boolean. It is derived from Status and never stored on its own.
func (a *Appointment) IsCompleted() bool {
	return a.Status == StatusCompleted
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListQuery narrows ListAppointments. A nil DoctorID lists every appointment.
type ListQuery struct {
	DoctorID *uuid.UUID
}
