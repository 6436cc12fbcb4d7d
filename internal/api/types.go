package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/calendar"
)

type PatientResponse struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Image       string `json:"image,omitempty"`
	DateOfBirth string `json:"dob,omitempty"`
}

type DoctorResponse struct {
	Name  string  `json:"name"`
	Image string  `json:"image,omitempty"`
	Fee   float64 `json:"fee"`
}

type AppointmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	DoctorID    uuid.UUID       `json:"doctor_id"`
	Patient     PatientResponse `json:"patient"`
	Doctor      DoctorResponse  `json:"doctor"`
	SlotDate    string          `json:"slot_date"`
	SlotDay     string          `json:"slot_day,omitempty"`
	SlotTime    string          `json:"slot_time"`
	Amount      float64         `json:"amount"`
	Payment     bool            `json:"payment"`
	Status      string          `json:"status"`
	Cancelled   bool            `json:"cancelled"`
	IsCompleted bool            `json:"is_completed"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type StatsResponse struct {
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Pending       int     `json:"pending"`
	Cancelled     int     `json:"cancelled"`
	TotalEarnings float64 `json:"total_earnings"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Stats        StatsResponse         `json:"stats"`
}

type AdminDashboardResponse struct {
	Stats              StatsResponse         `json:"stats"`
	LatestAppointments []AppointmentResponse `json:"latest_appointments"`
}

type DoctorDashboardResponse struct {
	Earnings           float64               `json:"earnings"`
	Appointments       int                   `json:"appointments"`
	Patients           int                   `json:"patients"`
	LatestAppointments []AppointmentResponse `json:"latest_appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Status is the appointment's current status on already_finalized.
	Status string `json:"status,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Patient: PatientResponse{
			Name:        a.Patient.Name,
			Email:       a.Patient.Email,
			Image:       a.Patient.Image,
			DateOfBirth: a.Patient.DateOfBirth,
		},
		Doctor: DoctorResponse{
			Name:  a.Doctor.Name,
			Image: a.Doctor.Image,
			Fee:   a.Doctor.Fee,
		},
		SlotDate:    a.SlotDate,
		SlotTime:    a.SlotTime,
		Amount:      a.Amount,
		Payment:     a.Payment,
		Status:      string(a.Status),
		Cancelled:   a.Cancelled(),
		IsCompleted: a.IsCompleted(),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if d, err := calendar.Resolve(a.SlotDate); err == nil {
		resp.SlotDay = d.String()
	}
	return resp
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

func toStatsResponse(s appointment.Stats) StatsResponse {
	return StatsResponse{
		Total:         s.Total,
		Completed:     s.Completed,
		Pending:       s.Pending,
		Cancelled:     s.Cancelled,
		TotalEarnings: s.TotalEarnings,
	}
}
