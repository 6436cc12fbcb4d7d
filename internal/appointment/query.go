package appointment

import (
	"strings"

	"github.com/hackgods/clinic-appointments/internal/calendar"
)

// Filters are optional; an empty field is treated as absent.
type Filters struct {
	DoctorName string
	Date       string
}

func (f Filters) IsEmpty() bool {
	return strings.TrimSpace(f.DoctorName) == "" && strings.TrimSpace(f.Date) == ""
}

type Stats struct {
	Total         int
	Completed     int
	Pending       int
	Cancelled     int
	TotalEarnings float64
}

type QueryResult struct {
	Appointments []Appointment
	Stats        Stats
}

// QueryOption configures a single Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	onUnresolvable func(a Appointment, err error)
}

// OnUnresolvableSlotDate registers a hook called for every appointment dropped
// because its slot date could not be resolved.
func OnUnresolvableSlotDate(fn func(a Appointment, err error)) QueryOption {
	return func(o *queryOptions) {
		o.onUnresolvable = fn
	}
}

// Query filters appointments and computes stats over what remains in view.
// The input slice and its elements are never modified. The only error is an
// unresolvable f.Date.
func Query(appointments []Appointment, f Filters, opts ...QueryOption) (QueryResult, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		target    calendar.Date
		hasTarget bool
	)
	if raw := strings.TrimSpace(f.Date); raw != "" {
		d, err := calendar.Resolve(raw)
		if err != nil {
			return QueryResult{}, err
		}
		target, hasTarget = d, true
	}
	needle := strings.ToLower(strings.TrimSpace(f.DoctorName))

	view := make([]Appointment, 0, len(appointments))
	for _, a := range appointments {
		if needle != "" && !strings.Contains(strings.ToLower(a.Doctor.Name), needle) {
			continue
		}
		if hasTarget {
			d, err := calendar.Resolve(a.SlotDate)
			if err != nil {
				if o.onUnresolvable != nil {
					o.onUnresolvable(a, err)
				}
				continue
			}
			if !d.Equal(target) {
				continue
			}
		}
		view = append(view, a)
	}

	return QueryResult{Appointments: view, Stats: ComputeStats(view)}, nil
}

// ComputeStats counts appointments per state. Completed+Pending+Cancelled always
// equals Total and only Completed appointments contribute to TotalEarnings.
func ComputeStats(appointments []Appointment) Stats {
	var s Stats
	for i := range appointments {
		a := &appointments[i]
		s.Total++
		switch {
		case a.IsCompleted():
			s.Completed++
			s.TotalEarnings += a.Amount
		case a.Cancelled():
			s.Cancelled++
		default:
			s.Pending++
		}
	}
	return s
}

// DoctorDashboard is the doctor panel summary.
type DoctorDashboard struct {
	Earnings           float64
	Appointments       int
	Patients           int
	LatestAppointments []Appointment
}

// BuildDoctorDashboard sums earnings over appointments that are completed or
// already paid, counts distinct patients and lists appointments newest first.
func BuildDoctorDashboard(appointments []Appointment, latestLimit int) DoctorDashboard {
	dash := DoctorDashboard{Appointments: len(appointments)}

	patients := make(map[string]struct{}, len(appointments))
	for i := range appointments {
		a := &appointments[i]
		if a.IsCompleted() || a.Payment {
			dash.Earnings += a.Amount
		}
		patients[a.PatientID.String()] = struct{}{}
	}
	dash.Patients = len(patients)
	dash.LatestAppointments = Latest(appointments, latestLimit)

	return dash
}

// Latest returns up to limit appointments in reverse order of the input
// (input is oldest first). limit <= 0 means no limit.
func Latest(appointments []Appointment, limit int) []Appointment {
	n := len(appointments)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Appointment, 0, n)
	for i := len(appointments) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, appointments[i])
	}
	return out
}
