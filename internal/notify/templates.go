package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/calendar"
)

type Kind string

const (
	KindCompleted Kind = "appointment_completed"
	KindCancelled Kind = "appointment_cancelled"
)

// KindFor maps a terminal status to its notification kind.
func KindFor(s appointment.AppointmentStatus) (Kind, error) {
	switch s {
	case appointment.StatusCompleted:
		return KindCompleted, nil
	case appointment.StatusCancelled:
		return KindCancelled, nil
	}
	return "", fmt.Errorf("no notification for status %q", s)
}

type Message struct {
	Subject string
	Body    string
}

var subjects = map[Kind]string{
	KindCompleted: "Appointment Completed",
	KindCancelled: "Appointment Cancelled",
}

var bodies = template.Must(template.New("bodies").Parse(`
{{- define "appointment_completed" -}}
Dear {{.Patient}},

Thank you for visiting us today. Your appointment with {{.Doctor}} on {{.Date}} at {{.Time}} has been completed.
Please follow the recommendations discussed during your visit. If you have questions or need a follow-up, contact our office.

Wishing you good health.
{{- end}}
{{- define "appointment_cancelled" -}}
Dear {{.Patient}},

We are sorry to let you know that your appointment with {{.Doctor}} on {{.Date}} at {{.Time}} has been cancelled.
Please contact us to reschedule at a time that suits you.

Thank you for your understanding.
{{- end}}
`))

type bodyData struct {
	Patient string
	Doctor  string
	Date    string
	Time    string
}

// Render builds the patient message for an appointment in a terminal state.
func Render(a *appointment.Appointment) (Kind, Message, error) {
	kind, err := KindFor(a.Status)
	if err != nil {
		return "", Message{}, err
	}

	data := bodyData{
		Patient: a.Patient.Name,
		Doctor:  a.Doctor.Name,
		Date:    displayDate(a.SlotDate),
		Time:    a.SlotTime,
	}
	if data.Patient == "" {
		data.Patient = "Patient"
	}
	if data.Doctor == "" {
		data.Doctor = "your doctor"
	}

	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, string(kind), data); err != nil {
		return "", Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return kind, Message{Subject: subjects[kind], Body: buf.String()}, nil
}

// displayDate prints the slot day in long form, or the stored text as-is
// when it does not resolve.
func displayDate(slot string) string {
	d, err := calendar.Resolve(slot)
	if err != nil {
		return slot
	}
	return d.Time().Format("Monday, 2 January 2006")
}
