package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/calendar"
)

func filtersFromQuery(r *http.Request) appointment.Filters {
	q := r.URL.Query()
	return appointment.Filters{
		DoctorName: q.Get("doctor"),
		Date:       q.Get("date"),
	}
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func listAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ListAppointments(r.Context(), filtersFromQuery(r))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Appointments: toAppointmentList(res.Appointments),
			Stats:        toStatsResponse(res.Stats),
		})
	}
}

func getAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func adminCancelHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.AdminCancel(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func adminDashboardHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := svc.AdminDashboard(r.Context(), filtersFromQuery(r))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, AdminDashboardResponse{
			Stats:              toStatsResponse(dash.Stats),
			LatestAppointments: toAppointmentList(dash.LatestAppointments),
		})
	}
}

// doctorAppointmentsHandler accepts only a date filter; the list is already
// restricted to the calling doctor.
func doctorAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())

		f := appointment.Filters{Date: r.URL.Query().Get("date")}
		res, err := svc.ListDoctorAppointments(r.Context(), claims.Subject, f)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Appointments: toAppointmentList(res.Appointments),
			Stats:        toStatsResponse(res.Stats),
		})
	}
}

func doctorTransitionHandler(svc AppointmentService, log *zap.Logger, target appointment.AppointmentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}
		claims := ClaimsFromContext(r.Context())

		appt, err := svc.Transition(r.Context(), id, claims.Subject, target)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func doctorDashboardHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())

		dash, err := svc.DoctorDashboard(r.Context(), claims.Subject)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, DoctorDashboardResponse{
			Earnings:           dash.Earnings,
			Appointments:       dash.Appointments,
			Patients:           dash.Patients,
			LatestAppointments: toAppointmentList(dash.LatestAppointments),
		})
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var finalized *appointment.AlreadyFinalizedError

	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.As(err, &finalized):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "already_finalized",
			Details: err.Error(),
			Status:  string(finalized.Status),
		})
	case errors.Is(err, appointment.ErrInvalidTargetStatus):
		writeError(w, http.StatusBadRequest, "invalid_target_status", err.Error())
	case errors.Is(err, calendar.ErrUnresolvable):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, appointment.ErrPersistence):
		log.Error("appointment store failure",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry")
	default:
		log.Error("unhandled service error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
