package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/calendar"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Transition(ctx context.Context, id, doctorID uuid.UUID, target appointment.AppointmentStatus) (*appointment.Appointment, error) {
	args := m.Called(ctx, id, doctorID, target)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *mockService) AdminCancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *mockService) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *mockService) ListAppointments(ctx context.Context, f appointment.Filters) (appointment.QueryResult, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(appointment.QueryResult), args.Error(1)
}

func (m *mockService) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, f appointment.Filters) (appointment.QueryResult, error) {
	args := m.Called(ctx, doctorID, f)
	return args.Get(0).(appointment.QueryResult), args.Error(1)
}

func (m *mockService) AdminDashboard(ctx context.Context, f appointment.Filters) (appointment.AdminDashboard, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(appointment.AdminDashboard), args.Error(1)
}

func (m *mockService) DoctorDashboard(ctx context.Context, doctorID uuid.UUID) (appointment.DoctorDashboard, error) {
	args := m.Called(ctx, doctorID)
	return args.Get(0).(appointment.DoctorDashboard), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func pingOK(context.Context) error { return nil }

type testServer struct {
	handler http.Handler
	svc     *mockService
	tokens  *auth.Manager
}

func newTestServer(t *testing.T, pg, rd Pinger) *testServer {
	t.Helper()
	if pg == nil {
		pg = pingFunc(pingOK)
	}
	if rd == nil {
		rd = pingFunc(pingOK)
	}

	reg := prometheus.NewRegistry()
	tokens := auth.NewManager("test-secret", "clinic")
	svc := new(mockService)

	h := NewRouter(RouterConfig{
		Service:  svc,
		Verifier: tokens,
		Logger:   zap.NewNop(),
		Metrics:  metrics.NewCollector("test", reg),
		Gatherer: reg,
		Postgres: pg,
		Redis:    rd,
		Env:      "test",
		Version:  "v0.0.0",
	})

	return &testServer{handler: h, svc: svc, tokens: tokens}
}

func (s *testServer) token(t *testing.T, subject uuid.UUID, role auth.Role) string {
	t.Helper()
	tok, err := s.tokens.Sign(auth.Claims{Subject: subject, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sampleAppointment(doctorID uuid.UUID, status appointment.AppointmentStatus) *appointment.Appointment {
	return &appointment.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Patient:   appointment.PatientSnapshot{Name: "Ana Ortiz", Email: "ana@example.com"},
		Doctor:    appointment.DoctorSnapshot{Name: "Dr. Richard James", Fee: 50},
		SlotDate:  "23_5_2025",
		SlotTime:  "10:00 AM",
		Amount:    50,
		Status:    status,
	}
}

func TestAdminList_PassesFiltersAndRendersStats(t *testing.T) {
	s := newTestServer(t, nil, nil)
	a := sampleAppointment(uuid.New(), appointment.StatusCompleted)

	s.svc.On("ListAppointments", mock.Anything, appointment.Filters{DoctorName: "james", Date: "2025-05-23"}).
		Return(appointment.QueryResult{
			Appointments: []appointment.Appointment{*a},
			Stats:        appointment.Stats{Total: 1, Completed: 1, TotalEarnings: 50},
		}, nil)

	rec := s.do(http.MethodGet, "/admin/appointments?doctor=james&date=2025-05-23", s.token(t, uuid.New(), auth.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[AppointmentListResponse](t, rec)
	require.Len(t, body.Appointments, 1)
	got := body.Appointments[0]
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "2025-05-23", got.SlotDay)
	assert.Equal(t, "23_5_2025", got.SlotDate)
	assert.True(t, got.IsCompleted)
	assert.False(t, got.Cancelled)
	assert.Equal(t, StatsResponse{Total: 1, Completed: 1, TotalEarnings: 50}, body.Stats)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/admin/appointments", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", decode[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodGet, "/admin/appointments", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/admin/dashboard", s.token(t, uuid.New(), auth.RoleDoctor))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/doctor/dashboard", s.token(t, uuid.New(), auth.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.svc.AssertNotCalled(t, "ListAppointments", mock.Anything, mock.Anything)
}

func TestDoctorComplete_UsesTokenSubject(t *testing.T) {
	s := newTestServer(t, nil, nil)
	doctorID := uuid.New()
	a := sampleAppointment(doctorID, appointment.StatusCompleted)

	s.svc.On("Transition", mock.Anything, a.ID, doctorID, appointment.StatusCompleted).Return(a, nil)

	rec := s.do(http.MethodPost, "/doctor/appointments/"+a.ID.String()+"/complete", s.token(t, doctorID, auth.RoleDoctor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "Completed", body.Status)
	s.svc.AssertExpectations(t)
}

func TestDoctorCancel_InvalidID(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodPost, "/doctor/appointments/42/cancel", s.token(t, uuid.New(), auth.RoleDoctor))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_id", decode[ErrorResponse](t, rec).Error)
}

func TestTransitionErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"foreign", appointment.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"finalized", &appointment.AlreadyFinalizedError{Status: appointment.StatusCancelled}, http.StatusConflict, "already_finalized"},
		{"store", &appointment.PersistenceError{Op: "update", Err: errors.New("conn reset")}, http.StatusServiceUnavailable, "store_unavailable"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)
			doctorID := uuid.New()
			id := uuid.New()
			s.svc.On("Transition", mock.Anything, id, doctorID, appointment.StatusCancelled).Return(nil, tc.err)

			rec := s.do(http.MethodPost, "/doctor/appointments/"+id.String()+"/cancel", s.token(t, doctorID, auth.RoleDoctor))
			assert.Equal(t, tc.wantStatus, rec.Code)

			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, tc.wantCode, body.Error)

			switch tc.wantStatus {
			case http.StatusConflict:
				assert.Equal(t, "Cancelled", body.Status)
			case http.StatusServiceUnavailable:
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
				assert.NotContains(t, body.Details, "conn reset")
			}
		})
	}
}

func TestAdminCancel(t *testing.T) {
	s := newTestServer(t, nil, nil)
	a := sampleAppointment(uuid.New(), appointment.StatusCancelled)
	s.svc.On("AdminCancel", mock.Anything, a.ID).Return(a, nil)

	rec := s.do(http.MethodPost, "/admin/appointments/"+a.ID.String()+"/cancel", s.token(t, uuid.New(), auth.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[AppointmentResponse](t, rec).Cancelled)
}

func TestAdminList_UnresolvableFilterDate(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, dateErr := calendar.Resolve("31_2_2025")
	require.Error(t, dateErr)

	s.svc.On("ListAppointments", mock.Anything, mock.Anything).Return(appointment.QueryResult{}, dateErr)

	rec := s.do(http.MethodGet, "/admin/appointments?date=31_2_2025", s.token(t, uuid.New(), auth.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", decode[ErrorResponse](t, rec).Error)
}

func TestGetAppointment(t *testing.T) {
	s := newTestServer(t, nil, nil)
	a := sampleAppointment(uuid.New(), appointment.StatusPending)
	s.svc.On("GetAppointment", mock.Anything, a.ID).Return(a, nil)

	rec := s.do(http.MethodGet, "/admin/appointments/"+a.ID.String(), s.token(t, uuid.New(), auth.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "Pending", body.Status)
	assert.False(t, body.Cancelled || body.IsCompleted)
}

func TestDashboards(t *testing.T) {
	s := newTestServer(t, nil, nil)
	doctorID := uuid.New()
	a := sampleAppointment(doctorID, appointment.StatusCompleted)

	s.svc.On("AdminDashboard", mock.Anything, appointment.Filters{}).Return(appointment.AdminDashboard{
		Stats:              appointment.Stats{Total: 1, Completed: 1, TotalEarnings: 50},
		LatestAppointments: []appointment.Appointment{*a},
	}, nil)
	s.svc.On("DoctorDashboard", mock.Anything, doctorID).Return(appointment.DoctorDashboard{
		Earnings:           50,
		Appointments:       1,
		Patients:           1,
		LatestAppointments: []appointment.Appointment{*a},
	}, nil)
	s.svc.On("ListDoctorAppointments", mock.Anything, doctorID, appointment.Filters{Date: "23_5_2025"}).
		Return(appointment.QueryResult{Appointments: []appointment.Appointment{*a}, Stats: appointment.Stats{Total: 1, Completed: 1, TotalEarnings: 50}}, nil)

	rec := s.do(http.MethodGet, "/admin/dashboard", s.token(t, uuid.New(), auth.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	admin := decode[AdminDashboardResponse](t, rec)
	assert.Equal(t, 1, admin.Stats.Total)
	assert.Len(t, admin.LatestAppointments, 1)

	doctorToken := s.token(t, doctorID, auth.RoleDoctor)

	rec = s.do(http.MethodGet, "/doctor/dashboard", doctorToken)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[DoctorDashboardResponse](t, rec)
	assert.Equal(t, 50.0, doc.Earnings)
	assert.Equal(t, 1, doc.Patients)

	rec = s.do(http.MethodGet, "/doctor/appointments?date=23_5_2025&doctor=ignored", doctorToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[AppointmentListResponse](t, rec).Appointments, 1)

	s.svc.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	s := newTestServer(t, nil, nil)
	rec := s.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)

	s = newTestServer(t, nil, down)
	rec = s.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode[ReadinessResponse](t, rec).Status)

	s = newTestServer(t, down, nil)
	rec = s.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decode[ReadinessResponse](t, rec).Dependencies["postgres"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.do(http.MethodGet, "/health/live", "")

	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}
