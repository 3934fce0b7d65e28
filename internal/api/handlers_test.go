package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/appointment/appointmenttest"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/policy"
)

type testServer struct {
	handler    http.Handler
	dir        *appointmenttest.Directory
	owner      auth.Actor
	staff      auth.Actor
	ownerToken string
	staffToken string
	tokens     *auth.TokenService
	pet        appointment.Pet
	clinic     appointment.Clinic
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := appointmenttest.NewRepository()
	dir := appointmenttest.NewDirectory()
	svc := appointment.NewService(repo, dir, appointmenttest.Locker{},
		appointmenttest.Policy{Config: policy.Config{LeadTimeHours: 2, CancellationWindowHours: 24, DefaultDurationMinutes: 30}},
		zap.NewNop(),
		appointment.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	tokens := auth.NewTokenService("test-secret", time.Hour)

	ts := &testServer{
		dir:    dir,
		owner:  auth.Actor{ID: uuid.New(), Role: auth.RolePetOwner},
		staff:  auth.Actor{ID: uuid.New(), Role: auth.RoleVeterinarian},
		tokens: tokens,
	}
	ts.pet = dir.AddPet(ts.owner.ID)
	ts.clinic = dir.AddClinic("UTC")

	var err error
	if ts.ownerToken, err = tokens.Issue(ts.owner); err != nil {
		t.Fatalf("issue owner token: %v", err)
	}
	if ts.staffToken, err = tokens.Issue(ts.staff); err != nil {
		t.Fatalf("issue staff token: %v", err)
	}

	ts.handler = NewRouter(RouterConfig{
		Service:  svc,
		Tokens:   tokens,
		Logger:   zap.NewNop(),
		Postgres: PingFunc(func(context.Context) error { return nil }),
		Redis:    PingFunc(func(context.Context) error { return nil }),
		Env:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) book(t *testing.T, start string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, http.MethodPost, "/appointments", ts.ownerToken, map[string]any{
		"pet_id":           ts.pet.ID,
		"clinic_id":        ts.clinic.ID,
		"scheduled_date":   start,
		"appointment_type": "consultation",
	})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return v
}

func TestCreateAppointmentAndConflict(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.book(t, "2024-01-20T10:00:00Z")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	created := decode[AppointmentResponse](t, rec)
	if created.Status != "pending" || created.DurationMinutes != 30 {
		t.Fatalf("created = %+v", created)
	}
	if !created.ScheduledEnd.Equal(time.Date(2024, 1, 20, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_end = %s", created.ScheduledEnd)
	}

	rec = ts.book(t, "2024-01-20T10:15:00Z")
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlap: status %d body %s", rec.Code, rec.Body.String())
	}
	errResp := decode[ErrorResponse](t, rec)
	if errResp.ConflictingID == nil || *errResp.ConflictingID != created.ID {
		t.Fatalf("conflict response = %+v", errResp)
	}

	if rec := ts.book(t, "2024-01-20T10:30:00Z"); rec.Code != http.StatusCreated {
		t.Fatalf("adjacent: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/appointments", ts.ownerToken, map[string]any{
		"clinic_id":        "not-a-uuid",
		"duration_minutes": 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	resp := decode[ErrorResponse](t, rec)
	if resp.Error != "validation_failed" {
		t.Fatalf("error = %q", resp.Error)
	}
	got := make(map[string]bool)
	for _, f := range resp.Fields {
		got[f.Field] = true
	}
	for _, field := range []string{"pet_id", "clinic_id", "scheduled_date", "duration_minutes", "appointment_type"} {
		if !got[field] {
			t.Fatalf("missing field error for %s in %+v", field, resp.Fields)
		}
	}

	rec = ts.do(t, http.MethodPost, "/appointments", ts.ownerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: status %d", rec.Code)
	}
}

func TestCreateInsideLeadTime(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.book(t, "2024-01-01T01:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/appointments", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", rec.Code)
	}

	foreign := auth.NewTokenService("other-secret", time.Hour)
	token, err := foreign.Issue(ts.owner)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token: status %d", rec.Code)
	}
}

func TestGetAppointmentOwnership(t *testing.T) {
	ts := newTestServer(t)
	created := decode[AppointmentResponse](t, ts.book(t, "2024-01-20T10:00:00Z"))

	if rec := ts.do(t, http.MethodGet, "/appointments/"+created.ID.String(), ts.ownerToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner get: status %d", rec.Code)
	}

	stranger, err := ts.tokens.Issue(auth.Actor{ID: uuid.New(), Role: auth.RolePetOwner})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments/"+created.ID.String(), stranger, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("stranger get: status %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), ts.staffToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments/nope", ts.staffToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", rec.Code)
	}
}

func TestStatusAndReschedule(t *testing.T) {
	ts := newTestServer(t)
	created := decode[AppointmentResponse](t, ts.book(t, "2024-01-20T10:00:00Z"))
	path := "/appointments/" + created.ID.String()

	rec := ts.do(t, http.MethodPatch, path+"/status", ts.ownerToken, UpdateStatusRequest{Status: "completed"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("owner completing: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPatch, path+"/status", ts.staffToken, UpdateStatusRequest{Status: "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decode[AppointmentResponse](t, rec).Status; got != "confirmed" {
		t.Fatalf("status = %s", got)
	}

	rec = ts.do(t, http.MethodPatch, path+"/status", ts.staffToken, UpdateStatusRequest{Status: "pending"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("confirmed -> pending: status %d", rec.Code)
	}

	newDate := time.Date(2024, 1, 21, 10, 0, 0, 0, time.UTC)
	rec = ts.do(t, http.MethodPatch, path+"/reschedule", ts.ownerToken, RescheduleRequest{NewDate: &newDate})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule: status %d body %s", rec.Code, rec.Body.String())
	}
	moved := decode[AppointmentResponse](t, rec)
	if moved.Status != "rescheduled" || !moved.ScheduledDate.Equal(newDate) {
		t.Fatalf("moved = %s at %s", moved.Status, moved.ScheduledDate)
	}

	if rec := ts.do(t, http.MethodPatch, path+"/reschedule", ts.ownerToken, map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing new_date: status %d", rec.Code)
	}
}

func TestUpdateAppointmentClinicalFields(t *testing.T) {
	ts := newTestServer(t)
	created := decode[AppointmentResponse](t, ts.book(t, "2024-01-20T10:00:00Z"))
	path := "/appointments/" + created.ID.String()

	body := map[string]any{"diagnosis": "gingivitis"}
	if rec := ts.do(t, http.MethodPatch, path, ts.ownerToken, body); rec.Code != http.StatusForbidden {
		t.Fatalf("owner diagnosis: status %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPatch, path, ts.staffToken, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff diagnosis: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decode[AppointmentResponse](t, rec); got.Diagnosis == nil || *got.Diagnosis != "gingivitis" {
		t.Fatalf("diagnosis not saved")
	}
}

func TestCancelAppointment(t *testing.T) {
	ts := newTestServer(t)
	created := decode[AppointmentResponse](t, ts.book(t, "2024-01-20T10:00:00Z"))
	path := "/appointments/" + created.ID.String()

	rec := ts.do(t, http.MethodDelete, path, ts.ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}
	if msg := decode[MessageResponse](t, rec).Message; msg == "" {
		t.Fatal("expected a message")
	}

	fetched := decode[AppointmentResponse](t, ts.do(t, http.MethodGet, path, ts.ownerToken, nil))
	if fetched.Status != "cancelled" || !fetched.IsActive {
		t.Fatalf("after cancel: %s active=%v", fetched.Status, fetched.IsActive)
	}

	if rec := ts.do(t, http.MethodDelete, path, ts.ownerToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("second cancel: status %d", rec.Code)
	}
}

func TestListAppointments(t *testing.T) {
	ts := newTestServer(t)
	for _, start := range []string{"2024-01-20T09:00:00Z", "2024-01-20T10:00:00Z", "2024-01-21T09:00:00Z"} {
		if rec := ts.book(t, start); rec.Code != http.StatusCreated {
			t.Fatalf("book %s: %d", start, rec.Code)
		}
	}

	rec := ts.do(t, http.MethodGet, "/appointments?limit=2&page=1&date_from=2024-01-20&date_to=2024-01-21", ts.ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[ListResponse](t, rec)
	if resp.Total != 3 || resp.TotalPages != 2 || len(resp.Appointments) != 2 || resp.Page != 1 {
		t.Fatalf("list = total %d pages %d len %d page %d", resp.Total, resp.TotalPages, len(resp.Appointments), resp.Page)
	}

	rec = ts.do(t, http.MethodGet, "/appointments?date_to=2024-01-20", ts.ownerToken, nil)
	if got := decode[ListResponse](t, rec).Total; got != 2 {
		t.Fatalf("inclusive date_to: total %d, want 2", got)
	}

	rec = ts.do(t, http.MethodGet, "/appointments?status=bogus&clinic_id=x&page=-1", ts.ownerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad query: status %d", rec.Code)
	}
	if fields := decode[ErrorResponse](t, rec).Fields; len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", fields)
	}
}

func TestAvailableSlotsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	booked := decode[AppointmentResponse](t, ts.book(t, "2024-01-20T10:00:00Z"))

	rec := ts.do(t, http.MethodGet, "/appointments/available-slots/"+ts.clinic.ID.String()+"?date=2024-01-20&duration=60", ts.ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: status %d body %s", rec.Code, rec.Body.String())
	}
	slots := decode[[]TimeSlotResponse](t, rec)
	// 08:00 through 17:00 starts for a 60 minute slot.
	if len(slots) != 19 {
		t.Fatalf("got %d slots, want 19", len(slots))
	}
	blocked := 0
	for _, s := range slots {
		if !s.Available {
			blocked++
			if s.BlockingAppointmentID == nil || *s.BlockingAppointmentID != booked.ID {
				t.Fatalf("slot %s blocked by wrong appointment", s.Start)
			}
		}
	}
	// 09:30 and 10:00 overlap the 10:00-10:30 booking.
	if blocked != 2 {
		t.Fatalf("blocked = %d, want 2", blocked)
	}

	if rec := ts.do(t, http.MethodGet, "/appointments/available-slots/"+ts.clinic.ID.String(), ts.ownerToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date: status %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments/available-slots/"+ts.clinic.ID.String()+"?date=2024-01-20&duration=5", ts.ownerToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("short duration: status %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "2024-01-20T09:00:00Z")
	ts.book(t, "2024-01-20T10:00:00Z")

	rec := ts.do(t, http.MethodGet, "/appointments/stats", ts.staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d body %s", rec.Code, rec.Body.String())
	}
	stats := decode[StatsResponse](t, rec)
	if stats.Total != 2 || stats.ByStatus["pending"] != 2 || stats.ByType["consultation"] != 2 || stats.AverageDurationMinutes != 30 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCalendarEndpoint(t *testing.T) {
	ts := newTestServer(t)
	vet := ts.dir.AddStaff(ts.clinic.ID, "Dr. Lee")

	rec := ts.do(t, http.MethodPost, "/appointments", ts.staffToken, map[string]any{
		"pet_id":           ts.pet.ID,
		"clinic_id":        ts.clinic.ID,
		"staff_id":         vet.ID,
		"scheduled_date":   "2024-01-20T10:00:00Z",
		"appointment_type": "vaccination",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book with staff: status %d body %s", rec.Code, rec.Body.String())
	}
	ts.book(t, "2024-01-20T12:00:00Z")
	ts.book(t, "2024-01-21T12:00:00Z")

	rec = ts.do(t, http.MethodGet, "/appointments/calendar?date_from=2024-01-20&date_to=2024-01-21&clinic_id="+ts.clinic.ID.String(), ts.staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("calendar: status %d body %s", rec.Code, rec.Body.String())
	}
	cal := decode[CalendarResponse](t, rec)
	if len(cal.Days) != 2 || cal.Days[0].Date != "2024-01-20" {
		t.Fatalf("days = %+v", cal.Days)
	}
	first := cal.Days[0].Staff
	if len(first) != 2 || first[0].StaffName == nil || *first[0].StaffName != "Dr. Lee" || first[1].StaffID != nil {
		t.Fatalf("first day groups = %+v", first)
	}

	if rec := ts.do(t, http.MethodGet, "/appointments/calendar?date_from=2024-01-20", ts.staffToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date_to: status %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/appointments/calendar?date_from=2024-01-01&date_to=2024-12-31", ts.staffToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("range too wide: status %d", rec.Code)
	}
}

func TestCalendarUsesClinicLocalDays(t *testing.T) {
	ts := newTestServer(t)
	clinic := ts.dir.AddClinic("America/New_York")

	// 2024-01-19 21:00 and 2024-01-20 20:00 in New York.
	for _, start := range []string{"2024-01-20T02:00:00Z", "2024-01-21T01:00:00Z"} {
		rec := ts.do(t, http.MethodPost, "/appointments", ts.ownerToken, map[string]any{
			"pet_id":           ts.pet.ID,
			"clinic_id":        clinic.ID,
			"scheduled_date":   start,
			"appointment_type": "consultation",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("book %s: status %d body %s", start, rec.Code, rec.Body.String())
		}
	}

	rec := ts.do(t, http.MethodGet, "/appointments/calendar?date_from=2024-01-20&date_to=2024-01-20&clinic_id="+clinic.ID.String(), ts.staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("calendar: status %d body %s", rec.Code, rec.Body.String())
	}
	cal := decode[CalendarResponse](t, rec)
	if len(cal.Days) != 1 || cal.Days[0].Date != "2024-01-20" {
		t.Fatalf("days = %+v", cal.Days)
	}
	appts := cal.Days[0].Staff[0].Appointments
	if len(appts) != 1 || !appts[0].ScheduledDate.Equal(time.Date(2024, 1, 21, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("appointments = %+v", appts)
	}
}

func TestBusyPetLockIsRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	handleServiceError(rec, fmt.Errorf("cancel appointment: %w", appointment.ErrPetBeingBooked))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Error != "pet_being_booked" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestHealthEndpoints(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("down") })
	up := PingFunc(func(context.Context) error { return nil })

	cases := []struct {
		name       string
		postgres   Pinger
		redis      Pinger
		wantCode   int
		wantStatus string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Logger: zap.NewNop(), Postgres: tc.postgres, Redis: tc.redis})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("status %d, want %d", rec.Code, tc.wantCode)
			}
			if got := decode[ReadinessResponse](t, rec).Status; got != tc.wantStatus {
				t.Fatalf("readiness = %s, want %s", got, tc.wantStatus)
			}

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("live: status %d", rec.Code)
			}
		})
	}
}
