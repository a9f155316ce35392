package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/feed"
	"github.com/hackgods/therapy-session-scheduling/internal/memstore"
	"github.com/hackgods/therapy-session-scheduling/internal/metrics"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
	"github.com/hackgods/therapy-session-scheduling/internal/scheduling"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	notifier := feed.NewLocal()
	logger := zerolog.Nop()
	reg := prometheus.NewRegistry()

	slots := slot.NewStore(memstore.NewSlots(), notifier, logger)
	appointments := appointment.NewStore(memstore.NewAppointments(), notifier, logger)
	consultations := consultation.NewRecorder(memstore.NewConsultations(), notifier, logger)
	profiles := memstore.NewProfiles(
		profile.Profile{UID: "t-1", Role: profile.RoleTherapist},
		profile.Profile{UID: "p-1", Role: profile.RolePatient},
	)

	engine := scheduling.NewEngine(scheduling.Deps{
		Slots:         slots,
		Appointments:  appointments,
		Consultations: consultations,
		Profiles:      profile.NewCache(profiles),
		Metrics:       metrics.NewSchedulingMetrics(reg),
		Logger:        logger,
	}, scheduling.Config{})

	return NewRouter(RouterConfig{
		Engine:        engine,
		Slots:         slots,
		Appointments:  appointments,
		Consultations: consultations,
		Gatherer:      reg,
		Logger:        logger,
		Env:           "test",
		Version:       "test",
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func publishOne(t *testing.T, h http.Handler, startsAt time.Time) SlotResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/therapists/t-1/slots", PublishSlotsRequest{
		Intervals: []IntervalRequest{{StartsAt: startsAt, EndsAt: startsAt.Add(time.Hour)}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slots := decode[[]SlotResponse](t, rec)
	require.Len(t, slots, 1)
	return slots[0]
}

func TestBookingFlowOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	s := publishOne(t, h, time.Now().Add(24*time.Hour).Truncate(time.Minute))

	rec := do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID: "p-1", TherapistID: "t-1", SlotID: s.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", appt.Status)

	rec = do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID: "p-2", TherapistID: "t-1", SlotID: s.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "confirmed", approved.Status)
	require.NotNil(t, approved.Meeting)
	assert.True(t, strings.HasPrefix(approved.Meeting.URL, "https://meet.jit.si/tsession-"))

	rec = do(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", CompleteAppointmentRequest{
		SummaryNotes: "steady progress",
		FollowUp:     &consultation.FollowUp{Tasks: []string{"sleep log"}},
		UpdatedBy:    "t-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completed := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "completed", completed.Status)
	require.NotNil(t, completed.HistoryID)

	rec = do(t, h, http.MethodGet, "/consultations/"+completed.HistoryID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sleep log"}, decode[ConsultationResponse](t, rec).FollowUp.Tasks)

	rec = do(t, h, http.MethodGet, "/consultations?patient_id=p-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ConsultationResponse](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/appointments?user_id=t-1&role=therapist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rec), 1)

	rec = do(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[ErrorResponse](t, rec).Error)
}

func TestSlotEndpoints(t *testing.T) {
	h := newTestRouter(t)
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	s := publishOne(t, h, start)

	rec := do(t, h, http.MethodGet, "/therapists/t-1/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SlotResponse](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/therapists/t-1/slots?from="+start.Add(time.Minute).Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]SlotResponse](t, rec))

	rec = do(t, h, http.MethodGet, "/therapists/t-1/slots?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/therapists/t-1/slots", PublishSlotsRequest{
		Intervals: []IntervalRequest{{StartsAt: start, EndsAt: start.Add(-time.Hour)}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/therapists/t-1/slots/"+s.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/therapists/t-1/slots/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestExpiredSlot(t *testing.T) {
	h := newTestRouter(t)
	s := publishOne(t, h, time.Now().Add(-10*time.Minute))

	rec := do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID: "p-1", TherapistID: "t-1", SlotID: s.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_expired", decode[ErrorResponse](t, rec).Error)
}

func TestBadRequests(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/appointments?user_id=u-1&role=admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/appointments", map[string]string{"slot_id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/consultations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/appointments/"+"00000000-0000-0000-0000-000000000001"+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchAppointment(t *testing.T) {
	h := newTestRouter(t)
	s := publishOne(t, h, time.Now().Add(time.Hour))

	rec := do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID: "p-1", TherapistID: "t-1", SlotID: s.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	notes := "prefers mornings"
	rec = do(t, h, http.MethodPatch, "/appointments/"+appt.ID.String(), UpdateAppointmentRequest{SummaryNotes: &notes})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notes, decode[AppointmentResponse](t, rec).SummaryNotes)

	rec = do(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/meeting", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])

	s := publishOne(t, h, time.Now().Add(time.Hour))
	do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{PatientID: "p-1", TherapistID: "t-1", SlotID: s.ID})

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "therapy_scheduling_operations_total")
}

func TestReadinessReportsDependencies(t *testing.T) {
	down := PingerFunc(func(context.Context) error { return errors.New("down") })
	up := PingerFunc(func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	NewHealthHandler(up, down, "test", "v").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode[ReadinessResponse](t, rec).Status)

	rec = httptest.NewRecorder()
	NewHealthHandler(down, up, "test", "v").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSlotStream(t *testing.T) {
	h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/therapists/t-1/slots/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first struct {
		Type  string         `json:"type"`
		Items []SlotResponse `json:"items"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
	assert.Empty(t, first.Items)

	start := time.Now().Add(time.Hour).Truncate(time.Minute)
	publishOne(t, h, start)

	var next struct {
		Type  string         `json:"type"`
		Items []SlotResponse `json:"items"`
	}
	require.NoError(t, conn.ReadJSON(&next))
	require.Len(t, next.Items, 1)
	assert.Equal(t, "open", next.Items[0].Status)
}

func TestRegenerateMeetingBodyIsOptional(t *testing.T) {
	h := newTestRouter(t)
	s := publishOne(t, h, time.Now().Add(time.Hour))

	rec := do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID: "p-1", TherapistID: "t-1", SlotID: s.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)
	path := "/appointments/" + appt.ID.String() + "/meeting"

	rec = do(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// empty chunked body: ContentLength is -1 but there is nothing to decode
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[AppointmentResponse](t, rec).Meeting)

	rec = do(t, h, http.MethodPost, path, RegenerateMeetingRequest{Provider: "daily", BaseURL: "https://clinic.daily.co"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[AppointmentResponse](t, rec)
	require.NotNil(t, updated.Meeting)
	assert.Equal(t, "daily", updated.Meeting.Provider)

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
