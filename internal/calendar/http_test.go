package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/resilience"
)

func newCalendarServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/calendar/working-instant", func(w http.ResponseWriter, r *http.Request) {
		at, err := time.Parse(time.RFC3339, r.URL.Query().Get("at"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"working": at.Weekday() != time.Sunday})
	})
	mux.HandleFunc("/api/v1/calendar/add-working-days", func(w http.ResponseWriter, r *http.Request) {
		from, _ := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		_ = json.NewEncoder(w).Encode(map[string]time.Time{"result": from.AddDate(0, 0, 3)})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCalendar_IsWorkingInstant(t *testing.T) {
	srv := newCalendarServer(t)
	cal := NewHTTPCalendar(srv.URL, time.Second)

	working, err := cal.IsWorkingInstant(context.Background(), at(7, 10, 0))
	require.NoError(t, err)
	assert.False(t, working)

	working, err = cal.IsWorkingInstant(context.Background(), at(8, 10, 0))
	require.NoError(t, err)
	assert.True(t, working)
}

func TestHTTPCalendar_AddWorkingDays(t *testing.T) {
	srv := newCalendarServer(t)
	cal := NewHTTPCalendar(srv.URL, time.Second)

	got, err := cal.AddWorkingDays(context.Background(), at(2, 9, 0), 3)

	require.NoError(t, err)
	assert.True(t, got.Equal(at(5, 9, 0)))
}

func TestHTTPCalendar_StatusError(t *testing.T) {
	srv := newCalendarServer(t)
	cal := NewHTTPCalendar(srv.URL, time.Second)

	_, err := cal.AddWorkingHours(context.Background(), at(2, 9, 0), 1)

	assert.ErrorContains(t, err, "status 404")
}

func TestBreakerCalendar_FallsBackWhenRemoteFails(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("calendar-test")
	cfg.FailureThreshold = 2
	breaker := resilience.NewCircuitBreaker(cfg, logging.NewNop(), nil)
	weekdays, err := NewWeekdays(time.UTC, nil)
	require.NoError(t, err)

	cal := NewBreakerCalendar(failingCalendar{}, weekdays, breaker, nil)

	for i := 0; i < 4; i++ {
		working, err := cal.IsWorkingInstant(context.Background(), at(6, 10, 0))
		require.NoError(t, err)
		assert.False(t, working, "Saturday from fallback")
	}

	next, err := cal.AddWorkingDays(context.Background(), at(5, 10, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, at(8, 10, 0), next)
}

func TestBreakerCalendar_UsesRemoteWhenHealthy(t *testing.T) {
	srv := newCalendarServer(t)
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("calendar-ok"), nil, nil)
	cal := NewBreakerCalendar(NewHTTPCalendar(srv.URL, time.Second), nil, breaker, logging.NewNop())

	working, err := cal.IsWorkingInstant(context.Background(), at(7, 10, 0))

	require.NoError(t, err)
	assert.False(t, working)
}
