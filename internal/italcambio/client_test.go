package italcambio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, nil)
}

func respond(t *testing.T, status int, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestGeneralAvailability(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus Status
		wantLen    int
	}{
		{"open slots", 200, `[{"idschedule":36523,"idfecha":"19/11/2025","hora":"08:00 AM","capacidaddisponible":3}]`, StatusOK, 1},
		{"sentinel message", 200, `{"message":"Sin Disponibilidad"}`, StatusNoAvailability, 0},
		{"empty list", 200, `[]`, StatusNoAvailability, 0},
		{"http 404 is no slot", 404, `not found`, StatusNoAvailability, 0},
		{"http 400 is no slot", 400, `bad request`, StatusNoAvailability, 0},
		{"rate limited", 429, `slow down`, StatusRateLimited, 0},
		{"server error", 500, `boom`, StatusTransportError, 0},
		{"malformed body", 200, `{"message":`, StatusTransportError, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, respond(t, tc.status, tc.body))
			entries, out := c.GeneralAvailability(context.Background(), 12)
			assert.Equal(t, tc.wantStatus, out.Status)
			assert.Len(t, entries, tc.wantLen)
		})
	}
}

func TestHourlyAvailability(t *testing.T) {
	body := `[
		{"idschedule":36523,"idfecha":"19/11/2025","hora":"08:00 AM","capacidaddisponible":2},
		{"idschedule":36524,"idfecha":"19/11/2025","hora":"09:00 AM","capacidaddisponible":2}
	]`
	c := newTestClient(t, respond(t, 200, body))
	slots, out := c.HourlyAvailability(context.Background(), 12, "19/11/2025")
	require.Equal(t, StatusOK, out.Status)
	require.Len(t, slots, 2)
	assert.Equal(t, 36523, slots[0].ScheduleID)
	assert.Equal(t, "08:00 AM", slots[0].Hour)
	assert.Equal(t, 2, slots[0].Capacity)

	c = newTestClient(t, respond(t, 404, ``))
	_, out = c.HourlyAvailability(context.Background(), 12, "19/11/2025")
	assert.Equal(t, StatusNoAvailability, out.Status)
}

func TestEntitlementExactAmount(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"exactly required", 200, `[{"amount":100}]`, true},
		{"one below", 200, `[{"amount":99}]`, false},
		{"one above", 200, `[{"amount":101}]`, false},
		{"empty body list", 200, `[]`, false},
		{"non-200", 403, `[{"amount":100}]`, false},
		{"malformed", 200, `{`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, respond(t, tc.status, tc.body))
			got := c.EntitlementOK(context.Background(), 55, "19/11/2025", "PPDUO=abc")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBookAppointmentClassification(t *testing.T) {
	t.Run("success message wins over 400 status", func(t *testing.T) {
		c := newTestClient(t, respond(t, 400, `{"message":"Cita generada exitosamente","idappointment":1042,"statuscode":400}`))
		res, out := c.BookAppointment(context.Background(), 55, 36523, "19/11/2025", "PPDUO=abc")
		require.Equal(t, StatusOK, out.Status)
		assert.True(t, res.Success)
		assert.Equal(t, 1042, res.AppointmentID)
	})

	t.Run("logical rejection", func(t *testing.T) {
		c := newTestClient(t, respond(t, 400, `{"error":"No se pudo generar cita","info":"No se agendo. Cupos Agotados","statuscode":400}`))
		res, out := c.BookAppointment(context.Background(), 55, 36523, "19/11/2025", "PPDUO=abc")
		require.Equal(t, StatusOK, out.Status)
		assert.False(t, res.Success)
		assert.Equal(t, "No se pudo generar cita", res.Message)
	})

	t.Run("rate limited", func(t *testing.T) {
		c := newTestClient(t, respond(t, 429, `{}`))
		_, out := c.BookAppointment(context.Background(), 55, 36523, "19/11/2025", "PPDUO=abc")
		assert.Equal(t, StatusRateLimited, out.Status)
	})

	t.Run("no message falls back to status", func(t *testing.T) {
		c := newTestClient(t, respond(t, 502, `bad gateway`))
		_, out := c.BookAppointment(context.Background(), 55, 36523, "19/11/2025", "PPDUO=abc")
		assert.Equal(t, StatusTransportError, out.Status)
	})

	t.Run("cookie credential forwarded", func(t *testing.T) {
		var gotCookie string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotCookie = r.Header.Get("Cookie")
			_, _ = w.Write([]byte(`{"message":"Cita generada exitosamente"}`))
		})
		_, out := c.BookAppointment(context.Background(), 55, 36523, "19/11/2025", "PPDUO=secret")
		require.Equal(t, StatusOK, out.Status)
		assert.Equal(t, "PPDUO=secret", gotCookie)
	})
}

func TestMatchesSuccessConfigurablePhrases(t *testing.T) {
	assert.True(t, matchesSuccess("Cita generada EXITOSAMENTE", DefaultSuccessPhrases))
	assert.False(t, matchesSuccess("No se pudo generar cita", DefaultSuccessPhrases))
	assert.True(t, matchesSuccess("booking confirmed", []string{"confirmed"}))
}

func TestTimeoutIsRetryableTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, 20*time.Millisecond, nil)
	_, out := c.GeneralAvailability(context.Background(), 12)
	assert.Equal(t, StatusTransportError, out.Status)
	assert.True(t, out.Retryable)
}
