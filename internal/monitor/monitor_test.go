package monitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cita-scheduler/internal/italcambio"
	"github.com/example/cita-scheduler/internal/logsink"
	"github.com/example/cita-scheduler/internal/state"
)

type fakeVendor struct {
	general     []italcambio.Slot
	generalOut  italcambio.Outcome
	hourly      []italcambio.Slot
	hourlyOut   italcambio.Outcome
	entitled    map[int]bool
	bookRes     italcambio.BookingResult
	bookOut     italcambio.Outcome
	bookedFor   []int
	entChecked  []int
	hourlyCalls int
}

func (f *fakeVendor) GeneralAvailability(context.Context, int) ([]italcambio.Slot, italcambio.Outcome) {
	return f.general, f.generalOut
}

func (f *fakeVendor) HourlyAvailability(context.Context, int, string) ([]italcambio.Slot, italcambio.Outcome) {
	f.hourlyCalls++
	return f.hourly, f.hourlyOut
}

func (f *fakeVendor) EntitlementOK(_ context.Context, partyID int, _, _ string) bool {
	f.entChecked = append(f.entChecked, partyID)
	return f.entitled[partyID]
}

func (f *fakeVendor) BookAppointment(_ context.Context, partyID, _ int, _, _ string) (italcambio.BookingResult, italcambio.Outcome) {
	f.bookedFor = append(f.bookedFor, partyID)
	return f.bookRes, f.bookOut
}

func outcome(s italcambio.Status) italcambio.Outcome { return italcambio.Outcome{Status: s} }

func slot(id int, hour string) italcambio.Slot {
	return italcambio.Slot{ScheduleID: id, Date: "19/11/2025", Hour: hour, Capacity: 2}
}

func newMonitor(t *testing.T, v *fakeVendor, queue ...state.BookingRequest) (*Monitor, *state.RunState) {
	t.Helper()
	st := state.New(state.PollTarget{LocationID: 12, Date: "19/11/2025"}, "09:00")
	require.NoError(t, st.ReplaceAutoBook(state.AutoBookSettings{
		Enabled:     true,
		MinimumHour: "09:00",
		Queue:       queue,
	}))
	st.SetRunning(true)
	m := &Monitor{
		State:           st,
		Client:          v,
		Log:             logsink.New(io.Discard, time.UTC),
		PollInterval:    10 * time.Second,
		BackoffInterval: 30 * time.Second,
		Wait:            func(context.Context, time.Duration) error { return nil },
	}
	return m, st
}

func req(party int) state.BookingRequest {
	return state.BookingRequest{PartyID: party, Credential: "PPDUO=tok"}
}

// Scenario A: empty general availability never reaches the orchestrator.
func TestTickNoAvailability(t *testing.T) {
	v := &fakeVendor{generalOut: outcome(italcambio.StatusNoAvailability)}
	m, st := newMonitor(t, v, req(55))

	assert.False(t, m.Tick(context.Background()))
	assert.Zero(t, v.hourlyCalls)
	s := st.Status()
	assert.Equal(t, 1, s.TotalPolls)
	assert.Zero(t, s.TotalChanges)
}

// Scenario B: minimum-hour floor keeps later slots only and the first
// qualifying slot in vendor order is chosen.
func TestOrchestratorMinimumHourFilter(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "08:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
		hourly: []italcambio.Slot{
			slot(36523, "08:00 AM"),
			slot(36524, "09:00 AM"),
			slot(36525, "10:00 AM"),
		},
		hourlyOut: outcome(italcambio.StatusOK),
		entitled:  map[int]bool{55: true},
		bookRes:   italcambio.BookingResult{Success: true, Message: "Cita generada exitosamente", StatusCode: 200},
		bookOut:   outcome(italcambio.StatusOK),
	}
	m, st := newMonitor(t, v, req(55))

	m.Tick(context.Background())

	booked := st.Booked()
	require.Len(t, booked, 1)
	assert.Equal(t, 36524, booked[0].ScheduleID)
	assert.Equal(t, "09:00 AM", booked[0].TimeLabel)
	assert.Zero(t, st.QueueLen())
	// queue drained: auto-booking self-terminates
	enabled, _ := st.AutoBook()
	assert.False(t, enabled)
}

// Scenario C: a success message alongside an HTTP 400 is a success; the
// record is appended and the head popped. (Covered end to end via the fake's
// BookingResult; the message-over-status classification itself is tested in
// the italcambio package.)
func TestOrchestratorSuccessPopsHead(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "09:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
		hourly:     []italcambio.Slot{slot(36523, "09:00 AM")},
		hourlyOut:  outcome(italcambio.StatusOK),
		entitled:   map[int]bool{55: true, 56: true},
		bookRes:    italcambio.BookingResult{Success: true, Message: "Cita generada exitosamente", StatusCode: 400},
		bookOut:    outcome(italcambio.StatusOK),
	}
	m, st := newMonitor(t, v, req(55), req(56))

	m.Tick(context.Background())

	require.Len(t, st.Booked(), 1)
	assert.Equal(t, 400, st.Booked()[0].StatusCode)
	assert.Equal(t, 1, st.QueueLen())
	head, ok := st.PeekHead()
	require.True(t, ok)
	assert.Equal(t, 56, head.PartyID)
	// one attempt per change event, even with a second entry queued
	assert.Equal(t, []int{55}, v.bookedFor)
}

// Scenario D: rate-limited submission backs off without popping.
func TestOrchestratorRateLimitedSubmissionKeepsHead(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "09:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
		hourly:     []italcambio.Slot{slot(36523, "09:00 AM")},
		hourlyOut:  outcome(italcambio.StatusOK),
		entitled:   map[int]bool{55: true},
		bookOut:    outcome(italcambio.StatusRateLimited),
	}
	m, st := newMonitor(t, v, req(55))

	backoff := m.Tick(context.Background())

	assert.True(t, backoff)
	assert.Empty(t, st.Booked())
	assert.Equal(t, 1, st.QueueLen())
	head, _ := st.PeekHead()
	assert.Equal(t, 55, head.PartyID)
}

// Scenario E: failed entitlement for the head never reaches the second
// entry and leaves the head in place.
func TestOrchestratorEntitlementFailureKeepsOrder(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "09:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
		hourly:     []italcambio.Slot{slot(36523, "09:00 AM")},
		hourlyOut:  outcome(italcambio.StatusOK),
		entitled:   map[int]bool{55: false, 56: true},
	}
	m, st := newMonitor(t, v, req(55), req(56))

	m.Tick(context.Background())

	assert.Equal(t, []int{55}, v.entChecked)
	assert.Empty(t, v.bookedFor)
	assert.Equal(t, 2, st.QueueLen())
	head, _ := st.PeekHead()
	assert.Equal(t, 55, head.PartyID)
}

// Identical consecutive payloads count one change; the orchestrator still
// runs each time so failed attempts get retried.
func TestTickDoesNotDoubleCountRepeatPayload(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "09:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
		hourlyOut:  outcome(italcambio.StatusNoAvailability),
	}
	m, st := newMonitor(t, v, req(55))

	m.Tick(context.Background())
	m.Tick(context.Background())
	assert.Equal(t, 1, st.Status().TotalChanges)
	assert.Equal(t, 2, v.hourlyCalls)

	v.general = []italcambio.Slot{slot(2, "10:00 AM")}
	m.Tick(context.Background())
	assert.Equal(t, 2, st.Status().TotalChanges)
}

// Availability gap: general signal without hourly slots logs and returns,
// nothing else happens.
func TestOrchestratorGap(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "09:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
		hourlyOut:  outcome(italcambio.StatusNoAvailability),
		entitled:   map[int]bool{55: true},
	}
	m, st := newMonitor(t, v, req(55))

	assert.False(t, m.Tick(context.Background()))
	assert.Empty(t, v.entChecked)
	assert.Equal(t, 1, st.QueueLen())
}

// Auto-booking disabled: availability is recorded, orchestrator is a no-op.
func TestOrchestratorDisabled(t *testing.T) {
	v := &fakeVendor{
		general:    []italcambio.Slot{slot(1, "09:00 AM")},
		generalOut: outcome(italcambio.StatusOK),
	}
	m, st := newMonitor(t, v, req(55))
	st.DisableAutoBook()

	m.Tick(context.Background())

	assert.Zero(t, v.hourlyCalls)
	assert.Equal(t, 1, st.Status().TotalChanges)
}

// A rate-limited availability check backs off and is not a content change.
func TestTickRateLimitedBackoff(t *testing.T) {
	v := &fakeVendor{generalOut: outcome(italcambio.StatusRateLimited)}
	m, st := newMonitor(t, v)

	assert.True(t, m.Tick(context.Background()))
	assert.Zero(t, st.Status().TotalChanges)
}

// The periodic flush runs after the tick whatever the outcome, and resets
// the per-period counters.
func TestPeriodicFlushAlwaysRuns(t *testing.T) {
	v := &fakeVendor{generalOut: outcome(italcambio.StatusTransportError)}
	m, st := newMonitor(t, v)
	m.FlushInterval = time.Nanosecond
	m.lastFlush = time.Now().Add(-time.Hour)

	m.Tick(context.Background())

	polls, changed, _ := st.FlushPeriod()
	assert.Zero(t, polls)
	assert.False(t, changed)
}

func TestHour24(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"08:00 AM", "08:00", true},
		{"12:30 PM", "12:30", true},
		{"12:05 AM", "00:05", true},
		{"01:15 PM", "13:15", true},
		{"11:59 PM", "23:59", true},
		{"25:00 PM", "", false},
		{"08:00", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := hour24(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
