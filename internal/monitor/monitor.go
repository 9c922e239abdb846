package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/cita-scheduler/internal/clock"
	"github.com/example/cita-scheduler/internal/italcambio"
	"github.com/example/cita-scheduler/internal/logsink"
	"github.com/example/cita-scheduler/internal/notify"
	"github.com/example/cita-scheduler/internal/state"
)

// VendorClient is the slice of the vendor API the monitor drives.
// *italcambio.Client satisfies it; tests use a fake.
type VendorClient interface {
	GeneralAvailability(ctx context.Context, locationID int) ([]italcambio.Slot, italcambio.Outcome)
	HourlyAvailability(ctx context.Context, locationID int, date string) ([]italcambio.Slot, italcambio.Outcome)
	EntitlementOK(ctx context.Context, partyID int, date, credential string) bool
	BookAppointment(ctx context.Context, partyID, scheduleID int, date, credential string) (italcambio.BookingResult, italcambio.Outcome)
}

// Archiver persists booked appointments out of band. Optional.
type Archiver interface {
	Insert(ctx context.Context, b state.BookedAppointment) error
}

// Monitor is the single sequential task driving the whole core: it polls
// general availability on aligned ticks, reacts to rate limiting with a
// longer synchronized backoff, and hands positive signals to the
// orchestrator. All vendor calls complete (or time out) before the next
// step; stop takes effect at iteration boundaries only.
type Monitor struct {
	State   *state.RunState
	Client  VendorClient
	Log     *logsink.Sink
	Notify  notify.Sender
	Archive Archiver

	PollInterval    time.Duration
	BackoffInterval time.Duration
	FlushInterval   time.Duration

	// Wait aligns the caller to the next wall-clock boundary. Replaced in
	// tests with a no-op.
	Wait func(ctx context.Context, interval time.Duration) error

	lastFlush time.Time
}

// Run loops until ctx is cancelled. When the run state is stopped the loop
// keeps waking on the steady cadence to notice a start command.
func (m *Monitor) Run(ctx context.Context) error {
	if m.Wait == nil {
		m.Wait = clock.WaitUntilNextBoundary
	}
	m.lastFlush = time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		interval := m.PollInterval
		if m.State.Running() {
			if m.Tick(ctx) {
				interval = m.BackoffInterval
			}
		}
		if err := m.Wait(ctx, interval); err != nil {
			return err
		}
	}
}

// Tick runs one poll iteration and reports whether the next wait should use
// the backoff interval. The periodic flush always executes afterwards,
// whatever the iteration did.
func (m *Monitor) Tick(ctx context.Context) (backoff bool) {
	defer m.flushIfDue()
	defer func() {
		if r := recover(); r != nil {
			m.Log.Printf("poll iteration failed unexpectedly, continuing: %v", r)
			backoff = false
		}
	}()

	target := m.State.Target()
	m.State.NotePoll()

	entries, out := m.Client.GeneralAvailability(ctx, target.LocationID)
	switch out.Status {
	case italcambio.StatusOK:
		payload, _ := json.Marshal(entries)
		if m.State.NoteAvailability(string(payload)) {
			m.Log.Printf("availability detected at location %d (%s): %s",
				target.LocationID, target.Date, payload)
		}
		return m.orchestrate(ctx, target, entries)
	case italcambio.StatusNoAvailability:
		// routine negative result
	case italcambio.StatusRateLimited:
		m.Log.Printf("vendor rate limit on availability check, backing off %s", m.BackoffInterval)
		return true
	case italcambio.StatusTransportError:
		m.Log.Printf("availability check failed: %s", out.Detail)
	}
	return false
}

func (m *Monitor) flushIfDue() {
	if m.FlushInterval <= 0 || time.Since(m.lastFlush) < m.FlushInterval {
		return
	}
	polls, changed, lastChangeAt := m.State.FlushPeriod()
	if changed {
		m.Log.Printf("periodic summary: %d polls, availability seen this period (last change %s)",
			polls, lastChangeAt.Format("2006-01-02 15:04:05"))
	} else {
		m.Log.Printf("periodic summary: %d polls, no availability this period", polls)
	}
	m.lastFlush = time.Now()
}
