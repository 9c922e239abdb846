package state

import (
	"sync"
	"time"
)

// RunState is the single shared record of counters, target parameters and
// the booking queue. The poll loop is the only writer during an iteration;
// dashboard updates land between iterations as whole-value swaps under the
// mutex, so a poll cycle always sees a consistent configuration snapshot.
type RunState struct {
	mu sync.Mutex

	startedAt time.Time
	running   bool

	totalPolls    int
	totalChanges  int
	periodPolls   int
	periodChanged bool
	lastChangeAt  time.Time
	lastPayload   string

	target      PollTarget
	autoBook    bool
	minimumHour string
	queue       []BookingRequest
	booked      []BookedAppointment
}

func New(target PollTarget, minimumHour string) *RunState {
	return &RunState{
		startedAt:   time.Now(),
		target:      target,
		minimumHour: minimumHour,
	}
}

func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RunState) SetRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

// Target returns the configuration snapshot the current iteration runs with.
func (s *RunState) Target() PollTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *RunState) SetTarget(t PollTarget) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = t
	return nil
}

// AutoBook returns the enabled flag and minimum-hour floor as one snapshot.
func (s *RunState) AutoBook() (enabled bool, minimumHour string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoBook, s.minimumHour
}

// ReplaceAutoBook swaps the whole auto-booking configuration, queue
// included. Replacement, never a merge: a half-updated queue must never be
// observable mid-poll.
func (s *RunState) ReplaceAutoBook(cfg AutoBookSettings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	q := make([]BookingRequest, len(cfg.Queue))
	copy(q, cfg.Queue)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoBook = cfg.Enabled
	s.minimumHour = cfg.MinimumHour
	s.queue = q
	return nil
}

// DisableAutoBook turns auto-booking off, used when the queue drains.
func (s *RunState) DisableAutoBook() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoBook = false
}

func (s *RunState) PeekHead() (BookingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return BookingRequest{}, false
	}
	return s.queue[0], true
}

// PopHead removes the head entry permanently. Only called after a terminal
// success for that entry.
func (s *RunState) PopHead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
}

// Queue returns a copy of the pending entries for the dashboard.
// Credentials are included; callers decide what to expose.
func (s *RunState) Queue() []BookingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BookingRequest, len(s.queue))
	copy(out, s.queue)
	return out
}

func (s *RunState) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NotePoll counts one poll attempt in the running and per-period totals.
func (s *RunState) NotePoll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalPolls++
	s.periodPolls++
}

// NoteAvailability records a positive availability payload. Returns true
// when the payload differs from the previously recorded one; identical
// consecutive payloads mark the period as changed but do not increment
// totalChanges again.
func (s *RunState) NoteAvailability(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periodChanged = true
	if payload == s.lastPayload {
		return false
	}
	s.totalChanges++
	s.lastPayload = payload
	s.lastChangeAt = time.Now()
	return true
}

// FlushPeriod returns and resets the per-period counters for the hourly
// summary line.
func (s *RunState) FlushPeriod() (polls int, changed bool, lastChangeAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	polls, changed, lastChangeAt = s.periodPolls, s.periodChanged, s.lastChangeAt
	s.periodPolls = 0
	s.periodChanged = false
	return polls, changed, lastChangeAt
}

func (s *RunState) AppendBooked(b BookedAppointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booked = append(s.booked, b)
}

func (s *RunState) Booked() []BookedAppointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BookedAppointment, len(s.booked))
	copy(out, s.booked)
	return out
}

// ResetCounters clears running totals and the booked-appointment log. The
// queue is untouched; only an explicit queue replacement clears it.
func (s *RunState) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalPolls = 0
	s.totalChanges = 0
	s.periodPolls = 0
	s.periodChanged = false
	s.lastChangeAt = time.Time{}
	s.lastPayload = ""
	s.booked = nil
}

func (s *RunState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:       s.running,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		TotalPolls:    s.totalPolls,
		TotalChanges:  s.totalChanges,
		LastChangeAt:  s.lastChangeAt,
		LastChange:    s.lastPayload,
		AutoBook:      s.autoBook,
		MinimumHour:   s.minimumHour,
		QueueLength:   len(s.queue),
		BookedCount:   len(s.booked),
		Target:        s.target,
	}
}
