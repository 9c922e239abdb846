package state

import (
	"fmt"
	"regexp"
	"time"
)

var (
	dateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	hourRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// AllowedLocations are the vendor branches the bot may target. Anything else
// is rejected at the configuration boundary.
var AllowedLocations = map[int]string{
	3:  "Caracas CCCT",
	7:  "Caracas Sambil",
	12: "Valencia",
	15: "Maracaibo",
	21: "Barquisimeto",
}

// PollTarget is the branch/date pair every poll cycle reads. It is replaced
// only through SetTarget, never mutated in place.
type PollTarget struct {
	LocationID int    `json:"idlocation"`
	Date       string `json:"date"` // DD/MM/YYYY, vendor format
}

func (t PollTarget) Validate() error {
	if _, ok := AllowedLocations[t.LocationID]; !ok {
		return fmt.Errorf("unknown location id %d", t.LocationID)
	}
	if !dateRe.MatchString(t.Date) {
		return fmt.Errorf("date must be DD/MM/YYYY, got %q", t.Date)
	}
	return nil
}

// BookingRequest is one pending booking: the party to book for and the
// session cookie that authorizes it. Entries are processed strictly in FIFO
// order; duplicates are allowed and handled independently.
type BookingRequest struct {
	PartyID     int    `json:"idparty"`
	Credential  string `json:"-"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// BookedAppointment is an append-only record of a successful submission.
type BookedAppointment struct {
	PartyID      int       `json:"idparty"`
	ScheduleID   int       `json:"idschedule"`
	TimeLabel    string    `json:"hora"`
	Date         string    `json:"date"`
	BookedAt     time.Time `json:"booked_at"`
	StatusCode   int       `json:"statuscode"`
	Confirmation string    `json:"confirmation"`
}

// AutoBookSettings is the orchestrator configuration, replaced atomically as
// a whole on every update.
type AutoBookSettings struct {
	Enabled     bool
	MinimumHour string // "HH:MM", 24-hour, zero-padded
	Queue       []BookingRequest
}

func (s AutoBookSettings) Validate() error {
	if !hourRe.MatchString(s.MinimumHour) {
		return fmt.Errorf("minimum hour must be HH:MM, got %q", s.MinimumHour)
	}
	for i, r := range s.Queue {
		if r.PartyID <= 0 {
			return fmt.Errorf("queue entry %d: party id must be positive", i)
		}
		if r.Credential == "" {
			return fmt.Errorf("queue entry %d: credential required", i)
		}
	}
	return nil
}

// Status is a read-only snapshot served by the dashboard.
type Status struct {
	Running       bool       `json:"running"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	TotalPolls    int        `json:"total_polls"`
	TotalChanges  int        `json:"total_changes"`
	LastChangeAt  time.Time  `json:"last_change_at,omitempty"`
	LastChange    string     `json:"last_change_payload,omitempty"`
	AutoBook      bool       `json:"auto_book"`
	MinimumHour   string     `json:"minimum_hour"`
	QueueLength   int        `json:"queue_length"`
	BookedCount   int        `json:"booked_count"`
	Target        PollTarget `json:"target"`
}
