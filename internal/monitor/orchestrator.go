package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/cita-scheduler/internal/italcambio"
	"github.com/example/cita-scheduler/internal/state"
)

// orchestrate runs the booking workflow for one detected availability
// signal: fetch hourly slots, filter by the minimum-hour floor, check the
// queue head's entitlement and attempt exactly one submission. Every step
// short-circuits; the head entry is only removed after a confirmed success.
// Returns true when the caller should back off (submission rate limited).
func (m *Monitor) orchestrate(ctx context.Context, target state.PollTarget, general []italcambio.Slot) bool {
	enabled, minimumHour := m.State.AutoBook()
	if !enabled || len(general) == 0 {
		return false
	}

	slots, out := m.Client.HourlyAvailability(ctx, target.LocationID, target.Date)
	switch out.Status {
	case italcambio.StatusOK:
	case italcambio.StatusNoAvailability:
		// General signal without hourly slots: a gap, not an error.
		m.Log.Printf("availability gap: general signal but no hourly slots for %s", target.Date)
		return false
	case italcambio.StatusRateLimited:
		m.Log.Printf("vendor rate limit on hourly check, backing off")
		return true
	default:
		m.Log.Printf("hourly availability check failed: %s", out.Detail)
		return false
	}

	qualifying := filterByMinimumHour(slots, minimumHour)
	if len(qualifying) == 0 {
		m.Log.Printf("no slots at or after %s (got %d earlier slots)", minimumHour, len(slots))
		return false
	}

	head, ok := m.State.PeekHead()
	if !ok {
		m.Log.Printf("warning: availability open but booking queue is empty")
		return false
	}

	if !m.Client.EntitlementOK(ctx, head.PartyID, target.Date, head.Credential) {
		// Head keeps its place; retried on the next availability signal.
		m.Log.Printf("entitlement check failed for party %d, keeping entry queued", head.PartyID)
		return false
	}

	// First qualifying slot in vendor order; no re-sorting.
	slot := qualifying[0]
	res, out := m.Client.BookAppointment(ctx, head.PartyID, slot.ScheduleID, target.Date, head.Credential)
	switch {
	case out.Status == italcambio.StatusRateLimited:
		m.Log.Printf("vendor rate limit on submission for party %d, backing off", head.PartyID)
		return true
	case out.Status != italcambio.StatusOK:
		m.Log.Printf("submission failed for party %d: %s", head.PartyID, out.Detail)
		return false
	case !res.Success:
		m.Log.Printf("submission rejected for party %d: %s", head.PartyID, res.Message)
		return false
	}

	booked := state.BookedAppointment{
		PartyID:      head.PartyID,
		ScheduleID:   slot.ScheduleID,
		TimeLabel:    slot.Hour,
		Date:         target.Date,
		BookedAt:     time.Now(),
		StatusCode:   res.StatusCode,
		Confirmation: res.Message,
	}
	m.State.AppendBooked(booked)
	m.State.PopHead()
	m.Log.Printf("booked appointment %d for party %d at %s on %s",
		res.AppointmentID, head.PartyID, slot.Hour, target.Date)

	if m.Archive != nil {
		if err := m.Archive.Insert(ctx, booked); err != nil {
			m.Log.Printf("archive insert failed: %v", err)
		}
	}
	m.sendConfirmation(ctx, head, booked)

	if m.State.QueueLen() == 0 {
		m.State.DisableAutoBook()
		m.Log.Printf("booking queue drained, auto-booking disabled")
	}
	return false
}

func (m *Monitor) sendConfirmation(ctx context.Context, req state.BookingRequest, b state.BookedAppointment) {
	if m.Notify == nil || req.NotifyEmail == "" {
		return
	}
	subject := fmt.Sprintf("Cita confirmada: %s %s", b.Date, b.TimeLabel)
	body := fmt.Sprintf("Appointment booked for party %d on %s at %s (schedule %d).\n%s\n",
		b.PartyID, b.Date, b.TimeLabel, b.ScheduleID, b.Confirmation)
	if err := m.Notify.Send(ctx, req.NotifyEmail, subject, body); err != nil {
		m.Log.Printf("confirmation email to %s failed: %v", req.NotifyEmail, err)
	}
}

// filterByMinimumHour keeps slots whose 24-hour time is at or after floor,
// preserving vendor order. Comparison is lexical on zero-padded "HH:MM",
// which is ordering-correct for fixed-width times.
func filterByMinimumHour(slots []italcambio.Slot, floor string) []italcambio.Slot {
	if floor == "" {
		return slots
	}
	var out []italcambio.Slot
	for _, s := range slots {
		h, ok := hour24(s.Hour)
		if !ok {
			continue
		}
		if h >= floor {
			out = append(out, s)
		}
	}
	return out
}

// hour24 converts the vendor's 12-hour "HH:MM AM/PM" label to zero-padded
// 24-hour "HH:MM".
func hour24(label string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(label))
	if len(parts) != 2 {
		return "", false
	}
	hm := strings.SplitN(parts[0], ":", 2)
	if len(hm) != 2 {
		return "", false
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 1 || h > 12 {
		return "", false
	}
	switch strings.ToUpper(parts[1]) {
	case "AM":
		if h == 12 {
			h = 0
		}
	case "PM":
		if h != 12 {
			h += 12
		}
	default:
		return "", false
	}
	return fmt.Sprintf("%02d:%s", h, hm[1]), true
}
