package italcambio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	pathGeneral     = "/appointmentAPI/public/exchange/availaptment.php"
	pathHourly      = "/appointmentAPI/public/exchange/availaptmentbyhour.php"
	pathEntitlement = "/appointmentAPI/public/exchange/checkamountbyparty.php"
	pathBook        = "/appointmentAPI/public/exchange/appointment.php"

	defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// The vendor replies 200 with this object instead of an empty array.
	noAvailabilityMessage = "Sin Disponibilidad"

	// Exact amount an entitlement check must report for a party to book.
	requiredAmount = 100
)

// DefaultSuccessPhrases are the known vendor wordings for a successful
// submission. The list is overridable because the response text is not a
// stable contract.
var DefaultSuccessPhrases = []string{"exitosamente", "Cita generada"}

// Slot is one availability entry, both in the general and the hourly
// responses. Fetched fresh each pass, never cached.
type Slot struct {
	ScheduleID int    `json:"idschedule"`
	Date       string `json:"idfecha"`
	Hour       string `json:"hora"` // 12-hour "HH:MM AM/PM"
	Capacity   int    `json:"capacidaddisponible"`
}

// BookingResult carries the vendor's submission response. Success is decided
// by message content first; the HTTP status is only a fallback because the
// vendor sometimes pairs a success message with a 4xx status.
type BookingResult struct {
	Success       bool
	Message       string
	AppointmentID int
	StatusCode    int
}

// Client wraps the four vendor operations. Stateless: no retries, no timing
// concerns, one fixed timeout per request. Retry and backoff policy belong
// to the caller.
type Client struct {
	hc      *http.Client
	base    string
	ua      string
	success []string
}

func New(baseURL string, timeout time.Duration, successPhrases []string) *Client {
	if len(successPhrases) == 0 {
		successPhrases = DefaultSuccessPhrases
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		base:    strings.TrimRight(baseURL, "/"),
		ua:      defaultUA,
		success: successPhrases,
	}
}

// GeneralAvailability checks whether the location has any open capacity.
func (c *Client) GeneralAvailability(ctx context.Context, locationID int) ([]Slot, Outcome) {
	payload := map[string]any{"idlocation": locationID}
	status, body, err := c.do(ctx, pathGeneral, payload, "")
	if err != nil {
		return nil, transport(err.Error(), isTimeout(err))
	}
	switch {
	case status == http.StatusTooManyRequests:
		return nil, rateLimited()
	case status == http.StatusBadRequest, status == http.StatusNotFound:
		// "no slot" replies, not transport failures
		return nil, noAvailability()
	case status != http.StatusOK:
		return nil, transport(fmt.Sprintf("unexpected status %d", status), false)
	}

	entries, sentinel, perr := parseSlotBody(body)
	if perr != nil {
		return nil, transport(perr.Error(), false)
	}
	if sentinel || len(entries) == 0 {
		return nil, noAvailability()
	}
	return entries, ok()
}

// HourlyAvailability fetches the fine-grained slots for a location/date.
func (c *Client) HourlyAvailability(ctx context.Context, locationID int, date string) ([]Slot, Outcome) {
	payload := map[string]any{"idlocation": locationID, "date": date}
	status, body, err := c.do(ctx, pathHourly, payload, "")
	if err != nil {
		return nil, transport(err.Error(), isTimeout(err))
	}
	switch {
	case status == http.StatusTooManyRequests:
		return nil, rateLimited()
	case status == http.StatusNotFound:
		return nil, noAvailability()
	case status != http.StatusOK:
		return nil, transport(fmt.Sprintf("unexpected status %d", status), false)
	}

	entries, sentinel, perr := parseSlotBody(body)
	if perr != nil {
		return nil, transport(perr.Error(), false)
	}
	if sentinel || len(entries) == 0 {
		return nil, noAvailability()
	}
	return entries, ok()
}

// EntitlementOK reports whether the party's amount check passes. A failed
// check is a routine negative result, never an error: anything other than a
// 200 whose first entry carries the exact required amount is false.
func (c *Client) EntitlementOK(ctx context.Context, partyID int, date, credential string) bool {
	payload := map[string]any{"idparty": partyID, "date": date}
	status, body, err := c.do(ctx, pathEntitlement, payload, credential)
	if err != nil || status != http.StatusOK {
		return false
	}
	var entries []struct {
		Amount int `json:"amount"`
	}
	if json.Unmarshal(body, &entries) != nil || len(entries) == 0 {
		return false
	}
	return entries[0].Amount == requiredAmount
}

// BookAppointment submits one appointment for the party. Message content is
// checked against the success phrases before any status-code classification.
func (c *Client) BookAppointment(ctx context.Context, partyID, scheduleID int, date, credential string) (BookingResult, Outcome) {
	payload := map[string]any{
		"idparty":    partyID,
		"idschedule": scheduleID,
		"date":       date,
	}
	status, body, err := c.do(ctx, pathBook, payload, credential)
	if err != nil {
		return BookingResult{}, transport(err.Error(), isTimeout(err))
	}

	var parsed struct {
		Message       string `json:"message"`
		Error         string `json:"error"`
		Info          string `json:"info"`
		AppointmentID int    `json:"idappointment"`
		StatusCode    int    `json:"statuscode"`
	}
	_ = json.Unmarshal(body, &parsed)

	msg := parsed.Message
	if msg == "" {
		msg = parsed.Error
	}
	res := BookingResult{
		Message:       msg,
		AppointmentID: parsed.AppointmentID,
		StatusCode:    parsed.StatusCode,
	}
	if res.StatusCode == 0 {
		res.StatusCode = status
	}

	if msg != "" && matchesSuccess(msg, c.success) {
		res.Success = true
		return res, ok()
	}
	if status == http.StatusTooManyRequests || parsed.StatusCode == http.StatusTooManyRequests {
		return res, rateLimited()
	}
	if msg == "" && (status < 200 || status >= 300) {
		return res, transport(fmt.Sprintf("unexpected status %d", status), false)
	}
	// Logical rejection ("Cupos Agotados" and friends): completed call,
	// unsuccessful booking.
	return res, ok()
}

// matchesSuccess is the single place submission responses are classified as
// successful, by case-insensitive substring match.
func matchesSuccess(msg string, phrases []string) bool {
	lower := strings.ToLower(msg)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// parseSlotBody handles the vendor's two 200 shapes: a JSON array of slots,
// or an object carrying the no-availability sentinel message.
func parseSlotBody(body []byte) (entries []Slot, sentinel bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, false, fmt.Errorf("malformed availability body: %w", err)
		}
		return entries, false, nil
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false, fmt.Errorf("malformed availability body: %w", err)
	}
	if strings.EqualFold(obj.Message, noAvailabilityMessage) {
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("unexpected availability body: %s", trimmed)
}

func (c *Client) do(ctx context.Context, path string, payload any, credential string) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("user-agent", c.ua)
	if credential != "" {
		req.Header.Set("cookie", credential)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
