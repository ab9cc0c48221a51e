// Package markethours answers market-open and trading-calendar queries
// against the Alpaca trading API, degrading to a fixed schedule when the
// calendar is unavailable. Lookups here are best-effort and must never block
// data collection.
package markethours

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// clockCalendarAPI is the slice of the Alpaca trading client the oracle
// needs. *alpaca.Client satisfies it.
type clockCalendarAPI interface {
	GetClock() (*alpaca.Clock, error)
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Standard session hours used when the calendar cannot tell us better.
const (
	fallbackOpenHour    = 9
	fallbackOpenMinute  = 30
	fallbackCloseHour   = 16
	fallbackCloseMinute = 0
)

// Oracle provides market-hours awareness backed by the Alpaca clock and
// calendar endpoints.
type Oracle struct {
	api clockCalendarAPI
	et  *time.Location
	log *slog.Logger
}

// New creates an Oracle talking to the Alpaca trading API at baseURL with
// the given credentials.
func New(apiKey, secretKey, baseURL string) *Oracle {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: secretKey,
		BaseURL:   baseURL,
	})
	return newWithAPI(client)
}

func newWithAPI(api clockCalendarAPI) *Oracle {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The IANA database ships with the Go toolchain; treat absence as a
		// deployment error but keep the oracle usable with a fixed offset.
		et = time.FixedZone("ET", -5*60*60)
	}
	return &Oracle{
		api: api,
		et:  et,
		log: slog.Default().With("component", "markethours"),
	}
}

// IsOpenNow reports whether the market is open right now. It fails closed:
// an upstream failure is logged and reported as "closed", because callers
// use the closed state to pick a conservative fetch window and an error here
// must not abort collection.
func (o *Oracle) IsOpenNow() bool {
	clock, err := o.api.GetClock()
	if err != nil {
		o.log.Warn("clock lookup failed, assuming market closed", "err", err)
		return false
	}
	return clock.IsOpen
}

// NextOpen returns the next market open instant. The second return is false
// when the clock endpoint is unavailable.
func (o *Oracle) NextOpen() (time.Time, bool) {
	clock, err := o.api.GetClock()
	if err != nil {
		o.log.Warn("clock lookup failed", "err", err)
		return time.Time{}, false
	}
	return clock.NextOpen.UTC(), true
}

// NextClose returns the next market close instant. The second return is
// false when the clock endpoint is unavailable.
func (o *Oracle) NextClose() (time.Time, bool) {
	clock, err := o.api.GetClock()
	if err != nil {
		o.log.Warn("clock lookup failed", "err", err)
		return time.Time{}, false
	}
	return clock.NextClose.UTC(), true
}

// HoursFor returns the session open and close instants (UTC) for the given
// calendar date. Fallback chain: the exact date, then the previous calendar
// date, then synthesized standard hours (09:30-16:00 Eastern) on the
// requested date. It never fails.
func (o *Oracle) HoursFor(date time.Time) (time.Time, time.Time) {
	if open, clos, ok := o.calendarHours(date); ok {
		return open, clos
	}

	prev := date.AddDate(0, 0, -1)
	if open, clos, ok := o.calendarHours(prev); ok {
		return open, clos
	}

	o.log.Warn("calendar empty for date and previous date, synthesizing standard hours",
		"date", date.Format("2006-01-02"))
	return o.standardHours(date)
}

// LastCloseBefore returns the most recent session close at or before now,
// used to clamp fetch windows while the market is shut. When the calendar is
// unavailable it falls back to 16:00 Eastern on the previous day.
func (o *Oracle) LastCloseBefore(now time.Time) time.Time {
	days, err := o.api.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		o.log.Warn("calendar lookup failed, using previous-day fallback", "err", err)
	}

	for i := len(days) - 1; i >= 0; i-- {
		clos, perr := o.parseSessionTime(days[i].Date, days[i].Close)
		if perr != nil {
			continue
		}
		if !clos.After(now) {
			return clos
		}
	}

	_, clos := o.standardHours(now.AddDate(0, 0, -1))
	return clos
}

// calendarHours queries the calendar for a single date and parses the
// session bounds. ok is false when the calendar errors, is empty, or the
// returned times are malformed.
func (o *Oracle) calendarHours(date time.Time) (time.Time, time.Time, bool) {
	days, err := o.api.GetCalendar(alpaca.GetCalendarRequest{Start: date, End: date})
	if err != nil {
		o.log.Warn("calendar lookup failed", "date", date.Format("2006-01-02"), "err", err)
		return time.Time{}, time.Time{}, false
	}
	if len(days) == 0 {
		return time.Time{}, time.Time{}, false
	}

	day := days[0]
	open, err := o.parseSessionTime(day.Date, day.Open)
	if err != nil {
		o.log.Warn("malformed calendar open time", "date", day.Date, "open", day.Open, "err", err)
		return time.Time{}, time.Time{}, false
	}
	clos, err := o.parseSessionTime(day.Date, day.Close)
	if err != nil {
		o.log.Warn("malformed calendar close time", "date", day.Date, "close", day.Close, "err", err)
		return time.Time{}, time.Time{}, false
	}
	return open, clos, true
}

// parseSessionTime combines a calendar date ("2006-01-02") with a session
// time ("HH:MM" or "HH:MM:SS") in Eastern time and returns the UTC instant.
func (o *Oracle) parseSessionTime(date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, o.et)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing calendar date %q: %w", date, err)
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("malformed session time %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed session hour %q: %w", clock, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed session minute %q: %w", clock, err)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, o.et).UTC(), nil
}

// standardHours synthesizes the regular 09:30-16:00 Eastern session on the
// given date, expressed in UTC. The argument's year/month/day are taken as a
// calendar date, not converted between zones.
func (o *Oracle) standardHours(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	open := time.Date(y, m, d, fallbackOpenHour, fallbackOpenMinute, 0, 0, o.et)
	clos := time.Date(y, m, d, fallbackCloseHour, fallbackCloseMinute, 0, 0, o.et)
	return open.UTC(), clos.UTC()
}
