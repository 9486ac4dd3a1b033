package gcal

import (
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
)

// EventKind marks a record the server has persisted as a calendar event.
const EventKind = "calendar#event"

// Event and EventDateTime are the Calendar v3 wire types.
type (
	Event         = calendar.Event
	EventDateTime = calendar.EventDateTime
)

// eventList is the list response envelope.
type eventList = calendar.Events

// canonicalInstant is the absolute UTC form date-times are sent in.
const canonicalInstant = "2006-01-02T15:04:05.000Z07:00"

// localDateTime is accepted when an explicit timeZone says where it applies.
const localDateTime = "2006-01-02T15:04:05"

// IsRealEvent reports whether ev came back from the server as a persisted
// event. Locally built or stale records fail this check.
func IsRealEvent(ev *Event) bool {
	return ev != nil && ev.Kind == EventKind && ev.Id != ""
}

// HasTime reports whether dt carries either a date or a date-time.
func HasTime(dt *EventDateTime) bool {
	return dt != nil && (strings.TrimSpace(dt.Date) != "" || strings.TrimSpace(dt.DateTime) != "")
}

// NormalizeEvent returns a copy of ev with start, end, and originalStartTime
// date-times rewritten as absolute UTC instants. All-day date fields are left
// untouched. ev itself is never modified.
func NormalizeEvent(ev *Event, logger *slog.Logger) *Event {
	if ev == nil {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	out := *ev
	out.Start = normalizeDateTime(ev.Start, "start", logger)
	out.End = normalizeDateTime(ev.End, "end", logger)
	out.OriginalStartTime = normalizeDateTime(ev.OriginalStartTime, "originalStartTime", logger)

	return &out
}

func normalizeDateTime(dt *EventDateTime, field string, logger *slog.Logger) *EventDateTime {
	if dt == nil {
		return nil
	}

	out := *dt
	raw := strings.TrimSpace(dt.DateTime)

	if raw == "" {
		return &out
	}

	t, ok := parseInstant(raw, dt.TimeZone)
	if !ok {
		// The server is the authority on malformed input; send it as given.
		logger.Debug("leaving unparseable date-time as is",
			slog.String("field", field),
			slog.String("value", raw),
		)

		return &out
	}

	out.DateTime = t.UTC().Format(canonicalInstant)

	return &out
}

func parseInstant(raw, zone string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}

	if zone == "" {
		return time.Time{}, false
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(localDateTime, raw, loc)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}
