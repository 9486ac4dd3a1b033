package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tonimelisma/gcal-go/internal/calsync"
	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Fixed-width date layouts for the event table.
const (
	dateOnlyLayout = "2006-01-02"
	noSummary      = "(no title)"
)

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// formatWhen renders an event boundary in local time. All-day dates are
// shown as given; unparseable values are passed through.
func formatWhen(dt *gcal.EventDateTime) string {
	if dt == nil {
		return ""
	}

	if dt.Date != "" {
		if d, err := time.Parse(dateOnlyLayout, dt.Date); err == nil {
			return d.Format("Jan _2  2006")
		}

		return dt.Date
	}

	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return dt.DateTime
	}

	return formatTime(t.Local())
}

// printEventTable writes the collection as aligned columns.
func printEventTable(w io.Writer, events []*gcal.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}

	rows := make([][]string, 0, len(events))

	for _, ev := range events {
		if ev == nil {
			continue
		}

		summary := ev.Summary
		if summary == "" {
			summary = noSummary
		}

		rows = append(rows, []string{ev.Id, formatWhen(ev.Start), formatWhen(ev.End), summary})
	}

	printTable(w, []string{"ID", "START", "END", "SUMMARY"}, rows)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// preconditionMessages are the human forms of client-side rejections.
var preconditionMessages = []struct {
	err error
	msg string
}{
	{calsync.ErrAuthRequired, "you are not signed in; run 'gcal-go login' first"},
	{calsync.ErrMissingTimes, "an event needs both a start and an end"},
	{calsync.ErrNotRealEvent, "only saved calendar events can be changed"},
	{calsync.ErrUnresolved, "no loaded event matches that reference"},
	{calsync.ErrNoTargets, "nothing to update"},
	{calsync.ErrNoValues, "no update values were given"},
	{calsync.ErrUnpaired, "this value has no matching event"},
	{calsync.ErrEmptyText, "the quick-add text is blank"},
}

// describeError turns an engine report into one line a user can act on.
func describeError(err error) string {
	var itemErr *calsync.ItemError
	if errors.As(err, &itemErr) {
		desc := describeCause(itemErr.Err)
		if itemErr.Target == "" {
			return desc
		}

		return fmt.Sprintf("%s: %s", itemErr.Target, desc)
	}

	return describeCause(err)
}

func describeCause(err error) string {
	for _, p := range preconditionMessages {
		if errors.Is(err, p.err) {
			return p.msg
		}
	}

	var c *gcal.Classification
	if !errors.As(err, &c) {
		return err.Error()
	}

	switch c.Kind {
	case gcal.KindPermissionDenied:
		if c.Scope == gcal.ScopeWrite {
			return "you don't have permission to change events in this calendar"
		}

		return "you don't have permission to read this calendar"
	case gcal.KindNotFound:
		if c.Scope == gcal.ScopeEvent {
			return "the event no longer exists"
		}

		return "the calendar was not found; check the calendar id or URL"
	case gcal.KindAlreadyGone:
		return "the event was already deleted"
	case gcal.KindValidationFailed:
		if c.Message != "" {
			return "the server rejected the event: " + c.Message
		}

		return "the server rejected the event"
	case gcal.KindAuthExpired:
		return "your sign-in expired; run 'gcal-go login' again"
	default:
		if c.Message != "" {
			return c.Message
		}

		return c.Error()
	}
}
