package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// stdinPath selects standard input for --file.
const stdinPath = "-"

// eventFlags are the per-field flags of create and update.
type eventFlags struct {
	file        string
	summary     string
	start       string
	end         string
	description string
	location    string
	timeZone    string
}

func (f *eventFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", "JSON event object or array ('-' for stdin)")
	fl.StringVar(&f.summary, "summary", "", "event title")
	fl.StringVar(&f.start, "start", "", "start: RFC 3339 date-time, local date-time with --time-zone, or YYYY-MM-DD")
	fl.StringVar(&f.end, "end", "", "end, same forms as --start")
	fl.StringVar(&f.description, "description", "", "event description")
	fl.StringVar(&f.location, "location", "", "event location")
	fl.StringVar(&f.timeZone, "time-zone", "", "IANA zone for local date-times, e.g. Europe/Helsinki")
}

func (f *eventFlags) fieldsSet() bool {
	return f.summary != "" || f.start != "" || f.end != "" ||
		f.description != "" || f.location != "" || f.timeZone != ""
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List events in the calendar",
		Long: `List the events of the configured calendar. Signed-in clients read with
their token; otherwise the api_key is used. The [search] config table
controls the time window and the number of results.`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}
}

func newCreateCmd() *cobra.Command {
	var f eventFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create events",
		Long: `Create one event from flags, or every event in a JSON file. Each event needs
both a start and an end; date-times are sent as UTC instants.

Examples:
  gcal-go create --summary "Review" --start 2024-05-02T10:00:00+03:00 --end 2024-05-02T11:00:00+03:00
  gcal-go create --summary "Offsite" --start 2024-06-10 --end 2024-06-12
  gcal-go create --file events.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreate(cmd, &f)
		},
	}

	f.bind(cmd)

	return cmd
}

func newQuickAddCmd() *cobra.Command {
	var each bool

	cmd := &cobra.Command{
		Use:   "quick-add TEXT...",
		Short: "Create an event from a sentence",
		Long: `Let Google parse a sentence such as "Lunch with Ana tomorrow 12:30" into an
event. Arguments are joined into one sentence; with --each every argument is
its own event.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuickAdd(cmd, args, each)
		},
	}

	cmd.Flags().BoolVar(&each, "each", false, "treat every argument as a separate event")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var f eventFlags

	cmd := &cobra.Command{
		Use:   "update REF",
		Short: "Patch events",
		Long: `Patch the events REF selects: an event id, or "all" for every listed event.
One value is applied to every target; several values are paired with the
targets in order.

Examples:
  gcal-go update 3q1v0i5n8k --summary "Moved" --start 2024-05-02T14:00:00Z --end 2024-05-02T15:00:00Z
  gcal-go update all --file values.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args[0], &f)
		},
	}

	f.bind(cmd)

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm REF...",
		Short: "Delete events",
		Long: `Delete the events each REF selects: an event id, or "all" for every listed
event. Events that are already gone are reported as warnings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRm,
	}
}

func runLs(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	events, err := loadEvents(cmd.Context(), cc)
	if err != nil {
		return err
	}

	return cc.App.Host.render(events)
}

// loadEvents fetches the collection and makes it the reference base.
func loadEvents(ctx context.Context, cc *CLIContext) ([]*gcal.Event, error) {
	events, ok := cc.App.Engine.Load(ctx)
	if !ok {
		if cc.App.Host.Reported() > 0 {
			return nil, errReported
		}

		return nil, fmt.Errorf("could not load events from calendar %q (run with --verbose for details)", cc.Cfg.Calendar.ID)
	}

	cc.App.Host.remember(events)

	return events, nil
}

func runCreate(cmd *cobra.Command, f *eventFlags) error {
	cc := mustCLIContext(cmd.Context())

	events, err := eventsFromInput(f, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return errors.New("nothing to create: give --file or --summary/--start/--end")
	}

	res := cc.App.Engine.CreateEvent(cmd.Context(), events...)

	return cc.App.Host.finishBatch(res)
}

func runQuickAdd(cmd *cobra.Command, args []string, each bool) error {
	cc := mustCLIContext(cmd.Context())

	texts := args
	if !each {
		texts = []string{strings.Join(args, " ")}
	}

	res := cc.App.Engine.QuickCreateEvent(cmd.Context(), texts...)

	return cc.App.Host.finishBatch(res)
}

func runUpdate(cmd *cobra.Command, ref string, f *eventFlags) error {
	cc := mustCLIContext(cmd.Context())

	values, err := eventsFromInput(f, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if _, err := loadEvents(cmd.Context(), cc); err != nil {
		return err
	}

	res := cc.App.Engine.UpdateEvent(cmd.Context(), ref, values...)

	return cc.App.Host.finishBatch(res)
}

func runRm(cmd *cobra.Command, refs []string) error {
	cc := mustCLIContext(cmd.Context())

	if _, err := loadEvents(cmd.Context(), cc); err != nil {
		return err
	}

	res := cc.App.Engine.DeleteEvent(cmd.Context(), refs...)

	return cc.App.Host.finishBatch(res)
}

// eventsFromInput reads events from --file, or builds one from the field
// flags. Returns nil when neither is given.
func eventsFromInput(f *eventFlags, stdin io.Reader) ([]*gcal.Event, error) {
	if f.file != "" {
		if f.fieldsSet() {
			return nil, errors.New("--file cannot be combined with field flags")
		}

		return readEventsFile(f.file, stdin)
	}

	if !f.fieldsSet() {
		return nil, nil
	}

	ev, err := eventFromFlags(f)
	if err != nil {
		return nil, err
	}

	return []*gcal.Event{ev}, nil
}

// readEventsFile decodes a single JSON event object or an array of them.
func readEventsFile(path string, stdin io.Reader) ([]*gcal.Event, error) {
	var (
		data []byte
		err  error
	)

	if path == stdinPath {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("reading events: %s is empty", path)
	}

	if data[0] == '[' {
		var events []*gcal.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("decoding events from %s: %w", path, err)
		}

		return events, nil
	}

	var ev gcal.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding event from %s: %w", path, err)
	}

	return []*gcal.Event{&ev}, nil
}

// eventFromFlags builds an event from the field flags. Only given fields are
// set, so the same value serves as a patch.
func eventFromFlags(f *eventFlags) (*gcal.Event, error) {
	if f.timeZone != "" {
		if _, err := time.LoadLocation(f.timeZone); err != nil {
			return nil, fmt.Errorf("invalid --time-zone %q: %w", f.timeZone, err)
		}
	}

	return &gcal.Event{
		Summary:     f.summary,
		Description: f.description,
		Location:    f.location,
		Start:       eventDateTime(f.start, f.timeZone),
		End:         eventDateTime(f.end, f.timeZone),
	}, nil
}

// eventDateTime maps a flag value to a date (YYYY-MM-DD) or a date-time.
func eventDateTime(value, zone string) *gcal.EventDateTime {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if _, err := time.Parse(dateOnlyLayout, value); err == nil {
		return &gcal.EventDateTime{Date: value}
	}

	return &gcal.EventDateTime{DateTime: value, TimeZone: zone}
}
