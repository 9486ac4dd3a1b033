package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/tonimelisma/gcal-go/internal/calsync"
	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// errReported marks a command whose failures the host already printed.
var errReported = errors.New("errors reported")

// Reference keywords that select the whole loaded collection.
const (
	refAll      = "all"
	refWildcard = "*"
)

// cliHost is the terminal side of the engine: it resolves references over
// the last loaded collection, prints errors and warnings to stderr, shows
// transient status lines, and renders the collection when it changes.
type cliHost struct {
	out    io.Writer
	errOut io.Writer
	json   bool
	quiet  bool
	tty    bool // errOut is a terminal; status lines are redrawn in place
	logger *slog.Logger

	mu       sync.Mutex
	events   []*gcal.Event
	status   string
	reported int
	warned   int
	user     *gcal.User
}

var (
	_ calsync.Host       = (*cliHost)(nil)
	_ gcal.LoginObserver = (*cliHost)(nil)
)

func newCLIHost(out, errOut io.Writer, flags CLIFlags, tty bool, logger *slog.Logger) *cliHost {
	return &cliHost{
		out:    out,
		errOut: errOut,
		json:   flags.JSON,
		quiet:  flags.Quiet,
		tty:    tty,
		logger: logger,
	}
}

// remember replaces the collection references resolve against.
func (h *cliHost) remember(events []*gcal.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = slices.Clone(events)
}

// ResolveReferences maps ref to events of the loaded collection: "all" or
// "*" selects every event, anything else matches an event id.
func (h *cliHost) ResolveReferences(ref string) []*gcal.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ref = strings.TrimSpace(ref)

	if ref == refAll || ref == refWildcard {
		return slices.Clone(h.events)
	}

	for _, ev := range h.events {
		if ev != nil && ev.Id == ref {
			return []*gcal.Event{ev}
		}
	}

	return nil
}

func (h *cliHost) ReportError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reported++
	h.clearStatusLocked()
	fmt.Fprintf(h.errOut, "Error: %s\n", describeError(err))
}

func (h *cliHost) Warn(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.warned++
	h.clearStatusLocked()
	fmt.Fprintf(h.errOut, "Warning: %s\n", describeError(err))
}

// SetStatus shows a transient status line; "" clears it. On a terminal the
// line is redrawn in place, elsewhere each status is printed once.
func (h *cliHost) SetStatus(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.quiet {
		return
	}

	if status == "" {
		h.clearStatusLocked()
		return
	}

	h.status = status

	if h.tty {
		fmt.Fprintf(h.errOut, "\r\033[K%s", status)
		return
	}

	fmt.Fprintln(h.errOut, status)
}

func (h *cliHost) clearStatusLocked() {
	if h.status == "" {
		return
	}

	if h.tty {
		fmt.Fprint(h.errOut, "\r\033[K")
	}

	h.status = ""
}

// DataChanged stores the refreshed collection and renders it.
func (h *cliHost) DataChanged(events []*gcal.Event) {
	h.remember(events)

	if err := h.render(events); err != nil {
		h.logger.Warn("rendering events failed", slog.String("error", err.Error()))
	}
}

// LoggedIn records the signed-in profile.
func (h *cliHost) LoggedIn(u gcal.User) {
	h.mu.Lock()
	h.user = &u
	h.mu.Unlock()

	h.logger.Debug("signed in", slog.String("name", u.Name))
}

// SignedInAs returns the profile name of the signed-in account, or "".
func (h *cliHost) SignedInAs() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.user == nil {
		return ""
	}

	return h.user.Name
}

// render writes events as a table, or as JSON with --json.
func (h *cliHost) render(events []*gcal.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.json {
		return writeJSON(h.out, events)
	}

	printEventTable(h.out, events)

	return nil
}

// Reported returns how many errors were shown to the user.
func (h *cliHost) Reported() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.reported
}

// Warned returns how many warnings were shown to the user.
func (h *cliHost) Warned() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.warned
}

// finishBatch prints the outcome summary and turns failures into
// errReported so the command exits non-zero without printing them twice.
func (h *cliHost) finishBatch(res calsync.Results) error {
	if len(res.Outcomes) == 0 && h.Reported() == 0 {
		return nil
	}

	failed := res.Failed() > 0 || h.Reported() > 0

	if failed {
		if len(res.Outcomes) > 0 {
			fmt.Fprintln(h.errOut, res.String())
		}

		return errReported
	}

	if !h.quiet {
		fmt.Fprintln(h.errOut, res.String())
	}

	return nil
}
