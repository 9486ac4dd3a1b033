package main

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcal-go/internal/journal"
)

// defaultJournalLimit is how many entries `journal` lists without --limit.
const defaultJournalLimit = 20

func newJournalCmd() *cobra.Command {
	var (
		limit int
		prune string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent create, update, and delete outcomes",
		Long: `List the per-item outcomes of recent mutating batches, newest first. Only
outcomes are kept, never event contents. Requires journal = true.

With --prune, batches older than the given age are removed instead, e.g.
--prune 30d or --prune 12h.`,
		Annotations: map[string]string{offlineAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJournal(cmd, limit, prune)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultJournalLimit, "number of entries to show")
	cmd.Flags().StringVar(&prune, "prune", "", "remove batches older than this age (e.g. 30d, 12h)")

	return cmd
}

func runJournal(cmd *cobra.Command, limit int, prune string) error {
	cc := mustCLIContext(cmd.Context())

	if !cc.Cfg.Journal {
		cc.Statusf("The journal is off. Set journal = true in %s to record outcomes.\n", configPathHint(cc.Cfg))
		return nil
	}

	store, err := journal.Open(cmd.Context(), cc.Cfg.JournalPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer store.Close()

	if prune != "" {
		age, err := parseDuration(prune)
		if err != nil {
			return fmt.Errorf("invalid --prune %q: %w", prune, err)
		}

		n, err := store.Prune(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("pruning journal: %w", err)
		}

		cc.Statusf("Removed %d batches.\n", n)

		return nil
	}

	entries, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}

	if cc.Flags.JSON {
		return writeJSON(cmd.OutOrStdout(), entries)
	}

	printJournal(cmd.OutOrStdout(), entries)

	return nil
}

func printJournal(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recorded outcomes.")
		return
	}

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		status := ""
		if e.Status != 0 {
			status = strconv.Itoa(e.Status)
		}

		rows = append(rows, []string{
			formatTime(e.RecordedAt.Local()),
			e.Action,
			e.Target,
			e.Kind,
			status,
			e.Message,
		})
	}

	printTable(w, []string{"TIME", "ACTION", "TARGET", "RESULT", "STATUS", "MESSAGE"}, rows)
}

// hoursPerDay is used to convert day durations to hours.
const hoursPerDay = 24

// durationPattern matches durations like "30m", "2h", "1d", "1h30m".
var durationPattern = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// durationPart extracts each number-unit pair.
var durationPart = regexp.MustCompile(`(\d+)([dhms])`)

// parseDuration parses a human-friendly duration string. Supports Go duration
// syntax (e.g., "2h30m") plus a "d" suffix for days (converted to 24h).
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}

		return d, nil
	}

	if s == "" || !durationPattern.MatchString(s) {
		return 0, fmt.Errorf("expected format like 30m, 2h, 1d, or 1h30m")
	}

	var total time.Duration

	for _, match := range durationPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", match[1], err)
		}

		switch match[2] {
		case "d":
			total += time.Duration(n) * hoursPerDay * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}

	return total, nil
}
