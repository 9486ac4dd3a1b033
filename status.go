package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcal-go/internal/config"
	"github.com/tonimelisma/gcal-go/internal/tokenfile"
)

// Token state constants for status reporting.
const (
	tokenStateMissing   = "missing"
	tokenStateExpired   = "expired"
	tokenStateValid     = "valid"
	tokenStateRefreshes = "valid (refreshes automatically)"
	tokenStateCorrupt   = "unreadable"
)

// Access modes, derived from the token and API key.
const (
	accessSignedIn = "signed in"
	accessAPIKey   = "api key"
	accessPublic   = "public"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the calendar, token, and journal state",
		Long: `Display the configured calendar, the saved token and cached profile, and
whether the outcome journal is enabled. Reads local files only; nothing is
sent to Google.`,
		Annotations: map[string]string{offlineAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	ConfigPath     string    `json:"config_path"`
	Calendar       string    `json:"calendar"`
	CalendarSource string    `json:"calendar_source"`
	Access         string    `json:"access"`
	TokenPath      string    `json:"token_path"`
	TokenState     string    `json:"token_state"`
	Account        string    `json:"account,omitempty"`
	AccountFetched time.Time `json:"account_fetched,omitzero"`
	Journal        bool      `json:"journal"`
	JournalPath    string    `json:"journal_path,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	out := buildStatus(cc.Cfg, time.Now())

	if cc.Flags.JSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}

	printStatusText(cmd.OutOrStdout(), out)

	return nil
}

// buildStatus inspects the token file and summarizes the configuration.
func buildStatus(cfg *config.Resolved, now time.Time) statusOutput {
	out := statusOutput{
		ConfigPath:     cfg.ConfigPath,
		Calendar:       cfg.Calendar.ID,
		CalendarSource: string(cfg.Calendar.Source),
		TokenPath:      cfg.TokenPath,
		Journal:        cfg.Journal,
	}

	if cfg.Journal {
		out.JournalPath = cfg.JournalPath
	}

	tok, acct, err := tokenfile.Load(cfg.TokenPath)

	switch {
	case err != nil:
		out.TokenState = tokenStateCorrupt
	case tok == nil:
		out.TokenState = tokenStateMissing
	case tok.Expiry.IsZero() || tok.Expiry.After(now):
		out.TokenState = tokenStateValid
	case tok.RefreshToken != "":
		out.TokenState = tokenStateRefreshes
	default:
		out.TokenState = tokenStateExpired
	}

	if acct != nil {
		out.Account = acct.Name
		out.AccountFetched = acct.FetchedAt
	}

	out.Access = accessMode(out.TokenState, cfg.APIKey != "")

	return out
}

func accessMode(tokenState string, hasKey bool) string {
	switch {
	case tokenState == tokenStateValid || tokenState == tokenStateRefreshes:
		return accessSignedIn
	case hasKey:
		return accessAPIKey
	default:
		return accessPublic
	}
}

func printStatusText(w io.Writer, out statusOutput) {
	fmt.Fprintf(w, "Calendar: %s (%s)\n", out.Calendar, out.CalendarSource)
	fmt.Fprintf(w, "Access:   %s\n", out.Access)
	fmt.Fprintf(w, "Token:    %s (%s)\n", out.TokenState, out.TokenPath)

	if out.Account != "" {
		fmt.Fprintf(w, "Account:  %s", out.Account)

		if !out.AccountFetched.IsZero() {
			fmt.Fprintf(w, " (as of %s)", formatTime(out.AccountFetched.Local()))
		}

		fmt.Fprintln(w)
	}

	if out.Journal {
		fmt.Fprintf(w, "Journal:  on (%s)\n", out.JournalPath)
	} else {
		fmt.Fprintln(w, "Journal:  off")
	}

	if out.ConfigPath != "" {
		fmt.Fprintf(w, "Config:   %s\n", out.ConfigPath)
	}
}
