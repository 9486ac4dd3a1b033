package config

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as an annotated TOML-ish
// summary. Secrets are shown only as set or unset.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.ConfigPath != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	ew.printf("calendar         = %q  # from %s\n", r.Calendar.ID, r.Calendar.Source)
	ew.printf("api_domain       = %q\n", r.APIDomain)
	ew.printf("userinfo_url     = %q\n", r.UserinfoURL)
	ew.printf("api_key          = %s\n", secret(r.APIKey))
	ew.printf("client_id        = %q\n", r.ClientID)
	ew.printf("client_secret    = %s\n", secret(r.ClientSecret))
	ew.printf("scopes           = [%s]\n", joinQuoted(r.Scopes))
	ew.printf("redirect_url     = %q\n", r.RedirectURL)
	ew.printf("token_path       = %q\n", r.TokenPath)
	ew.printf("parallel_updates = %d\n", r.ParallelUpdates)
	ew.printf("journal          = %t\n", r.Journal)
	ew.printf("journal_path     = %q\n", r.JournalPath)
	ew.printf("log_level        = %q\n", r.LogLevel)
	ew.printf("log_format       = %q\n", r.LogFormat)
	ew.printf("http_timeout     = %q\n", r.HTTPTimeout.String())
	ew.printf("user_agent       = %q\n", r.UserAgent)

	if len(r.Search) > 0 {
		ew.printf("\n[search]\n")

		for _, k := range slices.Sorted(maps.Keys(r.Search)) {
			ew.printf("%s = %q\n", k, r.Search[k])
		}
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func secret(v string) string {
	if v == "" {
		return `""`
	}

	return redacted
}

func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
