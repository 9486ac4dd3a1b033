package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcal-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath  string
	flagCalendar    string
	flagCalendarURL string
	flagJSON        bool
	flagVerbose     bool
	flagDebug       bool
	flagQuiet       bool
)

// Command annotations read by the root pre-run.
const (
	// offlineAnnotation marks commands that never touch the network. They
	// get no calendar stack and no passive login.
	offlineAnnotation = "gcal-go/offline"
	// skipLoginAnnotation marks commands that manage the login themselves.
	skipLoginAnnotation = "gcal-go/skip-login"
)

// CLIFlags holds the parsed persistent flags.
type CLIFlags struct {
	ConfigPath  string
	Calendar    string
	CalendarURL string
	JSON        bool
	Verbose     bool
	Debug       bool
	Quiet       bool
}

// CLIContext is what every command receives through its context: flags,
// the effective configuration, the logger, and the wired calendar stack.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	App    *app
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// cliContextFrom returns the CLIContext stored by the root pre-run, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	if ctx == nil {
		return nil
	}

	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc
}

// mustCLIContext is cliContextFrom for commands that cannot run without one.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("gcal-go: command run without CLIContext")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gcal-go",
		Short:   "Google Calendar CLI client",
		Long:    "List, create, update, and delete Google Calendar events from the command line.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors:      true,
		SilenceUsage:       true,
		PersistentPreRunE:  preRun,
		PersistentPostRunE: postRun,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVar(&flagCalendar, "calendar", "", "calendar id (overrides calendar_url)")
	pf.StringVar(&flagCalendarURL, "calendar-url", "", "shareable or embed URL of the calendar")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newQuickAddCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newJournalCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func currentFlags() CLIFlags {
	return CLIFlags{
		ConfigPath:  flagConfigPath,
		Calendar:    flagCalendar,
		CalendarURL: flagCalendarURL,
		JSON:        flagJSON,
		Verbose:     flagVerbose,
		Debug:       flagDebug,
		Quiet:       flagQuiet,
	}
}

// preRun resolves configuration, builds the logger and the calendar stack,
// and performs the passive login for commands that talk to the calendar.
func preRun(cmd *cobra.Command, _ []string) error {
	flags := currentFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)
	ctx := shutdownContext(cmd.Context(), logger)

	cc := &CLIContext{Flags: flags, Cfg: cfg, Logger: logger}
	cmd.SetContext(withCLIContext(ctx, cc))

	if cmd.Annotations[offlineAnnotation] != "" {
		return nil
	}

	a, err := newApp(ctx, cfg, flags, logger)
	if err != nil {
		return err
	}

	cc.App = a

	if cmd.Annotations[skipLoginAnnotation] != "" {
		return nil
	}

	// Passive failures are logged by the engine, never returned; a client
	// without a token falls back to the API key.
	if err := a.Engine.Login(ctx, true); err != nil {
		return err
	}

	grantWrite(a.Session)

	return nil
}

// postRun releases the calendar stack after a successful command.
func postRun(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())
	if cc == nil || cc.App == nil {
		return nil
	}

	return cc.App.Close()
}

// loadConfig resolves the effective configuration from the four-layer
// override chain.
func loadConfig(flags CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{
		ConfigPath:  flags.ConfigPath,
		Calendar:    flags.Calendar,
		CalendarURL: flags.CalendarURL,
		LogLevel:    flagLogLevel(flags),
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// flagLogLevel maps --quiet/--verbose/--debug to a log level. CLI flags
// always win over the config file; empty means "not given".
func flagLogLevel(flags CLIFlags) string {
	switch {
	case flags.Debug:
		return "debug"
	case flags.Verbose:
		return "info"
	case flags.Quiet:
		return "error"
	default:
		return ""
	}
}

// buildLogger creates an slog.Logger writing to stderr at the resolved
// level and format.
func buildLogger(cfg *config.Resolved) *slog.Logger {
	level, format := "warn", "auto"
	if cfg != nil {
		level, format = cfg.LogLevel, cfg.LogFormat
	}

	return slog.New(newLogHandler(os.Stderr, level, format, isTerminal(os.Stderr)))
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newLogHandler picks the handler for format. "auto" is text on a terminal
// and JSON otherwise.
func newLogHandler(w io.Writer, level, format string, tty bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if format == "json" || (format == "auto" && !tty) {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
