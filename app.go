package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/tonimelisma/gcal-go/internal/calsync"
	"github.com/tonimelisma/gcal-go/internal/config"
	"github.com/tonimelisma/gcal-go/internal/gcal"
	"github.com/tonimelisma/gcal-go/internal/journal"
)

// app is the calendar stack for one command invocation: transport, OAuth
// session, engine, the CLI host, and the optional journal.
type app struct {
	Client  *gcal.Client
	OAuth   *gcal.OAuth
	Session *gcal.Session
	Engine  *calsync.Engine
	Host    *cliHost
	Journal *journal.Store // nil when the journal is disabled
}

// newApp wires the stack from resolved config. Nothing here touches the
// network; the journal database is opened (and migrated) when enabled.
func newApp(ctx context.Context, cfg *config.Resolved, flags CLIFlags, logger *slog.Logger) (*app, error) {
	client := gcal.NewClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.UserAgent, logger)

	oauth := gcal.NewOAuth(gcal.OAuthConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		RedirectURL:  cfg.RedirectURL,
		TokenPath:    cfg.TokenPath,
	}, openBrowser, logger)

	session := gcal.NewSession(oauth, client, cfg.UserinfoURL, logger)

	host := newCLIHost(os.Stdout, os.Stderr, flags, isTerminal(os.Stderr), logger)
	session.Observe(host)

	a := &app{
		Client:  client,
		OAuth:   oauth,
		Session: session,
		Host:    host,
	}

	var recorder calsync.Recorder

	if cfg.Journal {
		store, err := journal.Open(ctx, cfg.JournalPath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}

		a.Journal = store
		recorder = store
	}

	a.Engine = calsync.NewEngine(&calsync.EngineConfig{
		API:             client,
		Session:         session,
		Endpoints:       gcal.NewEndpoints(cfg.APIDomain, cfg.Calendar, cfg.APIKey, cfg.Search),
		Host:            host,
		Recorder:        recorder,
		Logger:          logger,
		ParallelUpdates: cfg.ParallelUpdates,
	})

	logger.Debug("calendar stack ready",
		slog.String("calendar", cfg.Calendar.ID),
		slog.String("calendar_source", string(cfg.Calendar.Source)),
		slog.Bool("api_key", cfg.APIKey != ""),
		slog.Bool("journal", cfg.Journal),
	)

	return a, nil
}

// Close releases the journal, if open.
func (a *app) Close() error {
	if a.Journal == nil {
		return nil
	}

	if err := a.Journal.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}

	return nil
}

var errUnsupportedPlatform = errors.New("no browser launcher for this platform")

// openBrowser starts the platform URL handler without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return errUnsupportedPlatform
	}

	return cmd.Start()
}
