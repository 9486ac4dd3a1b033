// Package journal keeps a local SQLite record of mutating batches and their
// per-item outcomes. It stores what happened to each item, never the event
// bodies themselves.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/gcal-go/internal/calsync"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultRecent is the number of entries Recent returns for a limit <= 0.
const DefaultRecent = 50

const (
	sqlInsertBatch = `INSERT INTO batches (batch_id, action, refreshed, recorded_at)
		VALUES (?, ?, ?, ?)`

	sqlInsertOutcome = `INSERT INTO outcomes (batch_id, item_index, target, kind, status, message)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlRecent = `SELECT b.batch_id, b.action, b.refreshed, b.recorded_at,
		o.item_index, o.target, o.kind, o.status, o.message
		FROM outcomes o JOIN batches b ON b.batch_id = o.batch_id
		ORDER BY b.recorded_at DESC, o.id DESC
		LIMIT ?`

	sqlPrune = `DELETE FROM batches WHERE recorded_at < ?`
)

// Entry is one journaled item outcome.
type Entry struct {
	BatchID    string    `json:"batch_id"`
	Action     string    `json:"action"`
	Refreshed  bool      `json:"refreshed"`
	RecordedAt time.Time `json:"recorded_at"`
	Index      int       `json:"index"`
	Target     string    `json:"target"`
	Kind       string    `json:"kind"`
	Status     int       `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// OK reports whether the entry records a success.
func (e Entry) OK() bool {
	return e.Kind == "ok" || e.Kind == "already_gone"
}

// Store is the journal database. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

var _ calsync.Recorder = (*Store)(nil)

// Open opens (creating if needed) the journal at path and applies pending
// migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("path", path))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies all pending schema migrations using the goose
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one batch and its outcomes in a single transaction.
// Batches without an id (rejected before any item ran) are skipped.
func (s *Store) Record(ctx context.Context, res calsync.Results) (err error) {
	if res.BatchID == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, sqlInsertBatch,
		res.BatchID, res.Action.String(), boolToInt(res.Refreshed), s.nowFunc().UnixNano(),
	); err != nil {
		return fmt.Errorf("journal: inserting batch %s: %w", res.BatchID, err)
	}

	for _, o := range res.Outcomes {
		var msg string
		if o.Err != nil {
			msg = o.Err.Error()
		}

		if _, err = tx.ExecContext(ctx, sqlInsertOutcome,
			res.BatchID, o.Index, o.Target, o.Kind(), o.Status(), msg,
		); err != nil {
			return fmt.Errorf("journal: inserting outcome: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("journal: committing batch %s: %w", res.BatchID, err)
	}

	s.logger.Debug("journaled batch",
		slog.String("batch", res.BatchID),
		slog.Int("outcomes", len(res.Outcomes)),
	)

	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}

	rows, err := s.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying recent entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e         Entry
			refreshed int
			at        int64
		)

		if err := rows.Scan(&e.BatchID, &e.Action, &refreshed, &at,
			&e.Index, &e.Target, &e.Kind, &e.Status, &e.Message); err != nil {
			return nil, fmt.Errorf("journal: scanning entry: %w", err)
		}

		e.Refreshed = refreshed == 1
		e.RecordedAt = time.Unix(0, at)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating entries: %w", err)
	}

	return entries, nil
}

// Prune deletes batches recorded before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlPrune, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("journal: pruning: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: counting pruned batches: %w", err)
	}

	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
