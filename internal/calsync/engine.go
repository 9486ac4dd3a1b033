package calsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// Transient status messages shown while a batch is in flight.
const (
	statusCreating = "Creating event…"
	statusAdding   = "Adding event…"
	statusUpdating = "Updating event…"
	statusDeleting = "Deleting event…"
)

// EventAPI is the wire surface the engine drives. Satisfied by *gcal.Client.
type EventAPI interface {
	ListEvents(ctx context.Context, t gcal.Target, bearer string) ([]*gcal.Event, error)
	InsertEvent(ctx context.Context, t gcal.Target, bearer string, body []byte) (*gcal.Event, error)
	QuickAddEvent(ctx context.Context, t gcal.Target, bearer, text string) (*gcal.Event, error)
	PatchEvent(ctx context.Context, t gcal.Target, bearer, eventID string, body []byte) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, t gcal.Target, bearer, eventID string) error
}

// Session holds the credential. Satisfied by *gcal.Session.
type Session interface {
	IsAuthenticated() bool
	AccessToken() (string, error)
	Login(ctx context.Context, passive bool) error
	Logout()
}

// Recorder persists batch results. Satisfied by *journal.Store.
type Recorder interface {
	Record(ctx context.Context, res Results) error
}

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	API       EventAPI        // satisfied by *gcal.Client
	Session   Session         // satisfied by *gcal.Session
	Endpoints *gcal.Endpoints // resolved for one calendar
	Host      Host
	Recorder  Recorder // optional: nil disables the journal
	Logger    *slog.Logger

	// ParallelUpdates caps concurrent PATCH requests; <= 0 uses the default.
	ParallelUpdates int
}

// Engine is the calendar backend: it loads the event collection and applies
// mutations, reporting every problem to the host instead of returning it.
type Engine struct {
	api       EventAPI
	session   Session
	endpoints *gcal.Endpoints
	host      *serialHost
	recorder  Recorder
	logger    *slog.Logger
	parallel  int

	newBatchID func() string
}

var _ Backend = (*Engine)(nil)

// NewEngine wires an engine from cfg.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parallel := cfg.ParallelUpdates
	if parallel <= 0 {
		parallel = defaultParallelUpdates
	}

	return &Engine{
		api:        cfg.API,
		session:    cfg.Session,
		endpoints:  cfg.Endpoints,
		host:       &serialHost{host: cfg.Host},
		recorder:   cfg.Recorder,
		logger:     logger,
		parallel:   parallel,
		newBatchID: uuid.NewString,
	}
}

// IsAuthenticated reports whether the session holds a token.
func (e *Engine) IsAuthenticated() bool {
	return e.session.IsAuthenticated()
}

// Login authenticates the session. Passive failures are logged and
// swallowed; interactive failures are returned for the host to display.
func (e *Engine) Login(ctx context.Context, passive bool) error {
	err := e.session.Login(ctx, passive)
	if err == nil {
		return nil
	}

	if passive {
		e.logger.Debug("passive login did not complete", slog.String("error", err.Error()))
		return nil
	}

	return err
}

// Logout discards the token. Idempotent.
func (e *Engine) Logout() {
	e.session.Logout()
}

// Load fetches the event collection. It tries the bearer token, falls back
// to the API key after a 401, and, when the client was never signed in,
// retries bare to learn the real error reason. ok is false when no data
// could be fetched; on success the slice is non-nil.
func (e *Engine) Load(ctx context.Context) ([]*gcal.Event, bool) {
	wasAuthenticated := e.session.IsAuthenticated()

	if wasAuthenticated {
		events, err := e.list(ctx, gcal.CredentialBearer)
		if err == nil {
			return events, true
		}

		if !isAuthFailure(err) {
			e.loadFailed(err)
			return nil, false
		}

		e.logger.Info("token rejected on load, signing out and retrying with API key")
		e.session.Logout()
	}

	events, err := e.list(ctx, gcal.CredentialAPIKey)
	if err == nil {
		return events, true
	}

	if !wasAuthenticated && e.endpoints.HasAPIKey() {
		e.logger.Debug("API key load failed, retrying without credentials",
			slog.String("error", err.Error()),
		)

		events, err = e.list(ctx, gcal.CredentialNone)
		if err == nil {
			return events, true
		}
	}

	e.loadFailed(err)

	return nil, false
}

func (e *Engine) list(ctx context.Context, cred gcal.Credential) ([]*gcal.Event, error) {
	var bearer string

	if cred == gcal.CredentialBearer {
		tok, err := e.session.AccessToken()
		if err != nil {
			return nil, err
		}

		bearer = tok
	}

	return e.api.ListEvents(ctx, e.endpoints.Resolve(gcal.ActionGet, cred), bearer)
}

func (e *Engine) loadFailed(err error) {
	c := gcal.Classify(gcal.ActionGet, err)
	if c.UserVisible() {
		e.host.ReportError(c)
		return
	}

	e.logger.Warn("load failed",
		slog.String("kind", c.Kind.String()),
		slog.Int("status", c.Status),
		slog.String("error", err.Error()),
	)
}

// CreateEvent inserts each event. Items without both a start and an end are
// rejected locally.
func (e *Engine) CreateEvent(ctx context.Context, events ...*gcal.Event) Results {
	return e.batch(ctx, gcal.ActionCreate, statusCreating, len(events), func(ctx context.Context) []Outcome {
		return runSequential(ctx, len(events), func(ctx context.Context, i int) Outcome {
			return e.createOne(ctx, i, events[i])
		})
	})
}

func (e *Engine) createOne(ctx context.Context, i int, ev *gcal.Event) Outcome {
	o := Outcome{Action: gcal.ActionCreate, Index: i}
	if ev != nil {
		o.Target = ev.Summary
	}

	if ev == nil || !gcal.HasTime(ev.Start) || !gcal.HasTime(ev.End) {
		o.Err = e.precondition(gcal.ActionCreate, o.Target, ErrMissingTimes, true)
		return o
	}

	body, err := json.Marshal(gcal.NormalizeEvent(ev, e.logger))
	if err != nil {
		o.Err = e.precondition(gcal.ActionCreate, o.Target, fmt.Errorf("encoding event: %w", err), true)
		return o
	}

	bearer, err := e.bearer(gcal.ActionCreate, o.Target)
	if err != nil {
		o.Err = err
		return o
	}

	created, err := e.api.InsertEvent(ctx, e.endpoints.Resolve(gcal.ActionCreate, gcal.CredentialBearer), bearer, body)
	if err != nil {
		o.Err = e.serverFailure(gcal.ActionCreate, o.Target, err, body)
		return o
	}

	o.Target = created.Id
	e.logger.Info("created event", slog.String("id", created.Id))

	return o
}

// QuickCreateEvent creates one event per text through the server's
// free-text parser.
func (e *Engine) QuickCreateEvent(ctx context.Context, texts ...string) Results {
	return e.batch(ctx, gcal.ActionQuickCreate, statusAdding, len(texts), func(ctx context.Context) []Outcome {
		return runSequential(ctx, len(texts), func(ctx context.Context, i int) Outcome {
			return e.quickCreateOne(ctx, i, texts[i])
		})
	})
}

func (e *Engine) quickCreateOne(ctx context.Context, i int, raw string) Outcome {
	text := strings.TrimSpace(norm.NFC.String(raw))
	o := Outcome{Action: gcal.ActionQuickCreate, Index: i, Target: text}

	if text == "" {
		o.Err = e.precondition(gcal.ActionQuickCreate, "", ErrEmptyText, false)
		return o
	}

	bearer, err := e.bearer(gcal.ActionQuickCreate, text)
	if err != nil {
		o.Err = err
		return o
	}

	created, err := e.api.QuickAddEvent(ctx, e.endpoints.Resolve(gcal.ActionQuickCreate, gcal.CredentialBearer), bearer, text)
	if err != nil {
		o.Err = e.serverFailure(gcal.ActionQuickCreate, text, err, nil)
		return o
	}

	e.logger.Info("quick-added event", slog.String("id", created.Id))

	return o
}

// DeleteEvent resolves each reference through the host and deletes every
// real event it names. An event that is already gone only warns.
func (e *Engine) DeleteEvent(ctx context.Context, refs ...string) Results {
	return e.batch(ctx, gcal.ActionDelete, statusDeleting, len(refs), func(ctx context.Context) []Outcome {
		var (
			targets  []*gcal.Event
			outcomes []Outcome
		)

		for _, ref := range refs {
			found := e.host.ResolveReferences(ref)
			if len(found) == 0 {
				outcomes = append(outcomes, Outcome{
					Action: gcal.ActionDelete,
					Index:  -1,
					Target: ref,
					Err:    e.precondition(gcal.ActionDelete, ref, ErrUnresolved, false),
				})

				continue
			}

			targets = append(targets, found...)
		}

		return append(outcomes, runSequential(ctx, len(targets), func(ctx context.Context, i int) Outcome {
			return e.deleteOne(ctx, i, targets[i])
		})...)
	})
}

func (e *Engine) deleteOne(ctx context.Context, i int, target *gcal.Event) Outcome {
	o := Outcome{Action: gcal.ActionDelete, Index: i, Target: eventID(target)}

	if !gcal.IsRealEvent(target) {
		o.Err = e.precondition(gcal.ActionDelete, o.Target, ErrNotRealEvent, false)
		return o
	}

	bearer, err := e.bearer(gcal.ActionDelete, o.Target)
	if err != nil {
		o.Err = err
		return o
	}

	if err := e.api.DeleteEvent(ctx, e.endpoints.Resolve(gcal.ActionDelete, gcal.CredentialBearer), bearer, target.Id); err != nil {
		o.Err = e.serverFailure(gcal.ActionDelete, o.Target, err, nil)
		return o
	}

	e.logger.Info("deleted event", slog.String("id", target.Id))

	return o
}

// UpdateEvent resolves ref through the host and patches every target with
// its paired value (see PairTargets). Pairs run concurrently and are all
// awaited before the refresh. Nothing is refreshed when ref resolves to no
// targets.
func (e *Engine) UpdateEvent(ctx context.Context, ref string, values ...*gcal.Event) Results {
	res := Results{Action: gcal.ActionUpdate}

	if !e.session.IsAuthenticated() {
		e.host.ReportError(&ItemError{Action: gcal.ActionUpdate, Err: ErrAuthRequired})
		return res
	}

	targets := e.host.ResolveReferences(ref)
	if len(targets) == 0 {
		e.host.Warn(&ItemError{Action: gcal.ActionUpdate, Target: ref, Err: ErrNoTargets})
		return res
	}

	if len(values) == 0 {
		e.host.Warn(&ItemError{Action: gcal.ActionUpdate, Target: ref, Err: ErrNoValues})
		return res
	}

	pairs, unpaired := PairTargets(targets, values)
	if unpaired > 0 {
		e.host.Warn(&ItemError{
			Action: gcal.ActionUpdate,
			Target: ref,
			Err:    fmt.Errorf("%w: %d of %d values ignored", ErrUnpaired, unpaired, len(values)),
		})
	}

	if len(targets) > len(values) && len(values) > 1 {
		e.host.Warn(&ItemError{
			Action: gcal.ActionUpdate,
			Target: ref,
			Err:    fmt.Errorf("%d targets but only %d values, extra targets left unchanged", len(targets), len(values)),
		})
	}

	return e.batch(ctx, gcal.ActionUpdate, statusUpdating, len(pairs), func(ctx context.Context) []Outcome {
		return settleAll(ctx, len(pairs), e.parallel, func(ctx context.Context, i int) Outcome {
			return e.updateOne(ctx, i, pairs[i])
		})
	})
}

func (e *Engine) updateOne(ctx context.Context, i int, p Pair) Outcome {
	o := Outcome{Action: gcal.ActionUpdate, Index: i, Target: eventID(p.Target)}

	if !gcal.IsRealEvent(p.Target) {
		o.Err = e.precondition(gcal.ActionUpdate, o.Target, ErrNotRealEvent, false)
		return o
	}

	body, err := json.Marshal(gcal.NormalizeEvent(p.Value, e.logger))
	if err != nil {
		o.Err = e.precondition(gcal.ActionUpdate, o.Target, fmt.Errorf("encoding event: %w", err), true)
		return o
	}

	bearer, err := e.bearer(gcal.ActionUpdate, o.Target)
	if err != nil {
		o.Err = err
		return o
	}

	if _, err := e.api.PatchEvent(ctx, e.endpoints.Resolve(gcal.ActionUpdate, gcal.CredentialBearer), bearer, p.Target.Id, body); err != nil {
		o.Err = e.serverFailure(gcal.ActionUpdate, o.Target, err, body)
		return o
	}

	e.logger.Info("updated event", slog.String("id", p.Target.Id))

	return o
}

// batch is the shared frame of every mutation: an authentication gate, the
// transient status, one refresh once every item settled, and the journal.
func (e *Engine) batch(ctx context.Context, action gcal.Action, status string, n int, run func(ctx context.Context) []Outcome) Results {
	res := Results{Action: action}

	if !e.session.IsAuthenticated() {
		e.host.ReportError(&ItemError{Action: action, Err: ErrAuthRequired})
		return res
	}

	res.BatchID = e.newBatchID()

	e.host.SetStatus(status)
	defer e.host.SetStatus("")

	e.logger.Info("starting batch",
		slog.String("batch", res.BatchID),
		slog.String("action", action.String()),
		slog.Int("items", n),
	)

	res.Outcomes = run(ctx)
	res.Refreshed = e.refresh(ctx)

	e.logger.Info("batch complete",
		slog.String("batch", res.BatchID),
		slog.Int("succeeded", res.Succeeded()),
		slog.Int("failed", res.Failed()),
	)

	e.record(ctx, res)

	return res
}

func (e *Engine) refresh(ctx context.Context) bool {
	events, ok := e.Load(ctx)
	if ok {
		e.host.DataChanged(events)
	}

	return ok
}

func (e *Engine) record(ctx context.Context, res Results) {
	if e.recorder == nil {
		return
	}

	if err := e.recorder.Record(ctx, res); err != nil {
		e.logger.Warn("failed to journal batch",
			slog.String("batch", res.BatchID),
			slog.String("error", err.Error()),
		)
	}
}

// bearer returns the token for one item. The session may have been
// invalidated by an earlier item in the same batch.
func (e *Engine) bearer(action gcal.Action, target string) (string, error) {
	tok, err := e.session.AccessToken()
	if err == nil {
		return tok, nil
	}

	if gcal.IsUnauthorized(err) {
		e.logger.Warn("token refresh rejected, signing out", slog.String("error", err.Error()))
		e.session.Logout()
	}

	return "", e.precondition(action, target, ErrAuthRequired, true)
}

// precondition reports a client-side failure for one item. visible selects
// between a user-visible error and a warning.
func (e *Engine) precondition(action gcal.Action, target string, err error, visible bool) error {
	itemErr := &ItemError{Action: action, Target: target, Err: err}

	if visible {
		e.host.ReportError(itemErr)
	} else {
		e.host.Warn(itemErr)
	}

	return itemErr
}

// serverFailure classifies a failed request and routes it: user-visible
// classes go to the host, already-gone warns, and the rest is only logged.
// A 401 invalidates the session.
func (e *Engine) serverFailure(action gcal.Action, target string, err error, payload []byte) error {
	c := gcal.Classify(action, err)
	itemErr := &ItemError{Action: action, Target: target, Err: c}

	if c.DumpPayload() && payload != nil {
		e.logger.Warn("server rejected payload",
			slog.String("action", action.String()),
			slog.String("target", target),
			slog.String("message", c.Message),
			slog.String("payload", string(payload)),
		)
	}

	switch {
	case c.Kind == gcal.KindAuthExpired:
		e.logger.Warn("token rejected, signing out",
			slog.String("action", action.String()),
			slog.String("target", target),
		)
		e.session.Logout()
	case c.UserVisible():
		e.host.ReportError(itemErr)
	case c.Kind == gcal.KindAlreadyGone:
		e.host.Warn(itemErr)
	default:
		e.logger.Warn("request failed",
			slog.String("action", action.String()),
			slog.String("target", target),
			slog.Int("status", c.Status),
			slog.String("error", err.Error()),
		)
	}

	return itemErr
}

// isAuthFailure reports whether a bearer load should fall back to the API
// key: the server refused the token, or there is no usable token at all.
func isAuthFailure(err error) bool {
	return gcal.IsUnauthorized(err) || errors.Is(err, gcal.ErrNotLoggedIn)
}

func eventID(ev *gcal.Event) string {
	if ev == nil {
		return ""
	}

	return ev.Id
}
