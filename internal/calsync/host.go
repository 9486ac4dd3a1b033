// Package calsync implements the event sync engine: the load retry ladder,
// validated create, quick-add, update, and delete operations, and the batch
// executor that fans single-event operations out over many targets.
package calsync

import (
	"context"
	"errors"
	"sync"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// Client-side precondition failures. They abort only the affected item and
// never reach the network.
var (
	ErrAuthRequired = errors.New("calsync: authentication required")
	ErrMissingTimes = errors.New("calsync: event needs both a start and an end")
	ErrNotRealEvent = errors.New("calsync: target is not a persisted calendar event")
	ErrUnresolved   = errors.New("calsync: reference resolved to no records")
	ErrNoTargets    = errors.New("calsync: nothing to update")
	ErrNoValues     = errors.New("calsync: no update values supplied")
	ErrUnpaired     = errors.New("calsync: value has no matching target")
	ErrEmptyText    = errors.New("calsync: quick-add text is blank")
)

// Host is what the surrounding application provides. Messages arrive as
// typed errors; wording and localization are the host's business.
type Host interface {
	// ResolveReferences expands ref into records. A collection reference
	// expands to its children.
	ResolveReferences(ref string) []*gcal.Event
	// ReportError shows err to the user.
	ReportError(err error)
	// Warn records a non-fatal problem.
	Warn(err error)
	// SetStatus shows a transient progress message; "" clears it.
	SetStatus(status string)
	// DataChanged delivers the refreshed collection.
	DataChanged(events []*gcal.Event)
}

// Backend is the capability set the host drives for any calendar backend.
type Backend interface {
	Load(ctx context.Context) ([]*gcal.Event, bool)
	IsAuthenticated() bool
	Login(ctx context.Context, passive bool) error
	Logout()
}

// serialHost funnels concurrent callbacks from update workers into one at a
// time, so hosts never see overlapping calls.
type serialHost struct {
	mu   sync.Mutex
	host Host
}

func (h *serialHost) ResolveReferences(ref string) []*gcal.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.host.ResolveReferences(ref)
}

func (h *serialHost) ReportError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.host.ReportError(err)
}

func (h *serialHost) Warn(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.host.Warn(err)
}

func (h *serialHost) SetStatus(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.host.SetStatus(status)
}

func (h *serialHost) DataChanged(events []*gcal.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.host.DataChanged(events)
}
