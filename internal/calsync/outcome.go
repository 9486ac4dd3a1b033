package calsync

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// Outcome is the per-item result of a batch: success, a client-side
// precondition failure, or a classified server failure.
type Outcome struct {
	Action gcal.Action
	Index  int    // position of the item in its batch
	Target string // event id, or the text of a quick-add
	Err    error  // nil on success
}

// OK reports whether the item succeeded. Deleting an event that is already
// gone counts as success.
func (o Outcome) OK() bool {
	if o.Err == nil {
		return true
	}

	var c *gcal.Classification

	return errors.As(o.Err, &c) && c.Kind == gcal.KindAlreadyGone
}

// Status returns the HTTP status behind a failure, or 0.
func (o Outcome) Status() int {
	return gcal.StatusOf(o.Err)
}

// Kind names the failure class: "ok", "precondition", or a gcal.Kind.
func (o Outcome) Kind() string {
	if o.Err == nil {
		return "ok"
	}

	var c *gcal.Classification
	if errors.As(o.Err, &c) {
		return c.Kind.String()
	}

	return "precondition"
}

// Results aggregates the outcomes of one batch operation.
type Results struct {
	BatchID  string
	Action   gcal.Action
	Outcomes []Outcome
	// Refreshed is true when the post-batch load succeeded.
	Refreshed bool
}

// Succeeded counts items that succeeded.
func (r Results) Succeeded() int {
	n := 0

	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}

	return n
}

// Failed counts items that did not succeed.
func (r Results) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

func (r Results) String() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed", r.Action, r.Succeeded(), r.Failed())
}

// ItemError ties a failure to the item it happened on.
type ItemError struct {
	Action gcal.Action
	Target string
	Err    error
}

func (e *ItemError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Action, e.Err)
	}

	return fmt.Sprintf("%s %q: %v", e.Action, e.Target, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
