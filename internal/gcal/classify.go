package gcal

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the typed outcome of a failed request.
type Kind int

const (
	// KindUnclassified is any other non-2xx or transport failure; logged only.
	KindUnclassified Kind = iota
	// KindAuthExpired (401) is recovered by invalidating the session.
	KindAuthExpired
	// KindPermissionDenied (403) is user-visible, read or write scoped.
	KindPermissionDenied
	// KindNotFound (404) is user-visible, calendar or event scoped.
	KindNotFound
	// KindAlreadyGone (410 on delete) is a non-fatal warning.
	KindAlreadyGone
	// KindValidationFailed (400 on create/update) is user-visible and dumps the payload.
	KindValidationFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnclassified:
		return "unclassified"
	case KindAuthExpired:
		return "auth_expired"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindAlreadyGone:
		return "already_gone"
	case KindValidationFailed:
		return "validation_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Scope narrows a permission or not-found outcome.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeRead
	ScopeWrite
	ScopeCalendar
	ScopeEvent
)

func (s Scope) String() string {
	switch s {
	case ScopeRead:
		return "read"
	case ScopeWrite:
		return "write"
	case ScopeCalendar:
		return "calendar"
	case ScopeEvent:
		return "event"
	default:
		return ""
	}
}

// Classification is the ErrorClassifier verdict for one failed request.
// It is itself an error wrapping the underlying failure.
type Classification struct {
	Kind    Kind
	Scope   Scope
	Action  Action
	Status  int
	Message string
	Err     error
}

func (c *Classification) Error() string {
	if c.Scope != ScopeNone {
		return fmt.Sprintf("%s %s (%s): %v", c.Scope, c.Kind, c.Action, c.Err)
	}

	return fmt.Sprintf("%s (%s): %v", c.Kind, c.Action, c.Err)
}

func (c *Classification) Unwrap() error {
	return c.Err
}

// UserVisible reports whether the host should show this outcome to the user.
func (c *Classification) UserVisible() bool {
	switch c.Kind {
	case KindPermissionDenied, KindNotFound, KindValidationFailed:
		return true
	default:
		return false
	}
}

// DumpPayload reports whether the offending request body should be logged.
func (c *Classification) DumpPayload() bool {
	return c.Kind == KindValidationFailed
}

// Classify maps a failed request to its outcome. err is usually an *APIError
// from Client.Do; anything else (transport, decoding) is unclassified.
func Classify(action Action, err error) *Classification {
	c := &Classification{Kind: KindUnclassified, Action: action, Err: err}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		if err != nil {
			c.Message = err.Error()
		}

		return c
	}

	c.Status = apiErr.StatusCode
	c.Message = apiErr.Message
	c.Kind, c.Scope = classifyOutcome(action, apiErr.StatusCode)

	return c
}

// classifyOutcome is the status/context table.
func classifyOutcome(action Action, status int) (Kind, Scope) {
	switch status {
	case http.StatusBadRequest:
		if action == ActionCreate || action == ActionUpdate {
			return KindValidationFailed, ScopeNone
		}
	case http.StatusUnauthorized:
		return KindAuthExpired, ScopeNone
	case http.StatusForbidden:
		if action.Mutating() {
			return KindPermissionDenied, ScopeWrite
		}

		return KindPermissionDenied, ScopeRead
	case http.StatusNotFound:
		switch action {
		case ActionGet:
			return KindNotFound, ScopeCalendar
		case ActionUpdate, ActionDelete:
			return KindNotFound, ScopeEvent
		case ActionCreate, ActionQuickCreate:
		}
	case http.StatusGone:
		if action == ActionDelete {
			return KindAlreadyGone, ScopeNone
		}
	}

	return KindUnclassified, ScopeNone
}
