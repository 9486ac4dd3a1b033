package gcal

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
)

// Action selects the endpoint shape and credential requirements of a request.
type Action int

const (
	ActionGet Action = iota
	ActionCreate
	ActionQuickCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionGet:
		return "get"
	case ActionCreate:
		return "create"
	case ActionQuickCreate:
		return "quick_create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Mutating reports whether the action changes server state.
func (a Action) Mutating() bool {
	return a != ActionGet
}

// Credential selects how a request identifies itself to the API.
type Credential int

const (
	// CredentialBearer relies on the Authorization header.
	CredentialBearer Credential = iota
	// CredentialAPIKey appends the API key as a query parameter.
	CredentialAPIKey
	// CredentialNone sends neither; used only to surface the real error reason.
	CredentialNone
)

func (c Credential) String() string {
	switch c {
	case CredentialBearer:
		return "bearer"
	case CredentialAPIKey:
		return "api_key"
	case CredentialNone:
		return "none"
	default:
		return fmt.Sprintf("credential(%d)", int(c))
	}
}

// DefaultAPIDomain is the events API root; the calendar id follows it.
const DefaultAPIDomain = "https://www.googleapis.com/calendar/v3/calendars/"

// apiKeyParam is the query parameter Google APIs read the API key from.
const apiKeyParam = "key"

// defaultSearch is merged under caller search options for every list call.
var defaultSearch = map[string]string{
	"singleEvents": "true",
	"orderBy":      "startTime",
	"maxResults":   "2500",
}

// Endpoints maps an action and credential mode to a request target. It reads
// nothing but the resolved calendar id, the API key, and the search options,
// all fixed at construction.
type Endpoints struct {
	base   string // domain + escaped calendar id + "/events"
	apiKey string
	search url.Values
}

// NewEndpoints builds a resolver for the given calendar. search entries
// override the list defaults key by key.
func NewEndpoints(domain string, cal CalendarRef, apiKey string, search map[string]string) *Endpoints {
	if domain == "" {
		domain = DefaultAPIDomain
	}

	merged := maps.Clone(defaultSearch)
	maps.Copy(merged, search)

	q := make(url.Values, len(merged))
	for k, v := range merged {
		q.Set(k, v)
	}

	return &Endpoints{
		base:   strings.TrimSuffix(domain, "/") + "/" + cal.Escaped() + "/events",
		apiKey: apiKey,
		search: q,
	}
}

// HasAPIKey reports whether an API key is configured.
func (e *Endpoints) HasAPIKey() bool {
	return e.apiKey != ""
}

// Target is a resolved request: method plus URL. Callers refine it with
// WithEventID, WithText, or WithPageToken.
type Target struct {
	Action     Action
	Credential Credential
	Method     string

	path  string
	query url.Values
}

// Resolve returns the target for action under the given credential mode.
// Only list requests carry search options; the API key is appended whenever
// cred is CredentialAPIKey and a key is configured.
func (e *Endpoints) Resolve(action Action, cred Credential) Target {
	t := Target{Action: action, Credential: cred, query: url.Values{}}

	switch action {
	case ActionGet:
		t.Method = http.MethodGet
		t.path = e.base
		t.query = cloneValues(e.search)
	case ActionQuickCreate:
		t.Method = http.MethodPost
		t.path = e.base + "/quickAdd"
	case ActionCreate:
		t.Method = http.MethodPost
		t.path = e.base
	case ActionUpdate:
		t.Method = http.MethodPatch
		t.path = e.base
	case ActionDelete:
		t.Method = http.MethodDelete
		t.path = e.base
	}

	if cred == CredentialAPIKey && e.apiKey != "" {
		t.query.Set(apiKeyParam, e.apiKey)
	}

	return t
}

// WithEventID appends the percent-encoded event id as a path segment.
func (t Target) WithEventID(id string) Target {
	t.path = t.path + "/" + url.PathEscape(id)
	t.query = cloneValues(t.query)

	return t
}

// WithText sets the free-text parameter of a quick-add request.
func (t Target) WithText(text string) Target {
	t.query = cloneValues(t.query)
	t.query.Set("text", text)

	return t
}

// WithPageToken sets the list continuation token.
func (t Target) WithPageToken(token string) Target {
	t.query = cloneValues(t.query)
	t.query.Set("pageToken", token)

	return t
}

// URL renders the target as an absolute URL string.
func (t Target) URL() string {
	if len(t.query) == 0 {
		return t.path
	}

	return t.path + "?" + t.query.Encode()
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}

	return out
}
