package calsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// --- fakes ---

type apiCall struct {
	action  gcal.Action
	cred    gcal.Credential
	bearer  string
	eventID string
	text    string
	body    string
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall

	listFn   func(cred gcal.Credential) ([]*gcal.Event, error)
	insertFn func(body string) error
	quickFn  func(text string) error
	patchFn  func(id, body string) error
	deleteFn func(id string) error
}

func (f *fakeAPI) record(c apiCall) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
}

func (f *fakeAPI) snapshot() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]apiCall(nil), f.calls...)
}

func (f *fakeAPI) count(action gcal.Action) int {
	n := 0

	for _, c := range f.snapshot() {
		if c.action == action {
			n++
		}
	}

	return n
}

func (f *fakeAPI) ListEvents(_ context.Context, t gcal.Target, bearer string) ([]*gcal.Event, error) {
	f.record(apiCall{action: t.Action, cred: t.Credential, bearer: bearer})

	if f.listFn != nil {
		return f.listFn(t.Credential)
	}

	return []*gcal.Event{}, nil
}

func (f *fakeAPI) InsertEvent(_ context.Context, t gcal.Target, bearer string, body []byte) (*gcal.Event, error) {
	f.record(apiCall{action: t.Action, cred: t.Credential, bearer: bearer, body: string(body)})

	if f.insertFn != nil {
		if err := f.insertFn(string(body)); err != nil {
			return nil, err
		}
	}

	return &gcal.Event{Kind: gcal.EventKind, Id: "new"}, nil
}

func (f *fakeAPI) QuickAddEvent(_ context.Context, t gcal.Target, bearer, text string) (*gcal.Event, error) {
	f.record(apiCall{action: t.Action, cred: t.Credential, bearer: bearer, text: text})

	if f.quickFn != nil {
		if err := f.quickFn(text); err != nil {
			return nil, err
		}
	}

	return &gcal.Event{Kind: gcal.EventKind, Id: "quick"}, nil
}

func (f *fakeAPI) PatchEvent(_ context.Context, t gcal.Target, bearer, eventID string, body []byte) (*gcal.Event, error) {
	f.record(apiCall{action: t.Action, cred: t.Credential, bearer: bearer, eventID: eventID, body: string(body)})

	if f.patchFn != nil {
		if err := f.patchFn(eventID, string(body)); err != nil {
			return nil, err
		}
	}

	return &gcal.Event{Kind: gcal.EventKind, Id: eventID}, nil
}

func (f *fakeAPI) DeleteEvent(_ context.Context, t gcal.Target, bearer, eventID string) error {
	f.record(apiCall{action: t.Action, cred: t.Credential, bearer: bearer, eventID: eventID})

	if f.deleteFn != nil {
		return f.deleteFn(eventID)
	}

	return nil
}

type fakeSession struct {
	mu       sync.Mutex
	authed   bool
	logouts  int
	loginErr error
}

func (s *fakeSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.authed
}

func (s *fakeSession) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authed {
		return "", gcal.ErrNotLoggedIn
	}

	return "tok", nil
}

func (s *fakeSession) Login(context.Context, bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loginErr != nil {
		return s.loginErr
	}

	s.authed = true

	return nil
}

func (s *fakeSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.authed = false
	s.logouts++
}

type fakeHost struct {
	refs     map[string][]*gcal.Event
	errs     []error
	warnings []error
	statuses []string
	changed  [][]*gcal.Event
}

func (h *fakeHost) ResolveReferences(ref string) []*gcal.Event { return h.refs[ref] }
func (h *fakeHost) ReportError(err error)                      { h.errs = append(h.errs, err) }
func (h *fakeHost) Warn(err error)                             { h.warnings = append(h.warnings, err) }
func (h *fakeHost) SetStatus(status string)                    { h.statuses = append(h.statuses, status) }
func (h *fakeHost) DataChanged(events []*gcal.Event)           { h.changed = append(h.changed, events) }

type fakeRecorder struct {
	results []Results
}

func (r *fakeRecorder) Record(_ context.Context, res Results) error {
	r.results = append(r.results, res)
	return nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	engine  *Engine
	api     *fakeAPI
	session *fakeSession
	host    *fakeHost
	rec     *fakeRecorder
}

func newHarness(t *testing.T, authed bool, apiKey string) *harness {
	t.Helper()

	h := &harness{
		api:     &fakeAPI{},
		session: &fakeSession{authed: authed},
		host:    &fakeHost{refs: map[string][]*gcal.Event{}},
		rec:     &fakeRecorder{},
	}

	h.engine = NewEngine(&EngineConfig{
		API:       h.api,
		Session:   h.session,
		Endpoints: gcal.NewEndpoints("https://example.test/calendars/", gcal.CalendarRef{ID: "cal"}, apiKey, nil),
		Host:      h.host,
		Recorder:  h.rec,
		Logger:    testLogger(),
	})
	h.engine.newBatchID = func() string { return "batch-1" }

	return h
}

func apiErr(status int) error {
	return &gcal.APIError{StatusCode: status, Message: http.StatusText(status), Err: classifyForTest(status)}
}

func classifyForTest(status int) error {
	switch status {
	case http.StatusBadRequest:
		return gcal.ErrBadRequest
	case http.StatusUnauthorized:
		return gcal.ErrUnauthorized
	case http.StatusForbidden:
		return gcal.ErrForbidden
	case http.StatusNotFound:
		return gcal.ErrNotFound
	case http.StatusGone:
		return gcal.ErrGone
	default:
		return gcal.ErrServerError
	}
}

func realEvent(id string) *gcal.Event {
	return &gcal.Event{Kind: gcal.EventKind, Id: id}
}

func timedEvent(summary string) *gcal.Event {
	return &gcal.Event{
		Summary: summary,
		Start:   &gcal.EventDateTime{DateTime: "2024-01-01T10:00:00+02:00"},
		End:     &gcal.EventDateTime{DateTime: "2024-01-01T11:00:00+02:00"},
	}
}

func classification(t *testing.T, err error) *gcal.Classification {
	t.Helper()

	var c *gcal.Classification
	require.ErrorAs(t, err, &c)

	return c
}

// --- Load ---

func TestLoad_AuthenticatedSuccess(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.listFn = func(gcal.Credential) ([]*gcal.Event, error) {
		return []*gcal.Event{realEvent("a")}, nil
	}

	events, ok := h.engine.Load(t.Context())
	require.True(t, ok)
	require.Len(t, events, 1)

	calls := h.api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, gcal.CredentialBearer, calls[0].cred)
	assert.Equal(t, "tok", calls[0].bearer)
}

func TestLoad_EmptyIsNotNoData(t *testing.T) {
	h := newHarness(t, false, "key")

	events, ok := h.engine.Load(t.Context())
	require.True(t, ok)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestLoad_UnauthorizedLogsOutAndRetriesOnce(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.listFn = func(cred gcal.Credential) ([]*gcal.Event, error) {
		if cred == gcal.CredentialBearer {
			return nil, apiErr(http.StatusUnauthorized)
		}

		return nil, apiErr(http.StatusForbidden)
	}

	events, ok := h.engine.Load(t.Context())
	assert.False(t, ok)
	assert.Nil(t, events)

	assert.Equal(t, 1, h.session.logouts)

	calls := h.api.snapshot()
	require.Len(t, calls, 2, "no bare retry after a session was invalidated")
	assert.Equal(t, gcal.CredentialBearer, calls[0].cred)
	assert.Equal(t, gcal.CredentialAPIKey, calls[1].cred)
	assert.Empty(t, calls[1].bearer)
}

func TestLoad_UnauthorizedThenKeySucceeds(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.listFn = func(cred gcal.Credential) ([]*gcal.Event, error) {
		if cred == gcal.CredentialBearer {
			return nil, apiErr(http.StatusUnauthorized)
		}

		return []*gcal.Event{realEvent("public")}, nil
	}

	events, ok := h.engine.Load(t.Context())
	require.True(t, ok)
	assert.Len(t, events, 1)
	assert.False(t, h.session.IsAuthenticated())
	assert.Empty(t, h.host.errs)
}

func TestLoad_NeverAuthenticatedSurfacesBareReason(t *testing.T) {
	h := newHarness(t, false, "key")
	h.api.listFn = func(cred gcal.Credential) ([]*gcal.Event, error) {
		if cred == gcal.CredentialAPIKey {
			return nil, apiErr(http.StatusBadRequest)
		}

		return nil, apiErr(http.StatusNotFound)
	}

	_, ok := h.engine.Load(t.Context())
	assert.False(t, ok)

	calls := h.api.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, gcal.CredentialAPIKey, calls[0].cred)
	assert.Equal(t, gcal.CredentialNone, calls[1].cred)

	require.Len(t, h.host.errs, 1)
	c := classification(t, h.host.errs[0])
	assert.Equal(t, gcal.KindNotFound, c.Kind)
	assert.Equal(t, gcal.ScopeCalendar, c.Scope)
}

func TestLoad_NoAPIKeySingleAttempt(t *testing.T) {
	h := newHarness(t, false, "")
	h.api.listFn = func(gcal.Credential) ([]*gcal.Event, error) {
		return nil, apiErr(http.StatusForbidden)
	}

	_, ok := h.engine.Load(t.Context())
	assert.False(t, ok)
	assert.Len(t, h.api.snapshot(), 1)

	require.Len(t, h.host.errs, 1)
	c := classification(t, h.host.errs[0])
	assert.Equal(t, gcal.KindPermissionDenied, c.Kind)
	assert.Equal(t, gcal.ScopeRead, c.Scope)
}

func TestLoad_AuthenticatedNonAuthFailureNotRetried(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.listFn = func(gcal.Credential) ([]*gcal.Event, error) {
		return nil, apiErr(http.StatusInternalServerError)
	}

	_, ok := h.engine.Load(t.Context())
	assert.False(t, ok)
	assert.Len(t, h.api.snapshot(), 1)
	assert.Zero(t, h.session.logouts)
	assert.Empty(t, h.host.errs, "unclassified failures are only logged")
}

// --- Create ---

func TestCreateEvent_RequiresAuthentication(t *testing.T) {
	h := newHarness(t, false, "key")

	res := h.engine.CreateEvent(t.Context(), timedEvent("standup"))

	assert.Empty(t, h.api.snapshot())
	require.Len(t, h.host.errs, 1)
	require.ErrorIs(t, h.host.errs[0], ErrAuthRequired)
	assert.False(t, res.Refreshed)
	assert.Empty(t, h.host.statuses)
}

func TestCreateEvent_MissingTimesNeverSent(t *testing.T) {
	h := newHarness(t, true, "key")

	res := h.engine.CreateEvent(t.Context(), &gcal.Event{Summary: "no times"})

	assert.Zero(t, h.api.count(gcal.ActionCreate))
	assert.Equal(t, 1, h.api.count(gcal.ActionGet), "refresh still runs")

	require.Len(t, h.host.errs, 1)
	require.ErrorIs(t, h.host.errs[0], ErrMissingTimes)

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "precondition", res.Outcomes[0].Kind())
}

func TestCreateEvent_NormalizesDateTimes(t *testing.T) {
	h := newHarness(t, true, "key")

	allDay := &gcal.Event{
		Summary: "holiday",
		Start:   &gcal.EventDateTime{Date: "2024-01-01"},
		End:     &gcal.EventDateTime{Date: "2024-01-02"},
	}

	res := h.engine.CreateEvent(t.Context(), timedEvent("standup"), allDay)
	assert.Equal(t, 2, res.Succeeded())

	var bodies []string

	for _, c := range h.api.snapshot() {
		if c.action == gcal.ActionCreate {
			bodies = append(bodies, c.body)
		}
	}

	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], `"dateTime":"2024-01-01T08:00:00.000Z"`)
	assert.Contains(t, bodies[0], `"dateTime":"2024-01-01T09:00:00.000Z"`)
	assert.Contains(t, bodies[1], `"date":"2024-01-01"`)
	assert.NotContains(t, bodies[1], "dateTime")
}

func TestCreateEvent_ValidationFailureIsVisible(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.insertFn = func(body string) error {
		if strings.Contains(body, "bad") {
			return apiErr(http.StatusBadRequest)
		}

		return nil
	}

	res := h.engine.CreateEvent(t.Context(), timedEvent("bad"), timedEvent("good"))

	assert.Equal(t, 2, h.api.count(gcal.ActionCreate), "one failure does not stop the batch")
	assert.Equal(t, 1, h.api.count(gcal.ActionGet))
	assert.Equal(t, 1, res.Succeeded())
	assert.Equal(t, 1, res.Failed())

	require.Len(t, h.host.errs, 1)
	assert.Equal(t, gcal.KindValidationFailed, classification(t, h.host.errs[0]).Kind)
}

func TestCreateEvent_UnauthorizedInvalidatesRestOfBatch(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.insertFn = func(string) error { return apiErr(http.StatusUnauthorized) }

	res := h.engine.CreateEvent(t.Context(), timedEvent("one"), timedEvent("two"))

	assert.Equal(t, 1, h.api.count(gcal.ActionCreate))
	assert.Equal(t, 1, h.session.logouts)
	require.Len(t, res.Outcomes, 2)
	require.ErrorIs(t, res.Outcomes[1].Err, ErrAuthRequired)
}

func TestCreateEvent_StatusSetAndCleared(t *testing.T) {
	h := newHarness(t, true, "key")

	h.engine.CreateEvent(t.Context(), timedEvent("standup"))

	assert.Equal(t, []string{statusCreating, ""}, h.host.statuses)
	require.Len(t, h.host.changed, 1)
}

func TestCreateEvent_FailedRefreshSkipsDataChanged(t *testing.T) {
	h := newHarness(t, true, "")
	h.api.listFn = func(gcal.Credential) ([]*gcal.Event, error) {
		return nil, apiErr(http.StatusInternalServerError)
	}

	res := h.engine.CreateEvent(t.Context(), timedEvent("standup"))

	assert.False(t, res.Refreshed)
	assert.Empty(t, h.host.changed)
	assert.Equal(t, []string{statusCreating, ""}, h.host.statuses)
}

func TestCreateEvent_Journaled(t *testing.T) {
	h := newHarness(t, true, "key")

	h.engine.CreateEvent(t.Context(), timedEvent("standup"))

	require.Len(t, h.rec.results, 1)
	assert.Equal(t, "batch-1", h.rec.results[0].BatchID)
	assert.Equal(t, gcal.ActionCreate, h.rec.results[0].Action)
	assert.True(t, h.rec.results[0].Refreshed)
}

// --- Quick create ---

func TestQuickCreateEvent_NormalizesAndSkipsBlank(t *testing.T) {
	h := newHarness(t, true, "key")

	// "e" + combining acute composes to "é" under NFC.
	res := h.engine.QuickCreateEvent(t.Context(), "  Cafe\u0301 at 9am  ", "   ")

	var texts []string

	for _, c := range h.api.snapshot() {
		if c.action == gcal.ActionQuickCreate {
			texts = append(texts, c.text)
		}
	}

	assert.Equal(t, []string{"Caf\u00e9 at 9am"}, texts)
	require.Len(t, h.host.warnings, 1)
	require.ErrorIs(t, h.host.warnings[0], ErrEmptyText)
	assert.Equal(t, 1, res.Succeeded())
	assert.Equal(t, 1, h.api.count(gcal.ActionGet))
}

func TestQuickCreateEvent_ForbiddenIsWriteScoped(t *testing.T) {
	h := newHarness(t, true, "key")
	h.api.quickFn = func(string) error { return apiErr(http.StatusForbidden) }

	h.engine.QuickCreateEvent(t.Context(), "lunch tomorrow")

	require.Len(t, h.host.errs, 1)
	c := classification(t, h.host.errs[0])
	assert.Equal(t, gcal.KindPermissionDenied, c.Kind)
	assert.Equal(t, gcal.ScopeWrite, c.Scope)
}

// --- Delete ---

func TestDeleteEvent_GoneDoesNotAbort(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["all"] = []*gcal.Event{realEvent("a"), realEvent("b")}
	h.api.deleteFn = func(id string) error {
		if id == "a" {
			return apiErr(http.StatusGone)
		}

		return nil
	}

	res := h.engine.DeleteEvent(t.Context(), "all")

	assert.Equal(t, 2, h.api.count(gcal.ActionDelete))
	assert.Empty(t, h.host.errs)
	require.Len(t, h.host.warnings, 1)
	assert.Equal(t, gcal.KindAlreadyGone, classification(t, h.host.warnings[0]).Kind)
	assert.Equal(t, 2, res.Succeeded())
	assert.Equal(t, "already_gone", res.Outcomes[0].Kind())
	assert.Equal(t, 1, h.api.count(gcal.ActionGet))
}

func TestDeleteEvent_SkipsNonEvents(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["x"] = []*gcal.Event{{Kind: "calendar#calendar", Id: "x"}, {Kind: gcal.EventKind}}

	res := h.engine.DeleteEvent(t.Context(), "x")

	assert.Zero(t, h.api.count(gcal.ActionDelete))
	require.Len(t, h.host.warnings, 2)

	for _, w := range h.host.warnings {
		require.ErrorIs(t, w, ErrNotRealEvent)
	}

	assert.Equal(t, 2, res.Failed())
	assert.Equal(t, 1, h.api.count(gcal.ActionGet))
}

func TestDeleteEvent_NotFoundIsVisible(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["a"] = []*gcal.Event{realEvent("a")}
	h.api.deleteFn = func(string) error { return apiErr(http.StatusNotFound) }

	h.engine.DeleteEvent(t.Context(), "a")

	require.Len(t, h.host.errs, 1)
	c := classification(t, h.host.errs[0])
	assert.Equal(t, gcal.KindNotFound, c.Kind)
	assert.Equal(t, gcal.ScopeEvent, c.Scope)
}

func TestDeleteEvent_UnresolvedWarns(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["a"] = []*gcal.Event{realEvent("a")}

	res := h.engine.DeleteEvent(t.Context(), "missing", "a")

	require.Len(t, h.host.warnings, 1)
	require.ErrorIs(t, h.host.warnings[0], ErrUnresolved)
	assert.Equal(t, 1, h.api.count(gcal.ActionDelete))
	assert.Equal(t, 1, res.Succeeded())
	assert.Equal(t, 1, res.Failed())
}

// --- Update ---

func patches(api *fakeAPI) map[string]string {
	out := make(map[string]string)

	for _, c := range api.snapshot() {
		if c.action == gcal.ActionUpdate {
			out[c.eventID] = c.body
		}
	}

	return out
}

func TestUpdateEvent_SingleTargetSingleValue(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["a"] = []*gcal.Event{realEvent("a")}

	res := h.engine.UpdateEvent(t.Context(), "a", &gcal.Event{Summary: "renamed"})

	assert.Equal(t, 1, res.Succeeded())
	got := patches(h.api)
	require.Len(t, got, 1)
	assert.Contains(t, got["a"], `"summary":"renamed"`)
	assert.Equal(t, 1, h.api.count(gcal.ActionGet))
}

func TestUpdateEvent_BroadcastsSingleValue(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["all"] = []*gcal.Event{realEvent("a"), realEvent("b"), realEvent("c")}

	res := h.engine.UpdateEvent(t.Context(), "all", &gcal.Event{Summary: "same"})

	assert.Equal(t, 3, res.Succeeded())
	got := patches(h.api)
	require.Len(t, got, 3)

	for _, id := range []string{"a", "b", "c"} {
		assert.Contains(t, got[id], `"summary":"same"`)
	}
}

func TestUpdateEvent_ZipsEqualLengths(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["all"] = []*gcal.Event{realEvent("a"), realEvent("b")}

	h.engine.UpdateEvent(t.Context(), "all", &gcal.Event{Summary: "first"}, &gcal.Event{Summary: "second"})

	got := patches(h.api)
	require.Len(t, got, 2)
	assert.Contains(t, got["a"], `"summary":"first"`)
	assert.Contains(t, got["b"], `"summary":"second"`)
}

func TestUpdateEvent_NoTargetsNoRefresh(t *testing.T) {
	h := newHarness(t, true, "key")

	res := h.engine.UpdateEvent(t.Context(), "nothing", &gcal.Event{Summary: "x"})

	assert.Empty(t, h.api.snapshot())
	require.Len(t, h.host.warnings, 1)
	require.ErrorIs(t, h.host.warnings[0], ErrNoTargets)
	assert.False(t, res.Refreshed)
	assert.Empty(t, h.host.statuses)
}

func TestUpdateEvent_FailuresSettleAll(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["all"] = []*gcal.Event{realEvent("a"), realEvent("b"), realEvent("c")}
	h.api.patchFn = func(id, _ string) error {
		switch id {
		case "a":
			return apiErr(http.StatusNotFound)
		case "b":
			return apiErr(http.StatusBadRequest)
		default:
			return nil
		}
	}

	res := h.engine.UpdateEvent(t.Context(), "all", &gcal.Event{Summary: "x"})

	assert.Equal(t, 3, h.api.count(gcal.ActionUpdate))
	assert.Equal(t, 1, h.api.count(gcal.ActionGet), "exactly one refresh after every pair settled")
	assert.Equal(t, 1, res.Succeeded())
	assert.Equal(t, 2, res.Failed())
	assert.Len(t, h.host.errs, 2)
	assert.Equal(t, []string{statusUpdating, ""}, h.host.statuses)
}

func TestUpdateEvent_SkipsNonEventTargets(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["mixed"] = []*gcal.Event{realEvent("a"), {Kind: "calendar#calendarListEntry", Id: "cal"}}

	h.engine.UpdateEvent(t.Context(), "mixed", &gcal.Event{Summary: "x"})

	got := patches(h.api)
	assert.Len(t, got, 1)
	assert.NotContains(t, got, "cal")
	require.Len(t, h.host.warnings, 1)
	require.ErrorIs(t, h.host.warnings[0], ErrNotRealEvent)
}

func TestUpdateEvent_WarnsOnUnpairedValues(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["a"] = []*gcal.Event{realEvent("a")}

	h.engine.UpdateEvent(t.Context(), "a", &gcal.Event{Summary: "first"}, &gcal.Event{Summary: "second"})

	got := patches(h.api)
	require.Len(t, got, 1)
	assert.Contains(t, got["a"], "first")
	require.Len(t, h.host.warnings, 1)
	require.ErrorIs(t, h.host.warnings[0], ErrUnpaired)
}

func TestUpdateEvent_NormalizesValue(t *testing.T) {
	h := newHarness(t, true, "key")
	h.host.refs["a"] = []*gcal.Event{realEvent("a")}

	value := &gcal.Event{Start: &gcal.EventDateTime{DateTime: "2024-01-01T10:00:00+02:00"}}
	h.engine.UpdateEvent(t.Context(), "a", value)

	assert.Contains(t, patches(h.api)["a"], "2024-01-01T08:00:00.000Z")
	assert.Equal(t, "2024-01-01T10:00:00+02:00", value.Start.DateTime, "caller's value is not mutated")
}

// --- Login ---

func TestLogin_PassiveFailureSwallowed(t *testing.T) {
	h := newHarness(t, false, "key")
	h.session.loginErr = errors.New("network down")

	require.NoError(t, h.engine.Login(t.Context(), true))
	assert.False(t, h.engine.IsAuthenticated())
}

func TestLogin_InteractiveFailureReturned(t *testing.T) {
	h := newHarness(t, false, "key")
	h.session.loginErr = errors.New("denied")

	require.Error(t, h.engine.Login(t.Context(), false))
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t, false, "key")

	require.NoError(t, h.engine.Login(t.Context(), false))
	assert.True(t, h.engine.IsAuthenticated())

	h.engine.Logout()
	h.engine.Logout()
	assert.False(t, h.engine.IsAuthenticated())
	assert.Equal(t, 2, h.session.logouts)
}
