package testutil

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
)

// Request is one call the fake received.
type Request struct {
	Method string
	Path   string
	Bearer string
	APIKey string
}

// FakeCalendar serves the subset of the Calendar v3 events API the client
// uses (list, insert, quickAdd, patch, delete) plus a userinfo endpoint.
// Reads accept Token or APIKey; writes and the profile need Token.
type FakeCalendar struct {
	Server     *httptest.Server
	CalendarID string
	Token      string
	APIKey     string
	UserName   string

	mu       sync.Mutex
	order    []string
	events   map[string]map[string]any
	deleted  map[string]bool
	nextID   int
	requests []Request
}

// NewFakeCalendar starts a fake for calendarID. Call Close when done.
func NewFakeCalendar(calendarID string) *FakeCalendar {
	f := &FakeCalendar{
		CalendarID: calendarID,
		UserName:   "Test User",
		events:     make(map[string]map[string]any),
		deleted:    make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /userinfo", f.handleUserinfo)
	mux.HandleFunc("GET /calendars/{cal}/events", f.handleList)
	mux.HandleFunc("POST /calendars/{cal}/events", f.handleInsert)
	mux.HandleFunc("POST /calendars/{cal}/events/quickAdd", f.handleQuickAdd)
	mux.HandleFunc("PATCH /calendars/{cal}/events/{id}", f.handlePatch)
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", f.handleDelete)

	f.Server = httptest.NewServer(f.recording(mux))

	return f
}

// Close shuts the server down.
func (f *FakeCalendar) Close() {
	f.Server.Close()
}

// APIDomain is the api_domain value for this fake.
func (f *FakeCalendar) APIDomain() string {
	return f.Server.URL + "/calendars/"
}

// UserinfoURL is the userinfo_url value for this fake.
func (f *FakeCalendar) UserinfoURL() string {
	return f.Server.URL + "/userinfo"
}

// AddEvent stores a timed event.
func (f *FakeCalendar) AddEvent(id, summary, start, end string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.store(id, map[string]any{
		"summary": summary,
		"start":   map[string]any{"dateTime": start},
		"end":     map[string]any{"dateTime": end},
	})
}

// EventIDs returns the stored ids in insertion order.
func (f *FakeCalendar) EventIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.order)
}

// Event returns a copy of a stored event, or nil.
func (f *FakeCalendar) Event(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	ev, ok := f.events[id]
	if !ok {
		return nil
	}

	return maps.Clone(ev)
}

// Requests returns every request received so far.
func (f *FakeCalendar) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.requests)
}

func (f *FakeCalendar) recording(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Bearer: bearerOf(r),
			APIKey: r.URL.Query().Get("key"),
		})
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func bearerOf(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// authorizeRead reports whether a read may proceed, writing the error
// response when not.
func (f *FakeCalendar) authorizeRead(w http.ResponseWriter, r *http.Request) bool {
	if b := bearerOf(r); b != "" {
		if f.Token != "" && b == f.Token {
			return true
		}

		writeError(w, http.StatusUnauthorized, "authError", "Invalid Credentials")

		return false
	}

	if k := r.URL.Query().Get("key"); k != "" && k == f.APIKey {
		return true
	}

	writeError(w, http.StatusForbidden, "forbidden", "The caller does not have permission")

	return false
}

func (f *FakeCalendar) authorizeWrite(w http.ResponseWriter, r *http.Request) bool {
	if b := bearerOf(r); f.Token != "" && b == f.Token {
		return true
	}

	writeError(w, http.StatusUnauthorized, "authError", "Login Required")

	return false
}

func (f *FakeCalendar) knownCalendar(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("cal") == f.CalendarID {
		return true
	}

	writeError(w, http.StatusNotFound, "notFound", "Not Found")

	return false
}

func (f *FakeCalendar) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if b := bearerOf(r); f.Token == "" || b != f.Token {
		writeError(w, http.StatusUnauthorized, "authError", "Invalid Credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "user-1",
		"name":    f.UserName,
		"picture": "https://example.test/avatar.png",
	})
}

func (f *FakeCalendar) handleList(w http.ResponseWriter, r *http.Request) {
	if !f.knownCalendar(w, r) || !f.authorizeRead(w, r) {
		return
	}

	f.mu.Lock()
	items := make([]map[string]any, 0, len(f.order))
	for _, id := range f.order {
		items = append(items, maps.Clone(f.events[id]))
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"kind": "calendar#events", "items": items})
}

func (f *FakeCalendar) handleInsert(w http.ResponseWriter, r *http.Request) {
	if !f.knownCalendar(w, r) || !f.authorizeWrite(w, r) {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "parseError", "Parse Error")
		return
	}

	if body["start"] == nil || body["end"] == nil {
		writeError(w, http.StatusBadRequest, "required", "Missing end time.")
		return
	}

	f.mu.Lock()
	ev := maps.Clone(f.store(f.newID(), body))
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, ev)
}

func (f *FakeCalendar) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	if !f.knownCalendar(w, r) || !f.authorizeWrite(w, r) {
		return
	}

	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "required", "Required parameter: text")
		return
	}

	f.mu.Lock()
	ev := maps.Clone(f.store(f.newID(), map[string]any{
		"summary": text,
		"start":   map[string]any{"dateTime": "2024-01-01T12:00:00Z"},
		"end":     map[string]any{"dateTime": "2024-01-01T13:00:00Z"},
	}))
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, ev)
}

func (f *FakeCalendar) handlePatch(w http.ResponseWriter, r *http.Request) {
	if !f.knownCalendar(w, r) || !f.authorizeWrite(w, r) {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "parseError", "Parse Error")
		return
	}

	id := r.PathValue("id")

	f.mu.Lock()
	stored, ok := f.events[id]
	var ev map[string]any
	if ok {
		maps.Copy(stored, body)
		stored["kind"], stored["id"] = "calendar#event", id
		ev = maps.Clone(stored)
	}
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "notFound", "Not Found")
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

func (f *FakeCalendar) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !f.knownCalendar(w, r) || !f.authorizeWrite(w, r) {
		return
	}

	id := r.PathValue("id")

	f.mu.Lock()
	_, ok := f.events[id]
	gone := f.deleted[id]

	if ok {
		delete(f.events, id)
		f.order = slices.DeleteFunc(f.order, func(s string) bool { return s == id })
		f.deleted[id] = true
	}
	f.mu.Unlock()

	switch {
	case ok:
		w.WriteHeader(http.StatusNoContent)
	case gone:
		writeError(w, http.StatusGone, "deleted", "Resource has been deleted")
	default:
		writeError(w, http.StatusNotFound, "notFound", "Not Found")
	}
}

// store saves ev under id with the server-assigned fields. Caller holds mu.
func (f *FakeCalendar) store(id string, ev map[string]any) map[string]any {
	ev["kind"] = "calendar#event"
	ev["id"] = id

	if _, exists := f.events[id]; !exists {
		f.order = append(f.order, id)
	}

	f.events[id] = ev

	return ev
}

// newID returns the next generated event id. Caller holds mu.
func (f *FakeCalendar) newID() string {
	f.nextID++
	return fmt.Sprintf("gen%d", f.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors":  []map[string]any{{"reason": reason, "message": message}},
		},
	})
}
