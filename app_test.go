package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gcal-go/internal/gcal"
	"github.com/tonimelisma/gcal-go/testutil"
)

// testApp is a fully wired stack pointed at a fake calendar.
type testApp struct {
	*app
	fake *testutil.FakeCalendar
	cc   *CLIContext
	out  *bytes.Buffer
	errs *bytes.Buffer
}

// newTestApp builds the stack with extra appended to the generated config.
// With signedIn, a valid token is saved and the passive login is run.
func newTestApp(t *testing.T, extra string, signedIn bool) *testApp {
	t.Helper()

	home := isolateEnv(t)

	fake := testutil.NewFakeCalendar("primary")
	t.Cleanup(fake.Close)

	fake.Token = "tok"
	fake.APIKey = "key"

	path, err := testutil.WriteConfig(home, fake, extra)
	require.NoError(t, err)

	if signedIn {
		require.NoError(t, testutil.WriteToken(filepath.Join(home, "token.json"), "tok"))
	}

	flags := CLIFlags{ConfigPath: path, Quiet: true}

	cfg, err := loadConfig(flags)
	require.NoError(t, err)

	logger := quietLogger()

	a, err := newApp(context.Background(), cfg, flags, logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	ta := &testApp{app: a, fake: fake, out: &bytes.Buffer{}, errs: &bytes.Buffer{}}
	a.Host.out = ta.out
	a.Host.errOut = ta.errs

	ta.cc = &CLIContext{Flags: flags, Cfg: cfg, Logger: logger, App: a}

	if signedIn {
		require.NoError(t, a.Engine.Login(context.Background(), true))
		grantWrite(a.Session)
	}

	return ta
}

func TestApp_AnonymousLoadUsesAPIKey(t *testing.T) {
	ta := newTestApp(t, `api_key = "key"`, false)
	ta.fake.AddEvent("e1", "Standup", "2024-01-01T09:00:00Z", "2024-01-01T09:15:00Z")

	events, err := loadEvents(context.Background(), ta.cc)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Summary)

	reqs := ta.fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "key", reqs[0].APIKey)
	assert.Empty(t, reqs[0].Bearer)

	assert.Len(t, ta.Host.ResolveReferences(refAll), 1, "loaded events become the reference base")
}

func TestApp_AnonymousLoadWithoutKeyFails(t *testing.T) {
	ta := newTestApp(t, "", false)

	_, err := loadEvents(context.Background(), ta.cc)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, ta.errs.String(), "you don't have permission to read this calendar")
}

func TestApp_PassiveLoginFetchesProfile(t *testing.T) {
	ta := newTestApp(t, "", true)

	assert.True(t, ta.Session.IsAuthenticated())
	assert.Equal(t, "Test User", ta.Host.SignedInAs())
	assert.True(t, ta.Session.Permissions().Has(gcal.PermWrite))
}

func TestApp_PassiveLoginWithRejectedTokenDiscardsIt(t *testing.T) {
	ta := newTestApp(t, "", false)
	require.NoError(t, testutil.WriteToken(ta.cc.Cfg.TokenPath, "stale"))

	require.NoError(t, ta.Engine.Login(context.Background(), true), "passive failures are not returned")

	assert.False(t, ta.Session.IsAuthenticated())
	assert.NoFileExists(t, ta.cc.Cfg.TokenPath)
}

func TestApp_CreateWithoutLoginReportsAuthRequired(t *testing.T) {
	ta := newTestApp(t, "", false)

	res := ta.Engine.CreateEvent(context.Background(), &gcal.Event{Summary: "x"})

	assert.ErrorIs(t, ta.Host.finishBatch(res), errReported)
	assert.Contains(t, ta.errs.String(), "you are not signed in")
	assert.Empty(t, ta.fake.Requests())
}

func TestApp_CreateRefreshesAndJournals(t *testing.T) {
	ta := newTestApp(t, "journal = true", true)
	require.NotNil(t, ta.Journal)

	ctx := context.Background()

	res := ta.Engine.CreateEvent(ctx,
		&gcal.Event{
			Summary: "Review",
			Start:   &gcal.EventDateTime{DateTime: "2024-05-02T10:00:00+03:00"},
			End:     &gcal.EventDateTime{DateTime: "2024-05-02T11:00:00+03:00"},
		},
		&gcal.Event{Summary: "No times"},
	)

	assert.ErrorIs(t, ta.Host.finishBatch(res), errReported)
	assert.Equal(t, 1, res.Succeeded())
	assert.True(t, res.Refreshed)
	assert.Equal(t, []string{"gen1"}, ta.fake.EventIDs())
	assert.Contains(t, ta.out.String(), "Review", "the refreshed collection is rendered")
	assert.Contains(t, ta.errs.String(), "No times: an event needs both a start and an end")

	stored := ta.fake.Event("gen1")
	require.NotNil(t, stored)
	assert.Equal(t, "2024-05-02T07:00:00.000Z", stored["start"].(map[string]any)["dateTime"])

	entries, err := ta.Journal.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byTarget := map[string]string{}
	for _, e := range entries {
		assert.Equal(t, res.BatchID, e.BatchID)
		assert.Equal(t, "create", e.Action)
		byTarget[e.Target] = e.Kind
	}

	assert.Equal(t, "ok", byTarget["gen1"])
	assert.Equal(t, "precondition", byTarget["No times"])
}

func TestApp_DeleteFlow(t *testing.T) {
	ta := newTestApp(t, "", true)
	ta.fake.AddEvent("e1", "Standup", "2024-01-01T09:00:00Z", "2024-01-01T09:15:00Z")
	ta.fake.AddEvent("e2", "Review", "2024-01-02T09:00:00Z", "2024-01-02T10:00:00Z")

	ctx := context.Background()

	_, err := loadEvents(ctx, ta.cc)
	require.NoError(t, err)

	res := ta.Engine.DeleteEvent(ctx, "e1", "nope")

	assert.ErrorIs(t, ta.Host.finishBatch(res), errReported)
	assert.Equal(t, []string{"e2"}, ta.fake.EventIDs())
	assert.Equal(t, 1, res.Succeeded())
	assert.Contains(t, ta.errs.String(), "nope: no loaded event matches that reference")
}

func TestApp_DeleteAlreadyGoneWarns(t *testing.T) {
	ta := newTestApp(t, "", true)
	ta.fake.AddEvent("e1", "Standup", "2024-01-01T09:00:00Z", "2024-01-01T09:15:00Z")

	ctx := context.Background()

	_, err := loadEvents(ctx, ta.cc)
	require.NoError(t, err)

	// Someone else deletes it between our load and our delete.
	first := ta.Engine.DeleteEvent(ctx, "e1")
	require.Equal(t, 1, first.Succeeded())

	ta.Host.remember([]*gcal.Event{{Kind: gcal.EventKind, Id: "e1"}})
	ta.errs.Reset()

	res := ta.Engine.DeleteEvent(ctx, "e1")

	assert.NoError(t, ta.Host.finishBatch(res))
	assert.Equal(t, 1, res.Succeeded())
	assert.Contains(t, ta.errs.String(), "Warning: e1: the event was already deleted")
}

func TestApp_UpdateAllWithOneValue(t *testing.T) {
	ta := newTestApp(t, "", true)
	ta.fake.AddEvent("e1", "Standup", "2024-01-01T09:00:00Z", "2024-01-01T09:15:00Z")
	ta.fake.AddEvent("e2", "Review", "2024-01-02T09:00:00Z", "2024-01-02T10:00:00Z")

	ctx := context.Background()

	_, err := loadEvents(ctx, ta.cc)
	require.NoError(t, err)

	res := ta.Engine.UpdateEvent(ctx, refAll, &gcal.Event{Location: "Room 4"})

	assert.NoError(t, ta.Host.finishBatch(res))
	assert.Equal(t, 2, res.Succeeded())
	assert.Equal(t, "Room 4", ta.fake.Event("e1")["location"])
	assert.Equal(t, "Room 4", ta.fake.Event("e2")["location"])
	assert.Equal(t, "Standup", ta.fake.Event("e1")["summary"], "patch keeps other fields")
}

func TestApp_QuickAdd(t *testing.T) {
	ta := newTestApp(t, "", true)

	res := ta.Engine.QuickCreateEvent(context.Background(), "Lunch with Ana tomorrow 12:30", "  ")

	assert.ErrorIs(t, ta.Host.finishBatch(res), errReported, "the blank text is a failed item")
	assert.Equal(t, 1, res.Succeeded())
	assert.Equal(t, "Lunch with Ana tomorrow 12:30", ta.fake.Event("gen1")["summary"])
	assert.Contains(t, ta.errs.String(), "Warning: the quick-add text is blank")
}

func TestApp_CloseWithoutJournal(t *testing.T) {
	assert.NoError(t, (&app{}).Close())
}
