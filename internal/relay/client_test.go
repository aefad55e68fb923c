package relay

import (
	"sync"
	"testing"
	"time"

	"analytics-relay/internal/clock"
	"analytics-relay/internal/enablement"
	"analytics-relay/internal/model"
	"analytics-relay/internal/router"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	enqueued []*model.Event
	flushes  int
}

func (f *fakeDispatcher) Enqueue(ev any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, ev.(*model.Event))
	return true
}

func (f *fakeDispatcher) Flush() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return true
}

type tracks struct {
	router.Base
	names []string
	acts  []string
	reset int
}

func (t *tracks) Track(ev *model.Event)                 { t.names = append(t.names, ev.Event) }
func (t *tracks) ActivityPaused(act *model.Activity)    { t.acts = append(t.acts, "paused:"+act.Name) }
func (t *tracks) ActivityDestroyed(act *model.Activity) { t.acts = append(t.acts, "destroyed:"+act.Name) }
func (t *tracks) Reset()                                { t.reset++ }

type staticPlan enablement.Plan

func (p staticPlan) Plan() enablement.Plan { return enablement.Plan(p) }

var now = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newClient(plan enablement.Plan) (*Client, *fakeDispatcher, *tracks) {
	r := router.New(nil)
	fd := &fakeDispatcher{}
	other := &tracks{}
	r.Register(enablement.QueueIntegration, NewQueueIntegration(fd))
	r.Register("Mixpanel", other)
	return New(r, staticPlan(plan), clock.Fake(now)), fd, other
}

func TestSubmit_StampsMissingFields(t *testing.T) {
	c, fd, _ := newClient(nil)

	ev := &model.Event{UserID: "u1", Event: "Signed Up"}
	require.NoError(t, c.Track(ev))

	require.Len(t, fd.enqueued, 1)
	got := fd.enqueued[0]
	assert.Equal(t, model.TypeTrack, got.Type)
	assert.Equal(t, now, got.Timestamp)
	_, err := uuid.Parse(got.MessageID)
	assert.NoError(t, err)
}

func TestSubmit_KeepsCallerIDAndTimestamp(t *testing.T) {
	c, fd, _ := newClient(nil)
	ts := now.Add(-time.Hour)

	require.NoError(t, c.Submit(&model.Event{
		Type: model.TypeIdentify, UserID: "u1", MessageID: "m-1", Timestamp: ts,
	}))

	require.Len(t, fd.enqueued, 1)
	assert.Equal(t, "m-1", fd.enqueued[0].MessageID)
	assert.Equal(t, ts, fd.enqueued[0].Timestamp)
}

func TestSubmit_Validation(t *testing.T) {
	c, fd, _ := newClient(nil)

	cases := map[string]*model.Event{
		"unknown type":    {Type: "page", UserID: "u"},
		"no identity":     {Type: model.TypeIdentify},
		"track no name":   {Type: model.TypeTrack, UserID: "u"},
		"group no id":     {Type: model.TypeGroup, AnonymousID: "a"},
		"screen no name":  {Type: model.TypeScreen, UserID: "u"},
		"alias no prev":   {Type: model.TypeAlias, UserID: "u"},
		"alias anon only": {Type: model.TypeAlias, AnonymousID: "a", PreviousID: "p"},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Submit(ev), ErrInvalidEvent)
		})
	}
	assert.ErrorIs(t, c.Submit(nil), ErrInvalidEvent)
	assert.ErrorIs(t, c.Track(nil), ErrInvalidEvent)
	assert.Empty(t, fd.enqueued)

	require.NoError(t, c.Alias(&model.Event{UserID: "u", PreviousID: "p"}))
	require.NoError(t, c.Screen(&model.Event{AnonymousID: "a", Category: "Docs"}))
	require.NoError(t, c.Group(&model.Event{UserID: "u", GroupID: "g"}))
	assert.Len(t, fd.enqueued, 3)
}

func TestSubmit_PlanDisabledEventReachesNoIntegration(t *testing.T) {
	f := false
	c, fd, other := newClient(enablement.Plan{"Event A": {Enabled: &f}})

	require.NoError(t, c.Track(&model.Event{UserID: "u", Event: "Event A"}))
	require.NoError(t, c.Track(&model.Event{UserID: "u", Event: "Event B"}))

	require.Len(t, fd.enqueued, 1)
	assert.Equal(t, "Event B", fd.enqueued[0].Event)
	assert.Equal(t, []string{"Event B"}, other.names)
}

func TestSubmit_QueueIgnoresMessageOverrides(t *testing.T) {
	c, fd, other := newClient(nil)

	require.NoError(t, c.Track(&model.Event{
		UserID:       "u",
		Event:        "Clicked",
		Integrations: model.Overrides{"All": false},
	}))

	assert.Len(t, fd.enqueued, 1)
	assert.Empty(t, other.names)
}

func TestLifecycleFlushReset(t *testing.T) {
	c, fd, other := newClient(nil)

	require.NoError(t, c.Lifecycle(router.KindActivityPaused, &model.Activity{Name: "Main"}))
	require.NoError(t, c.Lifecycle(router.KindActivityDestroyed, nil))
	assert.ErrorIs(t, c.Lifecycle(router.KindTrack, nil), ErrInvalidEvent)

	c.Flush()
	c.Reset()

	assert.Equal(t, []string{"paused:Main", "destroyed:"}, other.acts)
	assert.Equal(t, 1, fd.flushes)
	assert.Equal(t, 1, other.reset)
	assert.Empty(t, fd.enqueued)
}
