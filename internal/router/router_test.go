package router

import (
	"sync"
	"testing"

	"analytics-relay/internal/enablement"
	"analytics-relay/internal/metrics"
	"analytics-relay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 는 호출된 작업 이름을 순서대로 기록한다.
type recorder struct {
	Base
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) Identify(*model.Event)                     { r.add("identify") }
func (r *recorder) Group(*model.Event)                        { r.add("group") }
func (r *recorder) Track(ev *model.Event)                     { r.add("track:" + ev.Event) }
func (r *recorder) Screen(*model.Event)                       { r.add("screen") }
func (r *recorder) Alias(*model.Event)                        { r.add("alias") }
func (r *recorder) ActivityCreated(*model.Activity)           { r.add("created") }
func (r *recorder) ActivityStarted(*model.Activity)           { r.add("started") }
func (r *recorder) ActivityResumed(*model.Activity)           { r.add("resumed") }
func (r *recorder) ActivityPaused(*model.Activity)            { r.add("paused") }
func (r *recorder) ActivityStopped(*model.Activity)           { r.add("stopped") }
func (r *recorder) ActivitySaveInstanceState(*model.Activity) { r.add("save") }
func (r *recorder) ActivityDestroyed(act *model.Activity)     { r.add("destroyed:" + act.Name) }
func (r *recorder) Flush()                                    { r.add("flush") }
func (r *recorder) Reset()                                    { r.add("reset") }

type panicky struct{ Base }

func (panicky) Track(*model.Event) { panic("boom") }

func TestRouter_MessageRespectsEnablement(t *testing.T) {
	m := metrics.New()
	r := New(m)
	queue, mix, other := &recorder{}, &recorder{}, &recorder{}
	r.Register(enablement.QueueIntegration, queue)
	r.Register("MixPanel", mix)
	r.Register("Other", other)

	ev := &model.Event{
		Type:         model.TypeIdentify,
		Integrations: model.Overrides{"MixPanel": false, "All": true},
	}
	res := r.Run(Identify(ev), nil)

	assert.Equal(t, Result{Delivered: 2, Skipped: 1}, res)
	assert.Equal(t, []string{"identify"}, queue.calls)
	assert.Empty(t, mix.calls)
	assert.Equal(t, []string{"identify"}, other.calls)
	assert.Equal(t, int64(2), m.IntegrationDeliveredTotal)
	assert.Equal(t, int64(1), m.IntegrationSkippedTotal)
}

func TestRouter_TrackingPlanDisablesEvent(t *testing.T) {
	r := New(nil)
	queue, logger := &recorder{}, &recorder{}
	r.Register(enablement.QueueIntegration, queue)
	r.Register("Logger", logger)

	f := false
	plan := enablement.Plan{"Event A": {Enabled: &f}}

	r.Run(Track(&model.Event{Type: model.TypeTrack, Event: "Event A"}), plan)
	r.Run(Track(&model.Event{Type: model.TypeTrack, Event: "Event B"}), plan)

	assert.Equal(t, []string{"track:Event A", "track:Event B"}, queue.calls)
	assert.Equal(t, []string{"track:Event B"}, logger.calls)
}

func TestRouter_LifecycleFlushResetBypassEnablement(t *testing.T) {
	r := New(nil)
	rec := &recorder{}
	r.Register("Disabled", rec)

	// 메시지라면 꺼졌을 설정이지만 lifecycle 작업에는 적용되지 않는다.
	act := &model.Activity{Name: "Main"}
	for _, k := range []Kind{
		KindActivityCreated, KindActivityStarted, KindActivityResumed, KindActivityPaused,
		KindActivityStopped, KindActivitySaveInstanceState, KindActivityDestroyed,
	} {
		op, ok := Lifecycle(k, act)
		require.True(t, ok)
		r.Run(op, nil)
	}
	r.Run(FlushOp, nil)
	r.Run(ResetOp, nil)

	assert.Equal(t, []string{
		"created", "started", "resumed", "paused", "stopped", "save", "destroyed:Main", "flush", "reset",
	}, rec.calls)
}

func TestRouter_PanicIsContained(t *testing.T) {
	m := metrics.New()
	r := New(m)
	after := &recorder{}
	r.Register("Panicky", panicky{})
	r.Register("After", after)

	res := r.Run(Track(&model.Event{Type: model.TypeTrack, Event: "x"}), nil)

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, []string{"track:x"}, after.calls)
	assert.Equal(t, int64(1), m.IntegrationPanicsTotal)
}

func TestRouter_RegisterReplacesInPlace(t *testing.T) {
	r := New(nil)
	first, second := &recorder{}, &recorder{}
	r.Register("A", first)
	r.Register("B", &recorder{})
	r.Register("A", second)

	assert.Equal(t, []string{"A", "B"}, r.Keys())
	r.Run(FlushOp, nil)
	assert.Empty(t, first.calls)
	assert.Equal(t, []string{"flush"}, second.calls)
}

func TestFromEvent(t *testing.T) {
	op, err := FromEvent(&model.Event{Type: model.TypeAlias})
	require.NoError(t, err)
	assert.Equal(t, KindAlias, op.Kind)

	_, err = FromEvent(&model.Event{Type: "page"})
	assert.Error(t, err)

	_, ok := Lifecycle(KindTrack, nil)
	assert.False(t, ok)
}

func TestParseLifecycle(t *testing.T) {
	k, ok := ParseLifecycle("save_instance_state")
	require.True(t, ok)
	assert.Equal(t, KindActivitySaveInstanceState, k)
	assert.Equal(t, "Activity Save Instance", k.String())

	_, ok = ParseLifecycle("paused ")
	assert.False(t, ok)
}
