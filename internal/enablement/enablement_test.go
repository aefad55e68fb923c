package enablement

import (
	"testing"

	"analytics-relay/internal/model"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestEnabled_MessageOverrides(t *testing.T) {
	overrides := model.Overrides{"MixPanel": false, "All": true}

	assert.True(t, Enabled(overrides, QueueIntegration))
	assert.False(t, Enabled(overrides, "MixPanel"))
	assert.True(t, Enabled(overrides, "Amplitude"), "wildcard enables the rest")
}

func TestEnabled_WildcardIsCaseInsensitive(t *testing.T) {
	overrides := model.Overrides{"all": false, "Logger": true}

	assert.False(t, Enabled(overrides, "Redis"))
	assert.True(t, Enabled(overrides, "Logger"), "explicit entry beats wildcard")
	assert.True(t, Enabled(overrides, QueueIntegration), "queue ignores the wildcard")
}

func TestEnabled_Defaults(t *testing.T) {
	assert.True(t, Enabled(nil, "Redis"))
	assert.True(t, Enabled(model.Overrides{}, "Redis"))
	assert.True(t, Enabled(model.Overrides{"Other": false}, "Redis"))
}

func TestEnabled_QueueIgnoresExplicitFalse(t *testing.T) {
	assert.True(t, Enabled(model.Overrides{QueueIntegration: false}, QueueIntegration))
}

func TestEnabledInPlan(t *testing.T) {
	tests := []struct {
		name string
		plan EventPlan
		key  string
		want bool
	}{
		{"unset enabled defaults to true", EventPlan{}, "Redis", true},
		{"disabled event", EventPlan{Enabled: boolPtr(false)}, "Redis", false},
		{"disabled event includes queue", EventPlan{Enabled: boolPtr(false)}, QueueIntegration, false},
		{"enabled event keeps queue", EventPlan{Integrations: model.Overrides{"All": false}}, QueueIntegration, true},
		{"nested override", EventPlan{Integrations: model.Overrides{"Redis": false}}, "Redis", false},
		{"nested wildcard", EventPlan{Integrations: model.Overrides{"ALL": false}}, "Logger", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnabledInPlan(tt.plan, tt.key))
		})
	}
}

func TestShouldDeliver_PlanDisablesEvent(t *testing.T) {
	plan := Plan{"Event A": {Enabled: boolPtr(false)}}
	ev := &model.Event{Type: model.TypeTrack, Event: "Event A"}

	for _, key := range []string{QueueIntegration, "Logger", "Redis", "MixPanel"} {
		assert.False(t, ShouldDeliver(ev, key, plan), key)
	}

	// 같은 이름이라도 track 이 아니거나 plan 에 없는 이벤트는 그대로 간다
	other := &model.Event{Type: model.TypeTrack, Event: "Event B"}
	assert.True(t, ShouldDeliver(other, QueueIntegration, plan))
}

func TestShouldDeliver_QueueIgnoresOverridesInsideEnabledPlan(t *testing.T) {
	plan := Plan{"Signed Up": {Integrations: model.Overrides{"All": false, QueueIntegration: false}}}
	ev := &model.Event{
		Type:         model.TypeTrack,
		Event:        "Signed Up",
		Integrations: model.Overrides{QueueIntegration: false},
	}

	assert.True(t, ShouldDeliver(ev, QueueIntegration, plan))
	assert.False(t, ShouldDeliver(ev, "Logger", plan))
}

func TestShouldDeliver_PlanDisableBeatsMessageOverride(t *testing.T) {
	plan := Plan{"Event A": {Enabled: boolPtr(false)}}
	ev := &model.Event{
		Type:         model.TypeTrack,
		Event:        "Event A",
		Integrations: model.Overrides{"Logger": true},
	}

	assert.False(t, ShouldDeliver(ev, "Logger", plan))
}

func TestShouldDeliver_MessageOverrideBeatsNestedPlan(t *testing.T) {
	plan := Plan{"Signed Up": {Integrations: model.Overrides{"Logger": false, "Redis": false}}}
	ev := &model.Event{
		Type:         model.TypeTrack,
		Event:        "Signed Up",
		Integrations: model.Overrides{"Logger": true, "All": true},
	}

	assert.True(t, ShouldDeliver(ev, "Logger", plan), "explicit message entry wins")
	assert.False(t, ShouldDeliver(ev, "Redis", plan), "message wildcard does not override the plan")
	assert.True(t, ShouldDeliver(ev, "Other", plan))
}

func TestShouldDeliver_EventNotInPlan(t *testing.T) {
	plan := Plan{"Event A": {Enabled: boolPtr(false)}}
	ev := &model.Event{
		Type:         model.TypeTrack,
		Event:        "Event B",
		Integrations: model.Overrides{"Redis": false},
	}

	assert.False(t, ShouldDeliver(ev, "Redis", plan))
	assert.True(t, ShouldDeliver(ev, "Logger", plan))
}

func TestShouldDeliver_PlanOnlyAppliesToTrack(t *testing.T) {
	plan := Plan{"Home": {Enabled: boolPtr(false)}}
	ev := &model.Event{Type: model.TypeScreen, Name: "Home", Event: "Home"}

	assert.True(t, ShouldDeliver(ev, "Logger", plan))
}

func TestShouldDeliver_MessageOverridesWithoutPlan(t *testing.T) {
	ev := &model.Event{
		Type:         model.TypeIdentify,
		Integrations: model.Overrides{"MixPanel": false, "All": true},
	}

	assert.True(t, ShouldDeliver(ev, QueueIntegration, nil))
	assert.False(t, ShouldDeliver(ev, "MixPanel", nil))
	assert.True(t, ShouldDeliver(ev, "Amplitude", nil))
}
