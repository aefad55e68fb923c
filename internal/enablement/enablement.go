// internal/enablement/enablement.go
package enablement

import (
	"analytics-relay/internal/model"
)

// ------------------------------------------------------------
// enablement
//
// "이 이벤트를 이 integration 에 보낼 것인가" 를 판단하는 순수 함수 모음.
// 호출자가 이벤트, integration key, tracking plan snapshot 을 넘기고
// 여기서는 아무것도 캐싱하거나 공유 상태를 읽지 않는다.
// 따라서 어느 goroutine 에서 호출해도 안전하다.
// ------------------------------------------------------------

const (
	// QueueIntegration: durable queue 에 기록하는 내장 integration.
	// message override map 으로는 끌 수 없다 (plan 의 enabled:false 만 예외).
	QueueIntegration = "Relay"

	// AllIntegrations: wildcard override key. 대소문자 구분 없음.
	AllIntegrations = "All"
)

// EventPlan 은 track 이벤트 이름 하나에 대한 tracking plan 항목.
type EventPlan struct {
	// Enabled 가 nil 이면 true 로 본다.
	Enabled      *bool           `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Integrations model.Overrides `json:"integrations,omitempty" yaml:"integrations,omitempty"`
}

func (p EventPlan) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Plan: track 이벤트 이름 → plan 항목.
type Plan map[string]EventPlan

// Enabled
//
// message 단위 override map 규칙:
//  1. QueueIntegration 은 항상 켜짐
//  2. key 가 명시되어 있으면 그 값
//  3. wildcard("All", 대소문자 무시) 가 있으면 그 값
//  4. 나머지는 켜짐
func Enabled(overrides model.Overrides, key string) bool {
	if key == QueueIntegration {
		return true
	}
	if len(overrides) == 0 {
		return true
	}
	if overrides.Has(key) {
		return overrides.Bool(key, true)
	}
	if all, ok := overrides.FoldKey(AllIntegrations); ok {
		return overrides.Bool(all, true)
	}
	return true
}

// EnabledInPlan 은 plan 항목 하나만으로 판단한다.
// enabled:false 면 QueueIntegration 을 포함한 모든 integration 에서 꺼지고,
// 그 외에는 항목의 nested override 가 결정한다.
func EnabledInPlan(p EventPlan, key string) bool {
	if !p.IsEnabled() {
		return false
	}
	return Enabled(p.Integrations, key)
}

// ShouldDeliver
//
// 이벤트 1건 × integration 1개에 대한 최종 판단.
//
//  1. track 이벤트가 plan 에 있고 enabled:false → 모든 integration 에서 꺼짐
//  2. QueueIntegration → 켜짐
//  3. plan 에 있는 track 이벤트: message override 가 key 를 명시하면 그 값,
//     아니면 plan 의 nested override 로 Enabled 규칙 적용
//  4. 그 외: message override 로 Enabled 규칙 적용
func ShouldDeliver(ev *model.Event, key string, plan Plan) bool {
	if ev == nil {
		return true
	}

	if ev.Type == model.TypeTrack && len(plan) > 0 {
		if p, ok := plan[ev.Event]; ok {
			if !p.IsEnabled() {
				return false
			}
			if key == QueueIntegration {
				return true
			}
			if ev.Integrations.Has(key) {
				return ev.Integrations.Bool(key, true)
			}
			return Enabled(p.Integrations, key)
		}
	}

	return Enabled(ev.Integrations, key)
}
