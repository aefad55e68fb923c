// internal/model/event.go
package model

import (
	"strconv"
	"strings"
	"time"
)

// Type
// ------------------------------------------------------------
// 메시지 이벤트 종류. JSON 의 "type" 필드 값과 같다.
type Type string

const (
	TypeIdentify Type = "identify"
	TypeGroup    Type = "group"
	TypeTrack    Type = "track"
	TypeScreen   Type = "screen"
	TypeAlias    Type = "alias"
)

// Valid 는 알려진 메시지 종류인지 확인한다.
func (t Type) Valid() bool {
	switch t {
	case TypeIdentify, TypeGroup, TypeTrack, TypeScreen, TypeAlias:
		return true
	}
	return false
}

// Event
// ------------------------------------------------------------
// 클라이언트(producer)가 만든 단일 분석 이벤트.
// relay 파이프라인에서 모든 데이터의 "기본 단위"가 된다.
//
// Router → Integration 으로는 포인터 그대로 전달되고,
// Durable Queue 에는 enqueue 시점에 한 번만 JSON 으로 직렬화되어 저장된다.
// 직렬화 이후 Event 객체는 보관하지 않는다.
//
// Integrations 는 메시지 단위 override map 이다.
// 값은 bool 이거나, track 이벤트의 경우 integration 별 세부 설정 map 일 수 있다.
type Event struct {
	Type        Type      `json:"type"`
	MessageID   string    `json:"messageId"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"userId,omitempty"`
	AnonymousID string    `json:"anonymousId,omitempty"`

	Event      string `json:"event,omitempty"`      // track: 이벤트 이름
	Name       string `json:"name,omitempty"`       // screen: 화면 이름
	Category   string `json:"category,omitempty"`   // screen
	GroupID    string `json:"groupId,omitempty"`    // group
	PreviousID string `json:"previousId,omitempty"` // alias

	Traits     map[string]any `json:"traits,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Context    map[string]any `json:"context,omitempty"`

	Integrations Overrides `json:"integrations,omitempty"`
}

// Overrides
// ------------------------------------------------------------
// integration 이름 → 설정 값.
// 값이 bool 이면 그대로 on/off, 문자열 "true"/"false" 는 파싱,
// 그 외(세부 설정 map 등)는 "켜져 있음" 으로 해석한다.
type Overrides map[string]any

// Has 는 key 가 명시적으로 존재하는지 확인한다 (대소문자 구분).
func (o Overrides) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Bool 은 key 값을 bool 로 읽는다. 없거나 해석할 수 없으면 def.
func (o Overrides) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok {
		return def
	}
	return asBool(v, def)
}

// FoldKey 는 대소문자를 무시하고 key 와 같은 항목을 찾는다.
// 정확히 일치하는 key 가 있으면 그것을 우선한다.
// 그 외 후보가 여럿이면 ("ALL", "all") 바이트 순으로 가장 앞선 것을 고른다.
// map 순회 순서에 따라 결과가 달라지지 않도록.
func (o Overrides) FoldKey(key string) (string, bool) {
	if _, ok := o[key]; ok {
		return key, true
	}
	found, best := false, ""
	for k := range o {
		if !strings.EqualFold(k, key) {
			continue
		}
		if !found || k < best {
			found, best = true, k
		}
	}
	return best, found
}

func asBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if p, err := strconv.ParseBool(b); err == nil {
			return p
		}
		return def
	case nil:
		return def
	default:
		// 세부 설정 map 등: integration 이 설정되어 있다 = 켜져 있다.
		return true
	}
}
