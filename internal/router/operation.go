package router

import (
	"fmt"

	"analytics-relay/internal/model"
)

// Kind 는 router 가 integration 에 전달하는 작업의 종류다.
// 메시지 5종 + lifecycle 7종 + Flush / Reset 의 닫힌 집합.
type Kind int

const (
	KindIdentify Kind = iota + 1
	KindGroup
	KindTrack
	KindScreen
	KindAlias

	KindActivityCreated
	KindActivityStarted
	KindActivityResumed
	KindActivityPaused
	KindActivityStopped
	KindActivitySaveInstanceState
	KindActivityDestroyed

	KindFlush
	KindReset
)

var kindNames = map[Kind]string{
	KindIdentify:                  "Identify",
	KindGroup:                     "Group",
	KindTrack:                     "Track",
	KindScreen:                    "Screen",
	KindAlias:                     "Alias",
	KindActivityCreated:           "Activity Created",
	KindActivityStarted:           "Activity Started",
	KindActivityResumed:           "Activity Resumed",
	KindActivityPaused:            "Activity Paused",
	KindActivityStopped:           "Activity Stopped",
	KindActivitySaveInstanceState: "Activity Save Instance",
	KindActivityDestroyed:         "Activity Destroyed",
	KindFlush:                     "Flush",
	KindReset:                     "Reset",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsMessage 는 enablement 판단이 필요한 메시지 작업인지 여부.
func (k Kind) IsMessage() bool {
	return k >= KindIdentify && k <= KindAlias
}

// IsLifecycle 는 lifecycle callback 작업인지 여부.
func (k Kind) IsLifecycle() bool {
	return k >= KindActivityCreated && k <= KindActivityDestroyed
}

var lifecycleKinds = map[string]Kind{
	"created":             KindActivityCreated,
	"started":             KindActivityStarted,
	"resumed":             KindActivityResumed,
	"paused":              KindActivityPaused,
	"stopped":             KindActivityStopped,
	"save_instance_state": KindActivitySaveInstanceState,
	"destroyed":           KindActivityDestroyed,
}

// ParseLifecycle 는 HTTP 요청 등에서 쓰는 소문자 이름을 Kind 로 바꾼다.
func ParseLifecycle(name string) (Kind, bool) {
	k, ok := lifecycleKinds[name]
	return k, ok
}

// Operation 은 integration 하나에 적용할 작업 1건.
// Kind 에 따라 Event (메시지) 또는 Activity (lifecycle) 중 하나만 채워진다.
type Operation struct {
	Kind     Kind
	Event    *model.Event
	Activity *model.Activity
}

func (op Operation) String() string {
	if op.Event != nil {
		return fmt.Sprintf("%s{messageId=%s}", op.Kind, op.Event.MessageID)
	}
	if op.Activity != nil {
		return fmt.Sprintf("%s{activity=%s}", op.Kind, op.Activity.Name)
	}
	return op.Kind.String()
}

func Identify(ev *model.Event) Operation { return Operation{Kind: KindIdentify, Event: ev} }
func Group(ev *model.Event) Operation    { return Operation{Kind: KindGroup, Event: ev} }
func Track(ev *model.Event) Operation    { return Operation{Kind: KindTrack, Event: ev} }
func Screen(ev *model.Event) Operation   { return Operation{Kind: KindScreen, Event: ev} }
func Alias(ev *model.Event) Operation    { return Operation{Kind: KindAlias, Event: ev} }

// Lifecycle 는 lifecycle 작업을 만든다. kind 가 lifecycle 종류가 아니면 false.
func Lifecycle(kind Kind, act *model.Activity) (Operation, bool) {
	if !kind.IsLifecycle() {
		return Operation{}, false
	}
	return Operation{Kind: kind, Activity: act}, true
}

var (
	FlushOp = Operation{Kind: KindFlush}
	ResetOp = Operation{Kind: KindReset}
)

// FromEvent 는 이벤트의 type 필드로 메시지 작업을 고른다.
func FromEvent(ev *model.Event) (Operation, error) {
	if ev == nil {
		return Operation{}, fmt.Errorf("router: nil event")
	}
	switch ev.Type {
	case model.TypeIdentify:
		return Identify(ev), nil
	case model.TypeGroup:
		return Group(ev), nil
	case model.TypeTrack:
		return Track(ev), nil
	case model.TypeScreen:
		return Screen(ev), nil
	case model.TypeAlias:
		return Alias(ev), nil
	}
	return Operation{}, fmt.Errorf("router: unknown event type %q", ev.Type)
}
