package router

import "analytics-relay/internal/model"

// Integration 은 router 가 작업을 전달하는 downstream consumer.
// 작업 종류마다 메서드가 하나씩 있다. 필요한 것만 구현하려면 Base 를 embed 한다.
//
// Router.Run 은 producer goroutine 에서 동기적으로 호출되므로
// 구현체는 동시 호출에 안전해야 한다.
//
// 같은 *model.Event 가 등록된 모든 integration 에 차례로 전달된다.
// 이벤트는 읽기 전용으로 다루고, 보관하거나 바꿔야 하면 복사본을 쓴다.
type Integration interface {
	Identify(ev *model.Event)
	Group(ev *model.Event)
	Track(ev *model.Event)
	Screen(ev *model.Event)
	Alias(ev *model.Event)

	ActivityCreated(act *model.Activity)
	ActivityStarted(act *model.Activity)
	ActivityResumed(act *model.Activity)
	ActivityPaused(act *model.Activity)
	ActivityStopped(act *model.Activity)
	ActivitySaveInstanceState(act *model.Activity)
	ActivityDestroyed(act *model.Activity)

	Flush()
	Reset()
}

// Base 는 모든 메서드를 no-op 으로 구현한다.
type Base struct{}

func (Base) Identify(*model.Event) {}
func (Base) Group(*model.Event)    {}
func (Base) Track(*model.Event)    {}
func (Base) Screen(*model.Event)   {}
func (Base) Alias(*model.Event)    {}

func (Base) ActivityCreated(*model.Activity)           {}
func (Base) ActivityStarted(*model.Activity)           {}
func (Base) ActivityResumed(*model.Activity)           {}
func (Base) ActivityPaused(*model.Activity)            {}
func (Base) ActivityStopped(*model.Activity)           {}
func (Base) ActivitySaveInstanceState(*model.Activity) {}
func (Base) ActivityDestroyed(*model.Activity)         {}

func (Base) Flush() {}
func (Base) Reset() {}

var _ Integration = Base{}
