// internal/relay/client.go
package relay

import (
	"errors"
	"fmt"

	"analytics-relay/internal/clock"
	"analytics-relay/internal/enablement"
	"analytics-relay/internal/model"
	"analytics-relay/internal/router"

	"github.com/google/uuid"
)

// relay
//
// producer 쪽 API.
// 이벤트에 messageId / timestamp 를 채우고 검증한 뒤 router 로 넘긴다.

// ErrInvalidEvent: 모든 검증 실패는 이 에러를 감싼다.
var ErrInvalidEvent = errors.New("relay: invalid event")

// PlanSource: 매 판단마다 tracking plan snapshot 을 준다. (settings.Store)
type PlanSource interface {
	Plan() enablement.Plan
}

type noPlan struct{}

func (noPlan) Plan() enablement.Plan { return nil }

// Client
//
// 이벤트와 lifecycle 알림을 등록된 모든 integration 으로 라우팅한다.
// 여러 goroutine 에서 동시에 써도 된다.
type Client struct {
	router *router.Router
	plans  PlanSource
	clock  clock.Clock
	newID  func() string
}

func New(r *router.Router, plans PlanSource, clk clock.Clock) *Client {
	if plans == nil {
		plans = noPlan{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Client{router: r, plans: plans, clock: clk, newID: uuid.NewString}
}

func (c *Client) Identify(ev *model.Event) error { return c.submitAs(model.TypeIdentify, ev) }
func (c *Client) Group(ev *model.Event) error    { return c.submitAs(model.TypeGroup, ev) }
func (c *Client) Track(ev *model.Event) error    { return c.submitAs(model.TypeTrack, ev) }
func (c *Client) Screen(ev *model.Event) error   { return c.submitAs(model.TypeScreen, ev) }
func (c *Client) Alias(ev *model.Event) error    { return c.submitAs(model.TypeAlias, ev) }

func (c *Client) submitAs(t model.Type, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	ev.Type = t
	return c.Submit(ev)
}

// Submit
//
// ev.Type 에 따라 라우팅한다. messageId / timestamp 가 비어있으면 채운다.
// 넘긴 뒤에는 ev 를 수정하지 않는다. (integration 들이 같은 포인터를 공유)
func (c *Client) Submit(ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	c.stamp(ev)
	if err := Validate(ev); err != nil {
		return err
	}
	op, err := router.FromEvent(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	c.router.Run(op, c.plans.Plan())
	return nil
}

// Lifecycle: 호스트 lifecycle 콜백 전달 (plan 적용 없음)
func (c *Client) Lifecycle(kind router.Kind, act *model.Activity) error {
	if act == nil {
		act = &model.Activity{}
	}
	op, ok := router.Lifecycle(kind, act)
	if !ok {
		return fmt.Errorf("%w: %s is not a lifecycle kind", ErrInvalidEvent, kind)
	}
	c.router.Run(op, nil)
	return nil
}

func (c *Client) Flush() { c.router.Run(router.FlushOp, nil) }

// Reset: 모든 integration 에 현재 사용자 정보를 잊으라고 알린다.
func (c *Client) Reset() { c.router.Run(router.ResetOp, nil) }

func (c *Client) stamp(ev *model.Event) {
	if ev.MessageID == "" {
		ev.MessageID = c.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.clock.Now().UTC()
	}
}

// Validate: 타입별 필수 필드 검사
func Validate(ev *model.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}

	switch ev.Type {
	case model.TypeAlias:
		if ev.UserID == "" || ev.PreviousID == "" {
			return fmt.Errorf("%w: alias requires userId and previousId", ErrInvalidEvent)
		}
		return nil
	}

	if ev.UserID == "" && ev.AnonymousID == "" {
		return fmt.Errorf("%w: userId or anonymousId is required", ErrInvalidEvent)
	}

	switch ev.Type {
	case model.TypeTrack:
		if ev.Event == "" {
			return fmt.Errorf("%w: track requires event", ErrInvalidEvent)
		}
	case model.TypeGroup:
		if ev.GroupID == "" {
			return fmt.Errorf("%w: group requires groupId", ErrInvalidEvent)
		}
	case model.TypeScreen:
		if ev.Name == "" && ev.Category == "" {
			return fmt.Errorf("%w: screen requires name or category", ErrInvalidEvent)
		}
	}
	return nil
}
