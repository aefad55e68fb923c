package relay

import (
	"analytics-relay/internal/model"
	"analytics-relay/internal/router"
)

// Enqueuer 는 queue integration 이 쓰는 dispatcher 의 부분집합.
type Enqueuer interface {
	Enqueue(ev any) bool
	Flush() bool
}

// QueueIntegration
// ------------------------------------------------------------
// 모든 메시지를 durable queue 에 넣고, Flush 를 dispatcher flush 로 바꾼다.
// enablement.QueueIntegration 으로 등록되며 override map 으로는 꺼지지 않는다.
//
// Enqueue 는 호출 시점에 이벤트를 직렬화하므로, 뒤이어 다른 integration 이
// 이벤트를 바꿔도 큐에 기록된 내용에는 영향이 없다.
type QueueIntegration struct {
	router.Base
	d Enqueuer
}

func NewQueueIntegration(d Enqueuer) *QueueIntegration {
	return &QueueIntegration{d: d}
}

func (q *QueueIntegration) Identify(ev *model.Event) { q.d.Enqueue(ev) }
func (q *QueueIntegration) Group(ev *model.Event)    { q.d.Enqueue(ev) }
func (q *QueueIntegration) Track(ev *model.Event)    { q.d.Enqueue(ev) }
func (q *QueueIntegration) Screen(ev *model.Event)   { q.d.Enqueue(ev) }
func (q *QueueIntegration) Alias(ev *model.Event)    { q.d.Enqueue(ev) }
func (q *QueueIntegration) Flush()                   { q.d.Flush() }

var _ router.Integration = (*QueueIntegration)(nil)
