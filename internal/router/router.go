package router

import (
	"sync"
	"sync/atomic"

	"analytics-relay/internal/enablement"
	"analytics-relay/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Router 는 작업 1건을 등록된 모든 integration 에 전달한다.
//
//   - 메시지 작업(Identify/Group/Track/Screen/Alias): integration 마다
//     enablement.ShouldDeliver 로 판단 후, 꺼져 있으면 건너뛴다.
//   - lifecycle / Flush / Reset: 판단 없이 항상 모두에게 전달.
//
// integration 은 등록 순서대로 호출된다.
// 하나가 panic 해도 나머지에는 계속 전달한다.
type Router struct {
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	key         string
	integration Integration
}

// Result 는 Run 1회의 전달 결과.
type Result struct {
	Delivered int
	Skipped   int
}

func New(m *metrics.Metrics) *Router {
	if m == nil {
		m = metrics.New()
	}
	return &Router{metrics: m}
}

// Register 는 key 이름으로 integration 을 등록한다.
// 같은 key 로 다시 등록하면 기존 것을 교체한다 (순서는 유지).
func (r *Router) Register(key string, in Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].key == key {
			r.entries[i].integration = in
			return
		}
	}
	r.entries = append(r.entries, entry{key: key, integration: in})
}

// Keys 는 등록된 integration 이름을 등록 순서대로 반환한다.
func (r *Router) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.entries))
	for i, e := range r.entries {
		keys[i] = e.key
	}
	return keys
}

// Run 은 op 를 모든 integration 에 적용한다.
// plan 은 호출자가 잡아둔 불변 snapshot 이며 Run 동안 바뀌지 않는다고 가정한다.
func (r *Router) Run(op Operation, plan enablement.Plan) Result {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	var res Result
	for _, e := range entries {
		if op.Kind.IsMessage() && !enablement.ShouldDeliver(op.Event, e.key, plan) {
			res.Skipped++
			continue
		}
		if r.apply(e, op) {
			res.Delivered++
		}
	}

	atomic.AddInt64(&r.metrics.IntegrationDeliveredTotal, int64(res.Delivered))
	atomic.AddInt64(&r.metrics.IntegrationSkippedTotal, int64(res.Skipped))
	return res
}

// apply 는 op.Kind 에 맞는 메서드 하나를 호출한다.
// panic 은 recover 해서 false 를 반환한다.
func (r *Router) apply(e entry, op Operation) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			atomic.AddInt64(&r.metrics.IntegrationPanicsTotal, 1)
			log.Error().
				Str("integration", e.key).
				Str("operation", op.String()).
				Interface("panic", p).
				Msg("integration panicked")
			ok = false
		}
	}()

	in := e.integration
	switch op.Kind {
	case KindIdentify:
		in.Identify(op.Event)
	case KindGroup:
		in.Group(op.Event)
	case KindTrack:
		in.Track(op.Event)
	case KindScreen:
		in.Screen(op.Event)
	case KindAlias:
		in.Alias(op.Event)
	case KindActivityCreated:
		in.ActivityCreated(op.Activity)
	case KindActivityStarted:
		in.ActivityStarted(op.Activity)
	case KindActivityResumed:
		in.ActivityResumed(op.Activity)
	case KindActivityPaused:
		in.ActivityPaused(op.Activity)
	case KindActivityStopped:
		in.ActivityStopped(op.Activity)
	case KindActivitySaveInstanceState:
		in.ActivitySaveInstanceState(op.Activity)
	case KindActivityDestroyed:
		in.ActivityDestroyed(op.Activity)
	case KindFlush:
		in.Flush()
	case KindReset:
		in.Reset()
	default:
		log.Warn().Str("operation", op.String()).Msg("unknown operation kind")
		return false
	}
	return true
}
