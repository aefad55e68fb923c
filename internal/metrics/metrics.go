package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 relay 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// HTTP 레벨 지표
	// ======================

	// HTTPRequestsTotal
	// - /collect, /lifecycle 로 들어온 모든 요청 수 (시도 기준).
	HTTPRequestsTotal int64

	// HTTPRequestsAcceptedTotal
	// - router 까지 정상 전달된 요청 수.
	HTTPRequestsAcceptedTotal int64

	// HTTPRequestsRejectedBodyTooLargeTotal
	// - MaxBodySize 초과로 413 을 반환한 요청 수.
	HTTPRequestsRejectedBodyTooLargeTotal int64

	// HTTPRequestsRejectedInvalidTotal
	// - JSON 파싱 실패, 필수 필드 누락 등으로 400 을 반환한 요청 수.
	HTTPRequestsRejectedInvalidTotal int64

	// ======================
	// Durable Queue 지표
	// ======================

	// EventsEnqueuedTotal
	// - 직렬화 후 큐에 append 성공한 이벤트 수.
	EventsEnqueuedTotal int64

	// EventsDroppedSerializeTotal / EventsDroppedTooLargeTotal / EventsDroppedWriteTotal
	// - enqueue 단계에서 버려진 이벤트 수 (원인별).
	// - 어느 쪽이든 호출자에게 에러로 전파되지 않는다 (non-fatal).
	EventsDroppedSerializeTotal int64
	EventsDroppedTooLargeTotal  int64
	EventsDroppedWriteTotal     int64

	// EventsEvictedTotal
	// - 큐가 MaxQueueSize 를 넘어서 가장 오래된 레코드를 버린 횟수.
	// - 오프라인이 길어지면 자연스럽게 증가하는 값이며 에러가 아니다.
	EventsEvictedTotal int64

	// QueueRecordsCurrent
	// - dispatcher 가 마지막으로 관측한 큐 길이 (gauge).
	QueueRecordsCurrent int64

	// ======================
	// Flush 지표
	// ======================

	// FlushesTotal / RecordsFlushedTotal
	// - 성공한 업로드 횟수와, 그 업로드에 포함된 레코드 수 합계.
	FlushesTotal        int64
	RecordsFlushedTotal int64

	// FlushErrorsTotal
	// - 업로드 실패 (직렬화, I/O, transport) 횟수. 실패 시 큐는 그대로 유지된다.
	FlushErrorsTotal int64

	// FlushSkippedTotal
	// - 큐가 비었거나 오프라인이라 네트워크 호출 없이 재예약한 횟수.
	FlushSkippedTotal int64

	// ======================
	// Integration 지표
	// ======================

	IntegrationDeliveredTotal int64 // integration 메서드가 실제로 호출된 횟수
	IntegrationSkippedTotal   int64 // enablement 판단으로 건너뛴 횟수
	IntegrationPanicsTotal    int64 // integration 이 panic 해서 recover 한 횟수
}

func New() *Metrics {
	return &Metrics{}
}

// FlushCompleted 는 업로드 성공 1회와 포함된 레코드 수를 기록한다.
// worker.Stats 인터페이스를 만족한다.
func (m *Metrics) FlushCompleted(records int) {
	atomic.AddInt64(&m.FlushesTotal, 1)
	atomic.AddInt64(&m.RecordsFlushedTotal, int64(records))
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_accepted_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsAcceptedTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_invalid_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedInvalidTotal))

	fmt.Fprintf(&sb, "events_enqueued_total=%d\n", atomic.LoadInt64(&m.EventsEnqueuedTotal))
	fmt.Fprintf(&sb, "events_dropped_serialize_total=%d\n", atomic.LoadInt64(&m.EventsDroppedSerializeTotal))
	fmt.Fprintf(&sb, "events_dropped_too_large_total=%d\n", atomic.LoadInt64(&m.EventsDroppedTooLargeTotal))
	fmt.Fprintf(&sb, "events_dropped_write_total=%d\n", atomic.LoadInt64(&m.EventsDroppedWriteTotal))
	fmt.Fprintf(&sb, "events_evicted_total=%d\n", atomic.LoadInt64(&m.EventsEvictedTotal))
	fmt.Fprintf(&sb, "queue_records_current=%d\n", atomic.LoadInt64(&m.QueueRecordsCurrent))

	fmt.Fprintf(&sb, "flushes_total=%d\n", atomic.LoadInt64(&m.FlushesTotal))
	fmt.Fprintf(&sb, "records_flushed_total=%d\n", atomic.LoadInt64(&m.RecordsFlushedTotal))
	fmt.Fprintf(&sb, "flush_errors_total=%d\n", atomic.LoadInt64(&m.FlushErrorsTotal))
	fmt.Fprintf(&sb, "flush_skipped_total=%d\n", atomic.LoadInt64(&m.FlushSkippedTotal))

	fmt.Fprintf(&sb, "integration_delivered_total=%d\n", atomic.LoadInt64(&m.IntegrationDeliveredTotal))
	fmt.Fprintf(&sb, "integration_skipped_total=%d\n", atomic.LoadInt64(&m.IntegrationSkippedTotal))
	fmt.Fprintf(&sb, "integration_panics_total=%d\n", atomic.LoadInt64(&m.IntegrationPanicsTotal))

	return sb.String()
}
