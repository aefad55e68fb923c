// internal/worker/dispatcher.go
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"analytics-relay/internal/clock"
	"analytics-relay/internal/config"
	"analytics-relay/internal/metrics"
	"analytics-relay/internal/queue"
	"analytics-relay/internal/transport"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stats 는 성공한 flush 마다 포함된 레코드 수를 받는다.
type Stats interface {
	FlushCompleted(records int)
}

// Connectivity 는 flush 시도마다 한 번 조회된다.
type Connectivity interface {
	Online() bool
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// Options 는 dispatcher 의 크기/주기 제한.
type Options struct {
	MaxQueueSize   int           // 초과 시 가장 오래된 레코드 1건 evict (">" 비교, 일시적으로 +1 허용)
	MaxRecordBytes int           // 직렬화된 이벤트 1건 상한
	MaxBatchBytes  int           // 한 batch 에 담을 레코드 바이트 합 상한
	FlushQueueSize int           // 큐 길이가 이 값 이상이면 즉시 flush
	FlushInterval  time.Duration // 주기적 flush 간격
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxQueueSize:   cfg.MaxQueueSize,
		MaxRecordBytes: cfg.MaxRecordBytes,
		MaxBatchBytes:  cfg.MaxBatchBytes,
		FlushQueueSize: cfg.FlushQueueSize,
		FlushInterval:  cfg.FlushInterval,
	}
}

// Deps 는 dispatcher 가 사용하는 외부 구성 요소.
// Queue 와 Transport 외에는 비워두면 기본값을 쓴다.
type Deps struct {
	Queue        queue.Queue
	Transport    transport.Transport
	Connectivity Connectivity
	Stats        Stats
	Metrics      *metrics.Metrics
	Clock        clock.Clock

	// Integrations 는 flush 시점의 envelope integrations 맵을 돌려준다.
	Integrations func() map[string]bool
}

type cmdKind int

const (
	cmdEnqueue cmdKind = iota
	cmdFlush
	cmdTimer
)

type command struct {
	kind   cmdKind
	record []byte // cmdEnqueue 전용, 이미 직렬화된 이벤트
	gen    uint64 // cmdTimer 전용
}

// Dispatcher 는 durable queue 를 단독 소유하는 sequential worker 다.
//
// 주요 구성:
//   - mailbox: Enqueue/Flush 를 받는 무제한 FIFO. 호출자는 절대 block 되지 않는다
//   - run: mailbox 를 도착 순서대로 처리하는 단일 goroutine (큐에 대한 lock 불필요)
//   - timer: 주기적 flush. 새로 예약하면 이전 예약은 취소된다 (coalescing)
//
// 업로드는 worker 입장에서 동기 호출이므로 flush 는 한 번에 하나만 진행된다.
type Dispatcher struct {
	opts      Options
	threshold int

	queue        queue.Queue
	transport    transport.Transport
	online       Connectivity
	stats        Stats
	metrics      *metrics.Metrics
	clock        clock.Clock
	integrations func() map[string]bool
	tracer       trace.Tracer

	// mailbox
	mu      sync.Mutex
	pending []command
	closed  bool
	signal  chan struct{}

	// coalescing timer. mailbox 와 lock 을 분리해야
	// AfterFunc 콜백이 post 를 호출해도 deadlock 이 나지 않는다.
	timerMu      sync.Mutex
	timer        clock.Timer
	gen          uint64
	timerStopped bool

	size atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
	stop    sync.Once
}

// New 는 dispatcher 를 만든다. Start 전에는 명령을 쌓기만 한다.
func New(opts Options, deps Deps) *Dispatcher {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Stats == nil {
		deps.Stats = deps.Metrics
	}
	if deps.Connectivity == nil {
		deps.Connectivity = alwaysOnline{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Integrations == nil {
		deps.Integrations = func() map[string]bool { return nil }
	}

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}

	// flush 임계값은 큐 최대 크기를 넘을 수 없다
	threshold := opts.FlushQueueSize
	if opts.MaxQueueSize > 0 && threshold > opts.MaxQueueSize {
		threshold = opts.MaxQueueSize
	}
	if threshold < 1 {
		threshold = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		opts:         opts,
		threshold:    threshold,
		queue:        deps.Queue,
		transport:    deps.Transport,
		online:       deps.Connectivity,
		stats:        deps.Stats,
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		integrations: deps.Integrations,
		tracer:       otel.Tracer("analytics-relay/worker"),
		signal:       make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	d.observeSize()
	return d
}

// Start 는 worker goroutine 을 띄우고 첫 주기 flush 를 예약한다.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.run()
	d.scheduleFlush()
}

// Enqueue 는 이벤트를 큐에 넣도록 요청한다.
// 직렬화는 호출자 goroutine 에서 바로 끝내고 byte 만 mailbox 에 넣는다.
// 따라서 호출이 끝난 뒤 ev 가 바뀌어도 큐에 기록되는 내용은 호출 시점 그대로다.
// 직렬화에 실패했거나 Shutdown 이후면 false.
func (d *Dispatcher) Enqueue(ev any) bool {
	data, ok := d.serialize(ev)
	if !ok {
		return false
	}
	return d.post(command{kind: cmdEnqueue, record: data})
}

// Flush 는 즉시 flush 를 요청한다. Shutdown 이후에는 false.
func (d *Dispatcher) Flush() bool {
	return d.post(command{kind: cmdFlush})
}

// Size 는 worker 가 마지막으로 관측한 큐 길이.
func (d *Dispatcher) Size() int {
	return int(d.size.Load())
}

// Shutdown 은 다음 순서로 종료한다.
//  1. 예약된 주기 flush 취소, mailbox 닫기
//  2. worker context 취소 (진행 중 업로드는 실패로 끝나고 큐는 그대로)
//  3. mailbox 에 남은 Enqueue 는 큐에 기록, Flush 는 건너뜀
//  4. worker 종료 대기 후 큐 Close
func (d *Dispatcher) Shutdown() error {
	var err error
	d.stop.Do(func() {
		d.timerMu.Lock()
		d.timerStopped = true
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.timerMu.Unlock()

		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.cancel()

		if d.started.Load() {
			d.wake()
			<-d.done
		} else {
			// worker 없이 남은 Enqueue 만 처리
			cmds, _ := d.take()
			d.process(cmds)
		}

		err = d.queue.Close()
	})
	return err
}

// ---- mailbox ----

func (d *Dispatcher) post(c command) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.pending = append(d.pending, c)
	d.mu.Unlock()

	d.wake()
	return true
}

func (d *Dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// take 는 쌓인 명령을 통째로 가져간다. mailbox 가 닫혔으면 두 번째 값이 true.
func (d *Dispatcher) take() ([]command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmds := d.pending
	d.pending = nil
	return cmds, d.closed
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		cmds, closed := d.take()
		d.process(cmds)
		if closed {
			return
		}
		if len(cmds) == 0 {
			<-d.signal
		}
	}
}

func (d *Dispatcher) process(cmds []command) {
	for _, c := range cmds {
		switch c.kind {
		case cmdEnqueue:
			d.performEnqueue(c.record)
		case cmdFlush:
			d.performFlush()
		case cmdTimer:
			if d.currentGen() == c.gen {
				d.performFlush()
			}
		}
	}
}

// ---- enqueue ----

// serialize 는 Enqueue 의 1단계. 실패한 이벤트는 여기서 drop 된다.
func (d *Dispatcher) serialize(ev any) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		atomic.AddInt64(&d.metrics.EventsDroppedSerializeTotal, 1)
		log.Debug().Err(err).Msg("enqueue: could not serialize event, dropped")
		return nil, false
	}
	return data, true
}

// performEnqueue 는 worker 에서 직렬화된 레코드 1건을 큐에 붙인다.
func (d *Dispatcher) performEnqueue(data []byte) {
	// ---- 1) 크기 제한 ----
	if len(data) == 0 || (d.opts.MaxRecordBytes > 0 && len(data) > d.opts.MaxRecordBytes) {
		atomic.AddInt64(&d.metrics.EventsDroppedTooLargeTotal, 1)
		log.Debug().Int("bytes", len(data)).Int("limit", d.opts.MaxRecordBytes).Msg("enqueue: event too large, dropped")
		return
	}

	// ---- 2) overflow: 가장 오래된 1건 evict ----
	if d.opts.MaxQueueSize > 0 && d.queue.Size() > d.opts.MaxQueueSize {
		if err := d.queue.Remove(1); err != nil {
			log.Error().Err(err).Msg("enqueue: could not evict oldest record")
		} else {
			atomic.AddInt64(&d.metrics.EventsEvictedTotal, 1)
			log.Debug().Int("size", d.queue.Size()).Msg("enqueue: queue over limit, dropped oldest")
		}
	}

	// ---- 3) append ----
	if err := d.queue.Add(data); err != nil {
		atomic.AddInt64(&d.metrics.EventsDroppedWriteTotal, 1)
		log.Debug().Err(err).Msg("enqueue: queue write failed, dropped")
		d.observeSize()
		return
	}
	atomic.AddInt64(&d.metrics.EventsEnqueuedTotal, 1)
	d.observeSize()

	// ---- 4) 임계값 도달 → 즉시 flush ----
	if d.queue.Size() >= d.threshold {
		d.performFlush()
	}
}

// ---- flush ----

// performFlush 는 큐가 빌 때까지 batch 업로드를 반복한다.
// 실패, 오프라인, 빈 큐면 주기 flush 를 다시 예약하고 돌아간다.
func (d *Dispatcher) performFlush() {
	for {
		if d.ctx.Err() != nil {
			return
		}
		if d.queue.Size() < 1 || !d.online.Online() {
			atomic.AddInt64(&d.metrics.FlushSkippedTotal, 1)
			d.scheduleFlush()
			return
		}

		n, err := d.flushOnce()
		d.observeSize()
		if err != nil {
			atomic.AddInt64(&d.metrics.FlushErrorsTotal, 1)
			log.Warn().Err(err).Int("queue", d.queue.Size()).Msg("flush failed, will retry")
			d.scheduleFlush()
			return
		}

		d.stats.FlushCompleted(n)
		log.Debug().Int("records", n).Int("remaining", d.queue.Size()).Msg("flush ok")

		if d.queue.Size() == 0 {
			d.scheduleFlush()
			return
		}
	}
}

// flushOnce 는 batch 1개를 만들어 업로드하고, 성공 시 포함된 레코드만 지운다.
// 실패 시 upload 는 폐기되고 큐는 건드리지 않는다.
func (d *Dispatcher) flushOnce() (n int, err error) {
	ctx, span := d.tracer.Start(d.ctx, "worker.flush")
	defer func() {
		span.SetAttributes(attribute.Int("records", n))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	up, err := d.transport.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open upload: %w", err)
	}

	w := NewBatchWriter(up)
	w.BeginObject().Integrations(d.integrations()).BeginBatch()

	// 누적 바이트가 상한을 넘기 직전에 멈춘다.
	// 첫 레코드는 항상 넣는다 (MaxBatchBytes < MaxRecordBytes 여도 큐가 막히지 않도록).
	total := 0
	if _, err := d.queue.ForEach(func(rec []byte) (bool, error) {
		if w.Count() > 0 && d.opts.MaxBatchBytes > 0 && total+len(rec) > d.opts.MaxBatchBytes {
			return false, nil
		}
		if err := w.Record(rec); err != nil {
			return false, err
		}
		total += len(rec)
		return true, nil
	}); err != nil {
		up.Discard()
		return 0, fmt.Errorf("build batch: %w", err)
	}

	if err := w.EndBatch().EndObject(d.clock.Now()).Err(); err != nil {
		up.Discard()
		return 0, fmt.Errorf("build batch: %w", err)
	}

	if err := up.Close(); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}

	n = w.Count()
	if err := d.queue.Remove(n); err != nil {
		// 업로드는 끝났으므로 다음 flush 에서 중복 전송될 수 있다 (at-least-once)
		return 0, fmt.Errorf("remove %d flushed records: %w", n, err)
	}
	return n, nil
}

// ---- timer ----

// scheduleFlush 는 FlushInterval 뒤 flush 를 예약한다.
// 이전 예약은 취소되고, 이미 발사되어 mailbox 에 들어간 것은 generation 이 달라 무시된다.
func (d *Dispatcher) scheduleFlush() {
	d.timerMu.Lock()
	defer d.timerMu.Unlock()

	if d.timerStopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.opts.FlushInterval, func() {
		d.post(command{kind: cmdTimer, gen: gen})
	})
}

func (d *Dispatcher) currentGen() uint64 {
	d.timerMu.Lock()
	defer d.timerMu.Unlock()
	return d.gen
}

func (d *Dispatcher) observeSize() {
	n := int64(d.queue.Size())
	d.size.Store(n)
	atomic.StoreInt64(&d.metrics.QueueRecordsCurrent, n)
}
