package server

import (
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"analytics-relay/internal/config"
	"analytics-relay/internal/metrics"
	"analytics-relay/internal/model"
	"analytics-relay/internal/pool"
	"analytics-relay/internal/router"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Producer 는 handler 가 요청을 넘기는 대상 (relay.Client).
type Producer interface {
	Submit(ev *model.Event) error
	Lifecycle(kind router.Kind, act *model.Activity) error
	Flush()
	Reset()
}

type Handler struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	producer Producer
}

func NewHandler(cfg config.Config, m *metrics.Metrics, p Producer) *Handler {
	return &Handler{
		cfg:      cfg,
		metrics:  m,
		producer: p,
	}
}

// Routes 는 모든 엔드포인트가 등록된 mux 를 돌려준다.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/collect", h.HandleCollect)
	mux.HandleFunc("/lifecycle", h.HandleLifecycle)
	mux.HandleFunc("/flush", h.HandleFlush)
	mux.HandleFunc("/reset", h.HandleReset)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandleCollect
//
// 단건 메시지 이벤트 수집 엔드포인트 (POST, JSON body).
// body 의 "type" 필드가 identify / group / track / screen / alias 중 하나를 고른다.
//
// 동작:
//  1. 요청 길이 제한(MaxBodySize) → 초과 시 413
//  2. BodyPool 버퍼로 body 를 읽고 JSON decode → 실패 시 400
//  3. context.ip 가 비어있으면 clientIP 로 채움
//  4. producer.Submit → 검증 실패 시 400, 성공 시 202
//
// 큐 쓰기 실패 등 이후 단계의 문제는 dispatcher 가 로그/metrics 로만 남긴다.
// 요청 자체는 이미 접수된 것으로 본다.
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	if !h.allowPost(w, r) {
		return
	}
	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	var ev model.Event
	if !h.decodeBody(w, r, &ev) {
		return
	}

	if ip := clientIP(r); ip != "" {
		if ev.Context == nil {
			ev.Context = map[string]any{}
		}
		if _, ok := ev.Context["ip"]; !ok {
			ev.Context["ip"] = ip
		}
	}

	if err := h.producer.Submit(&ev); err != nil {
		h.reject(w, err)
		return
	}

	atomic.AddInt64(&h.metrics.HTTPRequestsAcceptedTotal, 1)
	w.WriteHeader(http.StatusAccepted)
}

type lifecycleRequest struct {
	Kind string `json:"kind"`
	model.Activity
}

// HandleLifecycle 는 host lifecycle callback 을 전달받는다.
//
//	{"kind": "started", "activity": "MainActivity", "bundle": {...}}
func (h *Handler) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	if !h.allowPost(w, r) {
		return
	}
	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	var req lifecycleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	kind, ok := router.ParseLifecycle(req.Kind)
	if !ok {
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedInvalidTotal, 1)
		http.Error(w, "unknown lifecycle kind", http.StatusBadRequest)
		return
	}

	act := req.Activity
	if err := h.producer.Lifecycle(kind, &act); err != nil {
		h.reject(w, err)
		return
	}

	atomic.AddInt64(&h.metrics.HTTPRequestsAcceptedTotal, 1)
	w.WriteHeader(http.StatusAccepted)
}

// HandleFlush 는 모든 integration 에 flush 를 요청한다. 큐 flush 는 비동기.
func (h *Handler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	if !h.allowPost(w, r) {
		return
	}
	h.producer.Flush()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !h.allowPost(w, r) {
		return
	}
	h.producer.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics
//
// relay 상태를 나타내는 카운터 값들을 text 로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

func (h *Handler) allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decodeBody
// --------------------------------------------------------------------
// MaxBytesReader 로 크기를 제한하고 BodyPool 버퍼에 읽은 뒤 decode 한다.
// 실패하면 응답까지 쓰고 false 를 돌려준다.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.GetBody()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			atomic.AddInt64(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return false
		}
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedInvalidTotal, 1)
		w.WriteHeader(http.StatusBadRequest)
		return false
	}

	if err := json.Unmarshal(buf.Bytes(), dst); err != nil {
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedInvalidTotal, 1)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	atomic.AddInt64(&h.metrics.HTTPRequestsRejectedInvalidTotal, 1)
	log.Debug().Err(err).Msg("request rejected")
	http.Error(w, err.Error(), http.StatusBadRequest)
}
