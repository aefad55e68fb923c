package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"analytics-relay/internal/config"
	"analytics-relay/internal/metrics"
	"analytics-relay/internal/model"
	"analytics-relay/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events    []*model.Event
	lifecycle []router.Kind
	acts      []*model.Activity
	flushes   int
	resets    int
	err       error
}

func (f *fakeProducer) Submit(ev *model.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeProducer) Lifecycle(kind router.Kind, act *model.Activity) error {
	f.lifecycle = append(f.lifecycle, kind)
	f.acts = append(f.acts, act)
	return nil
}

func (f *fakeProducer) Flush() { f.flushes++ }
func (f *fakeProducer) Reset() { f.resets++ }

func newTestHandler(p Producer) (*Handler, *metrics.Metrics) {
	m := metrics.New()
	return NewHandler(config.Config{MaxBodySize: 1024}, m, p), m
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleCollect_AcceptsEvent(t *testing.T) {
	p := &fakeProducer{}
	h, m := newTestHandler(p)

	rec := do(h.Routes(), http.MethodPost, "/collect",
		`{"type":"track","userId":"u1","event":"Clicked","properties":{"k":1}}`,
		map[string]string{"X-Forwarded-For": "10.0.0.1, 203.0.113.7"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, p.events, 1)
	ev := p.events[0]
	assert.Equal(t, model.TypeTrack, ev.Type)
	assert.Equal(t, "Clicked", ev.Event)
	assert.Equal(t, "203.0.113.7", ev.Context["ip"])
	assert.Equal(t, int64(1), m.HTTPRequestsAcceptedTotal)
}

func TestHandleCollect_KeepsCallerIP(t *testing.T) {
	p := &fakeProducer{}
	h, _ := newTestHandler(p)

	rec := do(h.Routes(), http.MethodPost, "/collect",
		`{"type":"identify","userId":"u1","context":{"ip":"198.51.100.1"}}`,
		map[string]string{"X-Forwarded-For": "203.0.113.7"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, p.events, 1)
	assert.Equal(t, "198.51.100.1", p.events[0].Context["ip"])
}

func TestHandleCollect_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		method string
		body   string
		err    error
		code   int
	}{
		{"method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, `{"type":`, nil, http.StatusBadRequest},
		{"too large", http.MethodPost, `{"type":"track","event":"` + strings.Repeat("x", 2048) + `"}`, nil, http.StatusRequestEntityTooLarge},
		{"invalid event", http.MethodPost, `{"type":"track"}`, fmt.Errorf("relay: invalid event: missing"), http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProducer{err: tc.err}
			h, m := newTestHandler(p)

			rec := do(h.Routes(), tc.method, "/collect", tc.body, nil)
			assert.Equal(t, tc.code, rec.Code)
			assert.Empty(t, p.events)
			assert.Zero(t, m.HTTPRequestsAcceptedTotal)
		})
	}
}

func TestHandleLifecycle(t *testing.T) {
	p := &fakeProducer{}
	h, _ := newTestHandler(p)

	rec := do(h.Routes(), http.MethodPost, "/lifecycle",
		`{"kind":"save_instance_state","activity":"Main","bundle":{"scroll":3}}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []router.Kind{router.KindActivitySaveInstanceState}, p.lifecycle)
	assert.Equal(t, "Main", p.acts[0].Name)
	assert.EqualValues(t, 3, p.acts[0].Bundle["scroll"])

	rec = do(h.Routes(), http.MethodPost, "/lifecycle", `{"kind":"launched","activity":"Main"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, p.lifecycle, 1)
}

func TestHandleFlushAndReset(t *testing.T) {
	p := &fakeProducer{}
	h, _ := newTestHandler(p)
	mux := h.Routes()

	assert.Equal(t, http.StatusAccepted, do(mux, http.MethodPost, "/flush", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(mux, http.MethodPost, "/reset", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(mux, http.MethodGet, "/flush", "", nil).Code)
	assert.Equal(t, 1, p.flushes)
	assert.Equal(t, 1, p.resets)
}

func TestHandleMetricsAndHealth(t *testing.T) {
	h, m := newTestHandler(&fakeProducer{})
	m.EventsEvictedTotal = 4
	mux := h.Routes()

	rec := do(mux, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_evicted_total=4\n")

	rec = do(mux, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "ok", rec.Body.String())
}
