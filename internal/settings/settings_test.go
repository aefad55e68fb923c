package settings

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"analytics-relay/internal/enablement"
	"analytics-relay/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
integrations:
  Mixpanel: true
  Amplitude: false
tracking_plan:
  Event A:
    enabled: false
  Order Completed:
    integrations:
      Mixpanel: false
      Amplitude:
        apiKey: abc
`

func TestParse(t *testing.T) {
	snap, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"Mixpanel": true, "Amplitude": false}, snap.Integrations)
	require.Contains(t, snap.Plan, "Event A")
	assert.False(t, snap.Plan["Event A"].IsEnabled())
	assert.True(t, snap.Plan["Order Completed"].IsEnabled())

	// nested settings 는 켜진 것으로 본다
	order := &model.Event{Type: model.TypeTrack, Event: "Order Completed"}
	assert.False(t, enablement.ShouldDeliver(order, "Mixpanel", snap.Plan))
	assert.True(t, enablement.ShouldDeliver(order, "Amplitude", snap.Plan))
	assert.True(t, enablement.ShouldDeliver(order, "Other", snap.Plan))

	eventA := &model.Event{Type: model.TypeTrack, Event: "Event A"}
	assert.False(t, enablement.ShouldDeliver(eventA, "Mixpanel", snap.Plan))
	assert.True(t, enablement.ShouldDeliver(eventA, enablement.QueueIntegration, snap.Plan))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("integrations: [oops"))
	assert.Error(t, err)
}

func TestNewStore_EmptyPath(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)
	assert.Empty(t, s.Plan())
	assert.Empty(t, s.Integrations())
	assert.NoError(t, s.Reload())
}

func TestNewStore_MissingFile(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)
	before := s.Current()

	require.NoError(t, os.WriteFile(path, []byte("tracking_plan: [broken"), 0o600))
	assert.Error(t, s.Reload())
	assert.Same(t, before, s.Current())

	require.NoError(t, os.WriteFile(path, []byte("integrations:\n  Segment: true\n"), 0o600))
	require.NoError(t, s.Reload())
	assert.Equal(t, map[string]bool{"Segment": true}, s.Integrations())
	assert.Empty(t, s.Plan())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)
	s.debounce = 10 * time.Millisecond

	reloaded := make(chan *Snapshot, 4)
	s.OnReload = func(snap *Snapshot) { reloaded <- snap }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// watcher 가 등록될 때까지 반복해서 쓴다
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("integrations:\n  Redis: true\n"), 0o600)
		select {
		case snap := <-reloaded:
			return snap.Integrations["Redis"]
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, s.Integrations()["Redis"])

	cancel()
	assert.NoError(t, <-done)
}

func TestReloadAndLog_OneLinePerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)
	calls := 0
	s.OnReload = func(*Snapshot) { calls++ }

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	s.reloadAndLog()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, strings.Count(buf.String(), `"message":"settings reloaded"`))
	assert.Contains(t, buf.String(), `"integrations":2`)

	// 깨진 파일: 경고 1줄, 이전 Snapshot 유지
	buf.Reset()
	require.NoError(t, os.WriteFile(path, []byte("integrations: [\n"), 0o600))
	s.reloadAndLog()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, strings.Count(buf.String(), "settings reloaded\""))
	assert.Contains(t, buf.String(), "settings reload failed, keeping previous")
	assert.True(t, s.Integrations()["Mixpanel"])
}
