package redisstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"analytics-relay/internal/model"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1-0", nil)
}

func TestIntegration_AddsEntryPerMessage(t *testing.T) {
	fs := &fakeStream{}
	in := newWithClient(fs, Config{Stream: "relay:events", MaxLen: 1000, Timeout: time.Second})

	in.Track(&model.Event{Type: model.TypeTrack, MessageID: "m1", UserID: "u", Event: "Clicked"})
	in.Identify(&model.Event{Type: model.TypeIdentify, MessageID: "m2", UserID: "u"})
	in.Flush()
	in.Reset()

	require.Len(t, fs.args, 2)
	first := fs.args[0]
	assert.Equal(t, "relay:events", first.Stream)
	assert.Equal(t, int64(1000), first.MaxLen)
	assert.True(t, first.Approx)

	values := first.Values.(map[string]any)
	assert.Equal(t, "track", values["type"])
	assert.Equal(t, "m1", values["messageId"])

	var decoded model.Event
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, "Clicked", decoded.Event)
	assert.NoError(t, in.Close())
}

func TestIntegration_ErrorsAreSwallowed(t *testing.T) {
	fs := &fakeStream{err: errors.New("LOADING")}
	in := newWithClient(fs, Config{Stream: "s", Timeout: time.Second})

	assert.NotPanics(t, func() {
		in.Alias(&model.Event{Type: model.TypeAlias, MessageID: "m", UserID: "u", PreviousID: "p"})
	})
	require.Len(t, fs.args, 1)
	assert.Zero(t, fs.args[0].MaxLen)
}
