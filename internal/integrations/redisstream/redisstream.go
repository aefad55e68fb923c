// internal/integrations/redisstream/redisstream.go
package redisstream

import (
	"context"
	"fmt"
	"time"

	"analytics-relay/internal/model"
	"analytics-relay/internal/router"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisstream
//
// 라우팅된 메시지를 Redis stream 에 XADD 로 1건씩 넣는 integration.
// entry 필드는 {type, messageId, data(이벤트 JSON)}.
// 실패는 경고 로그만 남기고 삼킨다. (다른 integration 에 영향 없음)

// Key: router 등록 키
const Key = "Redis"

// streamAdder: 여기서 쓰는 *redis.Client 의 일부
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Config struct {
	Address string
	Stream  string
	MaxLen  int64         // 근사 MAXLEN, 0 이면 무제한
	Timeout time.Duration // XADD 1회당
}

type Integration struct {
	router.Base
	client  streamAdder
	closer  func() error
	stream  string
	maxLen  int64
	timeout time.Duration
}

// New: Redis 에 연결하고 PING 으로 확인한다.
func New(cfg Config) (*Integration, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstream: connect %s: %w", cfg.Address, err)
	}

	in := newWithClient(client, cfg)
	in.closer = client.Close
	return in, nil
}

func newWithClient(c streamAdder, cfg Config) *Integration {
	return &Integration{
		client:  c,
		closer:  func() error { return nil },
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: cfg.Timeout,
	}
}

func (in *Integration) Identify(ev *model.Event) { in.add(ev) }
func (in *Integration) Group(ev *model.Event)    { in.add(ev) }
func (in *Integration) Track(ev *model.Event)    { in.add(ev) }
func (in *Integration) Screen(ev *model.Event)   { in.add(ev) }
func (in *Integration) Alias(ev *model.Event)    { in.add(ev) }

func (in *Integration) Close() error { return in.closer() }

func (in *Integration) add(ev *model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Str("messageId", ev.MessageID).Msg("redisstream: marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: in.stream,
		Values: map[string]any{
			"type":      string(ev.Type),
			"messageId": ev.MessageID,
			"data":      string(data),
		},
	}
	if in.maxLen > 0 {
		args.MaxLen = in.maxLen
		args.Approx = true
	}

	if err := in.client.XAdd(ctx, args).Err(); err != nil {
		log.Warn().Err(err).Str("stream", in.stream).Str("messageId", ev.MessageID).Msg("redisstream: xadd failed")
	}
}

var _ router.Integration = (*Integration)(nil)
