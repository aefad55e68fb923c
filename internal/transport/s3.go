// internal/transport/s3.go
package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"analytics-relay/internal/clock"
	"analytics-relay/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// putObjectAPI 는 S3Transport 가 쓰는 s3.Client 의 부분집합 (테스트에서 교체).
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transport 는 batch body 를 S3 객체 1개로 업로드한다.
//   - key: <prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<unix>_<instance>_<counter>.json[.gz]
//   - SDK 내부 retry 는 끄고, 애플리케이션 레벨에서 backoff 재시도
//   - 시도마다 S3Timeout 적용, ctx 취소 시 즉시 중단
type S3Transport struct {
	client   putObjectAPI
	clock    clock.Clock
	bucket   string
	prefix   string
	instance string
	gzip     bool

	timeout    time.Duration
	retries    int
	backoff    time.Duration // 첫 재시도 대기
	maxBackoff time.Duration

	counter uint64
}

// NewS3 는 AWS SDK 기본 설정(credential chain)을 로드하고 S3 client 를 만든다.
func NewS3(ctx context.Context, cfg config.Config) (*S3Transport, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("transport: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return newS3(client, clock.Real(), cfg), nil
}

func newS3(client putObjectAPI, clk clock.Clock, cfg config.Config) *S3Transport {
	retries := cfg.S3AppRetries
	if retries < 1 {
		retries = 1
	}
	return &S3Transport{
		client:     client,
		clock:      clk,
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		instance:   cfg.InstanceID,
		gzip:       cfg.Gzip,
		timeout:    cfg.S3Timeout,
		retries:    retries,
		backoff:    200 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
}

func (t *S3Transport) Open(ctx context.Context) (Upload, error) {
	key := t.nextKey()
	return newBufferedUpload(t.gzip, func(body []byte) error {
		return t.uploadWithRetry(ctx, key, body)
	}), nil
}

// nextKey
// ------------------------------------------------------------
// 파티션은 UTC 기준 dt/hr. 파일명 prefix 가 unix seconds 이므로
// 같은 파티션 안에서 문자열 정렬 = 시간 정렬.
// counter 는 1e6 에서 wrap 되지만 unix + instance 조합으로 충돌하지 않는다.
func (t *S3Transport) nextKey() string {
	now := t.clock.Now().UTC()
	c := atomic.AddUint64(&t.counter, 1) % 1_000_000

	ext := ".json"
	if t.gzip {
		ext = ".json.gz"
	}
	name := fmt.Sprintf("%d_%s_%06d%s", now.Unix(), t.instance, c, ext)
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", t.prefix, now.Format("2006-01-02"), now.Format("15"), name)
}

// uploadWithRetry
// -----------------------
// 이미 메모리에 있는 body 를 업로드한다.
// 매 시도마다 bytes.NewReader 로 reader 를 새로 만든다.
func (t *S3Transport) uploadWithRetry(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := t.backoff

	for attempt := 1; attempt <= t.retries; attempt++ {
		// shutdown 체크
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := t.putObject(ctx, key, body)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("s3 put failed")

		if attempt == t.retries {
			break
		}

		// backoff 적용 (최대 maxBackoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > t.maxBackoff {
				backoff = t.maxBackoff
			}
		}
	}

	return fmt.Errorf("transport: s3 put %s: %w", key, lastErr)
}

// putObject 는 PutObject 1회 호출. 시도당 timeout 을 가진다.
func (t *S3Transport) putObject(ctx context.Context, key string, body []byte) error {
	ctx2, cancel := ctx, context.CancelFunc(func() {})
	if t.timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, t.timeout)
	}
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	}
	if t.gzip {
		in.ContentEncoding = aws.String("gzip")
	}

	_, err := t.client.PutObject(ctx2, in)
	return err
}
