// internal/transport/transport.go
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"analytics-relay/internal/config"
	"analytics-relay/internal/pool"

	"github.com/klauspost/compress/gzip"
)

// transport
//
// 완성된 batch body 를 원격 collector 로 보낸다.
// Upload 는 all-or-nothing 이다.
//
//   - Write 한 바이트는 Close 가 성공하기 전까지 수신측에 보이지 않는다
//   - Discard 는 아무것도 보내지 않고 요청을 버린다

type Transport interface {
	Open(ctx context.Context) (Upload, error)
}

// Upload: 진행 중인 batch 요청 1건
type Upload interface {
	io.Writer

	// Close: 요청을 끝내고 최종 결과를 반환
	Close() error

	// Discard: 요청 폐기. Close 뒤에 불러도 안전
	Discard()
}

var errUploadDone = errors.New("transport: upload already finished")

// Open: cfg.Transport 에 맞는 transport 생성
func Open(ctx context.Context, cfg config.Config) (Transport, error) {
	switch cfg.Transport {
	case "http", "":
		return NewHTTP(cfg), nil
	case "s3":
		return NewS3(ctx, cfg)
	}
	return nil, fmt.Errorf("transport: unknown transport %q", cfg.Transport)
}

// bufferedUpload 는 body 전체를 pool 버퍼에 모은 뒤 Close 시점에 send 로 넘긴다.
// HTTP / S3 모두 Content-Length 를 알아야 하고 재시도 시 body 를 다시 읽어야 하므로
// streaming 대신 버퍼링한다.
type bufferedUpload struct {
	buf  *bytes.Buffer
	zw   *gzip.Writer // gzip 이 꺼져 있으면 nil
	w    io.Writer
	send func(body []byte) error
	done bool
}

func newBufferedUpload(compress bool, send func(body []byte) error) *bufferedUpload {
	u := &bufferedUpload{buf: pool.GetBuffer(), send: send}
	u.w = u.buf
	if compress {
		u.zw = pool.GetGzip(u.buf)
		u.w = u.zw
	}
	return u
}

func (u *bufferedUpload) Write(p []byte) (int, error) {
	if u.done {
		return 0, errUploadDone
	}
	return u.w.Write(p)
}

func (u *bufferedUpload) Close() error {
	if u.done {
		return errUploadDone
	}
	defer u.release()

	if u.zw != nil {
		if err := u.zw.Close(); err != nil {
			return fmt.Errorf("transport: gzip: %w", err)
		}
	}
	return u.send(u.buf.Bytes())
}

func (u *bufferedUpload) Discard() {
	if u.done {
		return
	}
	u.release()
}

func (u *bufferedUpload) release() {
	u.done = true
	if u.zw != nil {
		pool.PutGzip(u.zw)
		u.zw = nil
	}
	pool.PutBuffer(u.buf)
	u.buf = nil
	u.w = nil
}
