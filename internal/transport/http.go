// internal/transport/http.go
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"analytics-relay/internal/config"
)

// HTTPError: collector 가 2xx 가 아닌 응답을 주면 Close 가 반환
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("transport: collector returned %d: %s", e.StatusCode, e.Body)
}

// HTTPTransport
//
// batch body 를 collector endpoint 로 POST 한다.
// write key 는 basic auth 로, gzip 이 켜져 있으면 Content-Encoding 을 붙인다.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
	writeKey string
	gzip     bool
}

// NewHTTP: UPLOAD_ENDPOINT / WRITE_KEY / GZIP / UPLOAD_TIMEOUT 로 생성
func NewHTTP(cfg config.Config) *HTTPTransport {
	return &HTTPTransport{
		client:   &http.Client{Timeout: cfg.UploadTimeout},
		endpoint: cfg.UploadEndpoint,
		writeKey: cfg.WriteKey,
		gzip:     cfg.Gzip,
	}
}

func (t *HTTPTransport) Open(ctx context.Context) (Upload, error) {
	return newBufferedUpload(t.gzip, func(body []byte) error {
		return t.post(ctx, body)
	}), nil
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "analytics-relay")
	if t.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	// write key 는 basic auth user, password 는 빈 값
	req.SetBasicAuth(t.writeKey, "")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(msg)}
}
