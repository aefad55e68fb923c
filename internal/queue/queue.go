// internal/queue/queue.go
package queue

import (
	"errors"
	"fmt"

	"analytics-relay/internal/config"
)

// queue
//
// dispatcher 가 직렬화된 이벤트를 쌓아두는 순서 보장 durable store.
//
//   - 레코드는 불투명한 byte blob
//   - 삭제는 항상 가장 오래된 것부터
//   - 레코드 크기 상한은 store 가 아니라 호출자(dispatcher)가 검사
//
// store 는 단일 goroutine 소유를 전제로 하며 동시 사용에 안전하지 않다.

var (
	ErrClosed   = errors.New("queue: closed")
	ErrReadOnly = errors.New("queue: opened read-only")
)

type Queue interface {
	// Add: tail 에 1건 추가
	Add(record []byte) error

	Size() int

	// ForEach 는 oldest-first 로 visit 이 false 나 에러를 낼 때까지 순회한다.
	// 반환값은 visit 에 넘긴 레코드 수.
	ForEach(visit func(record []byte) (bool, error)) (int, error)

	// Remove: 가장 오래된 n 건 삭제
	Remove(n int) error

	Close() error
}

// Open 은 cfg.QueueBackend 에 맞는 store 를 쓰기 가능하게 연다.
func Open(cfg config.Config) (Queue, error) {
	switch cfg.QueueBackend {
	case "file", "":
		return OpenFile(cfg.QueueDir, cfg.InstanceID)
	case "sqlite":
		return OpenSQLite(cfg.QueueDB)
	}
	return nil, fmt.Errorf("queue: unknown backend %q", cfg.QueueBackend)
}

// Inspect 는 같은 store 를 읽기 전용으로 연다. (relay queue stats / peek)
// 디렉토리 / 스키마 생성, tmp 파일 정리 같은 부수효과가 없다.
func Inspect(cfg config.Config) (Queue, error) {
	switch cfg.QueueBackend {
	case "file", "":
		return OpenFileReadOnly(cfg.QueueDir)
	case "sqlite":
		return OpenSQLiteReadOnly(cfg.QueueDB)
	}
	return nil, fmt.Errorf("queue: unknown backend %q", cfg.QueueBackend)
}
