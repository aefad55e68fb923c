// internal/queue/file.go
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// FileQueue 는 레코드 1건을 파일 1개로 저장하는 디렉토리 기반 store.
//
//   - 파일명은 <seq>_<instance>.json (file_util.go 참고)
//   - 문자열 정렬 = 삽입 순서이므로 oldest-first 순회/삭제가 가능
//   - 쓰기는 tmp 파일 → rename 으로 원자적으로 처리
//
// 재시작 시 디렉토리를 스캔해 이름 목록과 다음 seq 를 복원하고,
// 쓰다 만 tmp 파일은 정리한다.
type FileQueue struct {
	dir      string
	instance string

	names    []string // oldest-first
	nextSeq  uint64
	closed   bool
	readOnly bool
}

// OpenFile 은 dir 을 만들거나 열고, 기존 레코드를 복원한다.
func OpenFile(dir, instance string) (*FileQueue, error) {
	if dir == "" {
		return nil, errors.New("queue: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: mkdir %s: %w", dir, err)
	}
	return scanDir(dir, instance, false)
}

// OpenFileReadOnly 는 들여다보기 전용으로 dir 을 연다.
//
//   - 디렉토리를 만들지 않는다 (없으면 에러)
//   - tmp 파일은 지우지 않고 건너뛴다 (serve 중인 프로세스가 쓰는 중일 수 있음)
//   - Add / Remove 는 ErrReadOnly
func OpenFileReadOnly(dir string) (*FileQueue, error) {
	if dir == "" {
		return nil, errors.New("queue: empty directory")
	}
	return scanDir(dir, "", true)
}

func scanDir(dir, instance string, readOnly bool) (*FileQueue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("queue: read dir %s: %w", dir, err)
	}

	q := &FileQueue{dir: dir, instance: instance, readOnly: readOnly}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		// 쓰다 만 tmp orphan 제거
		if strings.HasPrefix(name, tmpPrefix) {
			if readOnly {
				continue
			}
			_ = os.Remove(filepath.Join(dir, name))
			log.Warn().Str("file", name).Msg("queue: removed partial record")
			continue
		}

		seq, ok := seqFromName(name)
		if !ok {
			continue
		}
		q.names = append(q.names, name)
		if seq >= q.nextSeq {
			q.nextSeq = seq + 1
		}
	}

	// ReadDir 는 이름순이지만 seq 폭이 다른 외부 파일이 섞일 수 있으므로 seq 로 재정렬
	sort.Slice(q.names, func(i, j int) bool {
		a, _ := seqFromName(q.names[i])
		b, _ := seqFromName(q.names[j])
		return a < b
	})

	return q, nil
}

func (q *FileQueue) Add(record []byte) error {
	if q.closed {
		return ErrClosed
	}
	if q.readOnly {
		return ErrReadOnly
	}

	name := recordName(q.nextSeq, q.instance)

	// ---- 1) tmp 파일에 기록 ----
	f, err := os.CreateTemp(q.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("queue: create temp: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(record); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("queue: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("queue: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("queue: close: %w", err)
	}

	// ---- 2) rename 으로 commit ----
	if err := os.Rename(tmp, filepath.Join(q.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("queue: commit: %w", err)
	}

	q.nextSeq++
	q.names = append(q.names, name)
	return nil
}

func (q *FileQueue) Size() int {
	return len(q.names)
}

func (q *FileQueue) ForEach(visit func(record []byte) (bool, error)) (int, error) {
	if q.closed {
		return 0, ErrClosed
	}

	visited := 0
	for _, name := range q.names {
		data, err := os.ReadFile(filepath.Join(q.dir, name))
		if err != nil {
			return visited, fmt.Errorf("queue: read %s: %w", name, err)
		}

		visited++
		more, err := visit(data)
		if err != nil {
			return visited, err
		}
		if !more {
			break
		}
	}
	return visited, nil
}

func (q *FileQueue) Remove(n int) error {
	if q.closed {
		return ErrClosed
	}
	if q.readOnly {
		return ErrReadOnly
	}
	if n <= 0 {
		return nil
	}
	if n > len(q.names) {
		n = len(q.names)
	}

	for i := 0; i < n; i++ {
		err := os.Remove(filepath.Join(q.dir, q.names[i]))
		if err != nil && !os.IsNotExist(err) {
			// 앞쪽 i 건은 이미 지워졌으므로 목록도 그만큼만 당긴다
			q.names = q.names[i:]
			return fmt.Errorf("queue: remove %s: %w", q.names[0], err)
		}
	}
	q.names = q.names[n:]
	return nil
}

func (q *FileQueue) Close() error {
	q.closed = true
	return nil
}
