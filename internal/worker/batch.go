package worker

import (
	"errors"
	"io"
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// ErrEmptyBatch 는 레코드 없이 batch 를 닫으려 할 때 반환된다.
// 빈 batch 는 절대 전송하지 않는다.
var ErrEmptyBatch = errors.New("worker: at least one record must be written")

// SentAtLayout 은 envelope 의 sentAt 포맷 (ISO-8601, 밀리초, UTC).
const SentAtLayout = "2006-01-02T15:04:05.000Z07:00"

// BatchWriter 는 업로드 body 를 streaming 으로 조립한다.
//
//	{"integrations":{...},"batch":[<record>,...],"sentAt":"..."}
//
// 특징:
//   - 레코드는 enqueue 시점에 이미 JSON 으로 직렬화되어 있으므로 다시 파싱하지 않고 그대로 쓴다
//   - integrations 키는 정렬해서 쓴다 (같은 입력 → 같은 body)
//   - 첫 write 에러 이후 모든 호출은 no-op (sticky error), Err() 로 확인
type BatchWriter struct {
	w      io.Writer
	err    error
	fields int // top-level 필드 수 (쉼표 판단용)
	count  int // batch 에 쓴 레코드 수
	bytes  int // batch 에 쓴 레코드 바이트 합
}

func NewBatchWriter(w io.Writer) *BatchWriter {
	return &BatchWriter{w: w}
}

func (b *BatchWriter) write(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *BatchWriter) writeString(s string) {
	b.write([]byte(s))
}

func (b *BatchWriter) field(name string) {
	if b.fields > 0 {
		b.writeString(",")
	}
	b.fields++
	b.writeString(`"` + name + `":`)
}

func (b *BatchWriter) BeginObject() *BatchWriter {
	b.writeString("{")
	return b
}

// Integrations 는 name→bool 맵을 쓴다. nil 이면 빈 객체.
func (b *BatchWriter) Integrations(m map[string]bool) *BatchWriter {
	b.field("integrations")
	b.writeString("{")

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i > 0 {
			b.writeString(",")
		}
		name, err := json.Marshal(k)
		if err != nil {
			if b.err == nil {
				b.err = err
			}
			return b
		}
		b.write(name)
		if m[k] {
			b.writeString(":true")
		} else {
			b.writeString(":false")
		}
	}
	b.writeString("}")
	return b
}

func (b *BatchWriter) BeginBatch() *BatchWriter {
	b.field("batch")
	b.writeString("[")
	return b
}

// Record 는 직렬화된 레코드 1건을 그대로 batch 배열에 붙인다.
func (b *BatchWriter) Record(rec []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.count > 0 {
		b.writeString(",")
	}
	b.write(rec)
	if b.err != nil {
		return b.err
	}
	b.count++
	b.bytes += len(rec)
	return nil
}

// EndBatch 는 배열을 닫는다. 레코드가 없으면 ErrEmptyBatch.
func (b *BatchWriter) EndBatch() *BatchWriter {
	if b.err == nil && b.count == 0 {
		b.err = ErrEmptyBatch
	}
	b.writeString("]")
	return b
}

// EndObject 는 sentAt 을 붙이고 객체를 닫는다.
func (b *BatchWriter) EndObject(sentAt time.Time) *BatchWriter {
	b.field("sentAt")
	b.writeString(`"` + sentAt.UTC().Format(SentAtLayout) + `"`)
	b.writeString("}")
	return b
}

func (b *BatchWriter) Err() error { return b.err }

// Count 는 batch 에 들어간 레코드 수. flush 후 큐에서 지울 개수와 같다.
func (b *BatchWriter) Count() int { return b.count }

// Bytes 는 batch 에 들어간 레코드 바이트 합 (envelope 제외).
func (b *BatchWriter) Bytes() int { return b.bytes }
