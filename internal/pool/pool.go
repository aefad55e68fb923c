package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// relay 는 요청마다 body 를 읽고, flush 마다 batch body 를 만든다.
// 둘 다 크기가 비슷한 버퍼를 반복해서 할당하므로 재사용한다.
//
// 이벤트 객체 자체는 풀링하지 않는다. router 를 거친 이벤트는
// integration 이 보관할 수 있어서 반환 시점을 알 수 없다.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - HTTP 요청 body 를 임시 저장하는 버퍼
	//   - 초기 용량 4KB (단건 이벤트는 대부분 여기에 수용됨)
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool:
	//   - batch 업로드 body (gzip 결과 포함) 를 담는 버퍼
	//   - 초기 용량 64KB
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer 재사용 (매번 new 하면 비용이 크다)
	//   - 사용 전 반드시 Reset(dst)
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// 이보다 큰 버퍼는 Pool 에 넣지 않고 GC 에 맡긴다.
// batch body 는 MaxBatchBytes(기본 450KB) 근처까지 커질 수 있으므로 1MB.
const MaxBufferCap = 1 * 1024 * 1024

// GetBuffer 는 비어있는 upload 버퍼를 꺼낸다.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer:
//   - upload 버퍼 반환
//   - MaxBufferCap 이하만 재사용
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}

// GetBody 는 비어있는 요청 body 버퍼를 꺼낸다.
func GetBody() *bytes.Buffer {
	buf := BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBody:
//   - maxCap(보통 MaxBodySize*2)보다 크면 버려서 GC 로.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if buf == nil {
		return
	}
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// GetGzip 은 dst 로 쓰도록 Reset 된 gzip.Writer 를 꺼낸다.
func GetGzip(dst *bytes.Buffer) *gzip.Writer {
	zw := GzipPool.Get().(*gzip.Writer)
	zw.Reset(dst)
	return zw
}

// PutGzip 은 Close 이후의 writer 를 돌려놓는다.
func PutGzip(zw *gzip.Writer) {
	if zw == nil {
		return
	}
	GzipPool.Put(zw)
}
