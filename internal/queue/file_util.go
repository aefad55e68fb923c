// internal/queue/file_util.go
package queue

import (
	"fmt"
	"strconv"
	"strings"
)

// file_util.go
// ------------------------------------------------------------
// FileQueue 레코드 파일명 규칙.
// 정렬·복구의 핵심이므로 예측 가능한 deterministic 패턴을 유지해야 한다.
//
// 파일명 규칙:
//
//	<seq>_<instance>.json
//
// 예:
//
//	00000000000000000042_relay1.json
//
// seq 는 20자리 zero-padding 이므로 문자열 정렬 = 삽입 순서.
// 재시작 시 가장 큰 seq 부터 이어서 증가시킨다.
const (
	recordExt = ".json"
	tmpPrefix = ".tmp-"
)

// recordName 은 seq 번째 레코드 파일명을 만든다.
// instance 에 들어간 '_' 와 경로 문자는 정렬/파싱을 깨지 않도록 치환한다.
func recordName(seq uint64, instance string) string {
	return fmt.Sprintf("%020d_%s%s", seq, sanitizeInstance(instance), recordExt)
}

// seqFromName 은 파일명 prefix 에서 seq 를 파싱한다.
func seqFromName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, recordExt) {
		return 0, false
	}
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	seq, err := strconv.ParseUint(name[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func sanitizeInstance(s string) string {
	if s == "" {
		return "local"
	}
	r := strings.NewReplacer("_", "-", "/", "-", "\\", "-", ".", "-")
	return r.Replace(s)
}
