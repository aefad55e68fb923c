// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config
//
// relay 실행 시 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
//
// integrations / tracking plan 처럼 운영 중 바뀔 수 있는 값은
// 여기 두지 않고 SettingsFile(YAML) 로 분리한다. (internal/settings 참고)
type Config struct {

	// ---------------------------
	// 서비스 식별 / 네트워크
	// ---------------------------

	ServiceName string // 로그에 붙는 서비스 이름
	InstanceID  string // relay 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string // HTTP 서버 bind 주소 (예: ":8080")
	MaxBodySize int64  // 단일 HTTP 요청 body 최대 크기 (바이트)

	// ---------------------------
	// Durable Queue
	// ---------------------------

	QueueBackend string // "file" | "sqlite"
	QueueDir     string // file backend: 레코드 파일 디렉토리
	QueueDB      string // sqlite backend: DB 파일 경로

	MaxQueueSize   int // 큐 최대 레코드 수 (초과 시 가장 오래된 레코드부터 drop)
	MaxRecordBytes int // 직렬화된 이벤트 1건의 최대 크기
	MaxBatchBytes  int // 한 번의 업로드 body 에 담을 레코드 누적 최대 크기

	// ---------------------------
	// Flush 정책
	// ---------------------------

	FlushQueueSize int           // 큐 길이가 이 값 이상이면 즉시 flush
	FlushInterval  time.Duration // 주기적 flush 간격

	// ---------------------------
	// Transport
	// ---------------------------

	Transport      string        // "http" | "s3"
	UploadEndpoint string        // http transport: batch 업로드 URL
	WriteKey       string        // http transport: basic auth user
	UploadTimeout  time.Duration // http transport: 요청당 timeout
	Gzip           bool          // 업로드 body gzip 여부

	AWSRegion    string
	S3Bucket     string
	S3Prefix     string
	S3Timeout    time.Duration // PutObject 시도당 timeout
	S3AppRetries int           // 애플리케이션 레벨 재시도 횟수 (SDK retry 는 항상 0)

	// CONNECTIVITY_ADDR 가 비어있으면 항상 online 으로 간주한다.
	ConnectivityAddr string

	// ---------------------------
	// 부가 구성 요소
	// ---------------------------

	SettingsFile string // integrations + tracking plan YAML
	RedisAddr    string // 비어있으면 Redis integration 미등록
	RedisStream  string
	OTLPEndpoint string // 비어있으면 tracing 비활성

	// ---------------------------
	// 로그
	// ---------------------------

	Debug      bool // DEBUG=true → level 강제 debug, drop/evict 로그 출력
	LogLevel   string
	LogPretty  bool
	LogSampleN uint32
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 로컬 relay 는 대부분 기본값으로 동작해야 하므로 필수 값은 최소화하고,
// transport 종류에 따라 꼭 필요한 값만 must* 로 강제한다(fail-fast).
func Load() Config {
	q := LoadQueue()
	cfg := Config{
		ServiceName: envStr("SERVICE_NAME", "analytics-relay"),
		InstanceID:  q.InstanceID,
		HTTPAddr:    envStr("HTTP_ADDR", ":8080"),
		MaxBodySize: envInt64("MAX_BODY_SIZE", 512*1024),

		QueueBackend: q.QueueBackend,
		QueueDir:     q.QueueDir,
		QueueDB:      q.QueueDB,

		MaxQueueSize:   q.MaxQueueSize,
		MaxRecordBytes: envInt("MAX_RECORD_BYTES", 450000),

		FlushQueueSize: envInt("FLUSH_QUEUE_SIZE", 20),
		FlushInterval:  envDur("FLUSH_INTERVAL", 30*time.Second),

		Transport:     strings.ToLower(envStr("TRANSPORT", "http")),
		UploadTimeout: envDur("UPLOAD_TIMEOUT", 15*time.Second),
		Gzip:          envBool("GZIP", false),

		S3Timeout:    envDur("S3_TIMEOUT", 5*time.Second),
		S3AppRetries: envInt("S3_APP_RETRIES", 3),

		ConnectivityAddr: os.Getenv("CONNECTIVITY_ADDR"),

		SettingsFile: os.Getenv("SETTINGS_FILE"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisStream:  envStr("REDIS_STREAM", "relay:events"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),

		Debug:      envBool("DEBUG", false),
		LogLevel:   envStr("LOG_LEVEL", "info"),
		LogPretty:  envBool("LOG_PRETTY", false),
		LogSampleN: uint32(envInt("LOG_SAMPLE_N", 0)),
	}

	// 배치 누적 상한은 별도 지정이 없으면 레코드 상한과 같은 값을 쓴다.
	cfg.MaxBatchBytes = envInt("MAX_BATCH_BYTES", cfg.MaxRecordBytes)

	switch cfg.Transport {
	case "http":
		cfg.UploadEndpoint = must("UPLOAD_ENDPOINT")
		cfg.WriteKey = os.Getenv("WRITE_KEY")
	case "s3":
		cfg.AWSRegion = must("AWS_REGION")
		cfg.S3Bucket = must("S3_BUCKET")
		cfg.S3Prefix = envStr("S3_PREFIX", "batches")
	default:
		log.Fatalf("invalid TRANSPORT=%q (want http|s3)", cfg.Transport)
	}

	return cfg
}

// LoadQueue
//
// 큐 관련 값만 읽는다. (relay queue stats / peek 용)
// transport 설정이 없어도 동작해야 하므로 must* 는 쓰지 않는다.
func LoadQueue() Config {
	cfg := Config{
		InstanceID: envStr("INSTANCE_ID", fallbackInstanceID()),

		QueueBackend: strings.ToLower(envStr("QUEUE_BACKEND", "file")),
		QueueDir:     envStr("QUEUE_DIR", "./data/queue"),
		QueueDB:      envStr("QUEUE_DB", "./data/queue.db"),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 1000),
	}

	if cfg.QueueBackend != "file" && cfg.QueueBackend != "sqlite" {
		log.Fatalf("invalid QUEUE_BACKEND=%q (want file|sqlite)", cfg.QueueBackend)
	}
	return cfg
}

// must / envStr / envInt / envInt64 / envDur / envBool
//
// must 는 필수 환경변수가 없으면 즉시 종료(fail-fast).
// env* 는 값이 없으면 기본값을 쓰고, 형식이 잘못된 경우에는 종료한다.
// 잘못된 값을 조용히 기본값으로 바꾸면 운영 중에 원인 찾기가 어렵다.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

// fallbackInstanceID
//
// 이 relay 인스턴스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
