// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"analytics-relay/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 로거 초기화 함수.
// Config 설정(환경변수)에 따라 '개발자용 화면' 또는 '운영용 JSON 로그'로
// 형태를 바꾸어 설정한다.
//
// [주요 기능]
//
//  1. 로그 포맷 자동 전환 (LOG_PRETTY)
//  2. 모든 로그에 "service", "instance" 공통 필드 부착
//  3. Debug/Info 샘플링 (LOG_SAMPLE_N > 1), Warn/Error 는 100% 기록
//  4. DEBUG=true 이면 LOG_LEVEL 과 무관하게 debug 레벨로 강제.
//     dispatcher 의 drop / evict 로그는 debug 레벨에서만 보인다.
//
// 사용 예:
//
//	logger.Init(cfg)
//	log.Info().Msg("relay started")
func Init(cfg config.Config) {
	zlog.Logger = New(cfg, nil)

	// 표준 log 패키지(log.Printf 등)도 zerolog 설정을 따르도록 연결.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New 는 Init 과 같은 규칙으로 logger 를 만든다.
// out 이 nil 이면 stdout (또는 pretty console) 을 사용한다. 테스트에서 출력 캡처용.
func New(cfg config.Config, out io.Writer) zerolog.Logger {
	// -------------------------------------------------------------------
	// 1) 로그 레벨 결정
	// -------------------------------------------------------------------
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// -------------------------------------------------------------------
	// 2) 출력 방식 결정 (사람 vs 기계)
	// -------------------------------------------------------------------
	w := out
	if w == nil {
		if cfg.LogPretty {
			w = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "15:04:05",
			}
		} else {
			w = os.Stdout
		}
	}

	// -------------------------------------------------------------------
	// 3) 기본 Logger 생성 (공통 태그 부착)
	// -------------------------------------------------------------------
	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	// -------------------------------------------------------------------
	// 4) 샘플링 설정 (Warn/Error 는 샘플링하지 않음)
	// -------------------------------------------------------------------
	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}
