// internal/clock/clock.go
package clock

import "time"

// clock
//
// dispatcher 가 쓰는 시간 연산만 추상화한다.
// 테스트에서는 FakeClock 으로 flush 스케줄링을 결정적으로 돌린다.

type Clock interface {
	Now() time.Time

	// AfterFunc: d 뒤에 f 호출.
	// 실제 시계는 별도 goroutine, FakeClock 은 Advance 안에서 동기 호출.
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop: 이미 발화했거나 멈춘 타이머면 false
	Stop() bool
}

// Real: time 패키지 기반 Clock
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
