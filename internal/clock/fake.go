// internal/clock/fake.go
package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake: initial 시각에서 멈춰 있는 FakeClock. Advance 로만 흐른다.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock
//
// 테스트용 결정적 Clock.
// AfterFunc 콜백은 Advance 안에서 deadline 순서로 동기 실행된다.
// 콜백 안에서 Advance 를 호출하면 안 된다.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	callback func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.changed.Broadcast()
	return true
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc: now+d 를 지나면 f 실행. d <= 0 이면 반환 전에 바로 실행.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	t := &fakeTimer{clock: c, deadline: c.current.Add(d), callback: f}
	if d <= 0 {
		t.fired = true
		c.mu.Unlock()
		f()
		return t
	}
	c.waiters = append(c.waiters, t)
	c.changed.Broadcast()
	c.mu.Unlock()
	return t
}

// Advance
//
// 시계를 d 만큼 진행하고 deadline 이 지난 타이머를 모두 발화한다.
// 이번 호출 중 콜백이 새로 건 타이머도 target 이내면 같이 발화한다.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.collectExpired(target)
		if len(due) == 0 {
			return
		}
		sort.SliceStable(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, t := range due {
			t.callback()
		}
	}
}

func (c *FakeClock) collectExpired(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*fakeTimer
	for _, t := range c.waiters {
		switch {
		case t.stopped:
		case !t.deadline.After(target):
			t.fired = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.waiters = remaining
	if len(due) > 0 {
		c.changed.Broadcast()
	}
	return due
}

// PendingCount: 멈추지도 발화하지도 않은 타이머 수
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// WaitForTimers
//
// 대기 중인 타이머가 n 개 이상이 될 때까지 블록한다.
// 다른 goroutine 이 타이머를 걸기 전에 테스트가 Advance 해버리는 경쟁을 막는다.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, t := range c.waiters {
		if !t.stopped {
			n++
		}
	}
	return n
}
