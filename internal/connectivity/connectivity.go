// internal/connectivity/connectivity.go
package connectivity

import (
	"net"
	"time"
)

// connectivity
//
// flush 시도마다 "지금 collector 에 닿을 수 있는가" 를 한 번 묻는다.
// offline 이면 dispatcher 는 업로드를 건너뛰고 다음 타이머를 기다린다.

// Checker 는 네트워크 사용 가능 여부를 알려준다.
type Checker interface {
	Online() bool
}

// Always 는 항상 online. (CONNECTIVITY_ADDR 미설정)
type Always struct{}

func (Always) Online() bool { return true }

// TCPCheck
//
// 주소로 TCP 연결을 시도해 handshake 가 끝나면 online 으로 본다.
// 연결은 바로 닫는다.
type TCPCheck struct {
	Addr    string
	Timeout time.Duration

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

func NewTCPCheck(addr string, timeout time.Duration) *TCPCheck {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPCheck{Addr: addr, Timeout: timeout, dial: net.DialTimeout}
}

func (c *TCPCheck) Online() bool {
	conn, err := c.dial("tcp", c.Addr, c.Timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// New: addr 가 비어있으면 Always, 아니면 TCPCheck.
func New(addr string) Checker {
	if addr == "" {
		return Always{}
	}
	return NewTCPCheck(addr, 2*time.Second)
}
