package model

// Activity
// ------------------------------------------------------------
// host 애플리케이션 lifecycle callback 의 payload.
// Name 은 화면/컴포넌트 이름, Bundle 은 callback 과 함께 전달된 상태 값이다.
// (created / save-instance-state 에서만 의미가 있다)
type Activity struct {
	Name   string         `json:"activity"`
	Bundle map[string]any `json:"bundle,omitempty"`
}
