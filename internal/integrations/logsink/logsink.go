// internal/integrations/logsink/logsink.go
package logsink

import (
	"analytics-relay/internal/model"
	"analytics-relay/internal/router"

	"github.com/rs/zerolog"
)

// logsink
//
// 라우팅된 operation 1건당 구조화 로그 1줄을 남기는 integration.
// flush 는 debug 레벨이라 평소에는 보이지 않는다.

// Key: router 등록 키
const Key = "Logger"

type Sink struct {
	log zerolog.Logger
}

func New(l zerolog.Logger) *Sink {
	return &Sink{log: l.With().Str("integration", Key).Logger()}
}

func (s *Sink) message(ev *model.Event) {
	e := s.log.Info().
		Str("type", string(ev.Type)).
		Str("messageId", ev.MessageID)
	if ev.UserID != "" {
		e = e.Str("userId", ev.UserID)
	} else {
		e = e.Str("anonymousId", ev.AnonymousID)
	}
	if ev.Event != "" {
		e = e.Str("event", ev.Event)
	}
	if ev.Name != "" {
		e = e.Str("name", ev.Name)
	}
	e.Msg("message")
}

func (s *Sink) lifecycle(kind router.Kind, act *model.Activity) {
	s.log.Info().Str("kind", kind.String()).Str("activity", act.Name).Msg("lifecycle")
}

func (s *Sink) Identify(ev *model.Event) { s.message(ev) }
func (s *Sink) Group(ev *model.Event)    { s.message(ev) }
func (s *Sink) Track(ev *model.Event)    { s.message(ev) }
func (s *Sink) Screen(ev *model.Event)   { s.message(ev) }
func (s *Sink) Alias(ev *model.Event)    { s.message(ev) }

func (s *Sink) ActivityCreated(a *model.Activity) { s.lifecycle(router.KindActivityCreated, a) }
func (s *Sink) ActivityStarted(a *model.Activity) { s.lifecycle(router.KindActivityStarted, a) }
func (s *Sink) ActivityResumed(a *model.Activity) { s.lifecycle(router.KindActivityResumed, a) }
func (s *Sink) ActivityPaused(a *model.Activity)  { s.lifecycle(router.KindActivityPaused, a) }
func (s *Sink) ActivityStopped(a *model.Activity) { s.lifecycle(router.KindActivityStopped, a) }
func (s *Sink) ActivitySaveInstanceState(a *model.Activity) {
	s.lifecycle(router.KindActivitySaveInstanceState, a)
}
func (s *Sink) ActivityDestroyed(a *model.Activity) { s.lifecycle(router.KindActivityDestroyed, a) }

func (s *Sink) Flush() { s.log.Debug().Msg("flush") }
func (s *Sink) Reset() { s.log.Info().Msg("reset") }

var _ router.Integration = (*Sink)(nil)
