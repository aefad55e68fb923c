// internal/settings/settings.go
package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"analytics-relay/internal/enablement"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// settings
//
// 운영 중 바뀔 수 있는 프로젝트 설정(번들 integrations 맵 + tracking plan)을
// YAML 파일에서 읽는다. 읽은 결과는 불변 Snapshot 이고,
// reload 시 통째로 atomic 교체한다.

// File: 디스크 상의 YAML 구조
//
//	integrations:
//	  Mixpanel: true
//	  Amplitude: false
//	tracking_plan:
//	  Order Completed:
//	    enabled: true
//	    integrations:
//	      Mixpanel: false
type File struct {
	Integrations map[string]bool `yaml:"integrations"`
	TrackingPlan enablement.Plan `yaml:"tracking_plan"`
}

// Snapshot: 한 번 읽은 설정. 수정 금지 (바꾸려면 새로 읽는다)
type Snapshot struct {
	Integrations map[string]bool
	Plan         enablement.Plan
	LoadedAt     time.Time
}

func Parse(data []byte) (*Snapshot, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("settings: parse: %w", err)
	}
	return &Snapshot{
		Integrations: f.Integrations,
		Plan:         f.TrackingPlan,
		LoadedAt:     time.Now(),
	}, nil
}

func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	return Parse(data)
}

// Store 는 현재 Snapshot 을 들고 있다.
type Store struct {
	path     string
	current  atomic.Pointer[Snapshot]
	debounce time.Duration

	// reload 성공 시마다 호출 (nil 이면 무시)
	OnReload func(*Snapshot)
}

// NewStore 는 path 를 읽는다.
// path 가 비어있으면 빈 Snapshot 으로 시작하고 Watch 는 아무것도 하지 않는다.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, debounce: 250 * time.Millisecond}
	if path == "" {
		s.current.Store(&Snapshot{LoadedAt: time.Now()})
		return s, nil
	}
	snap, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// Static: snap 으로 고정된 store (파일 없음)
func Static(snap *Snapshot) *Store {
	s := &Store{}
	if snap == nil {
		snap = &Snapshot{}
	}
	s.current.Store(snap)
	return s
}

func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

func (s *Store) Plan() enablement.Plan {
	return s.Current().Plan
}

func (s *Store) Integrations() map[string]bool {
	return s.Current().Integrations
}

// Reload 는 파일을 다시 읽는다. 실패하면 이전 Snapshot 을 유지한다.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	snap, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.current.Store(snap)
	if s.OnReload != nil {
		s.OnReload(snap)
	}
	return nil
}

// reloadAndLog: Watch 의 debounce 콜백.
// reload 결과 로그는 여기서만 남긴다. (OnReload 쪽에서 다시 찍지 않는다)
func (s *Store) reloadAndLog() {
	if err := s.Reload(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("settings reload failed, keeping previous")
		return
	}
	snap := s.Current()
	log.Info().
		Str("path", s.path).
		Int("events", len(snap.Plan)).
		Int("integrations", len(snap.Integrations)).
		Msg("settings reloaded")
}

// Watch
//
// ctx 가 끝날 때까지 파일 변경 시마다 Reload 한다.
// 에디터는 여러 단계로 저장하는 경우가 많아 debounce 를 둔다.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("settings: resolve path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings: create watcher: %w", err)
	}
	defer w.Close()

	// 파일 교체(rename) 도 잡기 위해 디렉토리를 감시한다
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("settings: watch directory: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if name, err := filepath.Abs(ev.Name); err != nil || name != abs {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, s.reloadAndLog)
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("settings watcher error")
		}
	}
}
