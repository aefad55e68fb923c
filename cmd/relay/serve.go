package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"analytics-relay/internal/clock"
	"analytics-relay/internal/config"
	"analytics-relay/internal/connectivity"
	"analytics-relay/internal/enablement"
	"analytics-relay/internal/integrations/logsink"
	"analytics-relay/internal/integrations/redisstream"
	"analytics-relay/internal/logger"
	"analytics-relay/internal/metrics"
	"analytics-relay/internal/queue"
	"analytics-relay/internal/relay"
	"analytics-relay/internal/router"
	"analytics-relay/internal/server"
	"analytics-relay/internal/settings"
	"analytics-relay/internal/tracing"
	"analytics-relay/internal/transport"
	"analytics-relay/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// ====================================================================
	// Config / Logger / Metrics
	// ====================================================================
	//
	// - Config: 환경 변수 기반. 필수 값이 없으면 Load 안에서 log.Fatal.
	// - Metrics: /metrics 로 노출되는 내부 카운터.
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	// ====================================================================
	// Settings (integrations 맵 + tracking plan), hot reload
	// ====================================================================
	store, err := settings.NewStore(cfg.SettingsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SettingsFile).Msg("load settings")
	}
	go func() {
		if err := store.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("settings watch stopped")
		}
	}()

	// ====================================================================
	// Durable Queue + Transport + Dispatcher
	// ====================================================================
	//
	// 큐를 열 수 없으면 relay 는 이벤트를 보존할 방법이 없으므로 종료한다.
	// ====================================================================
	q, err := queue.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.QueueBackend).Msg("open queue")
	}

	tr, err := transport.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport).Msg("open transport")
	}

	d := worker.New(worker.OptionsFromConfig(cfg), worker.Deps{
		Queue:        q,
		Transport:    tr,
		Connectivity: connectivity.New(cfg.ConnectivityAddr),
		Stats:        m,
		Metrics:      m,
		Clock:        clock.Real(),
		Integrations: store.Integrations,
	})
	d.Start()

	// ====================================================================
	// Router + integrations
	// ====================================================================
	rt := router.New(m)
	rt.Register(enablement.QueueIntegration, relay.NewQueueIntegration(d))
	rt.Register(logsink.Key, logsink.New(log.Logger))

	var rs *redisstream.Integration
	if cfg.RedisAddr != "" {
		rs, err = redisstream.New(redisstream.Config{Address: cfg.RedisAddr, Stream: cfg.RedisStream})
		if err != nil {
			// Redis 는 부가 sink. 연결 실패해도 relay 자체는 계속 동작한다.
			log.Error().Err(err).Msg("redis integration disabled")
		} else {
			rt.Register(redisstream.Key, rs)
		}
	}

	client := relay.New(rt, store, clock.Real())

	// ====================================================================
	// HTTP 서버
	// ====================================================================
	h := server.NewHandler(cfg, m, client)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.Routes(),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 8 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("queue", cfg.QueueBackend).
			Str("transport", cfg.Transport).
			Int("queued", d.Size()).
			Strs("integrations", rt.Keys()).
			Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("http server terminated")
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	//   1) HTTP 서버 종료 (새 요청 거부, 진행 중 요청은 마무리)
	//   2) dispatcher 종료: 대기 중인 enqueue 는 큐에 기록, 진행 중 flush 는 취소
	//      → 남은 레코드는 다음 실행 때 업로드된다
	//   3) 부가 integration / tracing 정리
	// ====================================================================
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := d.Shutdown(); err != nil {
		log.Error().Err(err).Msg("dispatcher shutdown")
	}
	if rs != nil {
		_ = rs.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}

	log.Info().Msg("shutdown complete")
	return serveErr
}
