// internal/tracing/tracing.go
package tracing

import (
	"context"
	"fmt"
	"time"

	"analytics-relay/internal/config"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Shutdown 은 남은 span 을 내보내고 exporter 를 닫는다.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init
//
// OTLP_ENDPOINT 가 설정되어 있으면 gRPC exporter + batch span processor 로
// 전역 TracerProvider 를 교체한다. 비어있으면 전역 no-op provider 를 그대로 두고
// 아무 일도 하지 않는 Shutdown 을 돌려준다.
//
// dispatcher 의 "worker.flush" span 은 otel.Tracer 로 전역 provider 를 쓰므로
// 여기서 설치 여부만으로 tracing on/off 가 결정된다.
func Init(ctx context.Context, cfg config.Config) (Shutdown, error) {
	if cfg.OTLPEndpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("service.instance.id", cfg.InstanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("tracing enabled")
	return tp.Shutdown, nil
}
