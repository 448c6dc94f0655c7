// =============================================================================
// FedFlow 节点遥测
// =============================================================================
// Traces and metrics for one participant process. The resource names the run
// and strategy the node was started with; once the relay has sent setup, every
// span started afterwards also carries the participant ID and its role.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/fedflow/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName is the instrumentation scope used for session spans.
const TracerName = "github.com/BaSui01/fedflow/session"

// Attribute keys shared by the resource and the span stamp.
const (
	KeyRunID       = attribute.Key("fedflow.run_id")
	KeyStrategy    = attribute.Key("fedflow.strategy")
	KeyCodec       = attribute.Key("fedflow.codec")
	KeyParticipant = attribute.Key("fedflow.participant")
	KeyRole        = attribute.Key("fedflow.role")
)

// Node describes the participant process being instrumented.
type Node struct {
	RunID    string
	Strategy string
	Codec    string

	// Participant reports the identity recorded by setup. ok is false
	// until setup has happened.
	Participant func() (id string, coordinator bool, ok bool)
}

// Role names the participant role as it appears on spans.
func Role(coordinator bool) string {
	if coordinator {
		return "coordinator"
	}
	return "client"
}

// Providers holds the SDK providers. Both are nil when telemetry is disabled.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init installs OTLP exporters for node. When cfg.Enabled is false it returns
// noop Providers without connecting anywhere.
func Init(cfg config.TelemetryConfig, node Node, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("node telemetry disabled", zap.String("run_id", node.RunID))
		return &Providers{}, nil
	}

	ctx := context.Background()
	res, err := nodeResource(ctx, cfg, node)
	if err != nil {
		return nil, fmt.Errorf("node resource: %w", err)
	}

	spans, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp span exporter for run %s: %w", node.RunID, err)
	}
	points, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter for run %s: %w", node.RunID, err)
	}

	tp := newTracerProvider(res, cfg.SampleRate, node, sdktrace.WithBatcher(spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points)))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("node telemetry exporting",
		zap.String("otlp", cfg.OTLPEndpoint),
		zap.String("service", cfg.ServiceName),
		zap.String("run_id", node.RunID),
		zap.String("strategy", node.Strategy),
		zap.Float64("sampling", cfg.SampleRate))
	return &Providers{tp: tp, mp: mp}, nil
}

func nodeResource(ctx context.Context, cfg config.TelemetryConfig, node Node) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(buildVersion()),
	}
	if node.RunID != "" {
		attrs = append(attrs, KeyRunID.String(node.RunID))
	}
	if node.Strategy != "" {
		attrs = append(attrs, KeyStrategy.String(node.Strategy))
	}
	if node.Codec != "" {
		attrs = append(attrs, KeyCodec.String(node.Codec))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

func newTracerProvider(res *resource.Resource, sampleRate float64, node Node, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}
	if node.Participant != nil {
		base = append(base, sdktrace.WithSpanProcessor(participantStamp{lookup: node.Participant}))
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}

// participantStamp adds the participant ID and role to spans started after setup.
type participantStamp struct {
	lookup func() (string, bool, bool)
}

func (p participantStamp) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	id, coordinator, ok := p.lookup()
	if !ok {
		return
	}
	s.SetAttributes(KeyParticipant.String(id), KeyRole.String(Role(coordinator)))
}

func (participantStamp) OnEnd(sdktrace.ReadOnlySpan) {}
func (participantStamp) Shutdown(context.Context) error { return nil }
func (participantStamp) ForceFlush(context.Context) error { return nil }

// Tracer returns the session tracer, falling back to the global provider.
func (p *Providers) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.GetTracerProvider().Tracer(TracerName)
	}
	return p.tp.Tracer(TracerName)
}

// Enabled reports whether SDK providers were installed.
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans and metrics. Safe on noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return errors.Join(
		wrapShutdown("spans", p.tp.Shutdown(ctx)),
		wrapShutdown("metrics", p.mp.Shutdown(ctx)),
	)
}

func wrapShutdown(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("flush %s: %w", what, err)
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
