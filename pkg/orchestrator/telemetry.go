package orchestrator

import (
	"context"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusMeterProvider wires an OTel MeterProvider backed by a
// Prometheus collector/exporter, grounded on the same
// promexporter.New/sdkmetric.NewMeterProvider(sdkmetric.WithReader(...))
// pairing the glyphoxa and beluga-ai packs use for their own voice/agent
// telemetry. The returned provider's Prometheus collector registers
// itself with the default Prometheus registry, so a caller only needs
// to serve promhttp.Handler() to expose /metrics.
func NewPrometheusMeterProvider() (*sdkmetric.MeterProvider, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// Telemetry exports Turn State bookkeeping as OpenTelemetry metrics.
// A nil *Telemetry is a valid no-op receiver, so sessions that don't
// wire a Meter still work exactly as if telemetry weren't expanded
// in SPEC_FULL.md at all.
type Telemetry struct {
	responseDelay metric.Float64Histogram
	interrupts    metric.Int64Counter
	droppedFrames metric.Int64Counter
}

// NewTelemetry builds a Telemetry against an OTel Meter, grounded on
// the metric.Meter/Histogram/Counter API used by the beluga-ai and
// glyphoxa packs for their own agent telemetry.
func NewTelemetry(meter metric.Meter) (*Telemetry, error) {
	responseDelay, err := meter.Float64Histogram(
		"turnengine.agent_response_delay",
		metric.WithDescription("egress_started_time minus vad_end_of_speech_detected_time, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	interrupts, err := meter.Int64Counter(
		"turnengine.interrupts",
		metric.WithDescription("count of barge-in interrupts handled"),
	)
	if err != nil {
		return nil, err
	}

	droppedFrames, err := meter.Int64Counter(
		"turnengine.ingress_dropped_frames",
		metric.WithDescription("count of audio frames dropped by Ingress due to queue overflow"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		responseDelay: responseDelay,
		interrupts:    interrupts,
		droppedFrames: droppedFrames,
	}, nil
}

// RecordTurn records the agent_response_delay histogram value if the
// turn has reached that point yet.
func (t *Telemetry) RecordTurn(ctx context.Context, turn *TurnState) {
	if t == nil || turn == nil {
		return
	}
	if delay, ok := turn.AgentResponseDelay(); ok {
		t.responseDelay.Record(ctx, float64(delay.Milliseconds()))
	}
}

func (t *Telemetry) RecordInterrupt(ctx context.Context) {
	if t == nil {
		return
	}
	t.interrupts.Add(ctx, 1)
}

func (t *Telemetry) RecordDroppedFrame(ctx context.Context) {
	if t == nil {
		return
	}
	t.droppedFrames.Add(ctx, 1)
}
