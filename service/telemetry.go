package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterScopeName = "civicflow/service"

// Telemetry holds the lifecycle counters. Instruments come from the global meter
// provider, which is a no-op until an SDK is installed.
type Telemetry struct {
	transitions metric.Int64Counter
	denials     metric.Int64Counter
	disputes    metric.Int64Counter
	escalations metric.Int64Counter
	sideEffects metric.Int64Counter
	sweeps      metric.Float64Histogram
}

// NewTelemetry creates the lifecycle instruments on the global meter.
func NewTelemetry() *Telemetry {
	m := otel.Meter(meterScopeName)
	transitions, _ := m.Int64Counter("civicflow.transitions",
		metric.WithDescription("Committed complaint status transitions"),
	)
	denials, _ := m.Int64Counter("civicflow.transition.denials",
		metric.WithDescription("Transitions rejected by the validator, by rule"),
	)
	disputes, _ := m.Int64Counter("civicflow.disputes",
		metric.WithDescription("Dispute actions by outcome"),
	)
	escalations, _ := m.Int64Counter("civicflow.escalations",
		metric.WithDescription("Escalation levels raised by the sweep"),
	)
	sideEffects, _ := m.Int64Counter("civicflow.side_effect.failures",
		metric.WithDescription("Side-effect jobs that failed after retries"),
	)
	sweeps, _ := m.Float64Histogram("civicflow.sweep.duration",
		metric.WithDescription("Escalation sweep duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &Telemetry{
		transitions: transitions,
		denials:     denials,
		disputes:    disputes,
		escalations: escalations,
		sideEffects: sideEffects,
		sweeps:      sweeps,
	}
}

func (t *Telemetry) transition(ctx context.Context, from, to, role string) {
	if t == nil || t.transitions == nil {
		return
	}
	t.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("role", role),
	))
}

func (t *Telemetry) denial(ctx context.Context, rule string) {
	if t == nil || t.denials == nil || rule == "" {
		return
	}
	t.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

func (t *Telemetry) dispute(ctx context.Context, outcome string) {
	if t == nil || t.disputes == nil {
		return
	}
	t.disputes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (t *Telemetry) escalation(ctx context.Context, level int) {
	if t == nil || t.escalations == nil {
		return
	}
	t.escalations.Add(ctx, 1, metric.WithAttributes(attribute.Int("level", level)))
}

// SideEffectFailed counts a side-effect job that gave up. Called by the dispatcher.
func (t *Telemetry) SideEffectFailed(ctx context.Context, name string) {
	if t == nil || t.sideEffects == nil {
		return
	}
	t.sideEffects.Add(ctx, 1, metric.WithAttributes(attribute.String("job", name)))
}

func (t *Telemetry) sweepDuration(ctx context.Context, ms float64) {
	if t == nil || t.sweeps == nil {
		return
	}
	t.sweeps.Record(ctx, ms)
}
