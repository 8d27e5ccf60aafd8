package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/taskline/conveyor/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	unitDurationSeconds *prom.HistogramVec
	unitPanicTotal      *prom.CounterVec
	unitRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	timerDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "conveyor"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "unit_duration_seconds",
		Help:      "Unit execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"conveyor"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "unit_panic_total",
		Help:      "Total number of unit panics.",
	}, []string{"conveyor"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "unit_rejected_total",
		Help:      "Total number of rejected units.",
	}, []string{"conveyor", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of pending units.",
	}, []string{"conveyor"})
	timerDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "timer_depth",
		Help:      "Current number of waiting timer entries.",
	}, []string{"conveyor"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if timerDepthVec, err = registerCollector(reg, timerDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		unitDurationSeconds: durationVec,
		unitPanicTotal:      panicVec,
		unitRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		timerDepth:          timerDepthVec,
	}, nil
}

// RecordUnitDuration records unit execution duration.
func (m *MetricsExporter) RecordUnitDuration(conveyorName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.unitDurationSeconds.WithLabelValues(normalizeLabel(conveyorName, "unknown")).Observe(duration.Seconds())
}

// RecordUnitPanic records unit panic events.
func (m *MetricsExporter) RecordUnitPanic(conveyorName string, panicInfo any) {
	if m == nil {
		return
	}
	m.unitPanicTotal.WithLabelValues(normalizeLabel(conveyorName, "unknown")).Inc()
}

// RecordQueueDepth records the pending unit count.
func (m *MetricsExporter) RecordQueueDepth(conveyorName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(conveyorName, "unknown")).Set(float64(depth))
}

// RecordTimerDepth records the waiting timer entry count.
func (m *MetricsExporter) RecordTimerDepth(conveyorName string, depth int) {
	if m == nil {
		return
	}
	m.timerDepth.WithLabelValues(normalizeLabel(conveyorName, "unknown")).Set(float64(depth))
}

// RecordUnitRejected records unit rejection events.
func (m *MetricsExporter) RecordUnitRejected(conveyorName string, reason string) {
	if m == nil {
		return
	}
	m.unitRejectedTotal.WithLabelValues(normalizeLabel(conveyorName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
