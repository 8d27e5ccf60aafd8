package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling unit panics
// =============================================================================

// PanicHandler is called when a unit panics during execution. The line
// survives the panic; the handler decides what to do with the report.
//
// Implementations must be thread-safe as lines call them concurrently.
type PanicHandler interface {
	// HandlePanic is called when a unit panics.
	//
	// Parameters:
	// - ctx: The context of the panicked unit
	// - conveyorName: The name of the conveyor where the panic occurred
	// - lineName: The name of the line that was executing the unit
	// - panicInfo: The panic value recovered from the unit
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, conveyorName, lineName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, conveyorName, lineName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Line %s @ %s] Panic: %v\nStack trace:\n%s",
		lineName, conveyorName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting conveyor metrics.
// Implementations can send metrics to monitoring systems (Prometheus,
// StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid slowing the lines down.
type Metrics interface {
	// RecordUnitDuration records how long one Execute call took.
	RecordUnitDuration(conveyorName string, duration time.Duration)

	// RecordUnitPanic records that a unit panicked during execution.
	RecordUnitPanic(conveyorName string, panicInfo any)

	// RecordQueueDepth records the current number of pending units.
	RecordQueueDepth(conveyorName string, depth int)

	// RecordTimerDepth records the current number of waiting timer entries.
	RecordTimerDepth(conveyorName string, depth int)

	// RecordUnitRejected records that a unit was rejected (e.g., pushed
	// after the conveyor was destroyed).
	RecordUnitRejected(conveyorName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordUnitDuration is a no-op.
func (m *NilMetrics) RecordUnitDuration(conveyorName string, duration time.Duration) {}

// RecordUnitPanic is a no-op.
func (m *NilMetrics) RecordUnitPanic(conveyorName string, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(conveyorName string, depth int) {}

// RecordTimerDepth is a no-op.
func (m *NilMetrics) RecordTimerDepth(conveyorName string, depth int) {}

// RecordUnitRejected is a no-op.
func (m *NilMetrics) RecordUnitRejected(conveyorName string, reason string) {}

// =============================================================================
// Config: Configuration for conveyors
// =============================================================================

// Config holds optional collaborators for a conveyor. All fields may be
// left nil; defaults are substituted on construction.
type Config struct {
	// Logger receives conveyor lifecycle and exchange logs. Defaults to
	// DefaultLogger.
	Logger Logger

	// TimerLogger receives time keeper logs. Defaults to Logger.
	TimerLogger Logger

	// Metrics collects execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is called when a unit panics. Defaults to
	// DefaultPanicHandler.
	PanicHandler PanicHandler

	// Supervisor tracks readiness for destruction. Defaults to the
	// process-wide supervisor.
	Supervisor Supervisor

	// Priority is the initial line priority on the 1..10 scale
	// (PriorityNorm when zero).
	Priority int
}

// DefaultConfig returns a config with default collaborators.
func DefaultConfig() *Config {
	return &Config{
		Logger:       NewDefaultLogger(),
		Metrics:      &NilMetrics{},
		PanicHandler: &DefaultPanicHandler{},
	}
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.TimerLogger == nil {
		out.TimerLogger = out.Logger
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{}
	}
	if out.Supervisor == nil {
		out.Supervisor = DefaultSupervisor()
	}
	if out.Priority == 0 {
		out.Priority = PriorityNorm
	}
	return out
}
