package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/taskline/conveyor/core"
)

// DepthPoller periodically samples conveyor queue and timer depths into
// Prometheus gauges. Unlike MetricsExporter, which records on every
// exchange, the poller observes from the outside and needs no config hook.
type DepthPoller struct {
	interval time.Duration

	convsMu sync.RWMutex
	convs   map[string]*core.Conveyor

	pendingUnits  *prom.GaugeVec
	waitingTimers *prom.GaugeVec
	shutdownState *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDepthPoller creates a depth poller and registers its collectors.
func NewDepthPoller(reg prom.Registerer, interval time.Duration) (*DepthPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pendingUnits := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "pending_units",
		Help:      "Pending units per conveyor.",
	}, []string{"conveyor", "kind"})
	waitingTimers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "waiting_timers",
		Help:      "Waiting timer entries per conveyor.",
	}, []string{"conveyor", "kind"})
	shutdownState := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "shutdown_state",
		Help:      "Conveyor shutdown state (1=requested, 0=running).",
	}, []string{"conveyor", "kind"})

	var err error
	if pendingUnits, err = registerCollector(reg, pendingUnits); err != nil {
		return nil, err
	}
	if waitingTimers, err = registerCollector(reg, waitingTimers); err != nil {
		return nil, err
	}
	if shutdownState, err = registerCollector(reg, shutdownState); err != nil {
		return nil, err
	}

	return &DepthPoller{
		interval:      interval,
		convs:         make(map[string]*core.Conveyor),
		pendingUnits:  pendingUnits,
		waitingTimers: waitingTimers,
		shutdownState: shutdownState,
	}, nil
}

// Add adds or replaces a sampled conveyor under its name.
func (p *DepthPoller) Add(c *core.Conveyor) {
	if p == nil || c == nil {
		return
	}
	p.convsMu.Lock()
	p.convs[normalizeLabel(c.Name(), "conveyor")] = c
	p.convsMu.Unlock()
}

// Remove stops sampling the named conveyor.
func (p *DepthPoller) Remove(name string) {
	if p == nil {
		return
	}
	p.convsMu.Lock()
	delete(p.convs, normalizeLabel(name, "conveyor"))
	p.convsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *DepthPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *DepthPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *DepthPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *DepthPoller) collectOnce() {
	p.convsMu.RLock()
	for name, c := range p.convs {
		kind := c.Kind()
		p.pendingUnits.WithLabelValues(name, kind).Set(float64(c.QueueSize()))
		p.waitingTimers.WithLabelValues(name, kind).Set(float64(c.TimerSize()))
		if c.IsShutdown() {
			p.shutdownState.WithLabelValues(name, kind).Set(1)
		} else {
			p.shutdownState.WithLabelValues(name, kind).Set(0)
		}
	}
	p.convsMu.RUnlock()
}
