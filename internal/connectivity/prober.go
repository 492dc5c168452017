package connectivity

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthChecker is the reachability probe, normally the backend client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Prober polls a HealthChecker and reports the outcome to a Monitor.
type Prober struct {
	checker  HealthChecker
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	kick     chan struct{}
}

func NewProber(checker HealthChecker, monitor *Monitor, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{
		checker:  checker,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate probe, e.g. after the OS reports a network change.
func (p *Prober) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run probes once immediately and then on every tick or kick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		case <-p.kick:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.HealthCheck(probeCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Debug("Backend unreachable", zap.Error(err))
	}
	p.monitor.Report(err == nil)
}
