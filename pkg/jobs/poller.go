package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Step performs one unit of work. It reports whether work was found so the poller can
// immediately look for more instead of idling.
type Step func(ctx context.Context) (bool, error)

// PollerConfig configures the polling loop.
type PollerConfig struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Poller runs a Step on a single goroutine: steps never overlap. When a step finds no
// work the poller idles for Interval or until Notify is called.
type Poller struct {
	name     string
	step     Step
	interval time.Duration
	logger   *zap.Logger

	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewPoller builds a poller around step.
func NewPoller(name string, step Step, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Poller{
		name:     name,
		step:     step,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the loop. Safe to call once; later calls are no-ops.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop()
	p.started = true
	p.logger.Sugar().Infow("poller started", "poller", p.name, "interval", p.interval.String())
}

// Stop cancels the loop and waits for the running step to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Sugar().Infow("poller stopped", "poller", p.name)
}

// Notify wakes an idle poller. It never blocks.
func (p *Poller) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) loop() {
	defer p.wg.Done()
	for {
		if p.ctx.Err() != nil {
			return
		}

		worked, err := p.runStep()
		if err != nil {
			p.logger.Sugar().Warnw("poller step failed", "poller", p.name, "error", err)
		}
		if worked && err == nil {
			continue
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *Poller) runStep() (worked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			worked, err = false, fmt.Errorf("poller %s step panicked: %v", p.name, r)
		}
	}()
	return p.step(p.ctx)
}
