package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/observability"
	"github.com/eris-support/support-desk/internal/service"
)

// PassRunner executes one ingestion pass.
type PassRunner interface {
	RunPass(ctx context.Context) service.PassStats
}

// HeartbeatStore persists the poller state for other processes.
type HeartbeatStore interface {
	SaveHeartbeat(ctx context.Context, state any, ttl time.Duration) error
}

// State is a snapshot of poller liveness.
type State struct {
	Running      bool       `json:"running"`
	LastStarted  *time.Time `json:"last_started,omitempty"`
	LastFinished *time.Time `json:"last_finished,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Passes       int64      `json:"passes"`
	Failures     int64      `json:"failures"`
}

// Poller runs ingestion passes on a fixed pause. The next pass starts one
// interval after the previous one finished, so passes never overlap.
type Poller struct {
	runner    PassRunner
	interval  time.Duration
	heartbeat HeartbeatStore
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	state State
}

// NewPoller constructs the scheduler. heartbeat and metrics may be nil.
func NewPoller(runner PassRunner, interval time.Duration, heartbeat HeartbeatStore, metrics *observability.Metrics, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		runner:    runner,
		interval:  interval,
		heartbeat: heartbeat,
		metrics:   metrics,
		logger:    logger.Named("poller"),
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.setRunning(true)
	defer p.setRunning(false)

	p.logger.Info("mail poller started", zap.Duration("interval", p.interval))
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("mail poller stopped")
			return
		case <-timer.C:
		}

		p.RunOnce(ctx)
		if ctx.Err() != nil {
			p.logger.Info("mail poller stopped")
			return
		}
		timer.Reset(p.interval)
	}
}

// RunOnce executes a single pass, isolating panics.
func (p *Poller) RunOnce(ctx context.Context) (stats service.PassStats, err error) {
	started := p.now().UTC()
	p.mu.Lock()
	p.state.LastStarted = &started
	p.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("poll pass panicked: %v", r)
			}
		}()
		stats = p.runner.RunPass(ctx)
	}()

	finished := p.now().UTC()
	p.mu.Lock()
	p.state.LastFinished = &finished
	p.state.Passes++
	if err != nil {
		p.state.Failures++
		p.state.LastError = err.Error()
	} else {
		p.state.LastError = ""
	}
	snapshot := p.state
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("poll pass failed", zap.Error(err))
	} else {
		p.logger.Debug("poll pass done",
			zap.Int("fetched", stats.Fetched),
			zap.Duration("took", finished.Sub(started)))
	}
	p.metrics.RecordPass(err, finished)
	p.saveHeartbeat(ctx, snapshot)
	return stats, err
}

// State returns the current liveness snapshot.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Stale reports whether no pass has finished within three intervals of now.
// A poller that has not completed its first wait is not stale.
func (p *Poller) Stale() bool {
	st := p.State()
	if !st.Running || st.LastFinished == nil {
		return false
	}
	return p.now().Sub(*st.LastFinished) > 3*p.interval
}

func (p *Poller) setRunning(running bool) {
	p.mu.Lock()
	p.state.Running = running
	p.mu.Unlock()
}

func (p *Poller) saveHeartbeat(ctx context.Context, state State) {
	if p.heartbeat == nil {
		return
	}
	// Survives cancellation so the final pass is still recorded.
	hbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.heartbeat.SaveHeartbeat(hbCtx, state, 3*p.interval); err != nil {
		p.logger.Warn("heartbeat not saved", zap.Error(err))
	}
}
