package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/internal/service"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

// batchProcessor is a minimal internal interface for the dispatcher.
// It matches ProcessBatch of DispatchService and lets us unit test the
// loops with a small fake implementation.
type batchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*service.BatchResult, error)
	ProcessCampaignBatch(ctx context.Context, campaignID string, limit int) (*service.BatchResult, error)
}

// Dispatcher owns the two consumer loops: the periodic background sweep
// that picks up pending and due-for-retry jobs, and the on-demand campaign
// drain that runs a campaign down to empty. Both funnel through the same
// ProcessBatch, and the claim lease keeps them from colliding on a job.
type Dispatcher struct {
	processor      batchProcessor
	sweepInterval  time.Duration
	sweepBatchSize int
	drainBatchSize int
	drainPause     time.Duration
	faultCooldown  time.Duration

	// Sweep loop state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Sweep statistics
	lastRunAt time.Time
	sent      int64
	failed    int64
	runsCount int64

	// Drain state. Only one campaign may drain at a time.
	draining      bool
	drainCampaign string
	drainDone     chan struct{}
	drainStats    DrainProgress
}

type DispatcherOptions struct {
	SweepInterval  time.Duration
	SweepBatchSize int
	DrainBatchSize int
	DrainPause     time.Duration
	FaultCooldown  time.Duration
}

func NewDispatcher(processor batchProcessor, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		processor:      processor,
		sweepInterval:  opts.SweepInterval,
		sweepBatchSize: opts.SweepBatchSize,
		drainBatchSize: opts.DrainBatchSize,
		drainPause:     opts.DrainPause,
		faultCooldown:  opts.FaultCooldown,
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()

	if d.running {
		d.mu.Unlock()
		logger.Warnf("Dispatcher is already running")
		return nil
	}

	d.running = true
	d.stopChan = make(chan struct{})
	d.doneChan = make(chan struct{})
	d.mu.Unlock()

	logger.Infof("Starting dispatcher with sweep interval: %v", d.sweepInterval)

	go d.run(ctx)

	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneChan)

	d.sweep(ctx)

	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep(ctx)

		case <-d.stopChan:
			logger.Warnf("Dispatcher received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Dispatcher context cancelled")
			return
		}
	}
}

// sweep runs one ProcessBatch pass. A fault never kills the loop; the
// dispatcher cools down and the next tick tries again.
func (d *Dispatcher) sweep(ctx context.Context) {
	d.mu.Lock()
	d.lastRunAt = time.Now()
	d.runsCount++
	runNumber := d.runsCount
	batchSize := d.sweepBatchSize
	d.mu.Unlock()

	result, err := d.processor.ProcessBatch(ctx, batchSize)
	if err != nil {
		logger.Errorf("[Sweep #%d] Error processing batch: %v", runNumber, err)
		d.cooldown(ctx)
		return
	}

	if result.Claimed == 0 {
		logger.Debugf("[Sweep #%d] No eligible jobs", runNumber)
		return
	}

	d.mu.Lock()
	d.sent += int64(result.Sent)
	d.failed += int64(result.Failed)
	d.mu.Unlock()

	logger.Infof("[Sweep #%d] Processed %d jobs, %d sent, %d failed",
		runNumber, result.Claimed, result.Sent, result.Failed)
}

func (d *Dispatcher) cooldown(ctx context.Context) {
	select {
	case <-time.After(d.faultCooldown):
	case <-d.stopChan:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) Stop() error {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()
		logger.Warnf("Dispatcher is not running")
		return nil
	}

	d.running = false
	stopChan := d.stopChan
	doneChan := d.doneChan
	d.mu.Unlock()

	close(stopChan)
	<-doneChan

	logger.Infof("Dispatcher stopped")
	return nil
}

func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

type DispatcherStatus struct {
	Running       bool          `json:"running"`
	LastRunAt     time.Time     `json:"lastRunAt"`
	Sent          int64         `json:"sent"`
	Failed        int64         `json:"failed"`
	RunsCount     int64         `json:"runsCount"`
	SweepInterval time.Duration `json:"sweepInterval"`
	Draining      bool          `json:"draining"`
	DrainCampaign string        `json:"drainCampaign,omitempty"`
}

func (d *Dispatcher) GetStatus() DispatcherStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStatus{
		Running:       d.running,
		LastRunAt:     d.lastRunAt,
		Sent:          d.sent,
		Failed:        d.failed,
		RunsCount:     d.runsCount,
		SweepInterval: d.sweepInterval,
		Draining:      d.draining,
		DrainCampaign: d.drainCampaign,
	}
}

// DrainProgress is a point-in-time snapshot of a campaign drain.
type DrainProgress struct {
	CampaignID string     `json:"campaignId"`
	Active     bool       `json:"active"`
	Batches    int64      `json:"batches"`
	Sent       int64      `json:"sent"`
	Failed     int64      `json:"failed"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// StartDrain launches a campaign drain in the background. Only one drain
// may run at a time; a second request gets ErrDrainActive.
func (d *Dispatcher) StartDrain(ctx context.Context, campaignID string) error {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return domain.ErrDrainActive
	}

	d.draining = true
	d.drainCampaign = campaignID
	d.drainDone = make(chan struct{})
	d.drainStats = DrainProgress{
		CampaignID: campaignID,
		Active:     true,
		StartedAt:  time.Now(),
	}
	d.mu.Unlock()

	logger.Infof("Starting drain for campaign %q", campaignID)

	go d.drain(ctx, campaignID)

	return nil
}

// drain claims and delivers batches until a pass claims nothing, pausing
// briefly between batches so the sweep loop and API stay responsive.
func (d *Dispatcher) drain(ctx context.Context, campaignID string) {
	defer func() {
		now := time.Now()
		d.mu.Lock()
		d.draining = false
		d.drainCampaign = ""
		d.drainStats.Active = false
		d.drainStats.FinishedAt = &now
		close(d.drainDone)
		d.mu.Unlock()
		logger.Infof("Drain finished for campaign %q", campaignID)
	}()

	for {
		result, err := d.processor.ProcessCampaignBatch(ctx, campaignID, d.drainBatchSize)
		if err != nil {
			logger.Errorf("Drain batch failed for campaign %q: %v", campaignID, err)
			d.cooldown(ctx)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		d.mu.Lock()
		d.drainStats.Batches++
		d.drainStats.Sent += int64(result.Sent)
		d.drainStats.Failed += int64(result.Failed)
		d.mu.Unlock()

		if result.Claimed == 0 {
			return
		}

		select {
		case <-time.After(d.drainPause):
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) DrainProgress() DrainProgress {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.drainStats
}
