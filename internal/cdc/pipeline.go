package cdc

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// WatermarkFunc reports the oldest version any active reader still needs
// (the mvcc Oracle's watermark). Passed in rather than imported directly
// to keep cdc free of an import cycle back to mvcc.
type WatermarkFunc func() uint64

// RetentionPipeline periodically drops CDC batches no reader can still
// need, the way the teacher's Scheduler (internal/storage/scheduler.go)
// drives periodic background work with github.com/robfig/cron/v3.
type RetentionPipeline struct {
	cdcStore  *Store
	watermark WatermarkFunc
	ttl       time.Duration
	nowFn     func() time.Time
	log       *zap.SugaredLogger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRetentionPipeline builds a pipeline dropping batches older than
// min(watermark(), now - ttl) on each tick (spec.md §4.2.1 Retention).
func NewRetentionPipeline(cdcStore *Store, watermark WatermarkFunc, ttl time.Duration, log *zap.SugaredLogger) *RetentionPipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RetentionPipeline{cdcStore: cdcStore, watermark: watermark, ttl: ttl, nowFn: time.Now, log: log}
}

// Sweep performs one retention pass and returns what it dropped.
func (p *RetentionPipeline) Sweep() DropBeforeResult {
	floor := p.watermark()
	if p.ttl > 0 {
		if ttlFloor, ok := p.ttlFloor(); ok && ttlFloor < floor {
			floor = ttlFloor
		}
	}
	result := p.cdcStore.DropBefore(floor)
	if result.Count > 0 {
		p.log.Debugw("cdc retention sweep", "dropped", result.Count, "floor", floor)
	}
	return result
}

// ttlFloor returns the oldest version whose batch is still within the TTL
// window, approximated by scanning from the current minimum forward —
// batches are written in increasing version/timestamp order so the first
// one inside the window bounds every later one.
func (p *RetentionPipeline) ttlFloor() (uint64, bool) {
	minV, ok := p.cdcStore.MinVersion()
	if !ok {
		return 0, false
	}
	cutoff := uint64(p.nowFn().Add(-p.ttl).UnixMilli())
	b := p.cdcStore.ReadRange(IncludedBound(minV), UnboundedBound(), 0)
	for _, batch := range b.Items {
		if batch.TimestampMs >= cutoff {
			return batch.Version, true
		}
	}
	if len(b.Items) > 0 {
		return b.Items[len(b.Items)-1].Version + 1, true
	}
	return 0, false
}

// Start begins sweeping on the given cron schedule.
func (p *RetentionPipeline) Start(schedule string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(schedule, func() { p.Sweep() }); err != nil {
		p.cron = nil
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the sweep schedule.
func (p *RetentionPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
}
