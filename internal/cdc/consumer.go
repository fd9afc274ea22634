package cdc

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/store"
)

// ConsumerId names a registered CDC processor (spec.md §4.2.2), e.g.
// "flow_consumer".
type ConsumerId string

// Handler processes one poll's worth of batches. Returning an error leaves
// the checkpoint unchanged; the next tick redelivers the same batch
// (at-least-once, possibly duplicated).
type Handler func(ctx context.Context, batches []Cdc) error

// Filter decides whether a single change is relevant to this consumer
// (spec.md §4.2.2 step 3, e.g. the flow consumer's TableRow/ViewRow/
// RingBufferRow filter).
type Filter func(Change) bool

// Consumer drives one named processor's checkpointed polling loop.
// Grounded on the teacher's job/scheduler bookkeeping (internal/storage/
// scheduler.go, catalog.go's UpdateJobRuntime) for the "persisted runtime
// state + periodic tick" shape, wired to github.com/robfig/cron/v3 for the
// tick itself and github.com/cenkalti/backoff/v4 for bounded in-tick
// retries of transient handler errors before yielding to the next tick.
type Consumer struct {
	id          ConsumerId
	cdcStore    *Store
	checkpoints *store.SingleVersionStore
	handler     Handler
	filter      Filter
	batchSize   int
	retryPolicy backoff.BackOff

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	log     *zap.SugaredLogger
}

// NewConsumer returns a Consumer that has not started polling yet. filter
// may be nil (accept every change). checkpoints is shared storage so
// multiple consumers can coexist in one process.
func NewConsumer(id ConsumerId, cdcStore *Store, checkpoints *store.SingleVersionStore, batchSize int, handler Handler, filter Filter, log *zap.SugaredLogger) *Consumer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0 // bounded below by WithMaxRetries, not wall-clock
	return &Consumer{
		id:          id,
		cdcStore:    cdcStore,
		checkpoints: checkpoints,
		handler:     handler,
		filter:      filter,
		batchSize:   batchSize,
		retryPolicy: backoff.WithMaxRetries(retry, 3),
		log:         log,
	}
}

// Checkpoint returns the last successfully processed commit version.
func (c *Consumer) Checkpoint() (uint64, bool) {
	raw, ok := c.checkpoints.Get(encoding.CdcConsumerKey(string(c.id)))
	if !ok || len(raw) != 8 {
		return 0, false
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v, true
}

func (c *Consumer) setCheckpoint(version uint64) {
	buf := make([]byte, 8)
	v := version
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	c.checkpoints.Set(encoding.CdcConsumerKey(string(c.id)), buf)
}

// PollOnce reads one batch past the checkpoint, applies the filter, and
// invokes the handler with bounded retry on transient errors (spec.md
// §4.2.2 steps 1-5).
func (c *Consumer) PollOnce(ctx context.Context) error {
	checkpoint, has := c.Checkpoint()
	start := UnboundedBound()
	if has {
		start = ExcludedBound(checkpoint)
	}

	batch := c.cdcStore.ReadRange(start, UnboundedBound(), c.batchSize)
	if len(batch.Items) == 0 {
		return nil
	}

	filtered := applyFilter(batch.Items, c.filter)

	op := func() error { return c.handler(ctx, filtered) }
	if err := backoff.Retry(op, c.retryPolicy); err != nil {
		c.log.Warnw("cdc consumer poll failed, checkpoint unchanged", "consumer", c.id, "err", err)
		return err
	}

	c.setCheckpoint(batch.Items[len(batch.Items)-1].Version)
	return nil
}

func applyFilter(items []Cdc, filter Filter) []Cdc {
	if filter == nil {
		return items
	}
	out := make([]Cdc, 0, len(items))
	for _, batch := range items {
		var kept []SequencedChange
		for _, sc := range batch.Changes {
			if filter(sc.Change) {
				kept = append(kept, sc)
			}
		}
		if len(kept) > 0 {
			out = append(out, Cdc{Version: batch.Version, TimestampMs: batch.TimestampMs, Changes: kept})
		}
	}
	return out
}

// Start begins polling on the given cron schedule (e.g. "@every 250ms").
func (c *Consumer) Start(ctx context.Context, schedule string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}
	c.cron = cron.New()
	id, err := c.cron.AddFunc(schedule, func() {
		if err := c.PollOnce(ctx); err != nil {
			c.log.Debugw("cdc consumer tick error, will retry next tick", "consumer", c.id, "err", err)
		}
	})
	if err != nil {
		c.cron = nil
		return err
	}
	c.entryID = id
	c.cron.Start()
	return nil
}

// Stop halts the polling schedule, waiting for any in-flight tick.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
}
