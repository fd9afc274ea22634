package cdc

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/store"
)

// TestCdcBatchRoundTrip covers scenario S3: a single-transaction batch
// writing two keys stores contiguous sequence numbers in insertion order.
func TestCdcBatchRoundTrip(t *testing.T) {
	s := NewStore()
	batch := Sequence(1, 1000, []Change{
		{Kind: ChangeInsert, Key: encoding.TableRowKey(1, 1), Post: []byte("a=1")},
		{Kind: ChangeInsert, Key: encoding.TableRowKey(1, 2), Post: []byte("b=2")},
	})
	if err := s.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok := s.Read(1)
	if !ok {
		t.Fatalf("expected batch at version 1")
	}
	if len(got.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(got.Changes))
	}
	if got.Changes[0].Sequence != 1 || got.Changes[1].Sequence != 2 {
		t.Fatalf("expected contiguous sequence [1,2], got [%d,%d]", got.Changes[0].Sequence, got.Changes[1].Sequence)
	}
	if got.Changes[0].Change.Kind != ChangeInsert || string(got.Changes[0].Change.Post) != "a=1" {
		t.Fatalf("unexpected first change: %+v", got.Changes[0])
	}
}

func TestCdcStoreMinMaxAndCount(t *testing.T) {
	s := NewStore()
	if _, ok := s.MinVersion(); ok {
		t.Fatalf("expected no min version on empty store")
	}
	for _, v := range []uint64{3, 1, 2} {
		s.Write(Cdc{Version: v, TimestampMs: v * 100})
	}
	if min, ok := s.MinVersion(); !ok || min != 1 {
		t.Fatalf("expected min 1, got %d ok=%v", min, ok)
	}
	if max, ok := s.MaxVersion(); !ok || max != 3 {
		t.Fatalf("expected max 3, got %d ok=%v", max, ok)
	}
	if s.Count(99) != 0 {
		t.Fatalf("expected count 0 for absent version")
	}
}

func TestCdcStoreDropBefore(t *testing.T) {
	s := NewStore()
	for _, v := range []uint64{1, 2, 3, 4} {
		s.Write(Cdc{Version: v})
	}
	result := s.DropBefore(3)
	if result.Count != 2 {
		t.Fatalf("expected 2 dropped, got %d", result.Count)
	}
	if min, ok := s.MinVersion(); !ok || min != 3 {
		t.Fatalf("expected min 3 after drop, got %d ok=%v", min, ok)
	}
}

// TestConsumerOrderingAndCheckpoint covers §4.2.2's at-least-once delivery:
// a failing handler must not advance the checkpoint, and a subsequent
// success must redeliver the same batch before advancing.
func TestConsumerOrderingAndCheckpoint(t *testing.T) {
	s := NewStore()
	s.Write(Sequence(1, 0, []Change{{Kind: ChangeInsert, Key: encoding.TableRowKey(1, 1), Post: []byte("v1")}}))
	s.Write(Sequence(2, 0, []Change{{Kind: ChangeInsert, Key: encoding.TableRowKey(1, 2), Post: []byte("v2")}}))

	checkpoints := store.NewSingleVersionStore()
	var delivered [][]uint64
	failFirst := true

	handler := func(ctx context.Context, batches []Cdc) error {
		if failFirst {
			failFirst = false
			return context.DeadlineExceeded
		}
		var versions []uint64
		for _, b := range batches {
			versions = append(versions, b.Version)
		}
		delivered = append(delivered, versions)
		return nil
	}

	c := NewConsumer("flow_consumer", s, checkpoints, 0, handler, nil, nil)
	c.retryPolicy = noRetry{}

	if err := c.PollOnce(context.Background()); err == nil {
		t.Fatalf("expected first poll to fail and leave checkpoint unchanged")
	}
	if _, ok := c.Checkpoint(); ok {
		t.Fatalf("expected no checkpoint after failed poll")
	}

	if err := c.PollOnce(context.Background()); err != nil {
		t.Fatalf("expected retried poll to succeed: %v", err)
	}
	if len(delivered) != 1 || len(delivered[0]) != 2 || delivered[0][0] != 1 || delivered[0][1] != 2 {
		t.Fatalf("expected redelivery of versions [1,2], got %v", delivered)
	}
	if cp, ok := c.Checkpoint(); !ok || cp != 2 {
		t.Fatalf("expected checkpoint 2, got %d ok=%v", cp, ok)
	}
}

func TestConsumerFilter(t *testing.T) {
	s := NewStore()
	s.Write(Sequence(1, 0, []Change{
		{Kind: ChangeInsert, Key: encoding.TableRowKey(1, 1)},
		{Kind: ChangeInsert, Key: encoding.ViewRowKey(1, 1)},
	}))
	checkpoints := store.NewSingleVersionStore()
	var seen []Change
	handler := func(ctx context.Context, batches []Cdc) error {
		for _, b := range batches {
			for _, sc := range b.Changes {
				seen = append(seen, sc.Change)
			}
		}
		return nil
	}
	tableOnly := func(c Change) bool { return c.Key.Class() == encoding.ClassTableRow }
	c := NewConsumer("table_only", s, checkpoints, 0, handler, tableOnly, nil)
	if err := c.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(seen) != 1 || seen[0].Key.Class() != encoding.ClassTableRow {
		t.Fatalf("expected only table-row changes, got %+v", seen)
	}
}

func TestRetentionPipelineSweepsBelowWatermark(t *testing.T) {
	s := NewStore()
	for _, v := range []uint64{1, 2, 3} {
		s.Write(Cdc{Version: v, TimestampMs: uint64(time.Now().UnixMilli())})
	}
	p := NewRetentionPipeline(s, func() uint64 { return 2 }, 0, nil)
	result := p.Sweep()
	if result.Count != 1 {
		t.Fatalf("expected 1 batch dropped below watermark 2, got %d", result.Count)
	}
	if min, _ := s.MinVersion(); min != 2 {
		t.Fatalf("expected min version 2 remaining, got %d", min)
	}
}

// noRetry disables backoff.Retry's looping for deterministic single-attempt
// tests.
type noRetry struct{}

func (noRetry) NextBackOff() time.Duration { return backoff.Stop }
func (noRetry) Reset()                     {}
