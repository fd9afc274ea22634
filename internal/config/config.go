// Package config centralizes ReifyDB's tunables behind functional options,
// the way internal/storage.StorageConfig and ConcurrencyConfig do in the
// teacher repo: one struct, one constructor with sane CPU-scaled defaults,
// Option funcs for overrides. No ambient globals — every subsystem receives
// a *Config explicitly at construction time.
package config

import "runtime"

// Config holds every tunable named across the core subsystems.
type Config struct {
	// PendingWrites budgets (mvcc §4.1.3).
	PendingWritesMaxBytes   int64
	PendingWritesMaxEntries int

	// CDC retention and delivery (cdc §4.2).
	CdcRetentionTTLSeconds int64
	CdcReadBatchSize       int
	CdcPollInterval        string // cron schedule string passed to cdc.Consumer.Start

	// VM execution bounds (vm §4.4.2).
	VMMaxOperandStack  int
	VMMaxPipelineStack int
	VMMaxCallDepth     int

	// Flow engine (flow §4.3, §5).
	FlowBackfillDeadlineSeconds int64
	FlowDispatchWorkers         int
}

// Option mutates a Config during construction.
type Option func(*Config)

// New returns a Config with CPU-scaled defaults, then applies opts.
func New(opts ...Option) *Config {
	cpus := runtime.NumCPU()
	c := &Config{
		PendingWritesMaxBytes:       64 << 20, // 64MiB
		PendingWritesMaxEntries:     1 << 20,
		CdcRetentionTTLSeconds:      3600,
		CdcReadBatchSize:            1024,
		CdcPollInterval:             "@every 250ms",
		VMMaxOperandStack:           4096,
		VMMaxPipelineStack:          256,
		VMMaxCallDepth:              512,
		FlowBackfillDeadlineSeconds: 300,
		FlowDispatchWorkers:         max(1, cpus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func WithPendingWritesBudget(maxBytes int64, maxEntries int) Option {
	return func(c *Config) {
		c.PendingWritesMaxBytes = maxBytes
		c.PendingWritesMaxEntries = maxEntries
	}
}

func WithCdcRetention(ttlSeconds int64, readBatchSize int) Option {
	return func(c *Config) {
		c.CdcRetentionTTLSeconds = ttlSeconds
		c.CdcReadBatchSize = readBatchSize
	}
}

func WithVMLimits(operandStack, pipelineStack, callDepth int) Option {
	return func(c *Config) {
		c.VMMaxOperandStack = operandStack
		c.VMMaxPipelineStack = pipelineStack
		c.VMMaxCallDepth = callDepth
	}
}

func WithFlowDispatch(backfillDeadlineSeconds int64, workers int) Option {
	return func(c *Config) {
		c.FlowBackfillDeadlineSeconds = backfillDeadlineSeconds
		c.FlowDispatchWorkers = workers
	}
}
