package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/batch"
	"github.com/streamtag/streamtag/internal/metrics"
)

// Executor defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond
)

// ExecutorConfig tunes the bulk retry behavior.
type ExecutorConfig struct {
	MaxAttempts int           // total attempts per batch, including the first
	BackoffBase time.Duration // initial backoff interval
	CallTimeout time.Duration // bound on one submission attempt; 0 = none
}

// Executor turns a buffered batch into one network call with bounded
// exponential retry on transport failure. Per-item failures never fail the
// batch: they are recorded in the returned Results, logged, and counted.
type Executor struct {
	writer  DocumentWriter
	logger  *zap.Logger
	cfg     ExecutorConfig
	written atomic.Int64
	failed  atomic.Int64
}

// NewExecutor creates a bulk executor.
func NewExecutor(writer DocumentWriter, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{writer: writer, logger: logger, cfg: cfg}
}

// Execute submits the batch as one call. On transport failure the whole call
// is retried with exponential backoff up to the attempt limit; exhausting
// the limit returns a RetryExhaustedError and the batch is NOT durably
// written; the caller decides whether to requeue or abort. On success the
// returned Results are parallel to ops.
func (e *Executor) Execute(ctx context.Context, ops []batch.Operation) (batch.Results, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	start := time.Now()

	var results batch.Results
	attempt := 0
	call := func() error {
		attempt++
		callCtx := ctx
		if e.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()
		}
		r, err := e.writer.BulkWrite(callCtx, ops)
		if err != nil {
			e.logger.Warn("bulk submission failed",
				zap.Int("attempt", attempt),
				zap.Int("batch_size", len(ops)),
				zap.Error(err),
			)
			return err
		}
		results = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.BackoffBase
	err := backoff.Retry(call, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), uint64(e.cfg.MaxAttempts-1)))
	if err != nil {
		return nil, &domain.RetryExhaustedError{Attempts: attempt, Err: err}
	}

	ok := 0
	for _, r := range results {
		if r.Failed() {
			e.logger.Warn("bulk item rejected",
				zap.String("id", r.ID()),
				zap.String("action", string(r.Action())),
				zap.Error(r.Err()),
			)
			continue
		}
		ok++
	}
	nFailed := len(results) - ok

	e.written.Add(int64(ok))
	e.failed.Add(int64(nFailed))
	metrics.AddBulkItems(string(batch.StatusOK), ok)
	metrics.AddBulkItems(string(batch.StatusError), nFailed)
	metrics.ObserveFlush(time.Since(start))

	return results, nil
}

// Written returns the lifetime count of durably written items.
func (e *Executor) Written() int64 { return e.written.Load() }

// Failed returns the lifetime count of per-item failures.
func (e *Executor) Failed() int64 { return e.failed.Load() }
