// Package pipeline holds the two core engines of streamtag: the batched
// write engine (buffer + bulk executor) and the rule-matching/tagging engine
// (registry + matcher + tagger), plus the orchestrator that drives
// documents through match, tag, buffer, and flush.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/activity"
	"github.com/streamtag/streamtag/internal/domain/batch"
	"github.com/streamtag/streamtag/internal/domain/rule"
	"github.com/streamtag/streamtag/internal/metrics"
)

// Config holds the pipeline's operating parameters.
type Config struct {
	Index         string
	DocType       string
	BatchSize     int
	MaxBatchBytes int // 0 disables the byte threshold
	QueueDepth    int // completed-batch handoff queue; default 1
}

// Pipeline drives documents through matching, tagging, and buffering, and hands completed
// batches to a flush worker over a bounded queue. One logical producer calls
// Write; when the flusher lags, the queue fills and Write blocks
// (backpressure) instead of growing memory without bound.
//
// A systemic flush failure (exhausted retries) halts the stream: it is
// surfaced by the next Write or by Close, never silently logged away.
type Pipeline struct {
	cfg      Config
	rules    rule.Set
	matcher  *Matcher
	registry *Registry
	stores   RuleStore
	buffer   *Buffer
	executor *Executor
	logger   *zap.Logger

	batches  chan []batch.Operation
	done     chan struct{}
	pending  []batch.Operation
	inflight sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	fatalErr error
}

// New creates and starts a pipeline. With an empty rule set the pipeline
// runs in writer-only mode: documents skip match/tag and go straight to the
// buffer.
func New(
	cfg Config,
	executor *Executor,
	rules rule.Set,
	ruleStore RuleStore,
	perc Percolator,
	logger *zap.Logger,
) (*Pipeline, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("target index is required: %w", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	buffer, err := NewBuffer(cfg.BatchSize, cfg.MaxBatchBytes)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidConfig)
	}

	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}

	p := &Pipeline{
		cfg:      cfg,
		rules:    rules,
		stores:   ruleStore,
		buffer:   buffer,
		executor: executor,
		logger:   logger,
		batches:  make(chan []batch.Operation, cfg.QueueDepth),
		done:     make(chan struct{}),
	}
	if len(rules) > 0 {
		p.matcher = NewMatcher(perc, cfg.Index, rules)
		p.registry = NewRegistry(ruleStore, logger)
	}

	go p.flushLoop()
	return p, nil
}

// Prepare establishes one-time state before any matching occurs: it creates
// the rule and percolation indexes and reconciles the stored rules with the
// configured set. A configuration error fails fast, before any store call.
func (p *Pipeline) Prepare(ctx context.Context) error {
	if p.registry == nil {
		return nil
	}
	if err := p.stores.EnsureIndexes(ctx, p.cfg.Index); err != nil {
		return fmt.Errorf("prepare indexes: %w", err)
	}
	if _, err := p.registry.Reconcile(ctx, p.rules, p.cfg.Index); err != nil {
		return err
	}
	return nil
}

// Reconcile re-runs rule reconciliation mid-stream. Documents matched while
// it runs may see stale rules; the store offers no transaction spanning rule
// writes and rule reads, so this window is documented rather than locked out.
func (p *Pipeline) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if p.registry == nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: %w", domain.ErrEmptyRuleSet)
	}
	return p.registry.Reconcile(ctx, p.rules, p.cfg.Index)
}

// Write drives one document through the pipeline. Parse errors are local to
// the document; systemic errors from earlier flushes surface here and halt
// the stream. Write is not safe for concurrent use: the pipeline expects a
// single logical producer.
func (p *Pipeline) Write(ctx context.Context, d activity.Datum) error {
	if err := p.guard(); err != nil {
		return err
	}

	doc := d.Document()
	if p.matcher != nil {
		matched, err := p.matcher.Match(ctx, doc)
		if err != nil {
			return err
		}
		doc, err = Tag(doc, matched)
		if err != nil {
			return err
		}
	}

	op, err := batch.NewIndex(p.cfg.Index, p.cfg.DocType, "", doc)
	if err != nil {
		return err
	}

	metrics.IncDocument(d.Verb())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ErrClosed
	}
	var ops []batch.Operation
	if p.buffer.Add(op) == Flush {
		ops = p.buffer.Drain()
	}
	if len(ops) > 0 {
		// Registered before the mutex drops so Close cannot close the
		// handoff channel underneath a blocked send.
		p.inflight.Add(1)
	}
	p.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	defer p.inflight.Done()
	return p.enqueue(ctx, ops)
}

func (p *Pipeline) guard() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrClosed
	}
	return p.fatalErr
}

// enqueue hands a completed batch to the flush worker, blocking while the
// queue is full. The mutex must NOT be held here: the flush worker needs it
// to report failures while we wait. On cancellation the batch is parked so
// Close can still flush it.
func (p *Pipeline) enqueue(ctx context.Context, ops []batch.Operation) error {
	select {
	case p.batches <- ops:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		p.pending = append(p.pending, ops...)
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *Pipeline) flushLoop() {
	defer close(p.done)
	for ops := range p.batches {
		// No cancellation token in normal operation: the executor's
		// per-call timeout is the only bound on a network call.
		if _, err := p.executor.Execute(context.Background(), ops); err != nil {
			p.logger.Error("batch flush failed",
				zap.Int("batch_size", len(ops)),
				zap.Error(err),
			)
			p.setFatal(err)
		}
	}
}

func (p *Pipeline) setFatal(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
}

// Close force-drains the buffer, executes the final flush, and stops the
// flush worker. Skipping the final flush would silently drop buffered
// documents, so Close must run on every exit path. Safe to call once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ErrClosed
	}
	p.closed = true
	p.mu.Unlock()

	// A Write blocked on a full handoff queue must finish its send (or
	// park its batch on cancellation) before the channel can be closed.
	// The flush worker keeps draining, so every in-flight send completes.
	p.inflight.Wait()

	p.mu.Lock()
	remainder := append(p.pending, p.buffer.Drain()...)
	p.pending = nil
	p.mu.Unlock()

	if len(remainder) > 0 {
		p.batches <- remainder
	}
	close(p.batches)
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatalErr
}

// Written returns the lifetime count of durably written items.
func (p *Pipeline) Written() int64 { return p.executor.Written() }

// Failed returns the lifetime count of per-item failures.
func (p *Pipeline) Failed() int64 { return p.executor.Failed() }
