// Package streamtag provides the embedded client for the percolation-tagging
// persist pipeline: documents written through the client are matched against
// the configured rules, tagged with the ids of the rules they satisfy,
// buffered, and flushed to the document store as bulk submissions.
package streamtag

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbRedis "github.com/streamtag/streamtag/internal/db/redis"
	"github.com/streamtag/streamtag/internal/domain/activity"
	"github.com/streamtag/streamtag/internal/domain/rule"
	"github.com/streamtag/streamtag/internal/pipeline"
	documentrepo "github.com/streamtag/streamtag/internal/repository/document"
	rulerepo "github.com/streamtag/streamtag/internal/repository/rule"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the streamtag entry point for embedded use.
type Client struct {
	store *dbRedis.Store
	docs  *documentrepo.Repo
	rules *rulerepo.Repo
	pipe  *pipeline.Pipeline
	index string
	typ   string
}

// Open creates a client, connects to the store, and prepares the pipeline:
// rule and percolation indexes are created and the stored rules are
// reconciled with the configured set before any document is accepted.
func Open(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(&cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("streamtag: store address required (use WithValkey, WithRedis, or WithAddrs)")
	}
	if cfg.index == "" {
		return nil, errors.New("streamtag: target index required (use WithIndex)")
	}

	rules, err := buildRuleSet(cfg.rules)
	if err != nil {
		return nil, fmt.Errorf("streamtag: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Username: cfg.username,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("streamtag: create store: %w", err)
	}

	if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("streamtag: store not ready: %w", err)
	}

	docs := documentrepo.New(store, cfg.keyPrefix)
	ruleRepo := rulerepo.New(store, cfg.keyPrefix).WithLogger(cfg.logger)

	executor := pipeline.NewExecutor(docs, pipeline.ExecutorConfig{
		MaxAttempts: cfg.retryAttempts,
		BackoffBase: cfg.backoffBase,
		CallTimeout: cfg.callTimeout,
	}, cfg.logger)

	pipe, err := pipeline.New(pipeline.Config{
		Index:         cfg.index,
		DocType:       cfg.docType,
		BatchSize:     cfg.batchSize,
		MaxBatchBytes: cfg.maxBatchBytes,
		QueueDepth:    cfg.queueDepth,
	}, executor, rules, ruleRepo, ruleRepo, cfg.logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("streamtag: %w", err)
	}

	if err := pipe.Prepare(ctx); err != nil {
		_ = pipe.Close()
		store.Close()
		return nil, fmt.Errorf("streamtag: prepare: %w", err)
	}

	return &Client{
		store: store,
		docs:  docs,
		rules: ruleRepo,
		pipe:  pipe,
		index: cfg.index,
		typ:   cfg.docType,
	}, nil
}

// Write drives one document through matching, tagging, and buffering. The verb is an
// optional discriminator used for logging and metrics only.
func (c *Client) Write(ctx context.Context, document []byte, verb string) error {
	d, err := activity.New(document, verb)
	if err != nil {
		return err
	}
	return c.pipe.Write(ctx, d)
}

// Reconcile re-runs rule reconciliation against the store. Documents written
// while it runs may transiently match stale rules.
func (c *Client) Reconcile(ctx context.Context) error {
	_, err := c.pipe.Reconcile(ctx)
	return err
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// DocumentExists probes whether a document with the given id was written.
func (c *Client) DocumentExists(ctx context.Context, id string) (bool, error) {
	return c.docs.Exists(ctx, c.index, c.typ, id)
}

// Written returns the lifetime count of durably written items.
func (c *Client) Written() int64 { return c.pipe.Written() }

// Failed returns the lifetime count of per-item failures.
func (c *Client) Failed() int64 { return c.pipe.Failed() }

// RuleIndexExists probes whether the rule index for the target index has
// been created.
func (c *Client) RuleIndexExists(ctx context.Context) (bool, error) {
	return c.rules.IndexExists(ctx, c.index)
}

// CleanUp removes the rule and percolation indexes for the target index.
// Intended for teardown; a client prepared afterwards recreates them.
func (c *Client) CleanUp(ctx context.Context) error {
	return c.rules.DropIndexes(ctx, c.index)
}

// Close drains the buffer, runs the final flush, and releases the store
// handle. The returned error carries any flush failure, including ones from
// earlier background flushes.
func (c *Client) Close() error {
	err := c.pipe.Close()
	c.store.Close()
	return err
}

func buildRuleSet(configured []Rule) (rule.Set, error) {
	rules := make([]rule.Rule, 0, len(configured))
	for _, rc := range configured {
		policy, err := rule.ParsePolicy(rc.Policy)
		if err != nil {
			return nil, err
		}
		clause, err := rule.NewClause(rc.Query, policy, rc.Fields...)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.ID, err)
		}
		rl, err := rule.Compose(rc.ID, clause)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rl)
	}
	return rule.NewSet(rules...)
}
