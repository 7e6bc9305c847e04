package streamtag

import (
	"time"

	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/pipeline"
)

// Rule declares one match-rule for the embedded client. Query is a store
// query expression; Fields scopes it (empty means the catch-all field);
// Policy is one of "must", "should", "must_not" (empty means "must").
type Rule struct {
	ID     string
	Query  string
	Fields []string
	Policy string
}

type clientConfig struct {
	addrs            []string
	username         string
	password         string
	keyPrefix        string
	readinessTimeout time.Duration

	index         string
	docType       string
	batchSize     int
	maxBatchBytes int
	queueDepth    int

	retryAttempts int
	backoffBase   time.Duration
	callTimeout   time.Duration

	rules  []Rule
	logger *zap.Logger
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		keyPrefix:        "streamtag:",
		docType:          "activity",
		batchSize:        100,
		retryAttempts:    pipeline.DefaultMaxAttempts,
		backoffBase:      pipeline.DefaultBackoffBase,
		callTimeout:      30 * time.Second,
		readinessTimeout: defaultReadinessTimeout,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithValkey connects to a Valkey store.
func WithValkey(addr, password string) Option {
	return func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithRedis connects to a Redis 8+ store.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithAddrs connects to a store cluster.
func WithAddrs(addrs ...string) Option {
	return func(c *clientConfig) { c.addrs = addrs }
}

// WithUsername sets the store username (ACL setups).
func WithUsername(username string) Option {
	return func(c *clientConfig) { c.username = username }
}

// WithKeyPrefix overrides the key namespace prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithReadinessTimeout bounds the startup wait for the store.
func WithReadinessTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.readinessTimeout = d
		}
	}
}

// WithIndex sets the target index documents are written to. Required.
func WithIndex(index string) Option {
	return func(c *clientConfig) { c.index = index }
}

// WithDocType sets the document type segment of generated keys.
func WithDocType(t string) Option {
	return func(c *clientConfig) { c.docType = t }
}

// WithBatchSize sets how many buffered operations trigger a flush.
func WithBatchSize(n int) Option {
	return func(c *clientConfig) { c.batchSize = n }
}

// WithMaxBatchBytes adds a byte-size flush threshold alongside the count one.
func WithMaxBatchBytes(n int) Option {
	return func(c *clientConfig) { c.maxBatchBytes = n }
}

// WithQueueDepth sets how many full batches may wait for the flush worker.
func WithQueueDepth(n int) Option {
	return func(c *clientConfig) { c.queueDepth = n }
}

// WithRetry configures flush retry: attempts bounds the total tries per
// batch, base is the first backoff delay.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *clientConfig) {
		c.retryAttempts = attempts
		c.backoffBase = base
	}
}

// WithCallTimeout bounds each individual bulk submission.
func WithCallTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.callTimeout = d }
}

// WithRules sets the desired rule set. Omitting it puts the client in
// writer-only mode: no matching, no tagging.
func WithRules(rules ...Rule) Option {
	return func(c *clientConfig) { c.rules = rules }
}

// WithLogger attaches a zap logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}
