package pipeline

import (
	"context"

	"github.com/streamtag/streamtag/internal/domain/batch"
	"github.com/streamtag/streamtag/internal/domain/rule"
)

// DocumentWriter flushes a batch of write operations to the store in one
// call, reporting one outcome per operation.
type DocumentWriter interface {
	BulkWrite(ctx context.Context, ops []batch.Operation) (batch.Results, error)
}

// RuleStore is the registry's persistence surface for the rule namespace.
type RuleStore interface {
	ActiveIDs(ctx context.Context, index string) ([]string, error)
	BulkAdd(ctx context.Context, index string, rules []rule.Rule) (batch.Results, error)
	BulkDelete(ctx context.Context, index string, ids []string) (batch.Results, error)
	EnsureIndexes(ctx context.Context, index string) error
}

// Percolator evaluates one flattened document against a set of rules.
type Percolator interface {
	Percolate(ctx context.Context, index string, fields map[string]string, rules []rule.Rule) ([]string, error)
}
