package pipeline

import (
	"context"
	"fmt"

	"github.com/streamtag/streamtag/internal/domain/activity"
	"github.com/streamtag/streamtag/internal/domain/rule"
	"github.com/streamtag/streamtag/internal/metrics"
)

// Matcher evaluates one document at a time against the most recently
// reconciled rule set. It holds no per-document state and is safe to invoke
// concurrently for independent documents; a reconcile running mid-stream can
// transiently match a document against stale rules (see Pipeline.Reconcile).
type Matcher struct {
	perc  Percolator
	index string
	rules []rule.Rule
}

// NewMatcher creates a matcher scoped to the given index and rule set.
func NewMatcher(perc Percolator, index string, desired rule.Set) *Matcher {
	return &Matcher{perc: perc, index: index, rules: desired.Rules()}
}

// Match returns the ids of the rules the document satisfies. A malformed
// document is a local ParseError and never reaches the store; a document
// matching no rule returns an empty set, not an error.
func (m *Matcher) Match(ctx context.Context, document []byte) ([]string, error) {
	fields, err := activity.Fields(document)
	if err != nil {
		return nil, err
	}

	matched, err := m.perc.Percolate(ctx, m.index, fields, m.rules)
	if err != nil {
		return nil, fmt.Errorf("match document: %w", err)
	}

	metrics.AddRuleMatches(len(matched))
	return matched, nil
}
