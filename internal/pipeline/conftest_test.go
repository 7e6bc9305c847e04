package pipeline

import (
	"context"
	"sync"

	"github.com/streamtag/streamtag/internal/domain/batch"
	"github.com/streamtag/streamtag/internal/domain/rule"
)

// mockWriter implements DocumentWriter, recording every submitted batch.
type mockWriter struct {
	mu      sync.Mutex
	batches [][]batch.Operation
	fn      func(ctx context.Context, ops []batch.Operation) (batch.Results, error)
}

func (m *mockWriter) BulkWrite(ctx context.Context, ops []batch.Operation) (batch.Results, error) {
	m.mu.Lock()
	m.batches = append(m.batches, ops)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, ops)
	}
	results := make(batch.Results, len(ops))
	for i, op := range ops {
		results[i] = batch.NewOK(op.ID(), op.Action())
	}
	return results, nil
}

func (m *mockWriter) calls() [][]batch.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]batch.Operation, len(m.batches))
	copy(out, m.batches)
	return out
}

func (m *mockWriter) items() int {
	n := 0
	for _, b := range m.calls() {
		n += len(b)
	}
	return n
}

// mockRuleStore implements RuleStore.
type mockRuleStore struct {
	activeFn  func(ctx context.Context, index string) ([]string, error)
	addFn     func(ctx context.Context, index string, rules []rule.Rule) (batch.Results, error)
	deleteFn  func(ctx context.Context, index string, ids []string) (batch.Results, error)
	ensureFn  func(ctx context.Context, index string) error
	added     [][]rule.Rule
	deletedID [][]string
}

func (m *mockRuleStore) ActiveIDs(ctx context.Context, index string) ([]string, error) {
	if m.activeFn != nil {
		return m.activeFn(ctx, index)
	}
	return nil, nil
}

func (m *mockRuleStore) BulkAdd(ctx context.Context, index string, rules []rule.Rule) (batch.Results, error) {
	m.added = append(m.added, rules)
	if m.addFn != nil {
		return m.addFn(ctx, index, rules)
	}
	results := make(batch.Results, len(rules))
	for i, r := range rules {
		results[i] = batch.NewOK(r.ID(), batch.ActionIndex)
	}
	return results, nil
}

func (m *mockRuleStore) BulkDelete(ctx context.Context, index string, ids []string) (batch.Results, error) {
	m.deletedID = append(m.deletedID, ids)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, index, ids)
	}
	results := make(batch.Results, len(ids))
	for i, id := range ids {
		results[i] = batch.NewOK(id, batch.ActionDelete)
	}
	return results, nil
}

func (m *mockRuleStore) EnsureIndexes(ctx context.Context, index string) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, index)
	}
	return nil
}

// mockPercolator implements Percolator.
type mockPercolator struct {
	fn func(ctx context.Context, index string, fields map[string]string, rules []rule.Rule) ([]string, error)
}

func (m *mockPercolator) Percolate(
	ctx context.Context, index string, fields map[string]string, rules []rule.Rule,
) ([]string, error) {
	if m.fn != nil {
		return m.fn(ctx, index, fields, rules)
	}
	return nil, nil
}
