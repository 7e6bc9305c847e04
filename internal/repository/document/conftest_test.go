package document

import (
	"context"

	"github.com/streamtag/streamtag/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	bulkWriteFn func(ctx context.Context, cmds []db.BulkCommand) ([]db.BulkOutcome, error)
	existsFn    func(ctx context.Context, key string) (bool, error)
}

func (m *mockStore) BulkWrite(ctx context.Context, cmds []db.BulkCommand) ([]db.BulkOutcome, error) {
	if m.bulkWriteFn != nil {
		return m.bulkWriteFn(ctx, cmds)
	}
	outcomes := make([]db.BulkOutcome, len(cmds))
	for i, c := range cmds {
		outcomes[i] = db.BulkOutcome{Key: c.Key}
	}
	return outcomes, nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}
