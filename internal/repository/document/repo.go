// Package document maps buffered write operations onto store keys and bulk
// commands.
package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamtag/streamtag/internal/db"
	"github.com/streamtag/streamtag/internal/domain/batch"
)

// store is the consumer interface for document writes (ISP).
type store interface {
	BulkWrite(ctx context.Context, cmds []db.BulkCommand) ([]db.BulkOutcome, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements pipeline.DocumentWriter.
type Repo struct {
	store  store
	prefix string
}

// New creates a document repository. keyPrefix namespaces every key this
// repository touches.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// BulkWrite submits the operations as one pipelined call and reports one
// outcome per operation, in order. A transport-level failure returns a nil
// result and the error; per-item store rejections land in the Results.
func (r *Repo) BulkWrite(ctx context.Context, ops []batch.Operation) (batch.Results, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	cmds := make([]db.BulkCommand, len(ops))
	for i, op := range ops {
		key := r.docKey(op.Index(), op.Type(), op.ID())
		switch op.Action() {
		case batch.ActionIndex:
			cmds[i] = db.BulkCommand{Op: db.OpJSONSet, Key: key, Data: op.Body()}
		case batch.ActionDelete:
			cmds[i] = db.BulkCommand{Op: db.OpDel, Key: key}
		default:
			return nil, fmt.Errorf("unsupported action %q for id %s", op.Action(), op.ID())
		}
	}

	outcomes, err := r.store.BulkWrite(ctx, cmds)
	if err != nil {
		return nil, fmt.Errorf("bulk write: %w", err)
	}

	results := make(batch.Results, len(ops))
	for i, op := range ops {
		if outcomes[i].Err != nil {
			results[i] = batch.NewError(op.ID(), op.Action(), outcomes[i].Err)
			continue
		}
		results[i] = batch.NewOK(op.ID(), op.Action())
	}
	return results, nil
}

// Exists probes whether a document is present in the store.
func (r *Repo) Exists(ctx context.Context, index, docType, id string) (bool, error) {
	ok, err := r.store.Exists(ctx, r.docKey(index, docType, id))
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", id, err)
	}
	return ok, nil
}

func (r *Repo) docKey(index, docType, id string) string {
	segments := make([]string, 0, 3)
	for _, s := range []string{index, docType, id} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return r.prefix + strings.Join(segments, ":")
}
