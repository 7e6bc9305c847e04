// Package rule persists match-rules under a reserved namespace per target
// index and evaluates documents against them (percolation): the flattened
// document is written to a scratch hash, every rule's query is executed as a
// count scoped to that scratch id in one pipelined round-trip, and the
// scratch hash is removed.
package rule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/db"
	"github.com/streamtag/streamtag/internal/domain/activity"
	"github.com/streamtag/streamtag/internal/domain/batch"
	domrule "github.com/streamtag/streamtag/internal/domain/rule"
)

// Hash fields of a stored rule document.
const (
	fieldRuleID = "rule_id"
	fieldQuery  = "query"
)

// scratchField tags a percolation scratch hash with its evaluation id.
const scratchField = "__scratch"

// defaultPageSize bounds one page of rule enumeration.
const defaultPageSize = 1000

// store is the consumer interface for rule persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	BulkWrite(ctx context.Context, cmds []db.BulkCommand) ([]db.BulkOutcome, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCountMulti(ctx context.Context, index string, queries []string) ([]int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements pipeline.RuleStore and pipeline.Percolator.
type Repo struct {
	store    store
	prefix   string
	pageSize int
	logger   *zap.Logger
}

// New creates a rule repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix, pageSize: defaultPageSize, logger: zap.NewNop()}
}

// WithPageSize configures the enumeration page size.
func (r *Repo) WithPageSize(n int) *Repo {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// WithLogger attaches a logger for per-rule evaluation warnings.
func (r *Repo) WithLogger(l *zap.Logger) *Repo {
	if l != nil {
		r.logger = l
	}
	return r
}

// ActiveIDs enumerates the ids of all rules currently stored for the index,
// paginating through the rule namespace.
func (r *Repo) ActiveIDs(ctx context.Context, index string) ([]string, error) {
	var ids []string
	offset := 0
	for {
		page, err := r.store.SearchList(ctx, r.ruleIndexName(index), "*", offset, r.pageSize, []string{fieldRuleID})
		if err != nil {
			return nil, fmt.Errorf("list rules for %s: %w", index, err)
		}
		for _, entry := range page.Entries {
			id := entry.Fields[fieldRuleID]
			if id == "" {
				id = strings.TrimPrefix(entry.Key, r.rulePrefix(index))
			}
			ids = append(ids, id)
		}
		offset += len(page.Entries)
		if len(page.Entries) == 0 || offset >= page.Total {
			return ids, nil
		}
	}
}

// BulkAdd stores all rules in one pipelined submission, one outcome per rule.
func (r *Repo) BulkAdd(ctx context.Context, index string, rules []domrule.Rule) (batch.Results, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	cmds := make([]db.BulkCommand, len(rules))
	for i, rl := range rules {
		cmds[i] = db.BulkCommand{
			Op:  db.OpHSet,
			Key: r.ruleKey(index, rl.ID()),
			Fields: map[string]string{
				fieldRuleID: rl.ID(),
				fieldQuery:  rl.Source(),
			},
		}
	}

	outcomes, err := r.store.BulkWrite(ctx, cmds)
	if err != nil {
		return nil, fmt.Errorf("bulk add rules: %w", err)
	}

	results := make(batch.Results, len(rules))
	for i, rl := range rules {
		if outcomes[i].Err != nil {
			results[i] = batch.NewError(rl.ID(), batch.ActionIndex, outcomes[i].Err)
			continue
		}
		results[i] = batch.NewOK(rl.ID(), batch.ActionIndex)
	}
	return results, nil
}

// BulkDelete removes the given rule ids in one pipelined submission.
// Deleting an id that is already gone still succeeds.
func (r *Repo) BulkDelete(ctx context.Context, index string, ids []string) (batch.Results, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]db.BulkCommand, len(ids))
	for i, id := range ids {
		cmds[i] = db.BulkCommand{Op: db.OpDel, Key: r.ruleKey(index, id)}
	}

	outcomes, err := r.store.BulkWrite(ctx, cmds)
	if err != nil {
		return nil, fmt.Errorf("bulk delete rules: %w", err)
	}

	results := make(batch.Results, len(ids))
	for i, id := range ids {
		if outcomes[i].Err != nil {
			results[i] = batch.NewError(id, batch.ActionDelete, outcomes[i].Err)
			continue
		}
		results[i] = batch.NewOK(id, batch.ActionDelete)
	}
	return results, nil
}

// Percolate evaluates one flattened document against the rules and returns
// the ids of the rules it satisfies. The scratch hash is removed before
// returning, even when the evaluation fails.
func (r *Repo) Percolate(
	ctx context.Context, index string, fields map[string]string, rules []domrule.Rule,
) ([]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	scratchID := strings.ReplaceAll(uuid.NewString(), "-", "")
	key := r.percKey(index, scratchID)

	scratch := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		scratch[k] = v
	}
	scratch[scratchField] = scratchID

	if err := r.store.HSet(ctx, key, scratch); err != nil {
		return nil, fmt.Errorf("write scratch document: %w", err)
	}
	defer func() {
		// Scratch cleanup must survive caller cancellation.
		_ = r.store.Del(context.WithoutCancel(ctx), key)
	}()

	queries := make([]string, len(rules))
	for i, rl := range rules {
		queries[i] = fmt.Sprintf("(%s) @%s:{%s}", rl.Source(), scratchField, scratchID)
	}

	counts, err := r.store.SearchCountMulti(ctx, r.percIndexName(index), queries)
	if err != nil {
		return nil, fmt.Errorf("percolate: %w", err)
	}

	var matched []string
	for i, n := range counts {
		switch {
		case n < 0:
			// The store rejected this rule's query; an unmatchable rule
			// must not pass as a quiet non-match.
			r.logger.Warn("rule query rejected by store",
				zap.String("rule_id", rules[i].ID()),
				zap.String("index", index),
				zap.String("query", rules[i].Source()),
			)
		case n > 0:
			matched = append(matched, rules[i].ID())
		}
	}
	return matched, nil
}

// EnsureIndexes idempotently creates the FT indexes backing rule enumeration
// and percolation for the given target index.
func (r *Repo) EnsureIndexes(ctx context.Context, index string) error {
	ruleIdx := &db.IndexDefinition{
		Name:     r.ruleIndexName(index),
		Prefixes: []string{r.rulePrefix(index)},
		Fields: []db.IndexField{
			{Name: fieldRuleID, Type: db.IndexFieldTag},
		},
	}
	if err := r.store.CreateIndex(ctx, ruleIdx); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create rule index: %w", err)
	}

	percIdx := &db.IndexDefinition{
		Name:     r.percIndexName(index),
		Prefixes: []string{r.percPrefix(index)},
		Fields: []db.IndexField{
			{Name: activity.CatchAllField, Type: db.IndexFieldText},
			{Name: activity.VerbField, Type: db.IndexFieldText},
			{Name: scratchField, Type: db.IndexFieldTag},
		},
	}
	if err := r.store.CreateIndex(ctx, percIdx); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create percolation index: %w", err)
	}

	return nil
}

// DropIndexes removes both FT indexes; missing indexes are not an error.
func (r *Repo) DropIndexes(ctx context.Context, index string) error {
	for _, name := range []string{r.ruleIndexName(index), r.percIndexName(index)} {
		if err := r.store.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return nil
}

// IndexExists probes the rule index for the given target index.
func (r *Repo) IndexExists(ctx context.Context, index string) (bool, error) {
	return r.store.IndexExists(ctx, r.ruleIndexName(index))
}

func (r *Repo) rulePrefix(index string) string {
	return fmt.Sprintf("%srules:%s:", r.prefix, index)
}

func (r *Repo) ruleKey(index, id string) string {
	return r.rulePrefix(index) + id
}

func (r *Repo) ruleIndexName(index string) string {
	return r.rulePrefix(index) + "idx"
}

func (r *Repo) percPrefix(index string) string {
	return fmt.Sprintf("%sperc:%s:", r.prefix, index)
}

func (r *Repo) percKey(index, id string) string {
	return r.percPrefix(index) + id
}

func (r *Repo) percIndexName(index string) string {
	return r.percPrefix(index) + "idx"
}
