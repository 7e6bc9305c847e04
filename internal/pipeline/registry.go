package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/batch"
	"github.com/streamtag/streamtag/internal/domain/rule"
	"github.com/streamtag/streamtag/internal/metrics"
)

// ReconcileResult reports what a reconcile pass changed. Partial bulk
// failures land in Failures without aborting the other phase.
type ReconcileResult struct {
	Deleted  []string
	Added    []string
	Failures batch.Results
}

// Registry reconciles the desired rule set against the rules currently
// stored for an index: stale rules are bulk-deleted, missing rules
// bulk-added. Two consecutive calls with the same desired set and no
// external mutation make zero changes on the second call.
type Registry struct {
	rules  RuleStore
	logger *zap.Logger
}

// NewRegistry creates a rule registry.
func NewRegistry(rules RuleStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{rules: rules, logger: logger}
}

// Reconcile converges the stored rules for index onto desired. An empty
// desired set is a configuration error and fails before any store call.
// When any stale rule was deleted, every desired rule is re-added so the
// pass converges even under concurrent modification; otherwise only the
// missing rules are added.
func (r *Registry) Reconcile(ctx context.Context, desired rule.Set, index string) (ReconcileResult, error) {
	if len(desired) == 0 {
		return ReconcileResult{}, fmt.Errorf("reconcile %s: %w", index, domain.ErrEmptyRuleSet)
	}

	active, err := r.rules.ActiveIDs(ctx, index)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("fetch active rules: %w", err)
	}
	if len(active) == 0 {
		// Usually first run or an accidental wipe of the rule namespace.
		r.logger.Warn("no active rules found", zap.String("index", index))
	}

	activeSet := make(map[string]struct{}, len(active))
	var toDelete []string
	for _, id := range active {
		activeSet[id] = struct{}{}
		if _, want := desired[id]; !want {
			toDelete = append(toDelete, id)
		}
	}

	var result ReconcileResult
	if len(toDelete) > 0 {
		res, err := r.rules.BulkDelete(ctx, index, toDelete)
		if err != nil {
			return result, fmt.Errorf("delete stale rules: %w", err)
		}
		for _, item := range res {
			if item.Failed() {
				r.logger.Warn("stale rule not deleted", zap.String("rule_id", item.ID()), zap.Error(item.Err()))
				result.Failures = append(result.Failures, item)
				continue
			}
			result.Deleted = append(result.Deleted, item.ID())
		}
	}

	var toAdd []rule.Rule
	if len(toDelete) > 0 {
		toAdd = desired.Rules()
	} else {
		for _, rl := range desired.Rules() {
			if _, have := activeSet[rl.ID()]; !have {
				toAdd = append(toAdd, rl)
			}
		}
	}

	if len(toAdd) > 0 {
		res, err := r.rules.BulkAdd(ctx, index, toAdd)
		if err != nil {
			return result, fmt.Errorf("add rules: %w", err)
		}
		for _, item := range res {
			if item.Failed() {
				r.logger.Warn("rule not stored", zap.String("rule_id", item.ID()), zap.Error(item.Err()))
				result.Failures = append(result.Failures, item)
				continue
			}
			result.Added = append(result.Added, item.ID())
		}
	}

	metrics.AddReconcileOps("delete", len(result.Deleted))
	metrics.AddReconcileOps("add", len(result.Added))

	r.logger.Info("rules reconciled",
		zap.String("index", index),
		zap.Int("active", len(active)),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("added", len(result.Added)),
		zap.Int("failed", len(result.Failures)),
	)

	return result, nil
}
