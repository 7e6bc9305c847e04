package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/batch"
	"github.com/streamtag/streamtag/internal/domain/rule"
)

func makeSet(t *testing.T, ids ...string) rule.Set {
	t.Helper()
	rules := make([]rule.Rule, len(ids))
	for i, id := range ids {
		r, err := rule.New(id, "query-"+id)
		if err != nil {
			t.Fatalf("rule.New: %v", err)
		}
		rules[i] = r
	}
	s, err := rule.NewSet(rules...)
	if err != nil {
		t.Fatalf("rule.NewSet: %v", err)
	}
	return s
}

func ruleIDs(rules []rule.Rule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID()
	}
	return ids
}

func TestReconcile_EmptyDesiredSet(t *testing.T) {
	store := &mockRuleStore{
		activeFn: func(context.Context, string) ([]string, error) {
			t.Fatal("no store call expected for an empty desired set")
			return nil, nil
		},
	}
	reg := NewRegistry(store, nil)

	_, err := reg.Reconcile(context.Background(), rule.Set{}, "activity")
	if !errors.Is(err, domain.ErrEmptyRuleSet) {
		t.Fatalf("expected ErrEmptyRuleSet, got %v", err)
	}
}

func TestReconcile_FirstRun(t *testing.T) {
	store := &mockRuleStore{}
	reg := NewRegistry(store, nil)

	res, err := reg.Reconcile(context.Background(), makeSet(t, "a", "b"), "activity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Deleted) != 0 {
		t.Errorf("Deleted = %v", res.Deleted)
	}
	if len(res.Added) != 2 {
		t.Errorf("Added = %v", res.Added)
	}
	if len(store.deletedID) != 0 {
		t.Error("nothing to delete on first run")
	}
}

func TestReconcile_DeletesStaleAndReaddsAll(t *testing.T) {
	store := &mockRuleStore{
		activeFn: func(context.Context, string) ([]string, error) {
			return []string{"a", "stale"}, nil
		},
	}
	reg := NewRegistry(store, nil)

	res, err := reg.Reconcile(context.Background(), makeSet(t, "a", "b"), "activity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Deleted) != 1 || res.Deleted[0] != "stale" {
		t.Errorf("Deleted = %v", res.Deleted)
	}
	// A delete happened, so the whole desired set is re-added to converge.
	if len(res.Added) != 2 {
		t.Errorf("Added = %v", res.Added)
	}
	if len(store.added) != 1 {
		t.Fatalf("expected 1 add call, got %d", len(store.added))
	}
	got := ruleIDs(store.added[0])
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("re-added = %v", got)
	}
}

func TestReconcile_AddsOnlyMissingWithoutDeletes(t *testing.T) {
	store := &mockRuleStore{
		activeFn: func(context.Context, string) ([]string, error) {
			return []string{"a"}, nil
		},
	}
	reg := NewRegistry(store, nil)

	res, err := reg.Reconcile(context.Background(), makeSet(t, "a", "b"), "activity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Deleted) != 0 {
		t.Errorf("Deleted = %v", res.Deleted)
	}
	if len(res.Added) != 1 || res.Added[0] != "b" {
		t.Errorf("Added = %v", res.Added)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	stored := map[string]struct{}{}
	store := &mockRuleStore{}
	store.activeFn = func(context.Context, string) ([]string, error) {
		ids := make([]string, 0, len(stored))
		for id := range stored {
			ids = append(ids, id)
		}
		return ids, nil
	}
	store.addFn = func(_ context.Context, _ string, rules []rule.Rule) (batch.Results, error) {
		results := make(batch.Results, len(rules))
		for i, r := range rules {
			stored[r.ID()] = struct{}{}
			results[i] = batch.NewOK(r.ID(), batch.ActionIndex)
		}
		return results, nil
	}
	store.deleteFn = func(_ context.Context, _ string, ids []string) (batch.Results, error) {
		results := make(batch.Results, len(ids))
		for i, id := range ids {
			delete(stored, id)
			results[i] = batch.NewOK(id, batch.ActionDelete)
		}
		return results, nil
	}

	reg := NewRegistry(store, nil)
	desired := makeSet(t, "a", "b", "c")

	first, err := reg.Reconcile(context.Background(), desired, "activity")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(first.Added) != 3 {
		t.Fatalf("first pass Added = %v", first.Added)
	}

	second, err := reg.Reconcile(context.Background(), desired, "activity")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(second.Added) != 0 || len(second.Deleted) != 0 {
		t.Errorf("second pass must change nothing: %+v", second)
	}
}

func TestReconcile_PartialAddFailure(t *testing.T) {
	rejected := errors.New("OOM")
	store := &mockRuleStore{
		addFn: func(_ context.Context, _ string, rules []rule.Rule) (batch.Results, error) {
			results := make(batch.Results, len(rules))
			for i, r := range rules {
				if r.ID() == "b" {
					results[i] = batch.NewError(r.ID(), batch.ActionIndex, rejected)
					continue
				}
				results[i] = batch.NewOK(r.ID(), batch.ActionIndex)
			}
			return results, nil
		},
	}
	reg := NewRegistry(store, nil)

	res, err := reg.Reconcile(context.Background(), makeSet(t, "a", "b"), "activity")
	if err != nil {
		t.Fatalf("partial failure must not abort the pass: %v", err)
	}
	if len(res.Added) != 1 || res.Added[0] != "a" {
		t.Errorf("Added = %v", res.Added)
	}
	if len(res.Failures) != 1 || res.Failures[0].ID() != "b" {
		t.Errorf("Failures = %+v", res.Failures)
	}
}

func TestReconcile_FetchError(t *testing.T) {
	boom := errors.New("down")
	store := &mockRuleStore{
		activeFn: func(context.Context, string) ([]string, error) {
			return nil, boom
		},
	}
	reg := NewRegistry(store, nil)

	if _, err := reg.Reconcile(context.Background(), makeSet(t, "a"), "activity"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}
