package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/batch"
)

func fastExecutor(writer DocumentWriter, attempts int) *Executor {
	return NewExecutor(writer, ExecutorConfig{
		MaxAttempts: attempts,
		BackoffBase: time.Millisecond,
	}, nil)
}

func makeBatch(t *testing.T, n int) []batch.Operation {
	t.Helper()
	ops := make([]batch.Operation, n)
	for i := range ops {
		ops[i] = makeOp(t, "", []byte(`{"verb":"post"}`))
	}
	return ops
}

func TestExecute_Success(t *testing.T) {
	writer := &mockWriter{}
	e := fastExecutor(writer, 3)

	ops := makeBatch(t, 5)
	results, err := e.Execute(context.Background(), ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(ops) {
		t.Fatalf("expected %d results, got %d", len(ops), len(results))
	}
	if len(writer.calls()) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(writer.calls()))
	}
	if e.Written() != 5 || e.Failed() != 0 {
		t.Errorf("counters: written=%d failed=%d", e.Written(), e.Failed())
	}
}

func TestExecute_RetriesTransportFailure(t *testing.T) {
	calls := 0
	writer := &mockWriter{
		fn: func(_ context.Context, ops []batch.Operation) (batch.Results, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection refused")
			}
			results := make(batch.Results, len(ops))
			for i, op := range ops {
				results[i] = batch.NewOK(op.ID(), op.Action())
			}
			return results, nil
		},
	}
	e := fastExecutor(writer, 3)

	results, err := e.Execute(context.Background(), makeBatch(t, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestExecute_RetryExhausted(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	writer := &mockWriter{
		fn: func(context.Context, []batch.Operation) (batch.Results, error) {
			calls++
			return nil, boom
		},
	}
	e := fastExecutor(writer, 3)

	results, err := e.Execute(context.Background(), makeBatch(t, 4))
	if results != nil {
		t.Error("no results expected on exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}

	var exhausted *domain.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Errorf("exhaustion must wrap the last transport error, got %v", err)
	}
	if e.Written() != 0 {
		t.Errorf("nothing was durably written, written=%d", e.Written())
	}
}

func TestExecute_PartialFailureDoesNotRetry(t *testing.T) {
	calls := 0
	writer := &mockWriter{
		fn: func(_ context.Context, ops []batch.Operation) (batch.Results, error) {
			calls++
			results := make(batch.Results, len(ops))
			for i, op := range ops {
				if i == 1 {
					results[i] = batch.NewError(op.ID(), op.Action(), errors.New("rejected"))
					continue
				}
				results[i] = batch.NewOK(op.ID(), op.Action())
			}
			return results, nil
		},
	}
	e := fastExecutor(writer, 3)

	ops := makeBatch(t, 3)
	results, err := e.Execute(context.Background(), ops)
	if err != nil {
		t.Fatalf("per-item failures must not fail the batch: %v", err)
	}
	if calls != 1 {
		t.Errorf("per-item failures must not trigger a retry, got %d calls", calls)
	}
	if len(results) != len(ops) {
		t.Fatalf("results must stay parallel to the batch: %d vs %d", len(results), len(ops))
	}
	if results.FailureCount() != 1 {
		t.Errorf("FailureCount() = %d", results.FailureCount())
	}
	if e.Written() != 2 || e.Failed() != 1 {
		t.Errorf("counters: written=%d failed=%d", e.Written(), e.Failed())
	}
}

func TestExecute_CountersAccumulate(t *testing.T) {
	writer := &mockWriter{}
	e := fastExecutor(writer, 1)

	for i := 0; i < 3; i++ {
		if _, err := e.Execute(context.Background(), makeBatch(t, 2)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if e.Written() != 6 {
		t.Errorf("Written() = %d, want 6", e.Written())
	}
}

func TestExecute_EmptyBatch(t *testing.T) {
	writer := &mockWriter{}
	e := fastExecutor(writer, 3)

	results, err := e.Execute(context.Background(), nil)
	if err != nil || results != nil {
		t.Fatalf("empty batch: got %v, %v", results, err)
	}
	if len(writer.calls()) != 0 {
		t.Error("no submission expected for an empty batch")
	}
}

func TestExecute_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &mockWriter{
		fn: func(context.Context, []batch.Operation) (batch.Results, error) {
			cancel()
			return nil, errors.New("connection refused")
		},
	}
	e := NewExecutor(writer, ExecutorConfig{MaxAttempts: 10, BackoffBase: time.Minute}, nil)

	_, err := e.Execute(ctx, makeBatch(t, 1))
	if err == nil {
		t.Fatal("expected error")
	}
	if n := len(writer.calls()); n != 1 {
		t.Errorf("cancellation must stop the retry loop, got %d attempts", n)
	}
}
