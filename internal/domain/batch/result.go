package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of one operation within a bulk submission.
type Result struct {
	id     string
	action Action
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string, action Action) Result {
	return Result{id: id, action: action, status: StatusOK}
}

// NewError creates a failed batch result.
func NewError(id string, action Action, err error) Result {
	return Result{id: id, action: action, status: StatusError, err: err}
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Action returns the item's operation kind.
func (r Result) Action() Action { return r.action }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Failed reports whether the item was rejected by the store.
func (r Result) Failed() bool { return r.status == StatusError }

// Results is the parallel outcome sequence of one bulk submission; its
// length always equals the submitted batch's length.
type Results []Result

// FailureCount returns the number of failed items.
func (rs Results) FailureCount() int {
	n := 0
	for _, r := range rs {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Failures returns only the failed items.
func (rs Results) Failures() Results {
	var out Results
	for _, r := range rs {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
