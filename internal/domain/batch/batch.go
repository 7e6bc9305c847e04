// Package batch models the write operations accumulated by the pipeline's
// buffer and the per-item outcomes of executing them as one bulk submission.
package batch

import (
	"fmt"

	"github.com/google/uuid"
)

// Action is the kind of a write operation.
type Action string

// Write operation actions.
const (
	ActionIndex  Action = "index"
	ActionDelete Action = "delete"
)

// Operation is one buffered write (immutable value object). It carries its
// full target identity so a retried submission is idempotent.
type Operation struct {
	action  Action
	index   string
	docType string
	id      string
	body    []byte
}

// NewIndex creates an index operation. When id is empty one is assigned, so
// the operation stays addressable across retries.
func NewIndex(index, docType, id string, body []byte) (Operation, error) {
	if index == "" {
		return Operation{}, fmt.Errorf("target index is required")
	}
	if len(body) == 0 {
		return Operation{}, fmt.Errorf("document body is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return Operation{action: ActionIndex, index: index, docType: docType, id: id, body: body}, nil
}

// NewDelete creates a delete operation.
func NewDelete(index, docType, id string) (Operation, error) {
	if index == "" {
		return Operation{}, fmt.Errorf("target index is required")
	}
	if id == "" {
		return Operation{}, fmt.Errorf("document id is required")
	}
	return Operation{action: ActionDelete, index: index, docType: docType, id: id}, nil
}

// Action returns the operation kind.
func (o Operation) Action() Action { return o.action }

// Index returns the target index name.
func (o Operation) Index() string { return o.index }

// Type returns the target type/category name; may be empty.
func (o Operation) Type() string { return o.docType }

// ID returns the document identifier.
func (o Operation) ID() string { return o.id }

// Body returns the document payload; nil for deletes.
func (o Operation) Body() []byte { return o.body }

// SizeBytes approximates the operation's wire size for byte-threshold
// flushing.
func (o Operation) SizeBytes() int {
	return len(o.body) + len(o.index) + len(o.docType) + len(o.id)
}
