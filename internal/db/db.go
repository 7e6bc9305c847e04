// Package db defines the store-facade consumed by the repositories: a
// search-capable document store exposing pipelined bulk writes with
// per-command outcomes, paginated listing, multi-query counting, and FT
// index lifecycle.
package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	BulkWriter
	Searcher
	IndexManager
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides single-key hash operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// BulkCommand is one write within a bulk submission.
type BulkCommand struct {
	Op     string // OpJSONSet, OpHSet or OpDel
	Key    string
	Data   []byte            // JSON.SET payload
	Fields map[string]string // HSET fields
}

// BulkOutcome is the store's verdict on one bulk command. Err is a
// store-reported command error; transport failures fail the whole call
// instead.
type BulkOutcome struct {
	Key string
	Err error
}

// BulkWriter submits many writes as one pipelined round-trip. The returned
// slice is parallel to cmds. A non-nil error means the submission itself
// failed (connection, timeout) and no outcome can be trusted.
type BulkWriter interface {
	BulkWrite(ctx context.Context, cmds []BulkCommand) ([]BulkOutcome, error)
}

// Searcher provides search operations over FT indexes. SearchCountMulti
// reports a count of -1 for a query the store rejected; the sibling queries
// still succeed.
type Searcher interface {
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*SearchResult, error)
	SearchCountMulti(ctx context.Context, index string, queries []string) ([]int, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// IndexFieldType is the schema type of an indexed field.
type IndexFieldType string

// Index field types.
const (
	IndexFieldText IndexFieldType = "TEXT"
	IndexFieldTag  IndexFieldType = "TAG"
)

// IndexField is one schema field of an FT index.
type IndexField struct {
	Name string
	Type IndexFieldType
}

// IndexDefinition describes an FT index over hash keys with given prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Fields map[string]string
}
