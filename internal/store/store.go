package store

import (
	"context"
)

// Document is a stored record: an id plus its field map. Field maps contain
// only map[string]any, []any and scalar values (string, bool, numbers,
// time.Time).
type Document struct {
	ID     string
	Fields map[string]any
}

// ChangeKind classifies a change delivered by a subscription.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one document entering, changing in, or leaving a query result.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Batch is one delivery from a subscription: the full result set after the
// batch was applied and the changes that produced it. A batch with Err set is
// terminal; the subscription channel is closed after it.
type Batch struct {
	Docs    []Document
	Changes []Change
	Err     error
}

// Subscription is a live query.
type Subscription interface {
	// Batches yields result batches. The first batch lists every matching
	// document as Added. The channel is closed when the subscription ends.
	Batches() <-chan Batch

	// Close ends the subscription. It is safe to call more than once.
	Close()
}

// WriteKind selects the operation performed by a Write in a batch.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteUpdate
	WriteDelete
)

// Write is one operation in a batched write.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Fields     map[string]any
	Merge      bool
}

// DocumentStore is the remote document database.
//
// Field names in Update and SetFieldIfAbsent may be dotted paths
// ("friendKeys.bob") addressing nested maps.
type DocumentStore interface {
	// Get returns the document or errors.ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set writes fields. Without merge the document is replaced; with merge
	// the top-level fields are overlaid on the existing document.
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error

	// Update sets the given (possibly dotted) fields on an existing document,
	// returning errors.ErrNotFound if it does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// SetFieldIfAbsent atomically sets path to value unless it already holds
	// a value, creating the document if needed. It returns the value stored at
	// path after the call and whether this call wrote it.
	SetFieldIfAbsent(ctx context.Context, collection, id, path string, value any) (stored any, created bool, err error)

	// Query returns the documents matching q.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Subscribe opens a live query. The subscription ends when ctx is done or
	// Close is called.
	Subscribe(ctx context.Context, q Query) (Subscription, error)

	// Batch applies writes. Adapters apply them atomically where the backend
	// supports it.
	Batch(ctx context.Context, writes []Write) error

	Close(ctx context.Context) error
}
