// Package wrap implements the cross-cutting wrappers: orthogonal
// decorators — tracing, validation, retry, cache, metering — composed
// around the base Storage and Index capability contracts. Composition is
// a fixed stack, not a class hierarchy: each wrapper satisfies the same
// interface it wraps, so any prefix of the stack is itself a valid
// Storage or Index.
package wrap

import (
	"github.com/kotadb/kotadb/pkg/types"
)

// Storage is the base capability contract every document store wrapper
// preserves: {insert, get, update, delete, flush}.
type Storage interface {
	Insert(doc *types.Document) error
	Get(id types.ID) (*types.Document, bool)
	Update(doc *types.Document) error
	Delete(id types.ID) (bool, error)
	Flush() error
}

// Index is the base capability contract an index wrapper preserves:
// {search, flush}. Insert/delete are intentionally excluded here because
// the primary and trigram indices take different key shapes (path vs.
// content); only search and flush are uniform enough to decorate
// generically.
type Index interface {
	Search(q types.Query) ([]types.ID, error)
	Flush() error
}
