package wrap

import (
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// ValidatedStorage checks preconditions before delegating: duplicate id
// on insert, id existence and monotonic timestamps on update. It sits
// between Tracing and Retry in the fixed composition order so that
// validation failures never reach the retry layer.
type ValidatedStorage struct {
	next Storage
}

func Validated(next Storage) *ValidatedStorage {
	return &ValidatedStorage{next: next}
}

func (v *ValidatedStorage) Insert(doc *types.Document) error {
	if doc == nil {
		return kerrors.New(kerrors.Validation, "document must not be nil")
	}
	if _, exists := v.next.Get(doc.ID); exists {
		return kerrors.Newf(kerrors.AlreadyExists, "document %s already exists", doc.ID)
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	return v.next.Insert(doc)
}

func (v *ValidatedStorage) Get(id types.ID) (*types.Document, bool) {
	return v.next.Get(id)
}

func (v *ValidatedStorage) Update(doc *types.Document) error {
	if doc == nil {
		return kerrors.New(kerrors.Validation, "document must not be nil")
	}
	existing, exists := v.next.Get(doc.ID)
	if !exists {
		return kerrors.Newf(kerrors.NotFound, "document %s not found", doc.ID)
	}
	if doc.UpdatedAt.Before(existing.UpdatedAt) {
		return kerrors.New(kerrors.Validation, "updated_at must not regress").WithField("updated_at")
	}
	return v.next.Update(doc)
}

func (v *ValidatedStorage) Delete(id types.ID) (bool, error) {
	return v.next.Delete(id)
}

func (v *ValidatedStorage) Flush() error {
	return v.next.Flush()
}
