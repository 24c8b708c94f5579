package types

import (
	"encoding/json"
	"time"

	"github.com/kotadb/kotadb/pkg/kerrors"
)

// TagSet is an insertion-ordered set of Tags: membership is semantically a
// set (no duplicates), but Slice() preserves first-insertion order for
// stable display.
type TagSet struct {
	order []Tag
	seen  map[string]struct{}
}

// NewTagSet builds a TagSet from raw strings, validating and deduplicating
// each one.
func NewTagSet(raw ...string) (TagSet, error) {
	ts := TagSet{seen: make(map[string]struct{}, len(raw))}
	for _, r := range raw {
		tag, err := NewTag(r)
		if err != nil {
			return TagSet{}, err
		}
		ts.add(tag)
	}
	return ts, nil
}

func (ts *TagSet) add(tag Tag) {
	if ts.seen == nil {
		ts.seen = make(map[string]struct{})
	}
	if _, ok := ts.seen[tag.s]; ok {
		return
	}
	ts.seen[tag.s] = struct{}{}
	ts.order = append(ts.order, tag)
}

// Contains reports whether tag is a member of the set.
func (ts TagSet) Contains(tag string) bool {
	_, ok := ts.seen[tag]
	return ok
}

// ContainsAll reports whether every tag in required is present.
func (ts TagSet) ContainsAll(required []string) bool {
	for _, r := range required {
		if !ts.Contains(r) {
			return false
		}
	}
	return true
}

// Slice returns the tags in insertion order.
func (ts TagSet) Slice() []Tag {
	out := make([]Tag, len(ts.order))
	copy(out, ts.order)
	return out
}

// Strings returns the tags as plain strings, in insertion order.
func (ts TagSet) Strings() []string {
	out := make([]string, len(ts.order))
	for i, t := range ts.order {
		out[i] = t.s
	}
	return out
}

func (ts TagSet) Len() int { return len(ts.order) }

// MarshalJSON encodes the set as its insertion-ordered string slice, the
// on-disk shape used by the document store's WAL payload and checkpoint.
func (ts TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Strings())
}

func (ts *TagSet) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	built, err := NewTagSet(raw...)
	if err != nil {
		return err
	}
	*ts = built
	return nil
}

// Document is the unit persisted by the document store. Path, Title and
// Tags are validated value types; Validate checks the remaining
// invariants (non-zero id and path, updated_at >= created_at). The store
// fills in zero timestamps on Insert and keeps created_at on Update.
type Document struct {
	ID        ID
	Path      Path
	Title     Title
	Content   []byte
	Tags      TagSet
	CreatedAt time.Time
	UpdatedAt time.Time
	Embedding []float32 // optional; nil when unset
}

// Size returns len(Content), the document's size invariant.
func (d *Document) Size() int { return len(d.Content) }

// Validate checks the cross-field invariants that construction alone
// cannot (timestamp ordering), used by the store before accepting an
// insert or update.
func (d *Document) Validate() error {
	if d.ID.IsZero() {
		return kerrors.New(kerrors.Validation, "document id must not be zero").WithField("id")
	}
	if d.Path.IsZero() {
		return kerrors.New(kerrors.Validation, "document path must not be empty").WithField("path")
	}
	if d.UpdatedAt.Before(d.CreatedAt) {
		return kerrors.New(kerrors.Validation, "updated_at must not precede created_at").WithField("updated_at")
	}
	return nil
}

// Clone returns a deep copy, used to hand out immutable views from Get.
func (d *Document) Clone() *Document {
	clone := *d
	clone.Content = append([]byte(nil), d.Content...)
	if d.Embedding != nil {
		clone.Embedding = append([]float32(nil), d.Embedding...)
	}
	return &clone
}
