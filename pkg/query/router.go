// Package query implements the query router: given a Query, choose
// the index that answers it and unify the result into an ordered id list.
// It holds no state of its own; it is a pure dispatch over the primary
// and trigram index capability interfaces.
package query

import (
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/metrics"
	"github.com/kotadb/kotadb/pkg/types"
)

// Route names the index a query was dispatched to, used for the
// kotadb_query_route_total metric and test assertions.
type Route string

const (
	RouteEverything Route = "everything"
	RouteWildcard   Route = "wildcard"
	RouteTrigram    Route = "trigram"
)

// PrimaryIndex is the subset of primary.Index the router dispatches to.
type PrimaryIndex interface {
	Search(q types.Query) ([]types.ID, error)
}

// TrigramIndex is the subset of trigram.Index the router dispatches to.
type TrigramIndex interface {
	SearchIDs(q types.Query) ([]types.ID, error)
}

// TagProvider resolves the tag set carried by a document id, used for the
// post-index tag-filter intersection (rule 4). The document store
// satisfies this directly.
type TagProvider interface {
	Get(id types.ID) (*types.Document, bool)
}

// Router dispatches Query values to the primary or trigram index by
// first-match-wins rules.
type Router struct {
	primary PrimaryIndex
	trigram TrigramIndex
	docs    TagProvider
}

// New constructs a Router over the given indices and the document store
// used to resolve tag filters.
func New(primary PrimaryIndex, trigram TrigramIndex, docs TagProvider) *Router {
	return &Router{primary: primary, trigram: trigram, docs: docs}
}

// RouteFor reports which index Search would dispatch q to, without
// running the search; Search uses it to pick the index, and tests call it
// directly.
func RouteFor(q types.Query) Route {
	switch {
	case q.IsEmpty():
		return RouteEverything
	case q.IsWildcard():
		return RouteWildcard
	default:
		return RouteTrigram
	}
}

// Search runs q against the appropriate index, then applies the tag
// filter (rule 4) before returning. Result hydration into full documents
// is the caller's responsibility. A limit of 0 returns empty; a limit
// above 1000 fails validation. Both rules are also enforced by each
// index, so a Query handed to an index directly behaves the same way.
func (r *Router) Search(q types.Query) ([]types.ID, error) {
	if q.Limit > 1000 {
		return nil, kerrors.Newf(kerrors.Validation, "limit must be between 0 and 1000, got %d", q.Limit).WithField("limit")
	}
	if q.Limit == 0 {
		return nil, nil
	}
	route := RouteFor(q)

	var (
		ids []types.ID
		err error
	)
	switch route {
	case RouteEverything, RouteWildcard:
		ids, err = r.primary.Search(q)
	default:
		ids, err = r.trigram.SearchIDs(q)
	}
	metrics.RecordQueryRoute(string(route))
	if err != nil {
		return nil, err
	}
	if len(q.Tags) == 0 {
		return ids, nil
	}
	return r.filterByTags(ids, q.Tags), nil
}

func (r *Router) filterByTags(ids []types.ID, required []string) []types.ID {
	if r.docs == nil {
		return ids
	}
	out := make([]types.ID, 0, len(ids))
	for _, id := range ids {
		doc, ok := r.docs.Get(id)
		if !ok {
			continue
		}
		if doc.Tags.ContainsAll(required) {
			out = append(out, id)
		}
	}
	return out
}
