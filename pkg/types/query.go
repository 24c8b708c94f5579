package types

import "time"

// DateRange optionally bounds a query by document timestamps.
type DateRange struct {
	From, To time.Time
}

// Query is the internal wire shape consumed by the query router.
type Query struct {
	SearchTerms []string
	Tags        []string
	DateRange   *DateRange
	Limit       uint32
}

// Text joins SearchTerms into the single search string most of the index
// implementations expect; multi-term queries are out of scope for v1 and
// are joined with a space the same way the trigram tokenizer would see
// them typed as one string.
func (q Query) Text() string {
	if len(q.SearchTerms) == 0 {
		return ""
	}
	out := q.SearchTerms[0]
	for _, t := range q.SearchTerms[1:] {
		out += " " + t
	}
	return out
}

// IsEmpty reports whether the query has no search text, i.e. the
// "everything" route (query router rule 1).
func (q Query) IsEmpty() bool {
	return q.Text() == "" || q.Text() == "*"
}

// IsWildcard reports whether the query text contains a '*' wildcard,
// excluding the bare "*" handled by IsEmpty.
func (q Query) IsWildcard() bool {
	if q.IsEmpty() {
		return false
	}
	for _, r := range q.Text() {
		if r == '*' {
			return true
		}
	}
	return false
}
