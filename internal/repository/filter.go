package repository

import (
	"fmt"
	"strings"
)

// SortMode orders query results.
type SortMode string

const (
	SortNewest SortMode = "newest"
	SortAlpha  SortMode = "alpha"
)

// AccountMode restricts results to, or strips, a single account's events.
type AccountMode string

const (
	AccountAll     AccountMode = "all"
	AccountPin     AccountMode = "pin"
	AccountExclude AccountMode = "exclude"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// EventFilter is the normalized filter/pagination tuple for event queries.
// The same predicate list drives both the SQL WHERE clause and the cache-key
// string, so the validator can never drift from the query it describes.
type EventFilter struct {
	Search        string
	Language      string
	Tier          string
	AccountMode   AccountMode
	AccountHandle string
	Sort          SortMode
	Page          int
	PageSize      int
	// MatchTopics extends the search predicate to repository topic tags.
	MatchTopics bool
}

// PredicateKind tags one filter variant.
type PredicateKind int

const (
	PredSearch PredicateKind = iota
	PredLanguage
	PredTier
	PredPinAccount
	PredExcludeAccount
)

// Predicate is a single tagged filter condition with its bound value.
type Predicate struct {
	Kind PredicateKind
	// Value is lowercased and trimmed; all matching is case-insensitive.
	Value string
	// MatchTopics only applies to PredSearch.
	MatchTopics bool
}

// Normalize trims inputs and fills defaults. It does not validate; the query
// layer rejects out-of-range values before anything reaches the store.
func (f EventFilter) Normalize() EventFilter {
	f.Search = strings.TrimSpace(f.Search)
	f.Language = strings.TrimSpace(f.Language)
	f.Tier = strings.ToLower(strings.TrimSpace(f.Tier))
	f.AccountHandle = strings.TrimSpace(f.AccountHandle)
	if f.AccountMode == "" {
		f.AccountMode = AccountAll
	}
	if f.Sort == "" {
		f.Sort = SortNewest
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	return f
}

// Predicates folds the populated filter fields into tagged variants, in a
// fixed order.
func (f EventFilter) Predicates() []Predicate {
	f = f.Normalize()
	var preds []Predicate
	if f.Search != "" {
		preds = append(preds, Predicate{Kind: PredSearch, Value: strings.ToLower(f.Search), MatchTopics: f.MatchTopics})
	}
	if f.Language != "" {
		preds = append(preds, Predicate{Kind: PredLanguage, Value: strings.ToLower(f.Language)})
	}
	if f.Tier != "" {
		preds = append(preds, Predicate{Kind: PredTier, Value: f.Tier})
	}
	if f.AccountHandle != "" {
		switch f.AccountMode {
		case AccountPin:
			preds = append(preds, Predicate{Kind: PredPinAccount, Value: strings.ToLower(f.AccountHandle)})
		case AccountExclude:
			preds = append(preds, Predicate{Kind: PredExcludeAccount, Value: strings.ToLower(f.AccountHandle)})
		}
	}
	return preds
}

// NormalizedKey renders the filter into a stable string for cache-validator
// hashing. Two filters produce the same key exactly when they describe the
// same result set and page.
func (f EventFilter) NormalizedKey() string {
	f = f.Normalize()
	var parts []string
	for _, p := range f.Predicates() {
		switch p.Kind {
		case PredSearch:
			parts = append(parts, "q="+p.Value)
			if p.MatchTopics {
				parts = append(parts, "q_topics=1")
			}
		case PredLanguage:
			parts = append(parts, "language="+p.Value)
		case PredTier:
			parts = append(parts, "activity="+p.Value)
		case PredPinAccount:
			parts = append(parts, "user_mode=pin", "user="+p.Value)
		case PredExcludeAccount:
			parts = append(parts, "user_mode=exclude", "user="+p.Value)
		}
	}
	parts = append(parts,
		"sort="+string(f.Sort),
		fmt.Sprintf("page=%d", f.Page),
		fmt.Sprintf("page_size=%d", f.PageSize),
	)
	return strings.Join(parts, "&")
}

// Offset is the storage-level row offset for the requested page.
func (f EventFilter) Offset() int {
	f = f.Normalize()
	return (f.Page - 1) * f.PageSize
}
