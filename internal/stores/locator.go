package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grocery-planner/internal/shared"
)

// ErrUnknownStore is returned when selecting an id outside the current results.
var ErrUnknownStore = errors.New("store is not in the current results")

// Finder queries the backend for stores near a zip code.
type Finder interface {
	FindStores(ctx context.Context, zip string) ([]StoreCandidate, error)
}

// Locator issues location queries.
type Locator struct {
	finder Finder
}

// NewLocator creates a new Locator.
func NewLocator(finder Finder) *Locator {
	return &Locator{finder: finder}
}

// Search passes the query through to the backend; validating that it is not
// empty is the caller's job.
func (l *Locator) Search(ctx context.Context, query string) ([]StoreCandidate, error) {
	candidates, err := l.finder.FindStores(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search stores: %w", err)
	}
	return candidates, nil
}

// Results is the locator state shown to the user. A failed search leaves
// the previous candidates in place and only changes the status message.
type Results struct {
	Query         string
	Candidates    []StoreCandidate
	SelectedID    string
	StatusMessage string
}

// Apply replaces the whole candidate set with a successful search result.
func (r *Results) Apply(query string, candidates []StoreCandidate) {
	r.Query = query
	r.Candidates = append([]StoreCandidate(nil), candidates...)
	r.SelectedID = ""
	switch len(candidates) {
	case 1:
		r.StatusMessage = fmt.Sprintf("Found 1 store near %s.", query)
	default:
		r.StatusMessage = fmt.Sprintf("Found %d stores near %s.", len(candidates), query)
	}
}

// Fail records a failed search.
func (r *Results) Fail(query string, err error) {
	if shared.IsTransport(err) {
		r.StatusMessage = fmt.Sprintf("Could not reach the store service while searching near %s.", query)
		return
	}
	r.StatusMessage = fmt.Sprintf("Store search near %s failed: %v", query, err)
}

// OffersSelection reports whether a store picker should be shown.
func (r Results) OffersSelection() bool {
	return len(r.Candidates) > 0
}

// Select marks one of the current candidates as the user's store.
func (r *Results) Select(locationID string) error {
	for _, c := range r.Candidates {
		if c.LocationID == locationID {
			r.SelectedID = locationID
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownStore, locationID)
}

// Selected returns the chosen candidate, if any.
func (r Results) Selected() (StoreCandidate, bool) {
	for _, c := range r.Candidates {
		if c.LocationID == r.SelectedID {
			return c, r.SelectedID != ""
		}
	}
	return StoreCandidate{}, false
}

// Clone returns a copy that shares nothing with r.
func (r Results) Clone() Results {
	r.Candidates = append([]StoreCandidate(nil), r.Candidates...)
	return r
}
