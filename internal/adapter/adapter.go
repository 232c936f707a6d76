// Package adapter implements retailer product search behind a single
// contract. API-backed adapters and the browser fallback all satisfy
// Adapter, so the checker can swap acquisition strategies freely.
package adapter

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/grocerpal/salewatch/internal/model"
)

// ErrUnavailable reports that the retailer could not be reached at all.
// Adapters return it so the caller can tell an unreachable source apart
// from a healthy response that simply matched nothing.
var ErrUnavailable = eris.New("adapter: source unavailable")

// Adapter searches one retailer for products matching a free-text query.
type Adapter interface {
	// Name returns the retailer identifier, e.g. "woolworths".
	Name() string

	// Search returns candidate products for the query scoped to the
	// postcode. A reachable source that matches nothing returns an empty
	// slice and nil error; an unreachable source returns ErrUnavailable.
	Search(ctx context.Context, query, postcode string) ([]model.Candidate, error)
}
