// Package model defines the shared domain types for salewatch.
package model

// Ptr returns a pointer to v. Convenient for optional fields.
func Ptr[T any](v T) *T { return &v }

// Candidate is one product returned by a single retailer search, before
// any ranking. It exists only within one search response.
type Candidate struct {
	// Name includes the package size and stockcode suffix so that
	// different sizes of the same product never collide in history.
	Name string `json:"name"`

	// DisplayName is the clean user-facing name without the stockcode.
	DisplayName string `json:"displayName,omitempty"`

	Stockcode string   `json:"stockcode,omitempty"`
	Retailer  string   `json:"retailer"`
	Price     *float64 `json:"price"`
	Was       *float64 `json:"was"`
	OnSale    bool     `json:"onSale"`
	PromoText *string  `json:"promoText"`
	URL       *string  `json:"url"`
	InStock   *bool    `json:"inStock"`
}

// RankedAlternative is a Candidate scored against the original query.
type RankedAlternative struct {
	Candidate
	MatchScore float64 `json:"matchScore"`
	Rank       int     `json:"rank"`
}

// Alternative is the wire shape of a non-best-match product in an item
// result.
type Alternative struct {
	Name       string   `json:"name"`
	Price      *float64 `json:"price"`
	Was        *float64 `json:"was"`
	OnSale     bool     `json:"onSale"`
	PromoText  *string  `json:"promoText"`
	URL        *string  `json:"url"`
	MatchScore float64  `json:"matchScore"`
}

// PotentialSaving describes a cheaper alternative relative to the best match.
type PotentialSaving struct {
	Alternative      string  `json:"alternative"`
	CurrentPrice     float64 `json:"currentPrice"`
	AlternativePrice float64 `json:"alternativePrice"`
	Savings          float64 `json:"savings"`
	Percentage       float64 `json:"percentage"`
}

// ItemCheckResult is the outcome of resolving one query item at one
// retailer. A failed resolution carries a nil BestMatch and nil price
// fields; it is a valid result, not an error.
type ItemCheckResult struct {
	Input            string            `json:"input"`
	Retailer         string            `json:"retailer"`
	BestMatch        *string           `json:"bestMatch"`
	Alternatives     []Alternative     `json:"alternatives"`
	OnSale           bool              `json:"onSale"`
	Price            *float64          `json:"price"`
	Was              *float64          `json:"was"`
	PromoText        *string           `json:"promoText"`
	URL              *string           `json:"url"`
	InStock          *bool             `json:"inStock"`
	PotentialSavings []PotentialSaving `json:"potentialSavings"`
}

// CheckResponse is the batch response for a check request.
type CheckResponse struct {
	Results      []ItemCheckResult `json:"results"`
	Postcode     string            `json:"postcode"`
	ItemsChecked int               `json:"itemsChecked"`
}

// NoMatchResult builds the uniform "no match found" result for an item.
func NoMatchResult(input, retailer string) ItemCheckResult {
	return ItemCheckResult{
		Input:            input,
		Retailer:         retailer,
		Alternatives:     []Alternative{},
		PotentialSavings: []PotentialSaving{},
	}
}
