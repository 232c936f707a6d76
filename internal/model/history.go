package model

import "time"

// PriceRecord is one durable price observation for a (product, retailer)
// pair. Records are append-only; readers must tolerate duplicate rows for
// the same calendar day.
type PriceRecord struct {
	ID           string    `json:"id"`
	ProductName  string    `json:"product_name"`
	Retailer     string    `json:"retailer"`
	Price        *float64  `json:"price"`
	WasPrice     *float64  `json:"was_price"`
	OnSale       bool      `json:"on_sale"`
	PromoText    *string   `json:"promo_text"`
	URL          *string   `json:"url"`
	DateRecorded time.Time `json:"date_recorded"`
	CreatedAt    time.Time `json:"created_at"`
}

// Day returns the record's calendar day truncated to UTC midnight.
func (r PriceRecord) Day() time.Time {
	y, m, d := r.DateRecorded.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AlternativeRecord is one logged alternative for a search query, kept
// alongside price history for later analysis.
type AlternativeRecord struct {
	ID           string    `json:"id"`
	SearchQuery  string    `json:"search_query"`
	Retailer     string    `json:"retailer"`
	ProductName  string    `json:"product_name"`
	Price        *float64  `json:"price"`
	WasPrice     *float64  `json:"was_price"`
	OnSale       bool      `json:"on_sale"`
	PromoText    *string   `json:"promo_text"`
	URL          *string   `json:"url"`
	MatchScore   float64   `json:"match_score"`
	RankPosition int       `json:"rank_position"`
	DateRecorded time.Time `json:"date_recorded"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProductSummary aggregates the stored history for one tracked product.
type ProductSummary struct {
	ProductName   string    `json:"product_name"`
	Retailer      string    `json:"retailer"`
	RecordCount   int       `json:"record_count"`
	FirstRecorded time.Time `json:"first_recorded"`
	LastRecorded  time.Time `json:"last_recorded"`
	LastPrice     *float64  `json:"last_price"`
	LastOnSale    bool      `json:"last_on_sale"`
}

// Favorite is a product the user asked to keep an eye on.
type Favorite struct {
	ID          string    `json:"id"`
	ProductName string    `json:"product_name"`
	Retailer    string    `json:"retailer"`
	CreatedAt   time.Time `json:"created_at"`
}
