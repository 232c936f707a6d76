// Package store persists price history, logged alternatives and admin
// favorites. Two backends implement Store: SQLite for the CLI and
// single-host deployments, Postgres for shared ones.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/grocerpal/salewatch/internal/model"
)

// HistoryFilter narrows history queries.
type HistoryFilter struct {
	Retailer string `json:"retailer,omitempty"`
	DaysBack int    `json:"days_back,omitempty"`
}

// Stats summarizes stored data.
type Stats struct {
	PriceRecords       int        `json:"price_records"`
	UniqueProducts     int        `json:"unique_products"`
	UniqueRetailers    int        `json:"unique_retailers"`
	OldestRecord       *time.Time `json:"oldest_record"`
	NewestRecord       *time.Time `json:"newest_record"`
	AlternativeRecords int        `json:"alternative_records"`
	UniqueQueries      int        `json:"unique_queries"`
}

// Store defines the persistence interface for price tracking.
type Store interface {
	// Price history. AppendPriceRecord keeps at most one record per
	// product, retailer and day; a same-day write replaces the earlier one.
	AppendPriceRecord(ctx context.Context, rec model.PriceRecord) error
	QueryHistory(ctx context.Context, productName string, filter HistoryFilter) ([]model.PriceRecord, error)
	ListTrackedProducts(ctx context.Context) ([]model.ProductSummary, error)
	DeleteProductHistory(ctx context.Context, productName, retailer string) (int, error)
	ClearAll(ctx context.Context) error

	// Logged alternatives. LogAlternatives replaces the day's snapshot
	// for the query and retailer.
	LogAlternatives(ctx context.Context, searchQuery, retailer string, day time.Time, alts []model.RankedAlternative) error
	AlternativesFor(ctx context.Context, searchQuery string, filter HistoryFilter) ([]model.AlternativeRecord, error)

	// Favorites.
	AddFavorite(ctx context.Context, productName, retailer string) (bool, error)
	ListFavorites(ctx context.Context) ([]model.Favorite, error)
	RemoveFavorite(ctx context.Context, id string) (bool, error)

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// NormalizeName canonicalizes a product name for storage so the same
// product always maps to the same history row.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

const defaultDaysBack = 30

// cutoffDate returns the inclusive lower bound for date_recorded as an
// ISO date string, which compares correctly in both backends.
func cutoffDate(daysBack int) string {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	return time.Now().UTC().AddDate(0, 0, -daysBack).Format(dateLayout)
}

const dateLayout = "2006-01-02"
