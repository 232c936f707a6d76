package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocerpal/salewatch/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_AppendPriceRecordUpserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO price_history`).
		WithArgs(pgxmock.AnyArg(), "full cream milk 2l", "woolworths",
			pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendPriceRecord(context.Background(), model.PriceRecord{
		ProductName:  "Full Cream Milk 2L",
		Retailer:     "woolworths",
		Price:        model.Ptr(3.10),
		DateRecorded: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendPriceRecordValidatesInput(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.AppendPriceRecord(context.Background(), model.PriceRecord{Retailer: "woolworths"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	created := day.Add(7 * time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "product_name", "retailer", "price", "was_price", "on_sale",
		"promo_text", "url", "date_recorded", "created_at",
	}).AddRow("id-1", "milk", "woolworths", model.Ptr(3.0), (*float64)(nil), true,
		(*string)(nil), (*string)(nil), day, created)

	mock.ExpectQuery(`SELECT id, product_name, retailer, price, was_price, on_sale, promo_text, url, date_recorded, created_at`).
		WithArgs("milk", pgxmock.AnyArg(), "woolworths").
		WillReturnRows(rows)

	got, err := s.QueryHistory(context.Background(), "Milk", HistoryFilter{Retailer: "woolworths"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "milk", got[0].ProductName)
	require.NotNil(t, got[0].Price)
	assert.InDelta(t, 3.0, *got[0].Price, 0.001)
	assert.Nil(t, got[0].WasPrice)
	assert.True(t, got[0].OnSale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteProductHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM price_history WHERE product_name = \$1 AND retailer = \$2`).
		WithArgs("milk", "woolworths").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteProductHistory(context.Background(), "Milk", "woolworths")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LogAlternativesReplacesDaySnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM alternative_products WHERE search_query = \$1 AND retailer = \$2 AND date_recorded = \$3`).
		WithArgs("pasta", "woolworths", day).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO alternative_products`).
		WithArgs(pgxmock.AnyArg(), "pasta", "woolworths", "brand a pasta 500g",
			pgxmock.AnyArg(), pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg(),
			0.9, 1, day).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.LogAlternatives(context.Background(), "Pasta", "woolworths", day, []model.RankedAlternative{
		{Candidate: model.Candidate{Name: "Brand A Pasta 500g", OnSale: true}, MatchScore: 0.9},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddFavoriteRejectsDuplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM favorites`).
		WithArgs("Vegemite", "woolworths").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("existing-id"))

	added, err := s.AddFavorite(context.Background(), "Vegemite", "woolworths")
	require.NoError(t, err)
	assert.False(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddFavoriteInserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM favorites`).
		WithArgs("Vegemite", "woolworths").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO favorites`).
		WithArgs(pgxmock.AnyArg(), "Vegemite", "woolworths").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	added, err := s.AddFavorite(context.Background(), "Vegemite", "woolworths")
	require.NoError(t, err)
	assert.True(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RemoveFavoriteNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM favorites WHERE id = \$1`).
		WithArgs("no-such-id").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	removed, err := s.RemoveFavorite(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	oldest := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT product_name\), COUNT\(DISTINCT retailer\)`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "products", "retailers", "min", "max"}).
			AddRow(12, 3, 2, &oldest, &newest))
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT search_query\) FROM alternative_products`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "queries"}).AddRow(40, 3))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.PriceRecords)
	assert.Equal(t, 3, stats.UniqueProducts)
	require.NotNil(t, stats.OldestRecord)
	assert.Equal(t, oldest, *stats.OldestRecord)
	assert.Equal(t, 40, stats.AlternativeRecords)
	assert.NoError(t, mock.ExpectationsWereMet())
}
