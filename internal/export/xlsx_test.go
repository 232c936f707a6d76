package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/grocerpal/salewatch/internal/model"
)

func TestWriteHistoryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	records := []model.PriceRecord{
		{
			ProductName:  "olive oil 1l",
			Retailer:     "woolworths",
			Price:        model.Ptr(8.5),
			WasPrice:     model.Ptr(12.0),
			OnSale:       true,
			PromoText:    model.Ptr("Save $3.50"),
			URL:          model.Ptr("https://www.woolworths.com.au/shop/productdetails/123"),
			DateRecorded: time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			ProductName:  "penne pasta 500g",
			Retailer:     "coles",
			OnSale:       false,
			DateRecorded: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	require.NoError(t, WriteHistoryXLSX(path, records))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Price History", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(historyHeader))
	assert.Equal(t, "Product", header.Cells[0].Value)
	assert.Equal(t, "Date Recorded", header.Cells[7].Value)

	first := sheet.Rows[1]
	assert.Equal(t, "olive oil 1l", first.Cells[0].Value)
	assert.Equal(t, "woolworths", first.Cells[1].Value)
	assert.Equal(t, "8.50", first.Cells[2].Value)
	assert.Equal(t, "12.00", first.Cells[3].Value)
	assert.Equal(t, "yes", first.Cells[4].Value)
	assert.Equal(t, "Save $3.50", first.Cells[5].Value)
	assert.Equal(t, "2025-06-10", first.Cells[7].Value)

	second := sheet.Rows[2]
	assert.Equal(t, "penne pasta 500g", second.Cells[0].Value)
	assert.Equal(t, "", second.Cells[2].Value, "nil price exports as empty cell")
	assert.Equal(t, "no", second.Cells[4].Value)
}

func TestWriteHistoryXLSXEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteHistoryXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1, "header only")
}
