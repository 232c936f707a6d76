// Package export writes price history to spreadsheet files.
package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/grocerpal/salewatch/internal/model"
)

var historyHeader = []string{
	"Product", "Retailer", "Price", "Was", "On Sale", "Promo", "URL", "Date Recorded",
}

// WriteHistoryXLSX writes the given records to an xlsx workbook at path,
// one row per record under a fixed header row. Records are written in
// the order given; callers sort before exporting.
func WriteHistoryXLSX(path string, records []model.PriceRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Price History")
	if err != nil {
		return eris.Wrap(err, "export: adding sheet")
	}

	header := sheet.AddRow()
	for _, h := range historyHeader {
		header.AddCell().Value = h
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().Value = rec.ProductName
		row.AddCell().Value = rec.Retailer
		row.AddCell().Value = priceCell(rec.Price)
		row.AddCell().Value = priceCell(rec.WasPrice)
		row.AddCell().Value = yesNo(rec.OnSale)
		row.AddCell().Value = deref(rec.PromoText)
		row.AddCell().Value = deref(rec.URL)
		row.AddCell().Value = rec.DateRecorded.UTC().Format("2006-01-02")
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: saving %s", path)
	}
	return nil
}

func priceCell(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
