package model

import "time"

const dateLayout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate builds a Date at UTC midnight of the given day.
func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	t, err := time.Parse(`"`+dateLayout+`"`, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// PredictionAnalysis carries the statistics behind a prediction.
type PredictionAnalysis struct {
	SaleCount       int     `json:"sale_count"`
	AvgIntervalDays float64 `json:"avg_interval_days"`
}

// Prediction is a derived estimate of the next sale event for one
// (product, retailer) pair. Never persisted: any new history record
// invalidates it, so it is recomputed on every request.
type Prediction struct {
	EstimatedNextSale  *Date              `json:"estimated_next_sale"`
	Confidence         float64            `json:"confidence"`
	AverageSaleCycle   *float64           `json:"average_sale_cycle"`
	PredictedSalePrice *float64           `json:"predicted_sale_price,omitempty"`
	EstimatedSavings   *float64           `json:"estimated_savings,omitempty"`
	Reasoning          string             `json:"reasoning"`
	Analysis           PredictionAnalysis `json:"analysis"`
}
