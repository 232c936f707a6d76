// Package predict estimates upcoming sale events from accumulated price
// history. Predictions are derived on demand and never persisted: any
// new history record invalidates them.
package predict

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/grocerpal/salewatch/internal/model"
	"github.com/grocerpal/salewatch/internal/store"
)

const (
	defaultMinEvents = 2

	// Each observed event lifts the confidence ceiling; with four or
	// more events variance alone decides.
	confidencePerEvent = 0.125
	confidenceBase     = 0.5
)

// Predictor mines a price history sequence for periodic discount cycles.
type Predictor struct {
	minEvents int
}

// New creates a Predictor requiring at least two sale events before it
// will commit to a cycle.
func New() *Predictor {
	return &Predictor{minEvents: defaultMinEvents}
}

// dayObservation is one calendar day of history after collapsing
// duplicate same-day records.
type dayObservation struct {
	day    time.Time
	onSale bool
	price  *float64
	was    *float64
}

// saleEvent is a maximal run of consecutive on-sale days, identified by
// the day the run started.
type saleEvent struct {
	start     time.Time
	salePrice *float64
}

// Predict analyzes the history of one (product, retailer) pair. Records
// may arrive in any order and may contain same-day duplicates.
func (p *Predictor) Predict(records []model.PriceRecord) model.Prediction {
	days := collapseDays(records)
	events := saleEvents(days)

	if len(events) < p.minEvents {
		return model.Prediction{
			Confidence: 0,
			Reasoning: fmt.Sprintf("not enough history: %d sale event(s) observed, need at least %d",
				len(events), p.minEvents),
			Analysis: model.PredictionAnalysis{SaleCount: len(events)},
		}
	}

	gaps := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		gaps = append(gaps, events[i].start.Sub(events[i-1].start).Hours()/24)
	}
	avgGap := mean(gaps)
	cv := coefficientOfVariation(gaps, avgGap)

	confidence := clamp01(1 - cv)
	if ceiling := confidenceBase + confidencePerEvent*float64(len(events)); confidence > ceiling {
		confidence = ceiling
	}
	confidence = clamp01(confidence)

	last := events[len(events)-1]
	next := model.DateOf(last.start.AddDate(0, 0, int(math.Round(avgGap))))

	pred := model.Prediction{
		EstimatedNextSale: &next,
		Confidence:        round2(confidence),
		AverageSaleCycle:  model.Ptr(round1(avgGap)),
		Reasoning: fmt.Sprintf("%d sale events with an average cycle of %.1f days; gap timing is %s",
			len(events), avgGap, consistencyLabel(cv)),
		Analysis: model.PredictionAnalysis{
			SaleCount:       len(events),
			AvgIntervalDays: round1(avgGap),
		},
	}

	if salePrice, ok := averageSalePrice(events); ok {
		pred.PredictedSalePrice = model.Ptr(round2(salePrice))
		if regular, ok := latestRegularPrice(days); ok {
			pred.EstimatedSavings = model.Ptr(round2(math.Max(0, regular-salePrice)))
		}
	}
	return pred
}

// ForProduct loads history from the store and predicts the next sale.
func (p *Predictor) ForProduct(ctx context.Context, st store.Store, productName, retailer string, daysBack int) (model.Prediction, error) {
	records, err := st.QueryHistory(ctx, productName, store.HistoryFilter{
		Retailer: retailer,
		DaysBack: daysBack,
	})
	if err != nil {
		return model.Prediction{}, eris.Wrapf(err, "predict: loading history for %q", productName)
	}
	return p.Predict(records), nil
}

// collapseDays merges records sharing a calendar day: a day counts as
// on sale if any record says so, and keeps the lowest observed price.
func collapseDays(records []model.PriceRecord) []dayObservation {
	byDay := make(map[time.Time]*dayObservation)
	for _, rec := range records {
		day := rec.Day()
		obs, ok := byDay[day]
		if !ok {
			obs = &dayObservation{day: day}
			byDay[day] = obs
		}
		obs.onSale = obs.onSale || rec.OnSale
		if rec.Price != nil && (obs.price == nil || *rec.Price < *obs.price) {
			obs.price = rec.Price
		}
		if rec.WasPrice != nil {
			obs.was = rec.WasPrice
		}
	}

	days := make([]dayObservation, 0, len(byDay))
	for _, obs := range byDay {
		days = append(days, *obs)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].day.Before(days[j].day) })
	return days
}

// saleEvents extracts maximal on-sale runs. Consecutive means adjacent
// in the observed sequence, not adjacent calendar days: sparse sampling
// must not split one promotion into several events.
func saleEvents(days []dayObservation) []saleEvent {
	var events []saleEvent
	var current *saleEvent
	for _, obs := range days {
		if obs.onSale {
			if current == nil {
				current = &saleEvent{start: obs.day, salePrice: obs.price}
			} else if obs.price != nil && (current.salePrice == nil || *obs.price < *current.salePrice) {
				current.salePrice = obs.price
			}
			continue
		}
		if current != nil {
			events = append(events, *current)
			current = nil
		}
	}
	if current != nil {
		events = append(events, *current)
	}
	return events
}

func averageSalePrice(events []saleEvent) (float64, bool) {
	var sum float64
	var n int
	for _, ev := range events {
		if ev.salePrice != nil {
			sum += *ev.salePrice
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// latestRegularPrice returns the most recent off-sale price, falling
// back to the most recent "was" price when every observation is a sale.
func latestRegularPrice(days []dayObservation) (float64, bool) {
	for i := len(days) - 1; i >= 0; i-- {
		if !days[i].onSale && days[i].price != nil {
			return *days[i].price, true
		}
	}
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].was != nil {
			return *days[i].was, true
		}
	}
	return 0, false
}

func consistencyLabel(cv float64) string {
	switch {
	case cv < 0.15:
		return "very consistent"
	case cv < 0.4:
		return "fairly consistent"
	default:
		return "irregular"
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func coefficientOfVariation(xs []float64, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		variance += (x - avg) * (x - avg)
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance) / avg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
