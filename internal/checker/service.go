// Package checker orchestrates price resolution: per item and retailer
// it walks cache, retailer API and browser fallback, matches candidates
// against the query and records outcomes to the price history store.
package checker

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grocerpal/salewatch/internal/adapter"
	"github.com/grocerpal/salewatch/internal/cache"
	"github.com/grocerpal/salewatch/internal/config"
	"github.com/grocerpal/salewatch/internal/match"
	"github.com/grocerpal/salewatch/internal/model"
	"github.com/grocerpal/salewatch/internal/resilience"
	"github.com/grocerpal/salewatch/internal/store"
)

// itemState tracks where an item sits in its resolution lifecycle. Items
// only ever move forward through these states.
type itemState string

const (
	statePending           itemState = "pending"
	stateAPIAttempted      itemState = "api_attempted"
	stateFallbackAttempted itemState = "fallback_attempted"
	stateSucceeded         itemState = "succeeded"
	stateFailed            itemState = "failed"
)

// Retailer couples a retailer's API adapter with its optional browser
// fallback.
type Retailer struct {
	API      adapter.Adapter
	Fallback adapter.Adapter
}

// Service resolves item queries against all configured retailers.
type Service struct {
	retailers []Retailer
	matcher   *match.Matcher
	cache     *cache.ResultCache
	store     store.Store
	breakers  *resilience.SourceBreakers

	concurrency     int
	itemTimeout     time.Duration
	maxAlternatives int
	scrapeEnabled   bool
}

// Options configures a checker Service.
type Options struct {
	Retailers []Retailer
	Matcher   *match.Matcher
	Cache     *cache.ResultCache
	Store     store.Store // optional; nil disables history recording
	Breakers  *resilience.SourceBreakers

	Checker         config.CheckerConfig
	Circuit         config.CircuitConfig
	MaxAlternatives int
	ScrapeEnabled   bool
}

// New creates a checker Service.
func New(opts Options) *Service {
	breakers := opts.Breakers
	if breakers == nil {
		breakers = resilience.NewSourceBreakers(resilience.BreakerConfig{
			FailureThreshold: opts.Circuit.FailureThreshold,
			Cooldown:         opts.Circuit.Cooldown(),
		})
	}
	concurrency := opts.Checker.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	itemTimeout := opts.Checker.ItemTimeout()
	if itemTimeout <= 0 {
		itemTimeout = 2 * time.Minute
	}
	maxAlternatives := opts.MaxAlternatives
	if maxAlternatives <= 0 {
		maxAlternatives = 8
	}
	return &Service{
		retailers:       opts.Retailers,
		matcher:         opts.Matcher,
		cache:           opts.Cache,
		store:           opts.Store,
		breakers:        breakers,
		concurrency:     concurrency,
		itemTimeout:     itemTimeout,
		maxAlternatives: maxAlternatives,
		scrapeEnabled:   opts.ScrapeEnabled,
	}
}

// CheckItems resolves every item at every retailer concurrently. The
// response preserves input order: results are grouped by item, and
// within each item follow the configured retailer order, regardless of
// which goroutine finished first.
func (s *Service) CheckItems(ctx context.Context, items []string, postcode string) (*model.CheckResponse, error) {
	results := make([]model.ItemCheckResult, len(items)*len(s.retailers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, item := range items {
		for j, retailer := range s.retailers {
			idx := i*len(s.retailers) + j
			g.Go(func() error {
				itemCtx, cancel := context.WithTimeout(gctx, s.itemTimeout)
				defer cancel()
				results[idx] = s.resolveItem(itemCtx, item, postcode, retailer)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.CheckResponse{
		Results:      results,
		Postcode:     postcode,
		ItemsChecked: len(items),
	}, nil
}

// resolveItem runs the resolution state machine for one item at one
// retailer. Every terminal outcome is a valid ItemCheckResult; source
// unavailability resolves to "no match", never an error.
func (s *Service) resolveItem(ctx context.Context, item, postcode string, retailer Retailer) model.ItemCheckResult {
	name := retailer.API.Name()
	state := statePending
	log := zap.L().With(
		zap.String("item", item),
		zap.String("postcode", postcode),
		zap.String("retailer", name),
	)

	candidates, cached := s.lookupCache(name, item, postcode)
	if cached {
		log.Info("cache hit", zap.Int("candidates", len(candidates)))
	} else {
		candidates, state = s.acquire(ctx, item, postcode, retailer, log)
		s.storeCache(name, item, postcode, candidates)
	}
	path := state

	result := s.buildResult(item, name, candidates)
	if result.BestMatch != nil {
		state = stateSucceeded
	} else {
		state = stateFailed
	}
	log.Info("item resolved",
		zap.String("state", string(state)),
		zap.String("path", string(path)),
		zap.Bool("cache_hit", cached),
		zap.Bool("matched", result.BestMatch != nil),
		zap.Bool("on_sale", result.OnSale))

	s.recordHistory(ctx, item, result, log)
	return result
}

// acquire fetches candidates from the API path, falling through to the
// browser fallback when the API yields nothing. The fallback runs at
// most once per item.
func (s *Service) acquire(ctx context.Context, item, postcode string, retailer Retailer, log *zap.Logger) ([]model.Candidate, itemState) {
	name := retailer.API.Name()
	state := statePending

	var candidates []model.Candidate
	breaker := s.breakers.Get(name)
	if breaker.Allow() {
		state = stateAPIAttempted
		var err error
		candidates, err = retailer.API.Search(ctx, item, postcode)
		if err != nil {
			// Only an unreachable or misbehaving source counts against
			// the circuit; a reachable API with no matches is a success.
			log.Warn("api search failed", zap.Error(err))
			candidates = nil
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
	} else {
		log.Warn("circuit open, skipping api path")
	}

	if len(candidates) == 0 && s.scrapeEnabled && retailer.Fallback != nil {
		state = stateFallbackAttempted
		log.Info("falling back to browser scrape")
		fbCandidates, err := retailer.Fallback.Search(ctx, item, postcode)
		if err != nil {
			log.Warn("browser fallback failed", zap.Error(err))
		} else {
			candidates = fbCandidates
		}
	}
	return candidates, state
}

func (s *Service) lookupCache(retailer, item, postcode string) ([]model.Candidate, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(retailer, item, postcode)
}

func (s *Service) storeCache(retailer, item, postcode string, candidates []model.Candidate) {
	if s.cache == nil {
		return
	}
	// Empty results are cached too; a known miss is as useful as a hit.
	s.cache.Put(retailer, item, postcode, candidates)
}

// buildResult ranks candidates and assembles the item result with
// alternatives and potential savings relative to the best match.
func (s *Service) buildResult(item, retailer string, candidates []model.Candidate) model.ItemCheckResult {
	ranked := s.matcher.Rank(item, candidates)
	if len(ranked) == 0 {
		return model.NoMatchResult(item, retailer)
	}

	best := ranked[0]
	rest := ranked[1:]
	if len(rest) > s.maxAlternatives-1 {
		rest = rest[:s.maxAlternatives-1]
	}

	result := model.ItemCheckResult{
		Input:            item,
		Retailer:         retailer,
		BestMatch:        model.Ptr(best.Name),
		Alternatives:     []model.Alternative{},
		OnSale:           best.OnSale,
		Price:            best.Price,
		Was:              best.Was,
		PromoText:        best.PromoText,
		URL:              best.URL,
		InStock:          best.InStock,
		PotentialSavings: []model.PotentialSaving{},
	}

	for _, alt := range rest {
		result.Alternatives = append(result.Alternatives, model.Alternative{
			Name:       alt.Name,
			Price:      alt.Price,
			Was:        alt.Was,
			OnSale:     alt.OnSale,
			PromoText:  alt.PromoText,
			URL:        alt.URL,
			MatchScore: round2(alt.MatchScore),
		})

		if best.Price != nil && alt.Price != nil {
			saving := *best.Price - *alt.Price
			if saving > 0 {
				result.PotentialSavings = append(result.PotentialSavings, model.PotentialSaving{
					Alternative:      alt.Name,
					CurrentPrice:     round2(*best.Price),
					AlternativePrice: round2(*alt.Price),
					Savings:          round2(saving),
					Percentage:       round1(saving / *best.Price * 100),
				})
			}
		}
	}
	return result
}

// recordHistory writes the resolved prices to the store. Failures are
// logged and swallowed; persistence must never break a check.
func (s *Service) recordHistory(ctx context.Context, item string, result model.ItemCheckResult, log *zap.Logger) {
	if s.store == nil {
		return
	}

	if result.BestMatch != nil && result.Price != nil {
		err := s.store.AppendPriceRecord(ctx, model.PriceRecord{
			ProductName:  *result.BestMatch,
			Retailer:     result.Retailer,
			Price:        result.Price,
			WasPrice:     result.Was,
			OnSale:       result.OnSale,
			PromoText:    result.PromoText,
			URL:          result.URL,
			DateRecorded: time.Now().UTC(),
		})
		if err != nil {
			log.Warn("failed to record best match price", zap.Error(err))
		}
	}

	if len(result.Alternatives) == 0 {
		return
	}

	ranked := make([]model.RankedAlternative, 0, len(result.Alternatives))
	for i, alt := range result.Alternatives {
		ranked = append(ranked, model.RankedAlternative{
			Candidate: model.Candidate{
				Name:      alt.Name,
				Retailer:  result.Retailer,
				Price:     alt.Price,
				Was:       alt.Was,
				OnSale:    alt.OnSale,
				PromoText: alt.PromoText,
				URL:       alt.URL,
			},
			MatchScore: alt.MatchScore,
			Rank:       i + 1,
		})
	}
	if err := s.store.LogAlternatives(ctx, item, result.Retailer, time.Now().UTC(), ranked); err != nil {
		log.Warn("failed to log alternatives", zap.Error(err))
	}

	// Alternatives get their own history rows so predictions can track
	// them independently of what the user searched for.
	for _, alt := range result.Alternatives {
		if alt.Name == "" || alt.Price == nil {
			continue
		}
		err := s.store.AppendPriceRecord(ctx, model.PriceRecord{
			ProductName:  alt.Name,
			Retailer:     result.Retailer,
			Price:        alt.Price,
			WasPrice:     alt.Was,
			OnSale:       alt.OnSale,
			PromoText:    alt.PromoText,
			URL:          alt.URL,
			DateRecorded: time.Now().UTC(),
		})
		if err != nil {
			log.Warn("failed to record alternative price",
				zap.String("alternative", alt.Name), zap.Error(err))
		}
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
