package checker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocerpal/salewatch/internal/cache"
	"github.com/grocerpal/salewatch/internal/config"
	"github.com/grocerpal/salewatch/internal/match"
	"github.com/grocerpal/salewatch/internal/model"
	"github.com/grocerpal/salewatch/internal/store"
)

type fakeAdapter struct {
	name       string
	candidates []model.Candidate
	err        error
	calls      int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Search(_ context.Context, _, _ string) ([]model.Candidate, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.candidates, f.err
}

func (f *fakeAdapter) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

// echoAdapter answers every query with a single priced candidate named
// after the query, so each item resolves to itself.
type echoAdapter struct {
	name string
}

func (e echoAdapter) Name() string { return e.name }

func (e echoAdapter) Search(_ context.Context, query, _ string) ([]model.Candidate, error) {
	return []model.Candidate{{Name: query, Retailer: e.name, Price: model.Ptr(5.0)}}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	records   []model.PriceRecord
	altQuery  string
	altRanked []model.RankedAlternative
	altCalls  int
	appendErr error
	altErr    error
}

func (f *fakeStore) AppendPriceRecord(_ context.Context, rec model.PriceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) LogAlternatives(_ context.Context, query, _ string, _ time.Time, alts []model.RankedAlternative) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.altCalls++
	if f.altErr != nil {
		return f.altErr
	}
	f.altQuery = query
	f.altRanked = alts
	return nil
}

func (f *fakeStore) QueryHistory(context.Context, string, store.HistoryFilter) ([]model.PriceRecord, error) {
	return nil, nil
}

func (f *fakeStore) ListTrackedProducts(context.Context) ([]model.ProductSummary, error) {
	return nil, nil
}

func (f *fakeStore) DeleteProductHistory(context.Context, string, string) (int, error) {
	return 0, nil
}

func (f *fakeStore) ClearAll(context.Context) error { return nil }

func (f *fakeStore) AlternativesFor(context.Context, string, store.HistoryFilter) ([]model.AlternativeRecord, error) {
	return nil, nil
}

func (f *fakeStore) AddFavorite(context.Context, string, string) (bool, error) { return false, nil }

func (f *fakeStore) ListFavorites(context.Context) ([]model.Favorite, error) { return nil, nil }

func (f *fakeStore) RemoveFavorite(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStore) Stats(context.Context) (*store.Stats, error) { return &store.Stats{}, nil }

func (f *fakeStore) Migrate(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Matcher == nil {
		opts.Matcher = match.New(config.MatchConfig{})
	}
	if opts.Checker.Concurrency == 0 {
		opts.Checker.Concurrency = 4
	}
	return New(opts)
}

func TestCheckItemsBestMatchAndSavings(t *testing.T) {
	api := &fakeAdapter{
		name: "woolworths",
		candidates: []model.Candidate{
			{
				Name:     "Olive Oil 1L",
				Retailer: "woolworths",
				Price:    model.Ptr(10.0),
				OnSale:   true,
				Was:      model.Ptr(12.0),
			},
			{
				Name:     "Olive Oil 2L",
				Retailer: "woolworths",
				Price:    model.Ptr(7.5),
			},
		},
	}
	svc := newTestService(t, Options{
		Retailers: []Retailer{{API: api}},
	})

	resp, err := svc.CheckItems(context.Background(), []string{"olive oil 1l"}, "2000")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.ItemsChecked)
	assert.Equal(t, "2000", resp.Postcode)

	res := resp.Results[0]
	require.NotNil(t, res.BestMatch)
	assert.Equal(t, "Olive Oil 1L", *res.BestMatch)
	assert.True(t, res.OnSale)
	require.NotNil(t, res.Price)
	assert.InDelta(t, 10.0, *res.Price, 1e-9)
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, "Olive Oil 2L", res.Alternatives[0].Name)

	require.Len(t, res.PotentialSavings, 1)
	saving := res.PotentialSavings[0]
	assert.Equal(t, "Olive Oil 2L", saving.Alternative)
	assert.InDelta(t, 10.0, saving.CurrentPrice, 1e-9)
	assert.InDelta(t, 7.5, saving.AlternativePrice, 1e-9)
	assert.InDelta(t, 2.5, saving.Savings, 1e-9)
	assert.InDelta(t, 25.0, saving.Percentage, 1e-9)
}

func TestFallbackOnlyWhenAPIEmpty(t *testing.T) {
	t.Run("api succeeds", func(t *testing.T) {
		api := &fakeAdapter{
			name:       "woolworths",
			candidates: []model.Candidate{{Name: "Penne Pasta 500g", Retailer: "woolworths", Price: model.Ptr(2.0)}},
		}
		fallback := &fakeAdapter{name: "woolworths"}
		svc := newTestService(t, Options{
			Retailers:     []Retailer{{API: api, Fallback: fallback}},
			ScrapeEnabled: true,
		})

		resp, err := svc.CheckItems(context.Background(), []string{"penne pasta 500g"}, "2000")
		require.NoError(t, err)
		assert.Equal(t, 1, api.callCount())
		assert.Equal(t, 0, fallback.callCount())
		require.NotNil(t, resp.Results[0].BestMatch)
	})

	t.Run("api empty", func(t *testing.T) {
		api := &fakeAdapter{name: "woolworths"}
		fallback := &fakeAdapter{
			name:       "woolworths",
			candidates: []model.Candidate{{Name: "Penne Pasta 500g", Retailer: "woolworths", Price: model.Ptr(2.0)}},
		}
		svc := newTestService(t, Options{
			Retailers:     []Retailer{{API: api, Fallback: fallback}},
			ScrapeEnabled: true,
		})

		resp, err := svc.CheckItems(context.Background(), []string{"penne pasta 500g"}, "2000")
		require.NoError(t, err)
		assert.Equal(t, 1, api.callCount())
		assert.Equal(t, 1, fallback.callCount())
		require.NotNil(t, resp.Results[0].BestMatch)
		assert.Equal(t, "Penne Pasta 500g", *resp.Results[0].BestMatch)
	})

	t.Run("scraping disabled", func(t *testing.T) {
		api := &fakeAdapter{name: "woolworths"}
		fallback := &fakeAdapter{
			name:       "woolworths",
			candidates: []model.Candidate{{Name: "Penne Pasta 500g", Retailer: "woolworths", Price: model.Ptr(2.0)}},
		}
		svc := newTestService(t, Options{
			Retailers:     []Retailer{{API: api, Fallback: fallback}},
			ScrapeEnabled: false,
		})

		resp, err := svc.CheckItems(context.Background(), []string{"penne pasta 500g"}, "2000")
		require.NoError(t, err)
		assert.Equal(t, 0, fallback.callCount())
		assert.Nil(t, resp.Results[0].BestMatch)
	})
}

func TestFallbackErrorResolvesToNoMatch(t *testing.T) {
	api := &fakeAdapter{name: "woolworths"}
	fallback := &fakeAdapter{name: "woolworths", err: errors.New("browser crashed")}
	svc := newTestService(t, Options{
		Retailers:     []Retailer{{API: api, Fallback: fallback}},
		ScrapeEnabled: true,
	})

	resp, err := svc.CheckItems(context.Background(), []string{"milk"}, "2000")
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.callCount())
	res := resp.Results[0]
	assert.Nil(t, res.BestMatch)
	assert.Nil(t, res.Price)
	assert.Empty(t, res.Alternatives)
}

func TestCachedResultSkipsAdapters(t *testing.T) {
	api := &fakeAdapter{name: "woolworths"}
	fallback := &fakeAdapter{name: "woolworths"}
	resultCache := cache.New(config.CacheConfig{TTLMinutes: 10, MaxEntries: 100})
	resultCache.Put("woolworths", "unicorn tears", "2000", nil)

	svc := newTestService(t, Options{
		Retailers:     []Retailer{{API: api, Fallback: fallback}},
		Cache:         resultCache,
		ScrapeEnabled: true,
	})

	resp, err := svc.CheckItems(context.Background(), []string{"unicorn tears"}, "2000")
	require.NoError(t, err)
	assert.Equal(t, 0, api.callCount())
	assert.Equal(t, 0, fallback.callCount())
	assert.Nil(t, resp.Results[0].BestMatch)
}

func TestResultsCachedAfterAcquisition(t *testing.T) {
	api := &fakeAdapter{
		name:       "woolworths",
		candidates: []model.Candidate{{Name: "Greek Yoghurt 1kg", Retailer: "woolworths", Price: model.Ptr(6.0)}},
	}
	resultCache := cache.New(config.CacheConfig{TTLMinutes: 10, MaxEntries: 100})
	svc := newTestService(t, Options{
		Retailers: []Retailer{{API: api}},
		Cache:     resultCache,
	})

	_, err := svc.CheckItems(context.Background(), []string{"greek yoghurt 1kg"}, "2000")
	require.NoError(t, err)
	_, err = svc.CheckItems(context.Background(), []string{"greek yoghurt 1kg"}, "2000")
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount(), "second check should be served from cache")
}

func TestCircuitOpenSkipsAPIPath(t *testing.T) {
	api := &fakeAdapter{name: "woolworths", err: errors.New("connection refused")}
	fallback := &fakeAdapter{
		name:       "woolworths",
		candidates: []model.Candidate{{Name: "Butter 250g", Retailer: "woolworths", Price: model.Ptr(4.5)}},
	}
	svc := newTestService(t, Options{
		Retailers:     []Retailer{{API: api, Fallback: fallback}},
		Circuit:       config.CircuitConfig{FailureThreshold: 1, CooldownSecs: 3600},
		ScrapeEnabled: true,
	})

	// First check trips the breaker.
	_, err := svc.CheckItems(context.Background(), []string{"butter 250g"}, "2000")
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount())

	// Second check skips the API entirely but still resolves via fallback.
	resp, err := svc.CheckItems(context.Background(), []string{"butter"}, "2000")
	require.NoError(t, err)
	assert.Equal(t, 1, api.callCount())
	assert.Equal(t, 2, fallback.callCount())
	require.NotNil(t, resp.Results[0].BestMatch)
	assert.Equal(t, "Butter 250g", *resp.Results[0].BestMatch)
}

// sparseAdapter answers only queries present in its catalogue; every
// other query gets a healthy empty result.
type sparseAdapter struct {
	name      string
	catalogue map[string][]model.Candidate
	calls     int32
}

func (s *sparseAdapter) Name() string { return s.name }

func (s *sparseAdapter) Search(_ context.Context, query, _ string) ([]model.Candidate, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.catalogue[query], nil
}

func TestEmptyResultsDoNotTripBreaker(t *testing.T) {
	api := &sparseAdapter{
		name: "woolworths",
		catalogue: map[string][]model.Candidate{
			"butter 250g": {{Name: "Butter 250g", Retailer: "woolworths", Price: model.Ptr(4.5)}},
		},
	}
	svc := newTestService(t, Options{Retailers: []Retailer{{API: api}}})

	// Enough no-match queries to reach the default failure threshold if
	// empty responses were counted as failures.
	misses := []string{"unicorn tears", "dragon eggs", "phoenix feathers", "moon cheese", "stardust"}
	_, err := svc.CheckItems(context.Background(), misses, "2000")
	require.NoError(t, err)
	assert.Equal(t, len(misses), int(atomic.LoadInt32(&api.calls)))

	resp, err := svc.CheckItems(context.Background(), []string{"butter 250g"}, "2000")
	require.NoError(t, err)
	assert.Equal(t, len(misses)+1, int(atomic.LoadInt32(&api.calls)), "circuit must stay closed after empty results")
	require.NotNil(t, resp.Results[0].BestMatch)
	assert.Equal(t, "Butter 250g", *resp.Results[0].BestMatch)
}

func TestBatchPreservesInputOrder(t *testing.T) {
	retailers := []Retailer{
		{API: echoAdapter{name: "woolworths"}},
		{API: echoAdapter{name: "coles"}},
	}
	svc := newTestService(t, Options{
		Retailers: retailers,
		Checker:   config.CheckerConfig{Concurrency: 8},
	})

	items := []string{"milk", "bread", "eggs", "butter", "cheese"}
	resp, err := svc.CheckItems(context.Background(), items, "3000")
	require.NoError(t, err)
	require.Len(t, resp.Results, len(items)*2)
	assert.Equal(t, len(items), resp.ItemsChecked)

	for i, item := range items {
		for j, name := range []string{"woolworths", "coles"} {
			res := resp.Results[i*2+j]
			assert.Equal(t, item, res.Input)
			assert.Equal(t, name, res.Retailer)
			require.NotNil(t, res.BestMatch)
			assert.Equal(t, item, *res.BestMatch)
		}
	}
}

func TestSingleCandidateRecordedOnce(t *testing.T) {
	api := &fakeAdapter{
		name: "woolworths",
		candidates: []model.Candidate{{
			Name:     "Full Cream Milk 2L",
			Retailer: "woolworths",
			Price:    model.Ptr(4.5),
			Was:      model.Ptr(5.0),
			OnSale:   true,
		}},
	}
	st := &fakeStore{}
	svc := newTestService(t, Options{
		Retailers: []Retailer{{API: api}},
		Store:     st,
	})

	resp, err := svc.CheckItems(context.Background(), []string{"milk 2l"}, "2000")
	require.NoError(t, err)

	res := resp.Results[0]
	require.NotNil(t, res.BestMatch)
	assert.Equal(t, "Full Cream Milk 2L", *res.BestMatch)
	assert.True(t, res.OnSale)
	require.NotNil(t, res.Price)
	assert.InDelta(t, 4.5, *res.Price, 1e-9)
	require.NotNil(t, res.Was)
	assert.InDelta(t, 5.0, *res.Was, 1e-9)
	assert.Empty(t, res.Alternatives)

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.records, 1)
	assert.Equal(t, "Full Cream Milk 2L", st.records[0].ProductName)
	assert.True(t, st.records[0].OnSale)
	assert.Equal(t, 0, st.altCalls, "no alternatives, nothing to log")
}

func TestNoMatchWritesNoHistory(t *testing.T) {
	api := &fakeAdapter{name: "woolworths"}
	st := &fakeStore{}
	svc := newTestService(t, Options{
		Retailers: []Retailer{{API: api}},
		Store:     st,
	})

	resp, err := svc.CheckItems(context.Background(), []string{"milk 2l"}, "2000")
	require.NoError(t, err)

	res := resp.Results[0]
	assert.Nil(t, res.BestMatch)
	assert.Nil(t, res.Price)
	assert.Nil(t, res.Was)

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.records)
	assert.Equal(t, 0, st.altCalls)
}

func TestHistoryRecorded(t *testing.T) {
	api := &fakeAdapter{
		name: "woolworths",
		candidates: []model.Candidate{
			{Name: "Olive Oil 1L", Retailer: "woolworths", Price: model.Ptr(10.0)},
			{Name: "Olive Oil 2L", Retailer: "woolworths", Price: model.Ptr(16.0)},
		},
	}
	st := &fakeStore{}
	svc := newTestService(t, Options{
		Retailers: []Retailer{{API: api}},
		Store:     st,
	})

	_, err := svc.CheckItems(context.Background(), []string{"olive oil 1l"}, "2000")
	require.NoError(t, err)

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.records, 2, "best match and priced alternative each get a row")
	assert.Equal(t, "Olive Oil 1L", st.records[0].ProductName)
	assert.Equal(t, "Olive Oil 2L", st.records[1].ProductName)

	assert.Equal(t, 1, st.altCalls)
	assert.Equal(t, "olive oil 1l", st.altQuery)
	require.Len(t, st.altRanked, 1)
	assert.Equal(t, 1, st.altRanked[0].Rank)
	assert.Equal(t, "Olive Oil 2L", st.altRanked[0].Name)
}

func TestHistoryErrorsAreNonFatal(t *testing.T) {
	api := &fakeAdapter{
		name: "woolworths",
		candidates: []model.Candidate{
			{Name: "Olive Oil 1L", Retailer: "woolworths", Price: model.Ptr(10.0)},
			{Name: "Olive Oil 2L", Retailer: "woolworths", Price: model.Ptr(16.0)},
		},
	}
	st := &fakeStore{appendErr: errors.New("disk full"), altErr: errors.New("disk full")}
	svc := newTestService(t, Options{
		Retailers: []Retailer{{API: api}},
		Store:     st,
	})

	resp, err := svc.CheckItems(context.Background(), []string{"olive oil 1l"}, "2000")
	require.NoError(t, err)
	require.NotNil(t, resp.Results[0].BestMatch)
	assert.Equal(t, "Olive Oil 1L", *resp.Results[0].BestMatch)
}

func TestMaxAlternativesCap(t *testing.T) {
	candidates := make([]model.Candidate, 0, 6)
	names := []string{
		"Penne Pasta 500g", "Penne Pasta 250g", "Penne Pasta 1kg",
		"Spiral Pasta 500g", "Shell Pasta 500g", "Macaroni Pasta 500g",
	}
	for _, n := range names {
		candidates = append(candidates, model.Candidate{Name: n, Retailer: "woolworths", Price: model.Ptr(2.0)})
	}
	api := &fakeAdapter{name: "woolworths", candidates: candidates}
	svc := newTestService(t, Options{
		Retailers:       []Retailer{{API: api}},
		MaxAlternatives: 3,
	})

	resp, err := svc.CheckItems(context.Background(), []string{"penne pasta 500g"}, "2000")
	require.NoError(t, err)
	res := resp.Results[0]
	require.NotNil(t, res.BestMatch)
	assert.LessOrEqual(t, len(res.Alternatives), 2, "best match plus alternatives stay within the cap")
}
