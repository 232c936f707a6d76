package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/grocerpal/salewatch/internal/model"
	"github.com/grocerpal/salewatch/internal/resilience"
)

const (
	colesName    = "coles"
	colesSite    = "https://www.coles.com.au"
	colesAPIBase = "https://www.coles.com.au/api"

	colesPageSize = 48
)

var colesHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/json",
	"Accept-Language": "en-AU,en;q=0.9",
	"Referer":         "https://www.coles.com.au/search",
}

// Coles searches the Coles product API.
type Coles struct {
	engine  *resilience.Engine
	apiBase string
	site    string
}

// ColesOption configures a Coles adapter.
type ColesOption func(*Coles)

// WithColesAPIBase overrides the API base URL. Used in tests.
func WithColesAPIBase(base string) ColesOption {
	return func(c *Coles) {
		c.apiBase = base
	}
}

// NewColes creates a Coles adapter backed by the given engine.
func NewColes(engine *resilience.Engine, opts ...ColesOption) *Coles {
	c := &Coles{
		engine:  engine,
		apiBase: colesAPIBase,
		site:    colesSite,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Adapter.
func (c *Coles) Name() string { return colesName }

// Search implements Adapter.
func (c *Coles) Search(ctx context.Context, query, postcode string) ([]model.Candidate, error) {
	data, ok := c.engine.FetchJSON(ctx, resilience.Request{
		URL: c.apiBase + "/products/search",
		Params: url.Values{
			"q":        {query},
			"postcode": {postcode},
			"page":     {"1"},
			"pageSize": {fmt.Sprint(colesPageSize)},
			"sortBy":   {"salesDescription"},
		},
		Headers:  colesHeaders,
		Retailer: colesName,
		Query:    query,
		Postcode: postcode,
	})
	if !ok {
		return nil, ErrUnavailable
	}

	var candidates []model.Candidate
	data.Get("results").ForEach(func(_, product gjson.Result) bool {
		if cand, ok := c.parseProduct(product); ok {
			candidates = append(candidates, cand)
		}
		return true
	})

	zap.L().Debug("api search parsed",
		zap.String("retailer", colesName),
		zap.String("query", query),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (c *Coles) parseProduct(p gjson.Result) (model.Candidate, bool) {
	name := p.Get("name").String()
	if name == "" {
		return model.Candidate{}, false
	}
	if brand := p.Get("brand").String(); brand != "" && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(brand)) {
		name = brand + " " + name
	}
	if size := p.Get("size").String(); size != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(size)) {
		name = strings.TrimSpace(name + " " + size)
	}

	cand := model.Candidate{
		Name:        name,
		DisplayName: name,
		Retailer:    colesName,
	}

	id := p.Get("id").String()
	if id != "" {
		cand.Stockcode = id
		cand.Name = fmt.Sprintf("%s [COL:%s]", name, id)
		cand.URL = model.Ptr(fmt.Sprintf("%s/product/%s", c.site, id))
	}

	pricing := p.Get("pricing")
	if now := pricing.Get("now"); now.Exists() && now.Type != gjson.Null {
		cand.Price = model.Ptr(now.Float())
	} else if comparable := pricing.Get("comparable"); comparable.Exists() && comparable.Type != gjson.Null {
		cand.Price = model.Ptr(comparable.Float())
	}
	if was := pricing.Get("was"); was.Exists() && was.Float() > 0 && (cand.Price == nil || was.Float() != *cand.Price) {
		cand.Was = model.Ptr(was.Float())
	}

	if promo := pricing.Get("promotionDescription").String(); promo != "" {
		cand.PromoText = model.Ptr(promo)
	} else if saveAmount := pricing.Get("saveAmount").Float(); saveAmount > 0 {
		cand.PromoText = model.Ptr(fmt.Sprintf("Save $%.2f", saveAmount))
	}

	promoFlag := p.Get("onSpecial").Bool() || pricing.Get("onSpecial").Bool()
	cand.OnSale = onSale(promoFlag, cand.Price, cand.Was, cand.PromoText)

	if avail := p.Get("availability"); avail.Exists() {
		cand.InStock = model.Ptr(avail.Bool())
	}

	return cand, true
}
