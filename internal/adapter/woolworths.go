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
	woolworthsName    = "woolworths"
	woolworthsSite    = "https://www.woolworths.com.au"
	woolworthsAPIBase = "https://www.woolworths.com.au/apis/ui"

	// The API refuses larger pages.
	woolworthsPageSize = 36
)

var woolworthsHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-AU,en;q=0.9",
	"Referer":         "https://www.woolworths.com.au/shop/search/products",
	"Origin":          "https://www.woolworths.com.au",
}

// Woolworths searches the Woolworths product API.
type Woolworths struct {
	engine  *resilience.Engine
	apiBase string
	site    string
}

// WoolworthsOption configures a Woolworths adapter.
type WoolworthsOption func(*Woolworths)

// WithWoolworthsAPIBase overrides the API base URL. Used in tests.
func WithWoolworthsAPIBase(base string) WoolworthsOption {
	return func(w *Woolworths) {
		w.apiBase = base
	}
}

// NewWoolworths creates a Woolworths adapter backed by the given engine.
func NewWoolworths(engine *resilience.Engine, opts ...WoolworthsOption) *Woolworths {
	w := &Woolworths{
		engine:  engine,
		apiBase: woolworthsAPIBase,
		site:    woolworthsSite,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Adapter.
func (w *Woolworths) Name() string { return woolworthsName }

// Search implements Adapter. An unreachable API returns ErrUnavailable so
// the caller can count the outage against the source.
func (w *Woolworths) Search(ctx context.Context, query, postcode string) ([]model.Candidate, error) {
	data, ok := w.engine.FetchJSON(ctx, resilience.Request{
		URL: w.apiBase + "/Search/products",
		Params: url.Values{
			"searchTerm": {query},
			"postcode":   {postcode},
			"pageNumber": {"1"},
			"pageSize":   {fmt.Sprint(woolworthsPageSize)},
			"sortType":   {"Relevance"},
		},
		Headers:  woolworthsHeaders,
		Retailer: woolworthsName,
		Query:    query,
		Postcode: postcode,
	})
	if !ok {
		return nil, ErrUnavailable
	}

	var candidates []model.Candidate
	// The response nests a Products array inside each Products group.
	data.Get("Products").ForEach(func(_, group gjson.Result) bool {
		group.Get("Products").ForEach(func(_, product gjson.Result) bool {
			if c, ok := w.parseProduct(product); ok {
				candidates = append(candidates, c)
			}
			return true
		})
		return true
	})

	zap.L().Debug("api search parsed",
		zap.String("retailer", woolworthsName),
		zap.String("query", query),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (w *Woolworths) parseProduct(p gjson.Result) (model.Candidate, bool) {
	rawName := p.Get("DisplayName").String()
	if rawName == "" {
		rawName = p.Get("Name").String()
	}
	if rawName == "" {
		return model.Candidate{}, false
	}

	size := p.Get("PackageSize").String()
	if size == "" {
		size = p.Get("Size").String()
	}

	displayName := rawName
	if size != "" && !strings.Contains(strings.ToLower(rawName), strings.ToLower(size)) {
		displayName = strings.TrimSpace(rawName + " " + size)
	}

	// The stockcode suffix keeps different package sizes of the same
	// product distinct in cache keys and price history.
	name := displayName
	stockcode := p.Get("Stockcode").String()
	if stockcode != "" && stockcode != "0" {
		name = fmt.Sprintf("%s [WOW:%s]", displayName, stockcode)
	}

	c := model.Candidate{
		Name:        name,
		DisplayName: displayName,
		Stockcode:   stockcode,
		Retailer:    woolworthsName,
	}

	if price := p.Get("Price"); price.Exists() && price.Type != gjson.Null {
		c.Price = model.Ptr(price.Float())
	}
	if was := p.Get("WasPrice"); was.Exists() && was.Float() > 0 && (c.Price == nil || was.Float() != *c.Price) {
		c.Was = model.Ptr(was.Float())
	}

	if savings := p.Get("SavingsAmount").Float(); savings > 0 {
		c.PromoText = model.Ptr(fmt.Sprintf("Save $%.2f", savings))
	}

	promoFlag := p.Get("IsOnSpecial").Bool() || p.Get("IsHalfPrice").Bool()
	c.OnSale = onSale(promoFlag, c.Price, c.Was, c.PromoText)

	if stockcode != "" && stockcode != "0" {
		c.URL = model.Ptr(fmt.Sprintf("%s/shop/productdetails/%s/%s",
			w.site, stockcode, p.Get("UrlFriendlyName").String()))
	}

	if avail := p.Get("IsAvailable"); avail.Exists() {
		c.InStock = model.Ptr(avail.Bool())
	} else if inStock := p.Get("IsInStock"); inStock.Exists() {
		c.InStock = model.Ptr(inStock.Bool())
	}

	return c, true
}

// onSale applies the uniform sale rule: an explicit promo flag, a strike
// price above the current price, or any promo text.
func onSale(promoFlag bool, price, was *float64, promoText *string) bool {
	if promoFlag {
		return true
	}
	if price != nil && was != nil && *price < *was {
		return true
	}
	return promoText != nil && *promoText != ""
}
