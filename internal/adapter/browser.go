package adapter

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/grocerpal/salewatch/internal/config"
	"github.com/grocerpal/salewatch/internal/model"
	"github.com/grocerpal/salewatch/internal/resilience"
)

const browserResultLimit = 24

// Retailer pages render the same data under a few different markups, so
// each field tries an ordered selector list and takes the first hit.
var (
	tileSelectors = []string{
		`[data-testid="product-tile"]`,
		".product-tile",
		".product-item",
		".search-result-item",
	}
	nameSelectors = []string{
		`[data-testid="product-title"]`,
		".product-title",
		"h3",
		".title",
	}
	priceSelectors = []string{
		`[data-testid="price-dollars"]`,
		".price-dollars",
		".current-price",
		".price",
	}
	wasSelectors = []string{
		`[data-testid="was-price"]`,
		".was-price",
		".strikethrough-price",
	}
	promoSelectors = []string{
		`[data-testid="product-badge"]`,
		".product-badge",
		".promotion-text",
		".special-offer",
	}
)

var priceRe = regexp.MustCompile(`(\d+(?:\.\d{1,2})?)`)

// BrowserFallback scrapes the retailer's public search page with a real
// browser when the API path returns nothing. A fresh headless browser is
// launched per search and always closed, so a wedged page never leaks a
// Chromium process.
type BrowserFallback struct {
	cfg      config.ScrapeConfig
	retailer string
	site     string
}

// NewBrowserFallback creates the scraping fallback for a retailer site.
func NewBrowserFallback(cfg config.ScrapeConfig, retailer, site string) *BrowserFallback {
	return &BrowserFallback{cfg: cfg, retailer: retailer, site: site}
}

// NewWoolworthsFallback creates the browser fallback for Woolworths.
func NewWoolworthsFallback(cfg config.ScrapeConfig) *BrowserFallback {
	return NewBrowserFallback(cfg, woolworthsName, woolworthsSite)
}

// Name implements Adapter.
func (b *BrowserFallback) Name() string { return b.retailer }

// Search implements Adapter. Scrape failures are reported as errors; the
// caller already treats a failed fallback as "no candidates".
func (b *BrowserFallback) Search(ctx context.Context, query, postcode string) ([]model.Candidate, error) {
	log := zap.L().With(
		zap.String("retailer", b.retailer),
		zap.String("query", query),
		zap.String("postcode", postcode),
		zap.String("strategy", "browser"),
	)
	log.Info("starting browser fallback search")

	l := launcher.New().
		Headless(b.cfg.Headless).
		NoSandbox(true).
		Leakless(false)
	if b.cfg.BrowserBin != "" {
		l = l.Bin(b.cfg.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, eris.Wrap(err, "browser: connect")
	}
	defer browser.Close()

	timeout := b.cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	searchURL := b.site + "/shop/search/products?searchTerm=" + url.QueryEscape(query)

	// One extra pass on a fresh page covers flaky first loads; anything
	// beyond that is the site refusing us, not transience.
	var candidates []model.Candidate
	scrapeErr := resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Second,
		ShouldRetry:    func(error) bool { return ctx.Err() == nil },
		OnRetry: func(attempt int, err error) {
			log.Warn("retrying scrape on a fresh page",
				zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func(ctx context.Context) error {
		candidates = candidates[:0]
		return rod.Try(func() {
			page := browser.MustPage().Timeout(timeout)
			defer page.MustClose()

			page.MustSetViewport(1920, 1080, 1.0, false)
			page.MustNavigate(searchURL)
			page.MustWaitLoad()

			b.dismissLocationPopup(page, postcode)

			tiles := b.findTiles(page)
			for i, tile := range tiles {
				if i >= browserResultLimit {
					break
				}
				if c, ok := b.extractCandidate(tile); ok {
					candidates = append(candidates, c)
				}
			}
		})
	})
	if scrapeErr != nil {
		return nil, eris.Wrapf(scrapeErr, "browser: scrape %s", b.retailer)
	}

	log.Info("browser fallback search finished", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// dismissLocationPopup fills the postcode prompt if the site raises one.
// Absence of the popup is the normal case.
func (b *BrowserFallback) dismissLocationPopup(page *rod.Page, postcode string) {
	_ = rod.Try(func() {
		popup := page.Timeout(3 * time.Second).MustElement(`[data-testid="postcode-popup"], .location-popup`)
		field := popup.MustElement(`input`)
		field.MustInput(postcode)
		field.MustType(input.Enter)
		time.Sleep(2 * time.Second)
	})
}

func (b *BrowserFallback) findTiles(page *rod.Page) []*rod.Element {
	for _, sel := range tileSelectors {
		var tiles []*rod.Element
		err := rod.Try(func() {
			tiles = page.Timeout(10 * time.Second).MustElements(sel)
		})
		if err == nil && len(tiles) > 0 {
			zap.L().Debug("found product tiles",
				zap.String("selector", sel), zap.Int("count", len(tiles)))
			return tiles
		}
	}
	return nil
}

func (b *BrowserFallback) extractCandidate(tile *rod.Element) (model.Candidate, bool) {
	name := firstText(tile, nameSelectors)
	if name == "" {
		return model.Candidate{}, false
	}

	c := model.Candidate{
		Name:        name,
		DisplayName: name,
		Retailer:    b.retailer,
	}
	c.Price = extractPrice(firstText(tile, priceSelectors))
	c.Was = extractPrice(firstText(tile, wasSelectors))
	if promo := firstText(tile, promoSelectors); promo != "" {
		c.PromoText = model.Ptr(promo)
	}

	_ = rod.Try(func() {
		href := tile.MustElement("a[href]").MustAttribute("href")
		if href != nil && *href != "" {
			u := *href
			if strings.HasPrefix(u, "/") {
				u = b.site + u
			}
			c.URL = model.Ptr(u)
		}
	})

	c.OnSale = onSale(false, c.Price, c.Was, c.PromoText)
	return c, true
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(tile *rod.Element, selectors []string) string {
	for _, sel := range selectors {
		var text string
		err := rod.Try(func() {
			text = tile.MustElement(sel).MustText()
		})
		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				return text
			}
		}
	}
	return ""
}

// extractPrice pulls the first decimal number out of a price label like
// "$5.50" or "now $3". Returns nil when no number is present.
func extractPrice(text string) *float64 {
	if text == "" {
		return nil
	}
	m := priceRe.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}
