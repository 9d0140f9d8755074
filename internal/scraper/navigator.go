package scraper

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/valpere/ListingScout/internal/browser"
	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/identity"
	"github.com/valpere/ListingScout/internal/monitoring"
	"github.com/valpere/ListingScout/internal/utils"
)

// resultsReadySelector marks a rendered result page. The container renders
// even for zero-result searches, so an empty result set is distinguishable
// from a page that never loaded.
const resultsReadySelector = ".srp-results"

// dismissInterstitialJS clicks through the consent or region interstitial
// when one is overlaid on the results. Best effort; absence is the normal
// case.
const dismissInterstitialJS = `
(() => {
  const labels = ['Accept all', 'Stay on', 'Ship to'];
  for (const btn of document.querySelectorAll('button, a')) {
    const text = (btn.textContent || '').trim();
    if (labels.some(l => text.startsWith(l))) { btn.click(); return true; }
  }
  return false;
})();`

// pageLoader fetches one rendered result page. The default loads through
// the browser session; tests substitute a canned implementation.
type pageLoader func(ctx context.Context, url string) (*goquery.Document, error)

// NavigatorConfig defines pagination and pacing behavior.
type NavigatorConfig struct {
	BaseURL      string
	MaxPages     int
	ItemsPerPage int
	// RequestDelay is the base inter-page delay; RequestJitter is added on
	// top as a random amount in [0, RequestJitter).
	RequestDelay      time.Duration
	RequestJitter     time.Duration
	NavigationTimeout time.Duration
}

// DefaultNavigatorConfig returns conservative pagination defaults.
func DefaultNavigatorConfig() *NavigatorConfig {
	return &NavigatorConfig{
		MaxPages:          5,
		ItemsPerPage:      60,
		RequestDelay:      2 * time.Second,
		RequestJitter:     1500 * time.Millisecond,
		NavigationTimeout: 30 * time.Second,
	}
}

// Navigator walks paginated search results for one keyword at a time,
// applying a fresh identity per search and pacing page loads. The base delay
// is enforced by the rate limiter; pause adds only the jitter, so the two
// never stack into a doubled delay.
type Navigator struct {
	session    *browser.Session
	identities *identity.Pool
	extractor  *Extractor
	cfg        *NavigatorConfig
	limiter    *rate.Limiter
	loader     pageLoader
	rng        *rand.Rand
	log        utils.Logger
}

// NewNavigator creates a navigator over a shared browser session. rng may be
// nil for the shared source.
func NewNavigator(session *browser.Session, identities *identity.Pool, cfg *NavigatorConfig, log utils.Logger, rng *rand.Rand) *Navigator {
	if cfg == nil {
		cfg = DefaultNavigatorConfig()
	}
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &Navigator{
		session:    session,
		identities: identities,
		extractor:  NewExtractor(log),
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		rng:        rng,
		log:        log,
	}
}

// SearchKeyword loads and extracts every result page for one keyword, up to
// the page cap. Pagination stops early when a page yields no listing nodes
// or carries no enabled next control. Transport failures surface as
// retryable errors; extraction anomalies do not fail the search.
func (n *Navigator) SearchKeyword(ctx context.Context, keyword string, filters domain.SearchFilters) ([]domain.ListingRecord, error) {
	loader := n.loader
	if loader == nil {
		if !n.session.Start(ctx) {
			return nil, utils.NewError(utils.ErrCodeBrowserFailed, "browser session unavailable")
		}

		tab, cancel, err := n.session.NewTab()
		if err != nil {
			return nil, err
		}
		defer cancel()

		if err := n.session.ApplyIdentity(tab, n.identities.Get()); err != nil {
			return nil, utils.NewError(utils.ErrCodeBrowserFailed, "failed to apply identity").WithCause(err)
		}

		loader = func(_ context.Context, url string) (*goquery.Document, error) {
			return n.loadPage(tab, url)
		}
	}

	log := n.log.WithField("keyword", keyword)

	var records []domain.ListingRecord
	for pageNum := 1; pageNum <= n.cfg.MaxPages; pageNum++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return records, err
		}

		url := BuildSearchURL(n.cfg.BaseURL, keyword, filters, pageNum, n.cfg.ItemsPerPage)
		doc, err := loader(ctx, url)
		if err != nil {
			return records, err
		}
		monitoring.PagesLoaded.Inc()

		page := n.extractor.ExtractPage(doc, time.Now())
		log.WithFields(map[string]interface{}{
			"page":      pageNum,
			"nodes":     page.Nodes,
			"records":   len(page.Records),
			"anomalies": len(page.Anomalies),
		}).Info("result page extracted")

		records = append(records, page.Records...)

		if page.Nodes == 0 {
			log.Debugf("page %d yielded no listings, stopping pagination", pageNum)
			break
		}
		if !HasNextPage(doc) {
			log.Debugf("no enabled next control on page %d, stopping pagination", pageNum)
			break
		}

		if pageNum < n.cfg.MaxPages {
			n.pause(ctx)
		}
	}

	return records, nil
}

// loadPage navigates one URL, waits for the rendered results and returns the
// parsed document. Failures are classified as timeout or connection errors,
// both transport-class and retryable.
func (n *Navigator) loadPage(tab context.Context, url string) (*goquery.Document, error) {
	navCtx, cancel := context.WithTimeout(tab, n.cfg.NavigationTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(dismissInterstitialJS, nil),
		chromedp.WaitVisible(resultsReadySelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		n.session.CaptureScreenshot(tab, "page_failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.NewError(utils.ErrCodeNavigationTimeout, "page load timed out: "+url).WithCause(err)
		}
		return nil, utils.NewError(utils.ErrCodeConnectionFailed, "page load failed: "+url).WithCause(err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, utils.NewError(utils.ErrCodeExtractionFailed, "failed to parse page HTML").WithCause(err)
	}
	return doc, nil
}

// pause sleeps the jitter portion of the inter-page delay, honoring
// cancellation. The base delay is the limiter's job.
func (n *Navigator) pause(ctx context.Context) {
	if n.cfg.RequestJitter <= 0 {
		return
	}
	var jitter time.Duration
	if n.rng != nil {
		jitter = time.Duration(n.rng.Int63n(int64(n.cfg.RequestJitter)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(n.cfg.RequestJitter)))
	}
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
