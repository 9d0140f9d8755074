package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/utils"
)

// fakeLoader serves canned pages in call order, recording every requested
// URL, in the same spirit as the orchestrator's gateway fakes.
type fakeLoader struct {
	pages []string
	urls  []string
	err   error
	errOn int // 1-based call index that fails; 0 never fails
}

func (f *fakeLoader) load(_ context.Context, url string) (*goquery.Document, error) {
	f.urls = append(f.urls, url)
	call := len(f.urls)
	if f.errOn != 0 && call == f.errOn {
		return nil, f.err
	}
	if call > len(f.pages) {
		return nil, fmt.Errorf("unexpected load %d of %s", call, url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(f.pages[call-1]))
}

func testNavigator(loader *fakeLoader, maxPages int) *Navigator {
	n := NewNavigator(nil, nil, &NavigatorConfig{
		BaseURL:           "https://www.example.com",
		MaxPages:          maxPages,
		ItemsPerPage:      50,
		RequestDelay:      time.Millisecond,
		RequestJitter:     0,
		NavigationTimeout: time.Second,
	}, testLogger(), rand.New(rand.NewSource(1)))
	n.loader = loader.load
	return n
}

func tilesWithIDs(count, offset int) []string {
	tiles := make([]string, 0, count)
	for i := 0; i < count; i++ {
		tiles = append(tiles, strings.Replace(fixedPriceTile,
			"/itm/987654321098", fmt.Sprintf("/itm/77%010d", offset+i), 1))
	}
	return tiles
}

func TestSearchKeywordStopsOnEmptyPage(t *testing.T) {
	// A full first page followed by an empty second page: all first-page
	// records come back and no third page is requested.
	loader := &fakeLoader{pages: []string{
		resultsPage(tilesWithIDs(50, 0)...),
		`<html><body><ul class="srp-results"></ul><a class="pagination__next" href="#">Next</a></body></html>`,
	}}
	n := testNavigator(loader, 5)

	records, err := n.SearchKeyword(context.Background(), "widget", domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(records) != 50 {
		t.Errorf("records = %d, want 50", len(records))
	}
	if len(loader.urls) != 2 {
		t.Errorf("page loads = %d, want 2", len(loader.urls))
	}
}

func TestSearchKeywordHonorsPageCap(t *testing.T) {
	// Every page is full and advertises a next control; only the cap stops
	// the walk.
	loader := &fakeLoader{pages: []string{
		resultsPage(tilesWithIDs(3, 0)...),
		resultsPage(tilesWithIDs(3, 100)...),
		resultsPage(tilesWithIDs(3, 200)...),
	}}
	n := testNavigator(loader, 3)

	records, err := n.SearchKeyword(context.Background(), "widget", domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(loader.urls) != 3 {
		t.Fatalf("page loads = %d, want exactly 3", len(loader.urls))
	}
	if len(records) != 9 {
		t.Errorf("records = %d, want 9", len(records))
	}

	if strings.Contains(loader.urls[0], "_pgn") {
		t.Errorf("first page URL carries _pgn: %s", loader.urls[0])
	}
	for i, want := range []string{"_pgn=2", "_pgn=3"} {
		if !strings.Contains(loader.urls[i+1], want) {
			t.Errorf("load %d URL = %s, want it to carry %s", i+2, loader.urls[i+1], want)
		}
	}
}

func TestSearchKeywordStopsOnDisabledNext(t *testing.T) {
	last := `<html><body><ul class="srp-results">` +
		strings.Join(tilesWithIDs(2, 0), "\n") +
		`</ul><a class="pagination__next" aria-disabled="true">Next</a></body></html>`
	loader := &fakeLoader{pages: []string{last}}
	n := testNavigator(loader, 5)

	records, err := n.SearchKeyword(context.Background(), "widget", domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(loader.urls) != 1 {
		t.Errorf("page loads = %d, want 1", len(loader.urls))
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}

func TestSearchKeywordPropagatesTransportFailure(t *testing.T) {
	loader := &fakeLoader{
		pages: []string{resultsPage(tilesWithIDs(2, 0)...)},
		err:   utils.NewError(utils.ErrCodeNavigationTimeout, "page load timed out"),
		errOn: 2,
	}
	n := testNavigator(loader, 5)

	records, err := n.SearchKeyword(context.Background(), "widget", domain.SearchFilters{})
	if err == nil {
		t.Fatal("expected the transport failure to surface")
	}
	if !utils.IsRetryable(err) {
		t.Errorf("error %v should be retryable", err)
	}
	// Records from pages loaded before the failure are still returned.
	if len(records) != 2 {
		t.Errorf("records = %d, want 2 from the first page", len(records))
	}
}

func TestPacingAppliedOnce(t *testing.T) {
	n := NewNavigator(nil, nil, &NavigatorConfig{
		BaseURL:       "https://www.example.com",
		MaxPages:      2,
		RequestDelay:  time.Hour,
		RequestJitter: 0,
	}, testLogger(), rand.New(rand.NewSource(1)))

	// The base delay lives in the limiter alone; with zero jitter, pause
	// must return without sleeping.
	if got, want := n.limiter.Limit(), rate.Every(time.Hour); got != want {
		t.Errorf("limiter rate = %v, want %v", got, want)
	}
	start := time.Now()
	n.pause(context.Background())
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("pause slept %v with zero jitter; base delay is being applied twice", elapsed)
	}
}

func TestZeroDelayDisablesLimiter(t *testing.T) {
	n := NewNavigator(nil, nil, &NavigatorConfig{BaseURL: "x", MaxPages: 1}, testLogger(), nil)
	if n.limiter.Limit() != rate.Inf {
		t.Errorf("limiter rate = %v, want unlimited for zero delay", n.limiter.Limit())
	}
}
