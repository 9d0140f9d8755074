package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/monitoring"
	"github.com/valpere/ListingScout/internal/utils"
)

// itmPattern extracts the item identifier from a listing's canonical URL.
var itmPattern = regexp.MustCompile(`/itm/(\d+)`)

// Anomaly records a non-fatal failure to extract one field of one listing.
// Anomalies are absorbed locally and recorded; they never abort extraction
// of the remaining fields or listings.
type Anomaly struct {
	Field  string
	ItemID string
	Raw    string
	Err    error
}

// FieldRule maps one record field to an ordered locator chain and a parser,
// so layout drift requires table edits rather than code changes.
type FieldRule struct {
	Field     string
	Selectors []string // tried in order; first hit wins
	Attr      string   // extract this attribute instead of text when set
	// AllowMissing suppresses the anomaly when no locator matches; absence
	// of optional page elements is expected, not exceptional.
	AllowMissing bool
	Apply        func(rec *domain.ListingRecord, raw string, now time.Time) error
}

// PageExtraction is the outcome of extracting one rendered result page.
type PageExtraction struct {
	Records   []domain.ListingRecord
	Anomalies []Anomaly
	// Nodes is the number of listing nodes the container yielded, before
	// ad-tile skipping and mandatory-field discards. Pagination stops on
	// zero.
	Nodes int
}

// Extractor converts rendered result pages into listing records using the
// rule table.
type Extractor struct {
	containers []string
	rules      []FieldRule
	log        utils.Logger
}

// NewExtractor creates an extractor with the default container chain and
// rule table.
func NewExtractor(log utils.Logger) *Extractor {
	return &Extractor{
		containers: defaultContainers(),
		rules:      defaultRules(),
		log:        log,
	}
}

// defaultContainers is the ordered two-tier container lookup; the fallback
// keeps minor layout variants from silently yielding zero results.
func defaultContainers() []string {
	return []string{
		"ul.srp-results li.s-item",
		"li.s-item",
	}
}

// ExtractPage enumerates listing nodes and extracts each field
// independently. Listings without an item identifier are discarded; every
// other failure degrades to an unset field plus an anomaly.
func (e *Extractor) ExtractPage(doc *goquery.Document, now time.Time) *PageExtraction {
	out := &PageExtraction{}

	var nodes *goquery.Selection
	for _, container := range e.containers {
		nodes = doc.Find(container)
		if nodes.Length() > 0 {
			break
		}
	}
	if nodes == nil || nodes.Length() == 0 {
		return out
	}
	out.Nodes = nodes.Length()

	nodes.Each(func(_ int, node *goquery.Selection) {
		// Sponsored tiles mimic listings but carry a tag block.
		if node.Find(".s-item__title--tagblock").Length() > 0 {
			return
		}

		rec := domain.ListingRecord{ListingType: domain.ListingUnknown}

		for _, rule := range e.rules {
			raw, found := lookup(node, rule)
			if !found {
				if !rule.AllowMissing {
					out.Anomalies = append(out.Anomalies, Anomaly{
						Field: rule.Field,
						Err:   fmt.Errorf("no locator in %v matched", rule.Selectors),
					})
					monitoring.ExtractionAnomalies.WithLabelValues(rule.Field).Inc()
				}
				continue
			}
			if err := rule.Apply(&rec, raw, now); err != nil {
				out.Anomalies = append(out.Anomalies, Anomaly{
					Field:  rule.Field,
					ItemID: rec.ItemID,
					Raw:    raw,
					Err:    err,
				})
				monitoring.ExtractionAnomalies.WithLabelValues(rule.Field).Inc()
			}
		}

		// The item identifier is the only mandatory field.
		if rec.ItemID == "" {
			out.Anomalies = append(out.Anomalies, Anomaly{
				Field: "item_id",
				Raw:   rec.ItemURL,
				Err:   fmt.Errorf("listing discarded: no item id in canonical URL"),
			})
			monitoring.ExtractionAnomalies.WithLabelValues("item_id").Inc()
			return
		}

		inferListingType(&rec)
		out.Records = append(out.Records, rec)
	})

	monitoring.ListingsExtracted.Add(float64(len(out.Records)))

	for _, a := range out.Anomalies {
		e.log.WithFields(map[string]interface{}{
			"field":   a.Field,
			"item_id": a.ItemID,
		}).Debugf("extraction anomaly: %v", a.Err)
	}

	return out
}

// inferListingType applies the listing-type inference: bids imply auction,
// otherwise a buy-it-now indicator implies fixed price.
func inferListingType(rec *domain.ListingRecord) {
	switch {
	case rec.BidsCount > 0:
		rec.ListingType = domain.ListingAuction
	case rec.IsBuyItNow:
		rec.ListingType = domain.ListingFixedPrice
	default:
		rec.ListingType = domain.ListingUnknown
	}
}

// lookup walks the rule's locator chain and returns the first non-empty
// text or attribute value.
func lookup(node *goquery.Selection, rule FieldRule) (string, bool) {
	for _, sel := range rule.Selectors {
		s := node.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if rule.Attr != "" {
			if v, ok := s.Attr(rule.Attr); ok && v != "" {
				return v, true
			}
			continue
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			return text, true
		}
	}
	return "", false
}

// defaultRules is the extraction rule table for the search results layout.
func defaultRules() []FieldRule {
	return []FieldRule{
		{
			Field:     "item_url",
			Selectors: []string{".s-item__link"},
			Attr:      "href",
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				rec.ItemURL = raw
				if m := itmPattern.FindStringSubmatch(raw); m != nil {
					rec.ItemID = m[1]
				}
				return nil
			},
		},
		{
			Field:     "title",
			Selectors: []string{".s-item__title"},
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				rec.Title = raw
				return nil
			},
		},
		{
			Field:     "price",
			Selectors: []string{".s-item__price"},
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				v, cur, err := ParsePrice(raw)
				if err != nil {
					return err
				}
				rec.Price = &v
				rec.Currency = cur
				return nil
			},
		},
		{
			Field:        "shipping_price",
			Selectors:    []string{".s-item__shipping", ".s-item__logisticsCost"},
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				v, err := ParseShipping(raw)
				if err != nil {
					return err
				}
				rec.ShippingPrice = &v
				return nil
			},
		},
		{
			Field:        "seller",
			Selectors:    []string{".s-item__seller-info-text"},
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				info, err := ParseSeller(raw)
				if err != nil {
					// The three seller fields stay unset together.
					return err
				}
				rec.SellerName = info.Name
				rec.SellerFeedbackCount = &info.FeedbackCount
				rec.SellerRating = &info.Rating
				return nil
			},
		},
		{
			Field:        "bids_count",
			Selectors:    []string{".s-item__bids", ".s-item__bidCount"},
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				rec.BidsCount = ParseBids(raw)
				return nil
			},
		},
		{
			Field:        "condition",
			Selectors:    []string{".s-item__subtitle .SECONDARY_INFO", ".s-item__subtitle"},
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				rec.Condition = raw
				return nil
			},
		},
		{
			Field:        "buy_it_now",
			Selectors:    []string{".s-item__dynamic.s-item__buyItNowOption", ".s-item__purchase-options-with-icon"},
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, _ string, _ time.Time) error {
				rec.IsBuyItNow = true
				return nil
			},
		},
		{
			Field:        "auction_end_time",
			Selectors:    []string{".s-item__time-left"},
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, raw string, now time.Time) error {
				d, err := ParseTimeLeft(raw)
				if err != nil {
					return err
				}
				end := now.Add(d)
				rec.AuctionEndTime = &end
				return nil
			},
		},
		{
			Field:        "image_url",
			Selectors:    []string{".s-item__image-wrapper img", ".s-item__image img"},
			Attr:         "src",
			AllowMissing: true,
			Apply: func(rec *domain.ListingRecord, raw string, _ time.Time) error {
				rec.ImageURL = raw
				return nil
			},
		},
	}
}

// HasNextPage reports whether the page carries an enabled "next" control.
func HasNextPage(doc *goquery.Document) bool {
	next := doc.Find("a.pagination__next, button.pagination__next").First()
	if next.Length() == 0 {
		return false
	}
	if v, ok := next.Attr("aria-disabled"); ok && v == "true" {
		return false
	}
	return true
}
