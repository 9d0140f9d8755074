package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// Locale-aware field patterns. A leading dollar pattern maps to USD; an
// amount followed by a yen marker or currency code maps to JPY. Anything
// else leaves the field unset.
var (
	usdPricePattern = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
	jpyPricePattern = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*|\d+)\s*(?:円|JPY)`)
	sellerPattern   = regexp.MustCompile(`([A-Za-z0-9_.\- ]+?)\s*\((\d{1,3}(?:,\d{3})*|\d+)\)\s*(\d+(?:\.\d+)?)%`)
	bidsPattern     = regexp.MustCompile(`(\d+)\s*bid`)
	daysPattern     = regexp.MustCompile(`(\d+)d`)
	hoursPattern    = regexp.MustCompile(`(\d+)h`)
	minutesPattern  = regexp.MustCompile(`(\d+)m`)
)

// freeShippingPhrases are the locale-dependent markers mapping shipping to
// zero.
var freeShippingPhrases = []string{"free", "無料"}

// ParsePrice extracts an amount and ISO currency code from a rendered price
// string.
func ParsePrice(text string) (float64, string, error) {
	if m := usdPricePattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, "", fmt.Errorf("parse USD amount %q: %w", m[1], err)
		}
		return v, currency.USD.String(), nil
	}

	if m := jpyPricePattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, "", fmt.Errorf("parse JPY amount %q: %w", m[1], err)
		}
		return v, currency.JPY.String(), nil
	}

	return 0, "", fmt.Errorf("unrecognized price text %q", text)
}

// ParseShipping maps free-shipping phrases to 0.0 and otherwise applies the
// same numeric rule as ParsePrice.
func ParseShipping(text string) (float64, error) {
	lower := strings.ToLower(text)
	for _, phrase := range freeShippingPhrases {
		if strings.Contains(lower, phrase) {
			return 0.0, nil
		}
	}

	v, _, err := ParsePrice(text)
	if err != nil {
		return 0, fmt.Errorf("unrecognized shipping text %q", text)
	}
	return v, nil
}

// SellerInfo is the result of parsing the combined seller text blob. The
// three fields are populated together or not at all.
type SellerInfo struct {
	Name          string
	FeedbackCount int
	Rating        float64 // 0..1 fraction
}

// ParseSeller parses "name (feedback_count) rating%" with thousands
// separators stripped and the percentage converted to a fraction.
func ParseSeller(text string) (SellerInfo, error) {
	m := sellerPattern.FindStringSubmatch(text)
	if m == nil {
		return SellerInfo{}, fmt.Errorf("unrecognized seller text %q", text)
	}

	count, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return SellerInfo{}, fmt.Errorf("parse feedback count %q: %w", m[2], err)
	}

	pct, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return SellerInfo{}, fmt.Errorf("parse rating %q: %w", m[3], err)
	}

	return SellerInfo{
		Name:          strings.TrimSpace(m[1]),
		FeedbackCount: count,
		Rating:        pct / 100.0,
	}, nil
}

// ParseBids extracts the bid count; text without a bid indicator counts as
// zero bids, which is the common case for fixed-price listings.
func ParseBids(text string) int {
	if m := bidsPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// ParseTimeLeft converts a relative countdown such as "1d 2h 30m left" into
// a duration. The caller adds it to the extraction wall-clock time, which
// makes the resulting deadline an approximation that drifts by scraping
// latency.
func ParseTimeLeft(text string) (time.Duration, error) {
	var days, hours, minutes int
	matched := false

	if m := daysPattern.FindStringSubmatch(text); m != nil {
		days, _ = strconv.Atoi(m[1])
		matched = true
	}
	if m := hoursPattern.FindStringSubmatch(text); m != nil {
		hours, _ = strconv.Atoi(m[1])
		matched = true
	}
	if m := minutesPattern.FindStringSubmatch(text); m != nil {
		minutes, _ = strconv.Atoi(m[1])
		matched = true
	}

	if !matched {
		return 0, fmt.Errorf("unrecognized countdown text %q", text)
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute, nil
}
