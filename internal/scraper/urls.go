// Package scraper implements the acquisition core: search URL construction,
// paginated navigation, resilient field extraction and the transport retry
// policy.
package scraper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valpere/ListingScout/internal/domain"
)

// Condition codes understood by the search endpoint. The mapping is part of
// the fixed query contract this package owns.
var conditionCodes = map[string]string{
	"new":  "1000",
	"used": "3000",
}

// BuildSearchURL assembles the search URL for one result page. The
// query-parameter mapping is the fixed contract with the target site; the
// rendered page structure everything else depends on is de facto only.
func BuildSearchURL(baseURL, keyword string, filters domain.SearchFilters, pageNum, itemsPerPage int) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/sch/i.html?_nkw=")
	b.WriteString(encodeQueryTerm(keyword))

	if filters.CategoryID != "" {
		b.WriteString("&_sacat=")
		b.WriteString(encodeQueryTerm(filters.CategoryID))
	}

	if filters.MinPrice > 0 {
		b.WriteString("&_udlo=")
		b.WriteString(formatPrice(filters.MinPrice))
	}
	if filters.MaxPrice > 0 {
		b.WriteString("&_udhi=")
		b.WriteString(formatPrice(filters.MaxPrice))
	}

	switch strings.ToLower(filters.ListingType) {
	case "auction":
		b.WriteString("&LH_Auction=1")
	case "fixed", "buy_it_now", "bin":
		b.WriteString("&LH_BIN=1")
	case "best_offer":
		b.WriteString("&LH_BO=1")
	}

	if code, ok := conditionCodes[strings.ToLower(filters.Condition)]; ok {
		b.WriteString("&LH_ItemCondition=")
		b.WriteString(code)
	}

	if itemsPerPage > 0 {
		b.WriteString("&_ipg=")
		b.WriteString(strconv.Itoa(itemsPerPage))
	}

	if pageNum > 1 {
		b.WriteString("&_pgn=")
		b.WriteString(strconv.Itoa(pageNum))
	}

	return b.String()
}

// encodeQueryTerm percent-encodes every byte outside [A-Za-z0-9] using the
// full UTF-8 byte encoding, with space as '+'. The endpoint expects this
// aggressive quoting even for characters net/url would leave bare.
func encodeQueryTerm(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// formatPrice renders a price bound without trailing zeros noise.
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
