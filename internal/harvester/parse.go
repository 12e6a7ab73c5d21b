package harvester

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/overageworks/deedwatch/internal/auction"
)

// labelPattern maps a detail-row label (whitespace collapsed, trailing
// colon stripped, lowercased) onto a canonical field name. Patterns are
// tried in order; the first match wins.
type labelPattern struct {
	re    *regexp.Regexp
	field string
}

var labelPatterns = []labelPattern{
	{regexp.MustCompile(`^auction type$`), auction.FieldAuctionType},
	{regexp.MustCompile(`^case\s*(#|number|no\.?)?$`), auction.FieldCaseNumber},
	{regexp.MustCompile(`^final judgment amount$`), auction.FieldFinalJudgment},
	{regexp.MustCompile(`^parcel id$`), auction.FieldParcelID},
	{regexp.MustCompile(`^property address$`), auction.FieldAddress},
	{regexp.MustCompile(`^assessed value$`), auction.FieldAssessedValue},
	{regexp.MustCompile(`^plaintiff max bid$`), auction.FieldPlaintiffBid},
	{regexp.MustCompile(`^opening bid$`), auction.FieldOpeningBid},
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	digitRE      = regexp.MustCompile(`\d`)
	nonWordRE    = regexp.MustCompile(`[^a-z0-9]+`)
)

// CalendarPage is the parse result for one rendered calendar page.
type CalendarPage struct {
	Listings  []auction.RawListing
	PageCount int
}

// ParseCalendar extracts listings and the total page count from a
// rendered calendar page. A page with no listing elements parses to an
// empty slice, not an error.
func ParseCalendar(html string) (CalendarPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CalendarPage{}, &auction.ParseError{Detail: fmt.Sprintf("parse calendar html: %v", err)}
	}

	page := CalendarPage{PageCount: 1}
	counter := doc.Find(pageCountInput).First()
	text := cleanText(counter.Text())
	if text == "" {
		text, _ = counter.Attr("value")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && n > 0 {
		page.PageCount = n
	}

	doc.Find(".AUCTION_ITEM").Each(func(_ int, item *goquery.Selection) {
		page.Listings = append(page.Listings, parseListing(item))
	})
	return page, nil
}

func parseListing(item *goquery.Selection) auction.RawListing {
	raw := auction.RawListing{Fields: map[string]string{}}

	if id, ok := item.Attr("aid"); ok {
		raw.AuctionID = strings.TrimSpace(id)
	}
	if raw.AuctionID == "" {
		raw.AuctionID = cleanText(item.Find(".AUCTION_ID").First().Text())
	}

	// The status banner carries either the scheduled start time or a
	// textual disposition like Canceled. A value with no digit in it
	// cannot be a time.
	banner := cleanText(item.Find(".ASTAT_MSGB").First().Text())
	if banner != "" {
		if digitRE.MatchString(banner) {
			raw.StartTime = banner
		} else {
			raw.AuctionStatus = banner
		}
	}

	raw.SoldAmount = cleanText(item.Find(".ASTAT_MSGD").First().Text())
	raw.SoldTo = cleanText(item.Find(".ASTAT_MSG_SOLDTO_MSG").First().Text())
	if raw.AuctionStatus == "" && (raw.SoldAmount != "" || raw.SoldTo != "") {
		raw.AuctionStatus = "Sold"
	}

	item.Find(".AUCTION_DETAILS table.ad_tab tr").Each(func(_ int, row *goquery.Selection) {
		label := cleanText(row.Find("th").First().Text())
		value := cleanText(row.Find("td").First().Text())
		if value == "" {
			return
		}
		if label == "" {
			// A blank-label row continues the address with city/state/zip.
			raw.CityStateZip = value
			return
		}
		raw.Fields[canonicalField(label)] = value
	})

	return raw
}

// canonicalField normalizes a row label and resolves it against the
// known patterns; unrecognized labels are kept under a slug so no page
// data is dropped.
func canonicalField(label string) string {
	normalized := strings.ToLower(strings.TrimSuffix(cleanText(label), ":"))
	normalized = strings.TrimSpace(normalized)
	for _, p := range labelPatterns {
		if p.re.MatchString(normalized) {
			return p.field
		}
	}
	return strings.Trim(nonWordRE.ReplaceAllString(normalized, "_"), "_")
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
