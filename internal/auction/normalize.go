package auction

import (
	"strings"
	"time"
)

// Canonical field keys produced by the harvester's label matcher.
const (
	FieldAuctionType   = "auction_type"
	FieldCaseNumber    = "case_number"
	FieldFinalJudgment = "final_judgment_amount"
	FieldParcelID      = "parcel_id"
	FieldAddress       = "property_address"
	FieldAssessedValue = "assessed_value"
	FieldPlaintiffBid  = "plaintiff_max_bid"
	FieldOpeningBid    = "opening_bid"
)

// Normalize converts a raw listing into a typed Prospect. Currency text
// becomes decimals (absent when unparsable), the city/state/zip line is
// split, and the surplus is computed when a sale amount exists:
// tax deeds net against the opening bid, everything else against the
// final judgment.
func Normalize(raw RawListing, county string, prospectType ProspectType, auctionDate time.Time, sourceURL string) Prospect {
	city, state, zip := SplitCityStateZip(raw.CityStateZip)

	p := Prospect{
		Type:          prospectType,
		County:        county,
		CaseNumber:    strings.TrimSpace(raw.Fields[FieldCaseNumber]),
		AuctionDate:   auctionDate,
		AuctionTime:   strings.TrimSpace(raw.StartTime),
		AuctionType:   strings.TrimSpace(raw.Fields[FieldAuctionType]),
		AuctionStatus: strings.TrimSpace(raw.AuctionStatus),
		ItemNumber:    raw.AuctionID,
		Address:       strings.TrimSpace(raw.Fields[FieldAddress]),
		City:          city,
		State:         state,
		ZipCode:       zip,
		ParcelID:      strings.TrimSpace(raw.Fields[FieldParcelID]),
		SoldTo:        strings.TrimSpace(raw.SoldTo),

		FinalJudgmentAmount: ParseCurrency(raw.Fields[FieldFinalJudgment]),
		OpeningBid:          ParseCurrency(raw.Fields[FieldOpeningBid]),
		PlaintiffMaxBid:     ParseCurrency(raw.Fields[FieldPlaintiffBid]),
		AssessedValue:       ParseCurrency(raw.Fields[FieldAssessedValue]),
		SaleAmount:          ParseCurrency(raw.SoldAmount),

		Qualification: QualificationPending,
		SourceURL:     sourceURL,
		RawData:       rawDataMap(raw),
	}

	if p.SaleAmount != nil {
		var surplus = p.SaleAmount.Sub(decimalOrZero(p.FinalJudgmentAmount))
		if prospectType == TypeTaxDeed {
			surplus = p.SaleAmount.Sub(decimalOrZero(p.OpeningBid))
		}
		p.SurplusAmount = &surplus
	}

	return p
}

// SplitCityStateZip splits "City, ST 12345" into its parts. Missing
// segments come back empty.
func SplitCityStateZip(text string) (city, state, zip string) {
	parts := strings.SplitN(strings.TrimSpace(text), ",", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", "", ""
	}
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		rest := strings.Fields(parts[1])
		if len(rest) > 0 {
			state = rest[0]
		}
		if len(rest) > 1 {
			zip = rest[1]
		}
	}
	return city, state, zip
}

func rawDataMap(raw RawListing) map[string]string {
	out := make(map[string]string, len(raw.Fields)+6)
	for k, v := range raw.Fields {
		out[k] = v
	}
	out["auction_id"] = raw.AuctionID
	out["start_time"] = raw.StartTime
	out["auction_status"] = raw.AuctionStatus
	out["sold_amount"] = raw.SoldAmount
	out["sold_to"] = raw.SoldTo
	out["city_state_zip"] = raw.CityStateZip
	return out
}
