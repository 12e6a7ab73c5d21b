package auction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeTaxDeedSurplusUsesOpeningBid(t *testing.T) {
	t.Parallel()

	raw := RawListing{
		AuctionID:     "12345",
		AuctionStatus: "Sold",
		SoldAmount:    "$25,000.00",
		SoldTo:        "3rd Party Bidder",
		CityStateZip:  "Miami, FL 33101",
		Fields: map[string]string{
			FieldCaseNumber: "2026A00886",
			FieldOpeningBid: "$0.00",
			FieldAddress:    "123 Main St",
		},
	}

	p := Normalize(raw, "Miami-Dade", TypeTaxDeed, date(2026, time.June, 15), "https://example.realtaxdeed.com")

	require.Equal(t, "2026A00886", p.CaseNumber)
	require.Equal(t, "Miami", p.City)
	require.Equal(t, "FL", p.State)
	require.Equal(t, "33101", p.ZipCode)
	require.NotNil(t, p.SurplusAmount)
	require.True(t, p.SurplusAmount.Equal(decimal.NewFromInt(25000)))
	require.Equal(t, QualificationPending, p.Qualification)
}

func TestNormalizeForeclosureSurplusUsesFinalJudgment(t *testing.T) {
	t.Parallel()

	raw := RawListing{
		SoldAmount: "$150,000",
		Fields: map[string]string{
			FieldCaseNumber:    "2026-CA-001",
			FieldFinalJudgment: "$120,000.00",
		},
	}

	p := Normalize(raw, "Broward", TypeMortgageForeclosure, date(2026, time.March, 2), "")

	require.NotNil(t, p.SurplusAmount)
	require.True(t, p.SurplusAmount.Equal(decimal.NewFromInt(30000)))
}

func TestNormalizeNoSaleAmountLeavesSurplusAbsent(t *testing.T) {
	t.Parallel()

	raw := RawListing{
		StartTime: "10:00 AM",
		Fields: map[string]string{
			FieldCaseNumber:    "2026A00001",
			FieldFinalJudgment: "$50,000.00",
		},
	}

	p := Normalize(raw, "Miami-Dade", TypeTaxDeed, date(2026, time.June, 15), "")

	require.Nil(t, p.SaleAmount)
	require.Nil(t, p.SurplusAmount)
	require.Equal(t, "10:00 AM", p.AuctionTime)
}

func TestNormalizeMissingOpeningBidNetsAgainstZero(t *testing.T) {
	t.Parallel()

	raw := RawListing{
		SoldAmount: "$9,500.00",
		Fields:     map[string]string{FieldCaseNumber: "2026A00002"},
	}

	p := Normalize(raw, "Miami-Dade", TypeTaxDeed, date(2026, time.June, 15), "")

	require.NotNil(t, p.SurplusAmount)
	require.True(t, p.SurplusAmount.Equal(decimal.NewFromFloat(9500)))
}

func TestNormalizeKeepsRawPayloadForAudit(t *testing.T) {
	t.Parallel()

	raw := RawListing{
		AuctionID:  "987",
		SoldAmount: "$1.00",
		Fields:     map[string]string{FieldCaseNumber: "C-1", "unmatched_label": "kept"},
	}

	p := Normalize(raw, "Miami-Dade", TypeTaxDeed, date(2026, time.January, 5), "")

	require.Equal(t, "987", p.RawData["auction_id"])
	require.Equal(t, "$1.00", p.RawData["sold_amount"])
	require.Equal(t, "kept", p.RawData["unmatched_label"])
}

func TestSplitCityStateZip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in               string
		city, state, zip string
	}{
		{"Miami, FL 33101", "Miami", "FL", "33101"},
		{"Fort Lauderdale, FL", "Fort Lauderdale", "FL", ""},
		{"Hialeah", "Hialeah", "", ""},
		{"", "", "", ""},
	}
	for _, tc := range cases {
		city, state, zip := SplitCityStateZip(tc.in)
		require.Equal(t, tc.city, city, "input %q", tc.in)
		require.Equal(t, tc.state, state, "input %q", tc.in)
		require.Equal(t, tc.zip, zip, "input %q", tc.in)
	}
}
