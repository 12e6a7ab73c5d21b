package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/overageworks/deedwatch/internal/auction"
)

type fakeRuleStore struct {
	rules []auction.Rule
	err   error
}

func (f *fakeRuleStore) ActiveRules(_ context.Context, _ auction.ProspectType) ([]auction.Rule, error) {
	return f.rules, f.err
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestApplicableRulesCountyBeatsState(t *testing.T) {
	t.Parallel()

	store := &fakeRuleStore{rules: []auction.Rule{
		{ID: 1, Name: "FL statewide", Type: auction.TypeTaxDeed, State: "FL", Active: true},
		{ID: 2, Name: "Broward only", Type: auction.TypeTaxDeed, State: "FL", County: "broward", Active: true},
		{ID: 3, Name: "global floor", Type: auction.TypeTaxDeed, Active: true},
	}}
	eng := NewEngine(store)

	got, err := eng.ApplicableRules(context.Background(), auction.TypeTaxDeed, Location{County: "broward", State: "FL"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Broward only", got[0].Name)
}

func TestApplicableRulesFallsBackThroughTiers(t *testing.T) {
	t.Parallel()

	store := &fakeRuleStore{rules: []auction.Rule{
		{ID: 1, Name: "FL statewide", Type: auction.TypeTaxDeed, State: "FL", Active: true},
		{ID: 2, Name: "Broward only", Type: auction.TypeTaxDeed, State: "FL", County: "broward", Active: true},
		{ID: 3, Name: "global floor", Type: auction.TypeTaxDeed, Active: true},
	}}
	eng := NewEngine(store)

	// Different county in FL: state tier wins.
	got, err := eng.ApplicableRules(context.Background(), auction.TypeTaxDeed, Location{County: "duval", State: "FL"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "FL statewide", got[0].Name)

	// Different state entirely: only the global tier remains.
	got, err = eng.ApplicableRules(context.Background(), auction.TypeTaxDeed, Location{County: "maricopa", State: "AZ"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "global floor", got[0].Name)
}

func TestEvaluateProspectAutoQualifiesWithoutRules(t *testing.T) {
	t.Parallel()

	eng := NewEngine(&fakeRuleStore{})
	v, err := eng.EvaluateProspect(context.Background(), auction.Prospect{Type: auction.TypeTaxDeed}, Location{County: "duval", State: "FL"})
	require.NoError(t, err)
	require.True(t, v.Qualified)
	require.Len(t, v.Reasons, 1)
	require.Contains(t, v.Reasons[0], "no matching rules")
}

func TestEvaluateSurplusBelowMinimum(t *testing.T) {
	t.Parallel()

	rule := auction.Rule{Name: "min surplus", SurplusAmountMin: dec("10000")}
	p := auction.Prospect{SurplusAmount: dec("5000")}

	passed, reasons := Evaluate(rule, p)
	require.False(t, passed)
	require.Len(t, reasons, 1)
	require.Contains(t, reasons[0], "below minimum")
	require.Contains(t, reasons[0], "min surplus")
}

func TestEvaluateSkipsAbsentFields(t *testing.T) {
	t.Parallel()

	rule := auction.Rule{
		Name:             "strict",
		SurplusAmountMin: dec("10000"),
		AssessedValueMax: dec("500000"),
	}

	// No surplus or assessed value on the prospect: nothing to enforce.
	passed, reasons := Evaluate(rule, auction.Prospect{})
	require.True(t, passed)
	require.Empty(t, reasons)

	// Present-but-failing field still fails.
	passed, reasons = Evaluate(rule, auction.Prospect{AssessedValue: dec("750000")})
	require.False(t, passed)
	require.Len(t, reasons, 1)
	require.Contains(t, reasons[0], "above maximum")
}

func TestEvaluateDateWindow(t *testing.T) {
	t.Parallel()

	min := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	rule := auction.Rule{Name: "H1 only", MinDate: &min, MaxDate: &max}

	passed, _ := Evaluate(rule, auction.Prospect{AuctionDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)})
	require.True(t, passed)

	passed, reasons := Evaluate(rule, auction.Prospect{AuctionDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)})
	require.False(t, passed)
	require.Contains(t, reasons[0], "after maximum")

	passed, reasons = Evaluate(rule, auction.Prospect{AuctionDate: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)})
	require.False(t, passed)
	require.Contains(t, reasons[0], "before minimum")
}

func TestEvaluateStatusAndTypeSets(t *testing.T) {
	t.Parallel()

	rule := auction.Rule{
		Name:         "sold only",
		StatusTypes:  []string{"Sold", "Redeemed"},
		AuctionTypes: []string{"TAXDEED"},
	}

	passed, _ := Evaluate(rule, auction.Prospect{AuctionStatus: "Sold", AuctionType: "TAXDEED"})
	require.True(t, passed)

	passed, reasons := Evaluate(rule, auction.Prospect{AuctionStatus: "Canceled", AuctionType: "TAXDEED"})
	require.False(t, passed)
	require.Contains(t, reasons[0], "not in allowed")

	// Absent status is skipped, matching the open-world bound handling.
	passed, _ = Evaluate(rule, auction.Prospect{AuctionType: "TAXDEED"})
	require.True(t, passed)
}

func TestEvaluateProspectAllRulesMustPass(t *testing.T) {
	t.Parallel()

	store := &fakeRuleStore{rules: []auction.Rule{
		{ID: 1, Name: "min surplus", Type: auction.TypeTaxDeed, County: "duval", State: "FL", SurplusAmountMin: dec("1000"), Active: true},
		{ID: 2, Name: "cap judgment", Type: auction.TypeTaxDeed, County: "duval", State: "FL", FinalJudgmentMax: dec("200000"), Active: true},
	}}
	eng := NewEngine(store)
	loc := Location{County: "duval", State: "FL"}

	p := auction.Prospect{
		Type:                auction.TypeTaxDeed,
		SurplusAmount:       dec("5000"),
		FinalJudgmentAmount: dec("300000"),
	}
	v, err := eng.EvaluateProspect(context.Background(), p, loc)
	require.NoError(t, err)
	require.False(t, v.Qualified)
	require.Len(t, v.Reasons, 1)
	require.Contains(t, v.Reasons[0], "cap judgment")

	p.FinalJudgmentAmount = dec("150000")
	v, err = eng.EvaluateProspect(context.Background(), p, loc)
	require.NoError(t, err)
	require.True(t, v.Qualified)
	require.Contains(t, v.Reasons[len(v.Reasons)-1], "meets all filter criteria")
}

func TestMatchesWindow(t *testing.T) {
	t.Parallel()

	require.True(t, MatchesWindow(auction.Rule{}, time.Now()))

	min := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.False(t, MatchesWindow(auction.Rule{MinDate: &min}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, MatchesWindow(auction.Rule{MinDate: &min}, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
}
