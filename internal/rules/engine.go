// Package rules evaluates prospects against administered filter criteria.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/overageworks/deedwatch/internal/auction"
)

// Location identifies where a prospect sits for rule resolution.
type Location struct {
	County string
	State  string
}

// Engine resolves applicable rule sets and renders verdicts. It is a
// pure policy over the rule store; it never mutates rules.
type Engine struct {
	store auction.RuleStore
}

// NewEngine builds an Engine over the given rule store.
func NewEngine(store auction.RuleStore) *Engine {
	return &Engine{store: store}
}

// ApplicableRules returns the single most specific tier of active rules
// matching the prospect type and location: county rules beat state rules
// beat global rules. The winning tier is used exclusively; tiers are
// never merged.
func (e *Engine) ApplicableRules(ctx context.Context, prospectType auction.ProspectType, loc Location) ([]auction.Rule, error) {
	all, err := e.store.ActiveRules(ctx, prospectType)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}

	var county, state, global []auction.Rule
	for _, r := range all {
		switch {
		case r.County != "":
			if r.County == loc.County {
				county = append(county, r)
			}
		case r.State != "":
			if r.State == loc.State {
				state = append(state, r)
			}
		default:
			global = append(global, r)
		}
	}

	if len(county) > 0 {
		return county, nil
	}
	if len(state) > 0 {
		return state, nil
	}
	return global, nil
}

// Verdict is the outcome of evaluating one prospect.
type Verdict struct {
	Qualified bool
	Reasons   []string
}

// EvaluateProspect resolves the applicable rules for the prospect's
// location and evaluates all of them. With no matching rules the
// prospect is auto-qualified: absence of policy is not failure.
func (e *Engine) EvaluateProspect(ctx context.Context, p auction.Prospect, loc Location) (Verdict, error) {
	rules, err := e.ApplicableRules(ctx, p.Type, loc)
	if err != nil {
		return Verdict{}, err
	}

	if len(rules) == 0 {
		return Verdict{
			Qualified: true,
			Reasons:   []string{"no matching rules configured, auto-qualified"},
		}, nil
	}

	verdict := Verdict{Qualified: true}
	for _, rule := range rules {
		passed, reasons := Evaluate(rule, p)
		if !passed {
			verdict.Qualified = false
		}
		verdict.Reasons = append(verdict.Reasons, reasons...)
	}
	if verdict.Qualified {
		verdict.Reasons = append(verdict.Reasons, "meets all filter criteria")
	}
	return verdict, nil
}

// Evaluate checks one rule against one prospect. Numeric bounds are only
// enforced when the prospect carries the field: a present bound with an
// absent field is skipped entirely, neither pass nor fail.
func Evaluate(rule auction.Rule, p auction.Prospect) (bool, []string) {
	var reasons []string
	passed := true

	fail := func(format string, args ...any) {
		passed = false
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	checkRange := func(label string, value, min, max *decimal.Decimal) {
		if value == nil {
			return
		}
		if min != nil && value.LessThan(*min) {
			fail("%s $%s below minimum $%s (%s)", label, value, min, rule.Name)
		}
		if max != nil && value.GreaterThan(*max) {
			fail("%s $%s above maximum $%s (%s)", label, value, max, rule.Name)
		}
	}

	checkRange("plaintiff max bid", p.PlaintiffMaxBid, rule.PlaintiffMaxBidMin, rule.PlaintiffMaxBidMax)
	checkRange("assessed value", p.AssessedValue, rule.AssessedValueMin, rule.AssessedValueMax)
	checkRange("final judgment", p.FinalJudgmentAmount, rule.FinalJudgmentMin, rule.FinalJudgmentMax)
	checkRange("sale amount", p.SaleAmount, rule.SaleAmountMin, rule.SaleAmountMax)
	checkRange("surplus amount", p.SurplusAmount, rule.SurplusAmountMin, rule.SurplusAmountMax)

	if !p.AuctionDate.IsZero() && !MatchesWindow(rule, p.AuctionDate) {
		if rule.MinDate != nil && p.AuctionDate.Before(*rule.MinDate) {
			fail("auction date %s before minimum %s (%s)",
				p.AuctionDate.Format(dateLayout), rule.MinDate.Format(dateLayout), rule.Name)
		}
		if rule.MaxDate != nil && p.AuctionDate.After(*rule.MaxDate) {
			fail("auction date %s after maximum %s (%s)",
				p.AuctionDate.Format(dateLayout), rule.MaxDate.Format(dateLayout), rule.Name)
		}
	}

	if len(rule.StatusTypes) > 0 && p.AuctionStatus != "" && !contains(rule.StatusTypes, p.AuctionStatus) {
		fail("status %q not in allowed types %v (%s)", p.AuctionStatus, rule.StatusTypes, rule.Name)
	}
	if len(rule.AuctionTypes) > 0 && p.AuctionType != "" && !contains(rule.AuctionTypes, p.AuctionType) {
		fail("auction type %q not in allowed %v (%s)", p.AuctionType, rule.AuctionTypes, rule.Name)
	}

	return passed, reasons
}

const dateLayout = "2006-01-02"

func contains(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

// MatchesWindow reports whether the rule's date window admits the given
// auction date; rules with no window match all dates.
func MatchesWindow(rule auction.Rule, date time.Time) bool {
	if rule.MinDate != nil && date.Before(*rule.MinDate) {
		return false
	}
	if rule.MaxDate != nil && date.After(*rule.MaxDate) {
		return false
	}
	return true
}
