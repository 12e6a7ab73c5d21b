package postgres

import (
	"context"
	"fmt"

	"github.com/overageworks/deedwatch/internal/auction"
)

// RuleStore implements auction.RuleStore on Postgres. Rules are
// administered outside this process; the store is read-only.
type RuleStore struct {
	db DB
}

// NewRuleStore builds a store over an open pool.
func NewRuleStore(db DB) (*RuleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &RuleStore{db: db}, nil
}

const activeRulesSQL = `
SELECT id, name, prospect_type, state, county,
	plaintiff_max_bid_min::text, plaintiff_max_bid_max::text,
	assessed_value_min::text, assessed_value_max::text,
	final_judgment_min::text, final_judgment_max::text,
	sale_amount_min::text, sale_amount_max::text,
	surplus_amount_min::text, surplus_amount_max::text,
	min_date, max_date, status_types, auction_types, is_active
FROM rules
WHERE is_active AND prospect_type = $1
ORDER BY id`

// ActiveRules returns every active rule for the prospect type.
func (s *RuleStore) ActiveRules(ctx context.Context, prospectType auction.ProspectType) ([]auction.Rule, error) {
	rows, err := s.db.Query(ctx, activeRulesSQL, prospectType)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []auction.Rule
	for rows.Next() {
		var (
			r              auction.Rule
			pbMin, pbMax   *string
			avMin, avMax   *string
			fjMin, fjMax   *string
			saMin, saMax   *string
			surMin, surMax *string
		)
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Type, &r.State, &r.County,
			&pbMin, &pbMax, &avMin, &avMax, &fjMin, &fjMax,
			&saMin, &saMax, &surMin, &surMax,
			&r.MinDate, &r.MaxDate, &r.StatusTypes, &r.AuctionTypes, &r.Active,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.PlaintiffMaxBidMin = scanNumeric(pbMin)
		r.PlaintiffMaxBidMax = scanNumeric(pbMax)
		r.AssessedValueMin = scanNumeric(avMin)
		r.AssessedValueMax = scanNumeric(avMax)
		r.FinalJudgmentMin = scanNumeric(fjMin)
		r.FinalJudgmentMax = scanNumeric(fjMax)
		r.SaleAmountMin = scanNumeric(saMin)
		r.SaleAmountMax = scanNumeric(saMax)
		r.SurplusAmountMin = scanNumeric(surMin)
		r.SurplusAmountMax = scanNumeric(surMax)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}
