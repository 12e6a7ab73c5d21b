package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/overageworks/deedwatch/internal/auction"
)

// ProspectStore implements auction.ProspectStore on Postgres.
type ProspectStore struct {
	db DB
}

// NewProspectStore builds a store over an open pool.
func NewProspectStore(db DB) (*ProspectStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &ProspectStore{db: db}, nil
}

const prospectUpsertSQL = `
INSERT INTO prospects (
	prospect_type, county, case_number, auction_date, auction_time,
	auction_type, auction_status, auction_item_number,
	property_address, city, state, zip_code, parcel_id, sold_to,
	final_judgment_amount, opening_bid, plaintiff_max_bid,
	assessed_value, sale_amount, surplus_amount,
	qualification_status, source_url, raw_data
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,
	$15,$16,$17,$18,$19,$20,$21,$22,$23
)
ON CONFLICT (county, case_number, auction_date) DO UPDATE SET
	auction_time = EXCLUDED.auction_time,
	auction_type = EXCLUDED.auction_type,
	auction_status = EXCLUDED.auction_status,
	auction_item_number = EXCLUDED.auction_item_number,
	property_address = EXCLUDED.property_address,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	zip_code = EXCLUDED.zip_code,
	parcel_id = EXCLUDED.parcel_id,
	sold_to = EXCLUDED.sold_to,
	final_judgment_amount = EXCLUDED.final_judgment_amount,
	opening_bid = EXCLUDED.opening_bid,
	plaintiff_max_bid = EXCLUDED.plaintiff_max_bid,
	assessed_value = EXCLUDED.assessed_value,
	sale_amount = EXCLUDED.sale_amount,
	surplus_amount = EXCLUDED.surplus_amount,
	source_url = EXCLUDED.source_url,
	raw_data = EXCLUDED.raw_data,
	updated_at = NOW()
RETURNING id, (xmax = 0) AS created`

// Upsert writes a prospect keyed by (county, case number, auction
// date). Scraped fields are refreshed on conflict; the qualification
// verdict columns are never touched here.
func (s *ProspectStore) Upsert(ctx context.Context, p auction.Prospect) (auction.UpsertResult, error) {
	if p.CaseNumber == "" {
		return auction.UpsertResult{}, &auction.ValidationError{Detail: "case number is required"}
	}
	if p.County == "" {
		return auction.UpsertResult{}, &auction.ValidationError{Detail: "county is required"}
	}
	if p.AuctionDate.IsZero() {
		return auction.UpsertResult{}, &auction.ValidationError{Detail: "auction date is required"}
	}

	rawJSON, err := json.Marshal(p.RawData)
	if err != nil {
		return auction.UpsertResult{}, fmt.Errorf("marshal raw data: %w", err)
	}
	qualification := p.Qualification
	if qualification == "" {
		qualification = auction.QualificationPending
	}

	var result auction.UpsertResult
	err = s.db.QueryRow(ctx, prospectUpsertSQL,
		p.Type, p.County, p.CaseNumber, p.AuctionDate, p.AuctionTime,
		p.AuctionType, p.AuctionStatus, p.ItemNumber,
		p.Address, p.City, p.State, p.ZipCode, p.ParcelID, p.SoldTo,
		numericParam(p.FinalJudgmentAmount), numericParam(p.OpeningBid),
		numericParam(p.PlaintiffMaxBid), numericParam(p.AssessedValue),
		numericParam(p.SaleAmount), numericParam(p.SurplusAmount),
		qualification, p.SourceURL, rawJSON,
	).Scan(&result.ID, &result.Created)
	if err != nil {
		return auction.UpsertResult{}, fmt.Errorf("upsert prospect %s/%s: %w", p.County, p.CaseNumber, err)
	}
	return result, nil
}

// SetQualification stamps the verdict and the matching decision date.
func (s *ProspectStore) SetQualification(ctx context.Context, id int64, status auction.QualificationStatus, at time.Time) error {
	var (
		query string
		args  []any
	)
	switch status {
	case auction.QualificationQualified:
		query = `UPDATE prospects
			SET qualification_status = $1, qualification_date = $2, updated_at = NOW()
			WHERE id = $3`
		args = []any{status, at, id}
	case auction.QualificationDisqualified:
		query = `UPDATE prospects
			SET qualification_status = $1, disqualification_date = $2, updated_at = NOW()
			WHERE id = $3`
		args = []any{status, at, id}
	default:
		query = `UPDATE prospects
			SET qualification_status = $1, updated_at = NOW()
			WHERE id = $2`
		args = []any{status, id}
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set qualification for prospect %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prospect %d not found", id)
	}
	return nil
}

const prospectSelectSQL = `
SELECT id, prospect_type, county, case_number, auction_date, auction_time,
	auction_type, auction_status, auction_item_number,
	property_address, city, state, zip_code, parcel_id, sold_to,
	final_judgment_amount::text, opening_bid::text, plaintiff_max_bid::text,
	assessed_value::text, sale_amount::text, surplus_amount::text,
	qualification_status, qualification_date, disqualification_date,
	source_url, raw_data
FROM prospects`

// List returns prospects matching the filter ordered by auction date.
func (s *ProspectStore) List(ctx context.Context, filter auction.ProspectFilter) ([]auction.Prospect, error) {
	query, args := buildProspectQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prospects: %w", err)
	}
	defer rows.Close()

	var out []auction.Prospect
	for rows.Next() {
		var (
			p       auction.Prospect
			rawJSON []byte
			fj, ob  *string
			pm, av  *string
			sa, su  *string
		)
		if err := rows.Scan(
			&p.ID, &p.Type, &p.County, &p.CaseNumber, &p.AuctionDate, &p.AuctionTime,
			&p.AuctionType, &p.AuctionStatus, &p.ItemNumber,
			&p.Address, &p.City, &p.State, &p.ZipCode, &p.ParcelID, &p.SoldTo,
			&fj, &ob, &pm, &av, &sa, &su,
			&p.Qualification, &p.QualificationDate, &p.DisqualificationDate,
			&p.SourceURL, &rawJSON,
		); err != nil {
			return nil, fmt.Errorf("scan prospect: %w", err)
		}
		p.FinalJudgmentAmount = scanNumeric(fj)
		p.OpeningBid = scanNumeric(ob)
		p.PlaintiffMaxBid = scanNumeric(pm)
		p.AssessedValue = scanNumeric(av)
		p.SaleAmount = scanNumeric(sa)
		p.SurplusAmount = scanNumeric(su)
		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &p.RawData); err != nil {
				return nil, fmt.Errorf("decode raw data for prospect %d: %w", p.ID, err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prospects: %w", err)
	}
	return out, nil
}

func buildProspectQuery(filter auction.ProspectFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.State != "" {
		conds = append(conds, "state = "+arg(filter.State))
	}
	if filter.County != "" {
		conds = append(conds, "county = "+arg(filter.County))
	}
	if filter.Type != "" {
		conds = append(conds, "prospect_type = "+arg(filter.Type))
	}
	if len(filter.CaseNumbers) > 0 {
		conds = append(conds, "case_number = ANY("+arg(filter.CaseNumbers)+")")
	}
	if filter.AuctionStart != nil {
		conds = append(conds, "auction_date >= "+arg(*filter.AuctionStart))
	}
	if filter.AuctionEnd != nil {
		conds = append(conds, "auction_date <= "+arg(*filter.AuctionEnd))
	}
	if filter.Qualification != "" {
		conds = append(conds, "qualification_status = "+arg(filter.Qualification))
	}
	if filter.PendingDocs {
		conds = append(conds, `id IN (
			SELECT prospect_id FROM documents
			WHERE is_auto_download AND NOT is_downloaded)`)
	}

	query := prospectSelectSQL
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	query += "\nORDER BY auction_date, county, case_number"
	return query, args
}

// numericParam renders an optional decimal for a NUMERIC column.
func numericParam(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanNumeric(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
