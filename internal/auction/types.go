// Package auction defines core domain types shared across subsystems.
package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus represents the lifecycle state of a scrape or sync job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether a status admits no further automatic transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind distinguishes harvest-and-qualify jobs from document sync jobs.
type JobKind string

// Supported job kinds.
const (
	JobKindScrape JobKind = "scrape"
	JobKindSync   JobKind = "sync"
)

// ProspectType is the auction sale type code.
type ProspectType string

// Sale type codes carried on prospects, rules, and job scopes.
const (
	TypeTaxDeed             ProspectType = "TD"
	TypeTaxLien             ProspectType = "TL"
	TypeSheriffSale         ProspectType = "SS"
	TypeMortgageForeclosure ProspectType = "MF"
)

// QualificationStatus tracks the rule engine's verdict on a prospect.
type QualificationStatus string

// Qualification states.
const (
	QualificationPending      QualificationStatus = "pending"
	QualificationQualified    QualificationStatus = "qualified"
	QualificationDisqualified QualificationStatus = "disqualified"
)

// JobScope captures the work a job covers. Two scopes overlap when they
// target the same county and kind and their date ranges intersect.
type JobScope struct {
	State       string       `json:"state"`
	County      string       `json:"county"`
	Type        ProspectType `json:"prospect_type"`
	StartDate   time.Time    `json:"start_date"`
	EndDate     time.Time    `json:"end_date"`
	CaseNumbers []string     `json:"case_numbers,omitempty"`
	DryRun      bool         `json:"dry_run,omitempty"`
}

// Overlaps reports whether two scopes would contend for the same work.
func (s JobScope) Overlaps(other JobScope) bool {
	if s.County != other.County || s.Type != other.Type {
		return false
	}
	return !s.StartDate.After(other.EndDate) && !other.StartDate.After(s.EndDate)
}

// JobCounters tracks per-run statistics. Scrape jobs fill the prospect
// counters; sync jobs fill the document counters.
type JobCounters struct {
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Qualified      int `json:"qualified"`
	Disqualified   int `json:"disqualified"`
	Warnings       int `json:"warnings"`
	DocsScraped    int `json:"docs_scraped"`
	DocsNew        int `json:"docs_new"`
	DocsDownloaded int `json:"docs_downloaded"`
	DocErrors      int `json:"doc_errors"`
}

// Job represents the metadata persisted for each unit of scheduled work.
// Jobs are never deleted; the table doubles as an audit trail.
type Job struct {
	ID        string      `json:"id"`
	Kind      JobKind     `json:"kind"`
	Scope     JobScope    `json:"scope"`
	Status    JobStatus   `json:"status"`
	Counters  JobCounters `json:"counters"`
	ErrorText string      `json:"error_text,omitempty"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Completed *time.Time  `json:"completed_at,omitempty"`
}

// Prospect is a normalized auction listing awaiting or holding a
// qualification verdict. Uniqueness: (County, CaseNumber, AuctionDate).
type Prospect struct {
	ID            int64        `json:"id"`
	Type          ProspectType `json:"prospect_type"`
	County        string       `json:"county"`
	CaseNumber    string       `json:"case_number"`
	AuctionDate   time.Time    `json:"auction_date"`
	AuctionTime   string       `json:"auction_time,omitempty"`
	AuctionType   string       `json:"auction_type,omitempty"`
	AuctionStatus string       `json:"auction_status,omitempty"`
	ItemNumber    string       `json:"auction_item_number,omitempty"`

	Address  string `json:"property_address,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zip_code,omitempty"`
	ParcelID string `json:"parcel_id,omitempty"`
	SoldTo   string `json:"sold_to,omitempty"`

	FinalJudgmentAmount *decimal.Decimal `json:"final_judgment_amount,omitempty"`
	OpeningBid          *decimal.Decimal `json:"opening_bid,omitempty"`
	PlaintiffMaxBid     *decimal.Decimal `json:"plaintiff_max_bid,omitempty"`
	AssessedValue       *decimal.Decimal `json:"assessed_value,omitempty"`
	SaleAmount          *decimal.Decimal `json:"sale_amount,omitempty"`
	SurplusAmount       *decimal.Decimal `json:"surplus_amount,omitempty"`

	Qualification        QualificationStatus `json:"qualification_status"`
	QualificationDate    *time.Time          `json:"qualification_date,omitempty"`
	DisqualificationDate *time.Time          `json:"disqualification_date,omitempty"`

	SourceURL string            `json:"source_url,omitempty"`
	RawData   map[string]string `json:"raw_data,omitempty"`
}

// Rule is a qualification filter administered outside the core and
// read-only here. Location scoping drives specificity: a rule with a
// county set beats a state rule, which beats a global rule.
type Rule struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Type   ProspectType `json:"prospect_type"`
	State  string       `json:"state,omitempty"`
	County string       `json:"county,omitempty"`

	PlaintiffMaxBidMin *decimal.Decimal `json:"plaintiff_max_bid_min,omitempty"`
	PlaintiffMaxBidMax *decimal.Decimal `json:"plaintiff_max_bid_max,omitempty"`
	AssessedValueMin   *decimal.Decimal `json:"assessed_value_min,omitempty"`
	AssessedValueMax   *decimal.Decimal `json:"assessed_value_max,omitempty"`
	FinalJudgmentMin   *decimal.Decimal `json:"final_judgment_min,omitempty"`
	FinalJudgmentMax   *decimal.Decimal `json:"final_judgment_max,omitempty"`
	SaleAmountMin      *decimal.Decimal `json:"sale_amount_min,omitempty"`
	SaleAmountMax      *decimal.Decimal `json:"sale_amount_max,omitempty"`
	SurplusAmountMin   *decimal.Decimal `json:"surplus_amount_min,omitempty"`
	SurplusAmountMax   *decimal.Decimal `json:"surplus_amount_max,omitempty"`

	MinDate      *time.Time `json:"min_date,omitempty"`
	MaxDate      *time.Time `json:"max_date,omitempty"`
	StatusTypes  []string   `json:"status_types,omitempty"`
	AuctionTypes []string   `json:"auction_types,omitempty"`
	Active       bool       `json:"is_active"`
}

// Document is one entry in a prospect's partner-portal document archive.
// Uniqueness: (ProspectID, DocumentID). Rows are never deleted.
type Document struct {
	ID           int64      `json:"id"`
	ProspectID   int64      `json:"prospect_id"`
	CaseID       string     `json:"case_id,omitempty"`
	DocumentID   string     `json:"document_id"`
	Title        string     `json:"title"`
	Filename     string     `json:"filename,omitempty"`
	Details      string     `json:"details,omitempty"`
	DocDate      string     `json:"doc_date,omitempty"`
	DocType      string     `json:"doc_type,omitempty"`
	AutoDownload bool       `json:"is_auto_download"`
	Downloaded   bool       `json:"is_downloaded"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	LocalPath    string     `json:"local_path,omitempty"`
	LastError    string     `json:"download_error,omitempty"`
	LastChecked  *time.Time `json:"last_checked_at,omitempty"`
}

// Pending reports whether the document still needs an unattended download.
func (d Document) Pending() bool {
	return d.AutoDownload && !d.Downloaded
}

// JobError is the immutable record of one failed attempt.
type JobError struct {
	ID        int64         `json:"id"`
	JobID     string        `json:"job_id"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Context   string        `json:"context,omitempty"`
	Retryable bool          `json:"retryable"`
	Attempt   int           `json:"attempt"`
	CreatedAt time.Time     `json:"created_at"`
}

// RawListing holds the label/value pairs extracted from one rendered
// listing element before normalization. Values are verbatim page text.
type RawListing struct {
	AuctionID     string
	StartTime     string
	AuctionStatus string
	SoldAmount    string
	SoldTo        string
	CityStateZip  string
	Fields        map[string]string
}

// SyncStats summarizes one prospect's document sync pass.
type SyncStats struct {
	Scraped        int `json:"scraped_count"`
	New            int `json:"new_count"`
	Downloaded     int `json:"downloaded_count"`
	DownloadErrors int `json:"download_errors"`
}

// Add accumulates per-prospect stats into a run total.
func (s *SyncStats) Add(other SyncStats) {
	s.Scraped += other.Scraped
	s.New += other.New
	s.Downloaded += other.Downloaded
	s.DownloadErrors += other.DownloadErrors
}
