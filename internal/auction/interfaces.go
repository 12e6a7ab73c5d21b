package auction

import (
	"context"
	"time"
)

// ProspectFilter narrows prospect reads. Zero-valued fields match all.
type ProspectFilter struct {
	State         string
	County        string
	Type          ProspectType
	CaseNumbers   []string
	AuctionStart  *time.Time
	AuctionEnd    *time.Time
	Qualification QualificationStatus
	PendingDocs   bool
}

// UpsertResult reports whether an upsert created or updated a row.
type UpsertResult struct {
	ID      int64
	Created bool
}

// ProspectStore persists prospects keyed by (county, case number, date).
type ProspectStore interface {
	Upsert(ctx context.Context, p Prospect) (UpsertResult, error)
	SetQualification(ctx context.Context, id int64, status QualificationStatus, at time.Time) error
	List(ctx context.Context, filter ProspectFilter) ([]Prospect, error)
}

// RuleStore reads qualification rules. The core never writes rules.
type RuleStore interface {
	ActiveRules(ctx context.Context, prospectType ProspectType) ([]Rule, error)
}

// DocumentStore persists portal document metadata per prospect.
type DocumentStore interface {
	ListByProspect(ctx context.Context, prospectID int64) ([]Document, error)
	Insert(ctx context.Context, doc Document) (int64, error)
	MarkDownloaded(ctx context.Context, id int64, localPath string, at time.Time) error
	MarkPending(ctx context.Context, id int64, reason string, at time.Time) error
}

// JobStore persists job rows and enforces the scope lock.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	// RunningOverlap returns the IDs of non-terminal jobs whose scope
	// overlaps the given one. Enforced through persisted status so the
	// lock holds across processes.
	RunningOverlap(ctx context.Context, kind JobKind, scope JobScope) ([]string, error)
	SetStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	SetStarted(ctx context.Context, jobID string, at time.Time) error
	SetCompleted(ctx context.Context, jobID string, at time.Time) error
	// Reset moves a terminal job back to pending for manual retry/restart.
	Reset(ctx context.Context, jobID string) error
}

// ErrorStore records one immutable row per failed attempt.
type ErrorStore interface {
	Record(ctx context.Context, jobErr JobError) error
}

// Harvester yields raw listings for one calendar date.
type Harvester interface {
	Harvest(ctx context.Context, baseURL string, date time.Time) ([]RawListing, error)
}

// FileStore writes downloaded artifacts below a configured root and
// returns root-relative paths.
type FileStore interface {
	Write(ctx context.Context, relPath string, data []byte) (string, error)
	Exists(relPath string) bool
	Read(relPath string) ([]byte, error)
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
