// Package progress defines the milestone events emitted by scrape and
// sync runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageJobStart      Stage = "JOB_START"
	StageJobDone       Stage = "JOB_DONE"
	StageJobError      Stage = "JOB_ERROR"
	StagePageDone      Stage = "PAGE_DONE"
	StageRecordUpsert  Stage = "RECORD_UPSERT"
	StageRecordVerdict Stage = "RECORD_VERDICT"
	StageDocFound      Stage = "DOC_FOUND"
	StageDocDownloaded Stage = "DOC_DOWNLOADED"
	StageDocError      Stage = "DOC_ERROR"
)

// Event captures one milestone of a run.
type Event struct {
	// JobID is the run's UUID in 16-byte form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage says which milestone occurred.
	Stage Stage
	// County scopes the event to a source county.
	County string
	// CaseNumber scopes record and document events to one case.
	CaseNumber string
	// URL is the page or document behind the event, when there is one.
	URL string
	// Bytes carries downloaded payload sizes for document events.
	Bytes int64
	// Listings counts the items a PAGE_DONE event covered.
	Listings int
	// Created distinguishes inserts from updates on RECORD_UPSERT.
	Created bool
	// Qualified carries the verdict on RECORD_VERDICT.
	Qualified bool
	// Dur captures latency for pages, downloads, and job completions.
	Dur time.Duration
	// Note attaches low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError, StagePageDone:
	case StageRecordUpsert, StageRecordVerdict:
		if e.CaseNumber == "" {
			return errors.New("record events require a case number")
		}
	case StageDocFound, StageDocDownloaded, StageDocError:
		if e.CaseNumber == "" {
			return errors.New("document events require a case number")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
