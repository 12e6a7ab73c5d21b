package jobs

import (
	"sync"
	"time"

	"github.com/overageworks/deedwatch/internal/auction"
)

// RunState is a point-in-time snapshot of one in-process job, served to
// status queries without a database round trip.
type RunState struct {
	JobID     string              `json:"job_id"`
	Kind      auction.JobKind     `json:"kind"`
	Scope     auction.JobScope    `json:"scope"`
	Status    auction.JobStatus   `json:"status"`
	Counters  auction.JobCounters `json:"counters"`
	Current   string              `json:"current_item,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Tracker keeps in-memory state for jobs running in this process. The
// persisted job row remains the source of truth; the tracker only adds
// live per-item detail between status writes.
type Tracker struct {
	mu    sync.RWMutex
	runs  map[string]*RunState
	clock auction.Clock
}

// NewTracker builds an empty tracker.
func NewTracker(clock auction.Clock) *Tracker {
	return &Tracker{runs: make(map[string]*RunState), clock: clock}
}

// Start registers a job as running in this process.
func (t *Tracker) Start(job auction.Job) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[job.ID] = &RunState{
		JobID:     job.ID,
		Kind:      job.Kind,
		Scope:     job.Scope,
		Status:    auction.JobStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Update replaces the live counters and current-item label for a job.
// Unknown job IDs are ignored.
func (t *Tracker) Update(jobID string, counters auction.JobCounters, current string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[jobID]
	if !ok {
		return
	}
	run.Counters = counters
	run.Current = current
	run.UpdatedAt = t.clock.Now()
}

// Finish marks a tracked job terminal. The entry stays queryable until
// the process exits.
func (t *Tracker) Finish(jobID string, status auction.JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[jobID]
	if !ok {
		return
	}
	run.Status = status
	run.Current = ""
	run.UpdatedAt = t.clock.Now()
}

// Get returns a copy of the tracked state for a job.
func (t *Tracker) Get(jobID string) (RunState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[jobID]
	if !ok {
		return RunState{}, false
	}
	return *run, true
}

// Active returns snapshots of every non-terminal tracked job.
func (t *Tracker) Active() []RunState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []RunState
	for _, run := range t.runs {
		if !run.Status.Terminal() {
			out = append(out, *run)
		}
	}
	return out
}
