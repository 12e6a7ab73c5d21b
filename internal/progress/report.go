package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ReportSink renders events into an append-only plain-text run report
// an operator can tail. One sink serves one run file; lines are written
// in arrival order with a cumulative summary on completion.
type ReportSink struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer

	created      int
	updated      int
	qualified    int
	disqualified int
	docsFound    int
	docsFetched  int
	docErrors    int
}

// NewReportSink writes the report onto w. When w is also an io.Closer
// it is closed with the sink.
func NewReportSink(w io.Writer) *ReportSink {
	s := &ReportSink{w: w}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// OpenReport creates (or appends to) a per-run report file under dir.
func OpenReport(dir, jobID string) (*ReportSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, jobID+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run report: %w", err)
	}
	return NewReportSink(f), nil
}

// Consume appends one line per event and keeps the running totals.
func (s *ReportSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if err := s.writeEvent(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReportSink) writeEvent(evt Event) error {
	ts := evt.TS.Format("15:04:05")
	var line string
	switch evt.Stage {
	case StageJobStart:
		line = fmt.Sprintf("=== run %s started %s (%s) ===",
			evt.JobUUID(), evt.TS.Format(time.RFC3339), evt.Note)
	case StagePageDone:
		line = fmt.Sprintf("%s  page done: %d listings  %s", ts, evt.Listings, evt.URL)
	case StageRecordUpsert:
		action := "updated"
		if evt.Created {
			action = "created"
		}
		line = fmt.Sprintf("%s  %-22s %s", ts, evt.CaseNumber, action)
		if evt.Created {
			s.created++
		} else {
			s.updated++
		}
	case StageRecordVerdict:
		verdict := "disqualified"
		if evt.Qualified {
			verdict = "qualified"
		}
		line = fmt.Sprintf("%s  %-22s %s", ts, evt.CaseNumber, verdict)
		if evt.Note != "" {
			line += "  (" + evt.Note + ")"
		}
		if evt.Qualified {
			s.qualified++
		} else {
			s.disqualified++
		}
	case StageDocFound:
		s.docsFound++
		line = fmt.Sprintf("%s  %-22s new document: %s", ts, evt.CaseNumber, evt.Note)
	case StageDocDownloaded:
		s.docsFetched++
		line = fmt.Sprintf("%s  %-22s downloaded %s (%d bytes)", ts, evt.CaseNumber, evt.Note, evt.Bytes)
	case StageDocError:
		s.docErrors++
		line = fmt.Sprintf("%s  %-22s download failed: %s", ts, evt.CaseNumber, evt.Note)
	case StageJobError:
		line = fmt.Sprintf("%s  ERROR: %s", ts, evt.Note)
	case StageJobDone:
		line = fmt.Sprintf("=== run %s finished in %s: %d created, %d updated, %d qualified, %d disqualified, %d docs found, %d downloaded, %d doc errors ===",
			evt.JobUUID(), evt.Dur.Round(time.Second),
			s.created, s.updated, s.qualified, s.disqualified,
			s.docsFound, s.docsFetched, s.docErrors)
	default:
		line = fmt.Sprintf("%s  %s %s", ts, evt.Stage, evt.Note)
	}
	_, err := fmt.Fprintln(s.w, line)
	return err
}

// Close closes the underlying file when the sink owns one.
func (s *ReportSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
