package docsync

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/progress"
)

// autoDownloadKeywords flag document titles that must be fetched
// without operator action. Matching is a plain substring test against
// the portal title.
var autoDownloadKeywords = []string{
	"Surplus Claim/Affidavit",
	"COM_SURPLUS",
	"SURPLUS_LETTER",
	"TITLE_SEARCH",
}

// AutoDownload reports whether a document title is on the unattended
// download list.
func AutoDownload(title string) bool {
	for _, k := range autoDownloadKeywords {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

// Portal is one authenticated browser session against the partner
// portal, scoped to a single worker.
type Portal interface {
	// OpenCase searches for the case and opens its documents tab.
	OpenCase(ctx context.Context, caseNumber string) error
	// DocumentsHTML returns the rendered case-documents table markup.
	DocumentsHTML(ctx context.Context) (string, error)
	// Fetch downloads the bytes of one listed document through the
	// session's credentials.
	Fetch(ctx context.Context, doc auction.Document) ([]byte, error)
	// FetchViaDownload retries a document as a browser-native download,
	// for documents the portal serves through a viewer page instead of
	// a direct PDF response.
	FetchViaDownload(ctx context.Context, doc auction.Document) ([]byte, error)
}

// Syncer diffs portal document listings against the store and runs
// pending downloads. It holds no browser state; sessions come in per
// call so workers can each own one.
type Syncer struct {
	docs  auction.DocumentStore
	files auction.FileStore
	clock auction.Clock
	log   *zap.Logger

	// SkipFailed leaves documents with a recorded download error alone
	// instead of retrying them.
	SkipFailed bool
	// DryRun reports what a pass would insert and download without
	// writing rows or fetching bytes.
	DryRun bool
	// Emitter receives document milestones when set. Events carry JobID.
	Emitter progress.Emitter
	// JobID stamps emitted events with the owning run.
	JobID [16]byte

	// validate is swapped in tests to avoid building real PDFs.
	validate func(data []byte) error
}

// NewSyncer builds a Syncer over the given stores.
func NewSyncer(docs auction.DocumentStore, files auction.FileStore, clock auction.Clock, log *zap.Logger) *Syncer {
	return &Syncer{docs: docs, files: files, clock: clock, log: log, validate: ValidatePDF}
}

// SyncProspect refreshes one prospect's document archive: scrape the
// portal listing, insert rows not seen before, then download whatever
// is flagged and still pending. Download failures do not abort the
// pass; they are recorded on the document row.
func (s *Syncer) SyncProspect(ctx context.Context, portal Portal, p auction.Prospect) (auction.SyncStats, error) {
	var stats auction.SyncStats

	if err := portal.OpenCase(ctx, p.CaseNumber); err != nil {
		return stats, fmt.Errorf("open case %s: %w", p.CaseNumber, err)
	}
	html, err := portal.DocumentsHTML(ctx)
	if err != nil {
		return stats, fmt.Errorf("read documents tab for %s: %w", p.CaseNumber, err)
	}
	rows, err := ParseDocuments(html)
	if err != nil {
		return stats, err
	}
	stats.Scraped = len(rows)

	existing, err := s.docs.ListByProspect(ctx, p.ID)
	if err != nil {
		return stats, fmt.Errorf("list documents for prospect %d: %w", p.ID, err)
	}
	known := make(map[string]struct{}, len(existing))
	ordered := make([]auction.Document, 0, len(existing))
	for _, d := range existing {
		known[d.DocumentID] = struct{}{}
		ordered = append(ordered, d)
	}

	for _, row := range rows {
		if _, ok := known[row.DocumentID]; ok {
			continue
		}
		doc := auction.Document{
			ProspectID:   p.ID,
			CaseID:       p.CaseNumber,
			DocumentID:   row.DocumentID,
			Title:        row.Title,
			Filename:     row.Filename,
			Details:      row.Details,
			DocDate:      row.DocDate,
			DocType:      row.DocType,
			AutoDownload: AutoDownload(row.Title),
		}
		if s.DryRun {
			stats.New++
			s.log.Info("would insert document",
				zap.Int64("prospect_id", p.ID),
				zap.String("document_id", doc.DocumentID),
				zap.String("title", doc.Title))
			continue
		}
		id, err := s.docs.Insert(ctx, doc)
		if err != nil {
			return stats, fmt.Errorf("insert document %s: %w", row.DocumentID, err)
		}
		doc.ID = id
		known[doc.DocumentID] = struct{}{}
		ordered = append(ordered, doc)
		stats.New++
		s.log.Info("new document discovered",
			zap.Int64("prospect_id", p.ID),
			zap.String("document_id", doc.DocumentID),
			zap.String("title", doc.Title),
			zap.Bool("auto_download", doc.AutoDownload))
		s.emit(progress.Event{
			Stage:      progress.StageDocFound,
			County:     p.County,
			CaseNumber: p.CaseNumber,
			Note:       doc.Title,
		})
	}

	for _, doc := range ordered {
		if !doc.Pending() {
			continue
		}
		if s.SkipFailed && doc.LastError != "" {
			continue
		}
		if s.DryRun {
			s.log.Info("would download document",
				zap.Int64("prospect_id", p.ID),
				zap.String("document_id", doc.DocumentID))
			continue
		}
		if err := s.download(ctx, portal, p, doc); err != nil {
			stats.DownloadErrors++
			s.markFailed(ctx, doc, err)
			s.emit(progress.Event{
				Stage:      progress.StageDocError,
				County:     p.County,
				CaseNumber: p.CaseNumber,
				Note:       err.Error(),
			})
			continue
		}
		stats.Downloaded++
	}
	return stats, nil
}

// download fetches one pending document and lands it on disk. An
// already present, valid file short-circuits the fetch.
func (s *Syncer) download(ctx context.Context, portal Portal, p auction.Prospect, doc auction.Document) error {
	relPath := DocumentPath(p.ID, doc)

	if s.files.Exists(relPath) {
		if data, err := s.files.Read(relPath); err == nil && s.validate(data) == nil {
			if err := s.docs.MarkDownloaded(ctx, doc.ID, relPath, s.clock.Now()); err != nil {
				return err
			}
			s.emit(progress.Event{
				Stage:      progress.StageDocDownloaded,
				County:     p.County,
				CaseNumber: p.CaseNumber,
				URL:        relPath,
				Bytes:      int64(len(data)),
			})
			return nil
		}
	}

	data, err := portal.Fetch(ctx, doc)
	if err != nil {
		return fmt.Errorf("fetch document %s: %w", doc.DocumentID, err)
	}
	if verr := s.validate(data); verr != nil {
		// The portal sometimes answers a View click with a viewer shell
		// instead of the PDF. Retry as a browser-native download before
		// giving up on the document.
		captured, cerr := portal.FetchViaDownload(ctx, doc)
		if cerr != nil {
			return fmt.Errorf("document %s: %w (download capture: %v)", doc.DocumentID, verr, cerr)
		}
		if err := s.validate(captured); err != nil {
			return fmt.Errorf("document %s: %w", doc.DocumentID, err)
		}
		s.log.Info("document recovered via browser download",
			zap.Int64("prospect_id", p.ID),
			zap.String("document_id", doc.DocumentID))
		data = captured
	}

	stored, err := s.files.Write(ctx, relPath, data)
	if err != nil {
		return fmt.Errorf("store document %s: %w", doc.DocumentID, err)
	}
	if err := s.docs.MarkDownloaded(ctx, doc.ID, stored, s.clock.Now()); err != nil {
		return fmt.Errorf("mark downloaded %s: %w", doc.DocumentID, err)
	}
	s.log.Info("document downloaded",
		zap.Int64("prospect_id", p.ID),
		zap.String("document_id", doc.DocumentID),
		zap.String("path", stored))
	s.emit(progress.Event{
		Stage:      progress.StageDocDownloaded,
		County:     p.County,
		CaseNumber: p.CaseNumber,
		URL:        stored,
		Bytes:      int64(len(data)),
	})
	return nil
}

// emit stamps and publishes one document milestone. A nil Emitter makes
// it a no-op.
func (s *Syncer) emit(evt progress.Event) {
	if s.Emitter == nil {
		return
	}
	evt.JobID = s.JobID
	evt.TS = s.clock.Now()
	s.Emitter.Emit(evt)
}

func (s *Syncer) markFailed(ctx context.Context, doc auction.Document, cause error) {
	s.log.Warn("document download failed",
		zap.String("document_id", doc.DocumentID),
		zap.Error(cause))
	if err := s.docs.MarkPending(ctx, doc.ID, cause.Error(), s.clock.Now()); err != nil {
		s.log.Error("failed to record download error",
			zap.String("document_id", doc.DocumentID), zap.Error(err))
	}
}

var unsafeFilenameRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentPath builds the store-relative location for a document's
// bytes: prospects/<id>/tdm/<safe filename>.pdf.
func DocumentPath(prospectID int64, doc auction.Document) string {
	name := doc.Filename
	if name == "" {
		name = doc.Title
	}
	if name == "" {
		name = doc.DocumentID
	}
	name = strings.Trim(unsafeFilenameRE.ReplaceAllString(name, "_"), "_")
	if name == "" {
		name = doc.DocumentID
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return path.Join("prospects", fmt.Sprintf("%d", prospectID), "tdm", name)
}
