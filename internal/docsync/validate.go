package docsync

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
)

var pdfMagic = []byte("%PDF")

var relaxedConf = func() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}()

// ValidatePDF rejects payloads that are not structurally sound PDFs.
// The magic-number check catches the common failure, a portal error
// page served with a 200; the full parse catches truncated transfers.
func ValidatePDF(data []byte) error {
	if len(data) < len(pdfMagic) || !bytes.HasPrefix(data, pdfMagic) {
		return &auction.ValidationError{Detail: "payload is not a PDF"}
	}
	if err := api.Validate(bytes.NewReader(data), relaxedConf); err != nil {
		return &auction.ValidationError{Detail: fmt.Sprintf("corrupt PDF: %v", err)}
	}
	return nil
}

// Revalidate audits the on-disk files behind already-downloaded rows
// and re-queues any whose file is missing or no longer a valid PDF.
// It returns the number of documents re-queued.
func (s *Syncer) Revalidate(ctx context.Context, prospectID int64) (int, error) {
	docs, err := s.docs.ListByProspect(ctx, prospectID)
	if err != nil {
		return 0, fmt.Errorf("list documents for prospect %d: %w", prospectID, err)
	}

	requeued := 0
	for _, doc := range docs {
		if !doc.Downloaded || doc.LocalPath == "" {
			continue
		}
		reason := ""
		if !s.files.Exists(doc.LocalPath) {
			reason = "file missing on disk, re-queued"
		} else if data, readErr := s.files.Read(doc.LocalPath); readErr != nil {
			reason = fmt.Sprintf("file unreadable, re-queued: %v", readErr)
		} else if valErr := s.validate(data); valErr != nil {
			reason = fmt.Sprintf("file failed validation, re-queued: %v", valErr)
		}
		if reason == "" {
			continue
		}
		if err := s.docs.MarkPending(ctx, doc.ID, reason, s.clock.Now()); err != nil {
			return requeued, fmt.Errorf("re-queue document %s: %w", doc.DocumentID, err)
		}
		requeued++
		s.log.Warn("downloaded document re-queued",
			zap.Int64("prospect_id", prospectID),
			zap.String("document_id", doc.DocumentID),
			zap.String("reason", reason))
	}
	return requeued, nil
}
