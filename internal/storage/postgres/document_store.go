package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/overageworks/deedwatch/internal/auction"
)

// DocumentStore implements auction.DocumentStore on Postgres.
type DocumentStore struct {
	db DB
}

// NewDocumentStore builds a store over an open pool.
func NewDocumentStore(db DB) (*DocumentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &DocumentStore{db: db}, nil
}

const documentSelectSQL = `
SELECT id, prospect_id, case_id, document_id, title, filename, details,
	doc_date, doc_type, is_auto_download, is_downloaded, downloaded_at,
	local_path, download_error, last_checked_at
FROM documents
WHERE prospect_id = $1
ORDER BY id`

// ListByProspect returns the prospect's archive rows in insert order.
func (s *DocumentStore) ListByProspect(ctx context.Context, prospectID int64) ([]auction.Document, error) {
	rows, err := s.db.Query(ctx, documentSelectSQL, prospectID)
	if err != nil {
		return nil, fmt.Errorf("list documents for prospect %d: %w", prospectID, err)
	}
	defer rows.Close()

	var out []auction.Document
	for rows.Next() {
		var d auction.Document
		if err := rows.Scan(
			&d.ID, &d.ProspectID, &d.CaseID, &d.DocumentID, &d.Title,
			&d.Filename, &d.Details, &d.DocDate, &d.DocType,
			&d.AutoDownload, &d.Downloaded, &d.DownloadedAt,
			&d.LocalPath, &d.LastError, &d.LastChecked,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

const documentInsertSQL = `
INSERT INTO documents (
	prospect_id, case_id, document_id, title, filename, details,
	doc_date, doc_type, is_auto_download
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (prospect_id, document_id) DO NOTHING
RETURNING id`

// Insert adds a newly discovered document. A concurrent insert of the
// same (prospect, document) pair resolves to the surviving row's id.
func (s *DocumentStore) Insert(ctx context.Context, doc auction.Document) (int64, error) {
	if doc.DocumentID == "" {
		return 0, &auction.ValidationError{Detail: "document id is required"}
	}
	var id int64
	err := s.db.QueryRow(ctx, documentInsertSQL,
		doc.ProspectID, doc.CaseID, doc.DocumentID, doc.Title,
		doc.Filename, doc.Details, doc.DocDate, doc.DocType,
		doc.AutoDownload,
	).Scan(&id)
	if err == nil {
		return id, nil
	}

	// DO NOTHING returns no row when the document already exists.
	lookupErr := s.db.QueryRow(ctx,
		`SELECT id FROM documents WHERE prospect_id = $1 AND document_id = $2`,
		doc.ProspectID, doc.DocumentID,
	).Scan(&id)
	if lookupErr != nil {
		return 0, fmt.Errorf("insert document %s: %w", doc.DocumentID, err)
	}
	return id, nil
}

// MarkDownloaded records a completed, validated download.
func (s *DocumentStore) MarkDownloaded(ctx context.Context, id int64, localPath string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET is_downloaded = TRUE, downloaded_at = $1, local_path = $2,
			download_error = '', last_checked_at = $1
		WHERE id = $3`, at, localPath, id)
	if err != nil {
		return fmt.Errorf("mark document %d downloaded: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d not found", id)
	}
	return nil
}

// MarkPending flags the document for another download attempt, noting
// why the last one did not stick.
func (s *DocumentStore) MarkPending(ctx context.Context, id int64, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET is_downloaded = FALSE, download_error = $1, last_checked_at = $2
		WHERE id = $3`, reason, at, id)
	if err != nil {
		return fmt.Errorf("mark document %d pending: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d not found", id)
	}
	return nil
}
