package docsync

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/progress"
)

const documentsFixture = `
<html><body>
<table class="table-public">
  <tr>
    <td><strong>Surplus Claim/Affidavit</strong><div class="muted"><div>surplus_claim_2026.pdf</div></div></td>
    <td>Filed by claimant counsel</td>
    <td>03/10/2026</td>
    <td><button data-documentid="D-100" data-doctype="CLAIM">View</button></td>
  </tr>
  <tr>
    <td><strong>Certificate of Title</strong><div class="muted"><div>cert_title.pdf</div></div></td>
    <td>Issued after sale</td>
    <td>03/12/2026</td>
    <td><button data-documentid="D-101" data-doctype="CERT">View</button></td>
  </tr>
  <tr><td colspan="4">spacer row with no button</td></tr>
</table>
</body></html>`

func TestParseDocumentsFixture(t *testing.T) {
	t.Parallel()

	rows, err := ParseDocuments(documentsFixture)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "D-100", rows[0].DocumentID)
	require.Equal(t, "CLAIM", rows[0].DocType)
	require.Equal(t, "Surplus Claim/Affidavit", rows[0].Title)
	require.Equal(t, "surplus_claim_2026.pdf", rows[0].Filename)
	require.Equal(t, "Filed by claimant counsel", rows[0].Details)
	require.Equal(t, "03/10/2026", rows[0].DocDate)
	require.Equal(t, "D-101", rows[1].DocumentID)
}

func TestAutoDownloadKeywords(t *testing.T) {
	t.Parallel()

	require.True(t, AutoDownload("Surplus Claim/Affidavit"))
	require.True(t, AutoDownload("2026 COM_SURPLUS notice"))
	require.True(t, AutoDownload("TITLE_SEARCH report"))
	require.False(t, AutoDownload("Certificate of Title"))
	require.False(t, AutoDownload(""))
}

func TestDocumentPath(t *testing.T) {
	t.Parallel()

	got := DocumentPath(42, auction.Document{DocumentID: "D-9", Filename: "surplus claim (final).pdf"})
	require.Equal(t, "prospects/42/tdm/surplus_claim_final_.pdf", got)

	// No filename falls back to the title, then the document id.
	got = DocumentPath(42, auction.Document{DocumentID: "D-9", Title: "Surplus Claim/Affidavit"})
	require.Equal(t, "prospects/42/tdm/Surplus_Claim_Affidavit.pdf", got)

	got = DocumentPath(42, auction.Document{DocumentID: "D-9"})
	require.Equal(t, "prospects/42/tdm/D-9.pdf", got)
}

func TestValidatePDFRejectsNonPDF(t *testing.T) {
	t.Parallel()

	err := ValidatePDF([]byte("<html>session expired</html>"))
	require.Error(t, err)
	var verr *auction.ValidationError
	require.ErrorAs(t, err, &verr)

	require.Error(t, ValidatePDF(nil))
	require.Error(t, ValidatePDF([]byte("%PD")))
}

type fakePortal struct {
	html         string
	openErr      error
	fetched      []string
	fetchData    map[string][]byte
	fetchErr     map[string]error
	captured     []string
	capturedData map[string][]byte
}

func (p *fakePortal) OpenCase(context.Context, string) error { return p.openErr }

func (p *fakePortal) DocumentsHTML(context.Context) (string, error) { return p.html, nil }

func (p *fakePortal) Fetch(_ context.Context, doc auction.Document) ([]byte, error) {
	p.fetched = append(p.fetched, doc.DocumentID)
	if err := p.fetchErr[doc.DocumentID]; err != nil {
		return nil, err
	}
	return p.fetchData[doc.DocumentID], nil
}

func (p *fakePortal) FetchViaDownload(_ context.Context, doc auction.Document) ([]byte, error) {
	p.captured = append(p.captured, doc.DocumentID)
	if data, ok := p.capturedData[doc.DocumentID]; ok {
		return data, nil
	}
	return nil, errors.New("no download completed")
}

type fakeDocStore struct {
	docs   []auction.Document
	nextID int64
}

func (s *fakeDocStore) ListByProspect(_ context.Context, prospectID int64) ([]auction.Document, error) {
	var out []auction.Document
	for _, d := range s.docs {
		if d.ProspectID == prospectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeDocStore) Insert(_ context.Context, doc auction.Document) (int64, error) {
	s.nextID++
	doc.ID = s.nextID
	s.docs = append(s.docs, doc)
	return doc.ID, nil
}

func (s *fakeDocStore) MarkDownloaded(_ context.Context, id int64, localPath string, at time.Time) error {
	for i := range s.docs {
		if s.docs[i].ID == id {
			s.docs[i].Downloaded = true
			s.docs[i].LocalPath = localPath
			s.docs[i].DownloadedAt = &at
			s.docs[i].LastError = ""
			return nil
		}
	}
	return errors.New("document not found")
}

func (s *fakeDocStore) MarkPending(_ context.Context, id int64, reason string, at time.Time) error {
	for i := range s.docs {
		if s.docs[i].ID == id {
			s.docs[i].Downloaded = false
			s.docs[i].LastError = reason
			s.docs[i].LastChecked = &at
			return nil
		}
	}
	return errors.New("document not found")
}

type fakeFileStore struct {
	files map[string][]byte
}

func newFakeFileStore() *fakeFileStore { return &fakeFileStore{files: map[string][]byte{}} }

func (s *fakeFileStore) Write(_ context.Context, relPath string, data []byte) (string, error) {
	s.files[relPath] = append([]byte(nil), data...)
	return relPath, nil
}

func (s *fakeFileStore) Exists(relPath string) bool { _, ok := s.files[relPath]; return ok }

func (s *fakeFileStore) Read(relPath string) ([]byte, error) {
	data, ok := s.files[relPath]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func magicOnly(data []byte) error {
	if !bytes.HasPrefix(data, pdfMagic) {
		return &auction.ValidationError{Detail: "payload is not a PDF"}
	}
	return nil
}

func testSyncer(docs *fakeDocStore, files *fakeFileStore) *Syncer {
	s := NewSyncer(docs, files, &fakeClock{now: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)}, zap.NewNop())
	s.validate = magicOnly
	return s
}

func testProspect() auction.Prospect {
	return auction.Prospect{ID: 7, CaseNumber: "2026-TD-000123"}
}

func TestSyncProspectInsertsAndDownloads(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:      documentsFixture,
		fetchData: map[string][]byte{"D-100": []byte("%PDF-1.7 claim bytes")},
	}
	syncer := testSyncer(docs, files)

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)
	require.Equal(t, auction.SyncStats{Scraped: 2, New: 2, Downloaded: 1}, stats)

	// Only the keyword-flagged document was fetched.
	require.Equal(t, []string{"D-100"}, portal.fetched)
	require.True(t, files.Exists("prospects/7/tdm/surplus_claim_2026.pdf"))

	saved, err := docs.ListByProspect(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.True(t, saved[0].AutoDownload)
	require.True(t, saved[0].Downloaded)
	require.False(t, saved[1].AutoDownload)
	require.False(t, saved[1].Downloaded)
}

func TestSyncProspectIsIdempotent(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:      documentsFixture,
		fetchData: map[string][]byte{"D-100": []byte("%PDF-1.7 claim bytes")},
	}
	syncer := testSyncer(docs, files)

	_, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)
	require.Equal(t, auction.SyncStats{Scraped: 2}, stats, "a second pass must insert and download nothing")
	require.Equal(t, []string{"D-100"}, portal.fetched, "the downloaded document must not be fetched again")
}

func TestSyncProspectKeepsFailedDownloadsPending(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:     documentsFixture,
		fetchErr: map[string]error{"D-100": errors.New("view click produced nothing")},
	}
	syncer := testSyncer(docs, files)

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err, "download failures must not abort the pass")
	require.Equal(t, 1, stats.DownloadErrors)
	require.Zero(t, stats.Downloaded)

	saved, _ := docs.ListByProspect(context.Background(), 7)
	require.False(t, saved[0].Downloaded)
	require.Contains(t, saved[0].LastError, "view click produced nothing")
	require.True(t, saved[0].Pending(), "failed documents stay eligible for the next run")
}

func TestSyncProspectRejectsNonPDFPayload(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:      documentsFixture,
		fetchData: map[string][]byte{"D-100": []byte("<html>error page</html>")},
	}
	syncer := testSyncer(docs, files)

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)
	require.Equal(t, 1, stats.DownloadErrors)
	require.False(t, files.Exists("prospects/7/tdm/surplus_claim_2026.pdf"))

	// The browser-download fallback was attempted before giving up.
	require.Equal(t, []string{"D-100"}, portal.captured)
	saved, _ := docs.ListByProspect(context.Background(), 7)
	require.Contains(t, saved[0].LastError, "not a PDF")
}

func TestSyncProspectRecoversNonPDFViaBrowserDownload(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:         documentsFixture,
		fetchData:    map[string][]byte{"D-100": []byte("<html>viewer shell</html>")},
		capturedData: map[string][]byte{"D-100": []byte("%PDF-1.7 captured bytes")},
	}
	syncer := testSyncer(docs, files)

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Downloaded)
	require.Zero(t, stats.DownloadErrors)

	require.Equal(t, []string{"D-100"}, portal.captured)
	data, readErr := files.Read("prospects/7/tdm/surplus_claim_2026.pdf")
	require.NoError(t, readErr)
	require.Equal(t, []byte("%PDF-1.7 captured bytes"), data)

	saved, _ := docs.ListByProspect(context.Background(), 7)
	require.True(t, saved[0].Downloaded)
	require.Empty(t, saved[0].LastError)
}

func TestSyncProspectShortCircuitsExistingValidFile(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	_, err := files.Write(context.Background(), "prospects/7/tdm/surplus_claim_2026.pdf", []byte("%PDF-1.7 already here"))
	require.NoError(t, err)

	portal := &fakePortal{html: documentsFixture}
	syncer := testSyncer(docs, files)

	stats, syncErr := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, syncErr)
	require.Equal(t, 1, stats.Downloaded)
	require.Empty(t, portal.fetched, "a valid file on disk must not be fetched again")
}

func TestSyncProspectSkipsFailedDocuments(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	failedID, _ := docs.Insert(context.Background(), auction.Document{
		ProspectID:   7,
		DocumentID:   "D-100",
		Title:        "Surplus Claim/Affidavit",
		Filename:     "surplus_claim_2026.pdf",
		AutoDownload: true,
	})
	require.NoError(t, docs.MarkPending(context.Background(), failedID, "view click produced nothing", time.Now()))

	portal := &fakePortal{
		html:      documentsFixture,
		fetchData: map[string][]byte{"D-100": []byte("%PDF-1.7 claim bytes")},
	}
	syncer := testSyncer(docs, files)
	syncer.SkipFailed = true

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)
	require.Zero(t, stats.Downloaded)
	require.Empty(t, portal.fetched, "documents with a recorded error must not be retried")
}

func TestSyncProspectDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:      documentsFixture,
		fetchData: map[string][]byte{"D-100": []byte("%PDF-1.7 claim bytes")},
	}
	syncer := testSyncer(docs, files)
	syncer.DryRun = true

	stats, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)
	require.Equal(t, auction.SyncStats{Scraped: 2, New: 2}, stats)

	require.Empty(t, portal.fetched)
	require.Empty(t, files.files)
	saved, _ := docs.ListByProspect(context.Background(), 7)
	require.Empty(t, saved, "a dry run must not insert document rows")
}

type captureEmitter struct {
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	var out []progress.Event
	for _, evt := range c.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func TestSyncProspectEmitsDocumentMilestones(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:      documentsFixture,
		fetchData: map[string][]byte{"D-100": []byte("%PDF-1.7 claim bytes")},
	}
	emitter := &captureEmitter{}
	syncer := testSyncer(docs, files)
	syncer.Emitter = emitter
	syncer.JobID = progress.UUIDToBytes(uuid.MustParse("7b7f3f4e-9a1d-4bfb-8a3f-2f64c1be0a11"))

	_, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)

	found := emitter.byStage(progress.StageDocFound)
	require.Len(t, found, 2, "every inserted document surfaces a milestone")
	require.Equal(t, "2026-TD-000123", found[0].CaseNumber)
	require.Equal(t, "Surplus Claim/Affidavit", found[0].Note)

	downloaded := emitter.byStage(progress.StageDocDownloaded)
	require.Len(t, downloaded, 1)
	require.Equal(t, "prospects/7/tdm/surplus_claim_2026.pdf", downloaded[0].URL)
	require.Equal(t, int64(len("%PDF-1.7 claim bytes")), downloaded[0].Bytes)

	for _, evt := range emitter.events {
		require.NoError(t, evt.Validate())
		require.Equal(t, syncer.JobID, evt.JobID)
	}
}

func TestSyncProspectEmitsDocErrorOnFailedDownload(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	portal := &fakePortal{
		html:     documentsFixture,
		fetchErr: map[string]error{"D-100": errors.New("view click produced nothing")},
	}
	emitter := &captureEmitter{}
	syncer := testSyncer(docs, files)
	syncer.Emitter = emitter
	syncer.JobID = progress.UUIDToBytes(uuid.MustParse("7b7f3f4e-9a1d-4bfb-8a3f-2f64c1be0a11"))

	_, err := syncer.SyncProspect(context.Background(), portal, testProspect())
	require.NoError(t, err)

	errs := emitter.byStage(progress.StageDocError)
	require.Len(t, errs, 1)
	require.Equal(t, "2026-TD-000123", errs[0].CaseNumber)
	require.Contains(t, errs[0].Note, "view click produced nothing")
	require.Empty(t, emitter.byStage(progress.StageDocDownloaded))
}

func TestRevalidateRequeuesMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	syncer := testSyncer(docs, files)

	now := time.Now()
	healthyID, _ := docs.Insert(context.Background(), auction.Document{ProspectID: 7, DocumentID: "D-1", AutoDownload: true})
	missingID, _ := docs.Insert(context.Background(), auction.Document{ProspectID: 7, DocumentID: "D-2", AutoDownload: true})
	corruptID, _ := docs.Insert(context.Background(), auction.Document{ProspectID: 7, DocumentID: "D-3", AutoDownload: true})

	_, err := files.Write(context.Background(), "prospects/7/tdm/healthy.pdf", []byte("%PDF-1.7 fine"))
	require.NoError(t, err)
	_, err = files.Write(context.Background(), "prospects/7/tdm/corrupt.pdf", []byte("not a pdf at all"))
	require.NoError(t, err)

	require.NoError(t, docs.MarkDownloaded(context.Background(), healthyID, "prospects/7/tdm/healthy.pdf", now))
	require.NoError(t, docs.MarkDownloaded(context.Background(), missingID, "prospects/7/tdm/gone.pdf", now))
	require.NoError(t, docs.MarkDownloaded(context.Background(), corruptID, "prospects/7/tdm/corrupt.pdf", now))

	requeued, err := syncer.Revalidate(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 2, requeued)

	saved, _ := docs.ListByProspect(context.Background(), 7)
	byDoc := map[string]auction.Document{}
	for _, d := range saved {
		byDoc[d.DocumentID] = d
	}
	require.True(t, byDoc["D-1"].Downloaded)
	require.False(t, byDoc["D-2"].Downloaded)
	require.Contains(t, byDoc["D-2"].LastError, "missing")
	require.False(t, byDoc["D-3"].Downloaded)
	require.Contains(t, byDoc["D-3"].LastError, "re-queued")
}
