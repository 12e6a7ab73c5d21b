package docsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
)

// Portal page selectors. The portal is a server-rendered app; these
// track its markup and are the first suspects when a sync run starts
// parsing nothing.
const (
	caseSearchInput   = `input[name*='filterCaseNumber']`
	caseSearchButton  = `button.btn-search, button[name='search']`
	caseTable         = `table#county-setup`
	caseCheckbox      = `input[name='selectedCases']`
	batchActionsLink  = `#batchActions`
	tabStrip          = `div.public-tabs`
	documentsTabLink  = `a.public-tab[data-handler='dspCaseDocuments']`
	documentsTable    = `table.table-public`
	viewButtonPattern = `button[data-documentid='%s']`
)

const (
	newTabWait      = 10 * time.Second
	pdfResponseWait = 15 * time.Second
	downloadWait    = 30 * time.Second
	maxDocumentSize = 64 << 20
)

// SessionConfig controls one portal browser session.
type SessionConfig struct {
	PortalURL         string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
}

// Session is an authenticated headless-browser session against the
// partner portal. One Session serves one worker; calls are not safe
// for concurrent use.
type Session struct {
	cfg         SessionConfig
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
	client      *http.Client
	log         *zap.Logger
}

// NewSession launches a browser and opens the portal's case list.
func NewSession(ctx context.Context, cfg SessionConfig, log *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         cfg,
		allocCancel: allocCancel,
		tab:         tabCtx,
		tabCancel:   tabCancel,
		client:      &http.Client{Timeout: cfg.NavigationTimeout},
		log:         log,
	}

	navCtx, cancel := context.WithTimeout(tabCtx, cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(cfg.PortalURL),
		chromedp.WaitVisible(caseSearchInput, chromedp.ByQuery),
	); err != nil {
		s.Close()
		return nil, &auction.NavigationError{URL: cfg.PortalURL, Err: err}
	}
	return s, nil
}

// Close tears the browser session down.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// OpenCase searches the portal for one case number, selects it, and
// opens the case-documents tab.
func (s *Session) OpenCase(ctx context.Context, caseNumber string) error {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(s.cfg.PortalURL),
		chromedp.WaitVisible(caseSearchInput, chromedp.ByQuery),
		chromedp.SetValue(caseSearchInput, caseNumber, chromedp.ByQuery),
		// The search button submits through a JS handler; a DOM click
		// is more reliable here than a synthesized mouse event.
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%q).click()`, caseSearchButton), nil),
		chromedp.WaitVisible(caseTable, chromedp.ByQuery),
		chromedp.Click(caseCheckbox, chromedp.ByQuery),
		chromedp.Click(batchActionsLink, chromedp.ByQuery),
		chromedp.WaitVisible(tabStrip, chromedp.ByQuery),
		chromedp.Click(documentsTabLink, chromedp.ByQuery),
		chromedp.WaitVisible(documentsTable, chromedp.ByQuery),
	)
	if err != nil {
		return &auction.NavigationError{URL: s.cfg.PortalURL, Err: fmt.Errorf("case %s: %w", caseNumber, err)}
	}
	return nil
}

// DocumentsHTML returns the rendered markup of the open case's
// documents tab.
func (s *Session) DocumentsHTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read documents markup: %w", err)
	}
	return html, nil
}

// Fetch clicks a document's View button, resolves where the portal put
// the bytes, and downloads them with the session's cookies. Resolution
// tries, in order: a new tab, a PDF network response on the current
// tab, and finally a changed current-tab URL.
func (s *Session) Fetch(ctx context.Context, doc auction.Document) ([]byte, error) {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var beforeURL string
	if err := chromedp.Run(runCtx, chromedp.Location(&beforeURL)); err != nil {
		return nil, fmt.Errorf("read current location: %w", err)
	}

	// Listeners bind to the per-call context so chromedp drops them
	// once this fetch ends.
	newTabCh := make(chan target.ID, 1)
	chromedp.ListenTarget(runCtx, func(ev any) {
		if created, ok := ev.(*target.EventTargetCreated); ok && created.TargetInfo.Type == "page" {
			select {
			case newTabCh <- created.TargetInfo.TargetID:
			default:
			}
		}
	})

	pdfCh := make(chan string, 1)
	chromedp.ListenTarget(runCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil {
			return
		}
		if isPDFResponse(resp.Response.MimeType, resp.Response.URL) {
			select {
			case pdfCh <- resp.Response.URL:
			default:
			}
		}
	})

	selector := fmt.Sprintf(viewButtonPattern, doc.DocumentID)
	if err := chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("click view for document %s: %w", doc.DocumentID, err)
	}

	docURL, err := s.resolveDocumentURL(runCtx, beforeURL, newTabCh, pdfCh)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.DocumentID, err)
	}
	return s.fetchBytes(ctx, docURL)
}

// FetchViaDownload re-clicks a document's View button with browser
// downloads captured to a scratch directory. Some documents only ever
// come out of the portal as a browser download, not as a response the
// cookie-replay fetch can reach.
func (s *Session) FetchViaDownload(ctx context.Context, doc auction.Document) ([]byte, error) {
	dir, err := os.MkdirTemp("", "deedwatch-download-*")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	done := make(chan string, 1)
	chromedp.ListenTarget(runCtx, func(ev any) {
		if e, ok := ev.(*browser.EventDownloadProgress); ok && e.State == browser.DownloadProgressStateCompleted {
			select {
			case done <- e.GUID:
			default:
			}
		}
	})

	selector := fmt.Sprintf(viewButtonPattern, doc.DocumentID)
	err = chromedp.Run(runCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("capture download for document %s: %w", doc.DocumentID, err)
	}
	defer func() {
		// Restore default behavior so later fetches surface responses
		// instead of files.
		if resetErr := chromedp.Run(s.tab,
			browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDefault),
		); resetErr != nil {
			s.log.Debug("reset download behavior", zap.Error(resetErr))
		}
	}()

	select {
	case guid := <-done:
		// AllowAndName saves the file under its download guid.
		data, err := os.ReadFile(filepath.Join(dir, guid)) // #nosec G304 -- path is the scratch dir plus a browser-issued guid
		if err != nil {
			return nil, fmt.Errorf("read captured download: %w", err)
		}
		return data, nil
	case <-time.After(downloadWait):
		return nil, &auction.NavigationError{URL: s.cfg.PortalURL, Err: fmt.Errorf("no download completed for document %s", doc.DocumentID)}
	case <-runCtx.Done():
		return nil, runCtx.Err()
	}
}

func (s *Session) resolveDocumentURL(ctx context.Context, beforeURL string, newTabCh <-chan target.ID, pdfCh <-chan string) (string, error) {
	select {
	case id := <-newTabCh:
		return s.adoptTabURL(ctx, id)
	case url := <-pdfCh:
		return url, nil
	case <-time.After(newTabWait):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case url := <-pdfCh:
		return url, nil
	case <-time.After(pdfResponseWait - newTabWait):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	var afterURL string
	if err := chromedp.Run(ctx, chromedp.Location(&afterURL)); err != nil {
		return "", fmt.Errorf("read location after click: %w", err)
	}
	if afterURL != "" && afterURL != beforeURL {
		// Navigating back keeps the documents tab usable for the next fetch.
		if err := chromedp.Run(ctx, chromedp.NavigateBack()); err != nil {
			s.log.Warn("navigate back after inline document failed", zap.Error(err))
		}
		return afterURL, nil
	}
	return "", &auction.NavigationError{URL: beforeURL, Err: fmt.Errorf("no document surfaced after view click")}
}

// adoptTabURL reads the freshly opened tab's URL and closes the tab.
func (s *Session) adoptTabURL(ctx context.Context, id target.ID) (string, error) {
	tabCtx, cancel := chromedp.NewContext(s.tab, chromedp.WithTargetID(id))
	defer cancel()

	var url string
	err := chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&url),
	)
	execCtx := cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Browser)
	if closeErr := target.CloseTarget(id).Do(execCtx); closeErr != nil {
		s.log.Debug("close document tab", zap.Error(closeErr))
	}
	if err != nil {
		return "", fmt.Errorf("read new tab location: %w", err)
	}
	return url, nil
}

// fetchBytes downloads a URL through plain HTTP reusing the browser's
// cookies, so the portal sees the same authenticated session.
func (s *Session) fetchBytes(ctx context.Context, url string) ([]byte, error) {
	var cookies []*network.Cookie
	if err := chromedp.Run(s.tab, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{url}).Do(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("read session cookies: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build document request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &auction.NavigationError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &auction.NavigationError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, &auction.NavigationError{URL: url, Err: err}
	}
	return data, nil
}

func (s *Session) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tab, s.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func isPDFResponse(mimeType, url string) bool {
	if strings.Contains(strings.ToLower(mimeType), "pdf") {
		return true
	}
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".pdf")
}
