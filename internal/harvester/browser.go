package harvester

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/overageworks/deedwatch/internal/auction"
)

const (
	listingSelector  = ".AUCTION_ITEM"
	pageCountInput   = "#maxCB"
	pageJumpInput    = "#curPCB"
	listingWait      = 10 * time.Second
	pageSettle       = 500 * time.Millisecond
	defaultNavLimit  = 45 * time.Second
	defaultPageDelay = 2 * time.Second
)

// Config controls the headless calendar browser.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	PageDelay         time.Duration
}

// Browser renders calendar pages with headless Chrome and implements
// auction.Harvester. One Browser owns one Chrome process; each Harvest
// call runs in its own tab.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	limiter     *rate.Limiter
	log         *zap.Logger
}

// NewBrowser starts a Chrome allocator with the given config.
func NewBrowser(cfg Config, log *zap.Logger) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavLimit
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = defaultPageDelay
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		limiter:     rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		log:         log,
	}
}

// Close shuts the Chrome process down.
func (b *Browser) Close() {
	b.allocCancel()
}

// Harvest renders the calendar for one date and returns every listing
// across all of its pages. A calendar with no listings returns an empty
// slice. Pagination failures after the first page return the listings
// collected so far alongside the error.
func (b *Browser) Harvest(ctx context.Context, baseURL string, date time.Time) ([]auction.RawListing, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	calURL := BuildCalendarURL(baseURL, date)
	b.log.Debug("rendering calendar", zap.String("url", calURL), zap.Time("date", date))

	if err := chromedp.Run(tabCtx, b.setupAction(), chromedp.Navigate(calURL)); err != nil {
		return nil, &auction.NavigationError{URL: calURL, Err: err}
	}

	html, found, err := b.waitForListings(tabCtx)
	if err != nil {
		return nil, &auction.NavigationError{URL: calURL, Err: err}
	}
	if !found {
		b.log.Info("no listings on calendar", zap.String("url", calURL))
		return nil, nil
	}

	page, err := ParseCalendar(html)
	if err != nil {
		return nil, err
	}
	listings := page.Listings

	for n := 2; n <= page.PageCount; n++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return listings, err
		}
		more, err := b.nextPage(tabCtx, n)
		if err != nil {
			// Keep what the earlier pages yielded.
			return listings, fmt.Errorf("calendar page %d of %d: %w", n, page.PageCount, err)
		}
		if more == nil {
			b.log.Warn("pagination control missing, stopping with partial results",
				zap.String("url", calURL), zap.Int("page", n), zap.Int("pages", page.PageCount))
			return listings, nil
		}
		listings = append(listings, more...)
	}
	return listings, nil
}

// waitForListings waits up to listingWait for a listing element and
// returns the rendered document. A wait timeout means an empty calendar,
// not a failure.
func (b *Browser) waitForListings(ctx context.Context) (html string, found bool, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, listingWait)
	defer cancel()

	err = chromedp.Run(waitCtx, chromedp.WaitVisible(listingSelector, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", false, nil
		}
		return "", false, err
	}

	if err := chromedp.Run(ctx,
		chromedp.Sleep(pageSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", false, err
	}
	return html, true, nil
}

// nextPage jumps to the given page with the page-number input and
// returns its listings, or nil when the input is absent from the DOM.
func (b *Browser) nextPage(ctx context.Context, n int) ([]auction.RawListing, error) {
	var hasInput bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(
		fmt.Sprintf("document.querySelector(%q) !== null", pageJumpInput), &hasInput)); err != nil {
		return nil, err
	}
	if !hasInput {
		return nil, nil
	}

	if err := chromedp.Run(ctx,
		chromedp.SetValue(pageJumpInput, strconv.Itoa(n), chromedp.ByQuery),
		chromedp.SendKeys(pageJumpInput, "\r", chromedp.ByQuery),
		chromedp.Sleep(pageSettle),
	); err != nil {
		return nil, err
	}

	html, found, err := b.waitForListings(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return []auction.RawListing{}, nil
	}
	page, err := ParseCalendar(html)
	if err != nil {
		return nil, err
	}
	return page.Listings, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
