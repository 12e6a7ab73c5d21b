// Package urlcheck validates configured county calendar base URLs.
package urlcheck

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/harvester"
)

// Config controls the reachability probe.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Result is the outcome of probing one county's calendar base.
type Result struct {
	County     string
	BaseURL    string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// OK reports whether the base URL answered with a usable status.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 400
}

// Checker probes calendar bases with a plain HTTP GET. Calendar pages
// render through a browser during harvests; a reachable host with a
// 2xx/3xx answer is all a probe can establish.
type Checker struct {
	cfg Config
	log *zap.Logger
}

// NewChecker builds a Checker.
func NewChecker(cfg Config, log *zap.Logger) *Checker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Checker{cfg: cfg, log: log}
}

// CheckAll probes every configured county in name order and returns one
// Result per county. Probe failures land in the Result, not the error.
func (c *Checker) CheckAll(ctx context.Context, counties map[string]string) ([]Result, error) {
	names := make([]string, 0, len(counties))
	for name := range counties {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := c.Check(ctx, name, counties[name])
		if res.OK() {
			c.log.Info("county base reachable",
				zap.String("county", res.County),
				zap.String("url", res.BaseURL),
				zap.Int("status", res.StatusCode),
				zap.Duration("took", res.Duration))
		} else {
			c.log.Warn("county base unreachable",
				zap.String("county", res.County),
				zap.String("url", res.BaseURL),
				zap.Int("status", res.StatusCode),
				zap.Error(res.Err))
		}
		results = append(results, res)
	}
	return results, nil
}

// Check probes a single county base URL.
func (c *Checker) Check(ctx context.Context, county, rawBase string) Result {
	res := Result{County: county, BaseURL: rawBase}

	// Bases with an explicit scheme are probed as written; bare hosts
	// get the canonical https form the harvester would use.
	base := strings.TrimSpace(rawBase)
	if !strings.Contains(base, "://") {
		normalized, err := harvester.NormalizeBaseURL(base)
		if err != nil {
			res.Err = fmt.Errorf("normalize base url: %w", err)
			return res
		}
		base = normalized
	}
	res.BaseURL = base

	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}

	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		res.StatusCode = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.StatusCode = r.StatusCode
		}
		res.Err = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(base)
	}()

	select {
	case <-ctx.Done():
		res.Err = fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && res.Err == nil {
			res.Err = fmt.Errorf("visit failed: %w", err)
		}
	}
	res.Duration = time.Since(start)
	return res
}
