package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/petr-muller/jirastats/internal/jirastats/issues"
)

const (
	// DefaultPageSize is the number of issues requested per page
	DefaultPageSize = 99
)

var (
	pageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jirastats_search_page_fetches_total",
		Help: "Total search page requests by result",
	}, []string{"result"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jirastats_search_fetch_duration_seconds",
		Help:    "Duration of complete aggregated search fetches",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"mode"})
)

// Searcher fetches one page of search results
type Searcher interface {
	Search(ctx context.Context, jql string, fields []string, startAt, maxResults int) (*issues.Page, error)
}

// Options configure the aggregator
type Options struct {
	// PageSize is the number of issues requested per page, DefaultPageSize if zero
	PageSize int
	// PageTimeout bounds each page request, no bound if zero
	PageTimeout time.Duration
	// MaxConcurrency bounds concurrent page requests, no bound if zero
	MaxConcurrency int
	Logger         *logrus.Entry
}

// Aggregator runs searches across all result pages and merges them into a single payload
type Aggregator struct {
	searcher       Searcher
	pageSize       int
	pageTimeout    time.Duration
	maxConcurrency int
	logger         *logrus.Entry
}

// New creates a new aggregator over the given searcher
func New(searcher Searcher, opts Options) *Aggregator {
	a := &Aggregator{
		searcher:       searcher,
		pageSize:       opts.PageSize,
		pageTimeout:    opts.PageTimeout,
		maxConcurrency: opts.MaxConcurrency,
		logger:         opts.Logger,
	}
	if a.pageSize <= 0 {
		a.pageSize = DefaultPageSize
	}
	if a.logger == nil {
		a.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return a
}

// Count returns the number of issues matching jql
func (a *Aggregator) Count(ctx context.Context, jql string) (int, error) {
	payload, err := a.Fetch(ctx, issues.Query{JQL: jql, Mode: issues.ModeCount})
	if err != nil {
		return 0, err
	}
	return payload.Total, nil
}

// Fetch runs the query. In count mode the returned payload only carries the
// total. In contents mode it holds all matching issues in offset order.
func (a *Aggregator) Fetch(ctx context.Context, query issues.Query) (*issues.Payload, error) {
	logger := a.logger.WithFields(logrus.Fields{
		"fetch": uuid.NewString(),
		"jql":   query.JQL,
		"mode":  query.Mode,
	})
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(query.Mode.String()).Observe(time.Since(start).Seconds())
	}()

	switch query.Mode {
	case issues.ModeCount:
		probe, err := a.page(ctx, query, 0, 1)
		if err != nil {
			return nil, err
		}
		logger.WithField("total", probe.Total).Debug("Counted matching issues")
		return &issues.Payload{Total: probe.Total, Query: query.JQL}, nil
	case issues.ModeContents:
		return a.contents(ctx, query, logger)
	default:
		return nil, fmt.Errorf("unknown fetch mode %d", query.Mode)
	}
}

func (a *Aggregator) contents(ctx context.Context, query issues.Query, logger *logrus.Entry) (*issues.Payload, error) {
	probe, err := a.page(ctx, query, 0, 1)
	if err != nil {
		return nil, err
	}
	if probe.Total == 0 {
		logger.Debug("No issues match, skipping page fetches")
		return &issues.Payload{Total: 0, Issues: probe.Issues, Query: query.JQL}, nil
	}

	pageCount := (probe.Total + a.pageSize - 1) / a.pageSize
	logger = logger.WithFields(logrus.Fields{"total": probe.Total, "pages": pageCount})
	logger.Debug("Fetching result pages")

	pages := make([]*issues.Page, pageCount)
	group, groupCtx := errgroup.WithContext(ctx)
	if a.maxConcurrency > 0 {
		group.SetLimit(a.maxConcurrency)
	}
	for i := range pageCount {
		group.Go(func() error {
			page, err := a.page(groupCtx, query, i*a.pageSize, a.pageSize)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		logger.WithError(err).Warn("Page fetch failed, discarding fetched pages")
		return nil, err
	}

	// Pages are merged by offset, regardless of the order they arrived in
	total := pages[0].Total
	merged := make([]issues.Entity, 0, total)
	for _, page := range pages {
		merged = append(merged, page.Issues...)
	}
	if len(merged) != total {
		return nil, issues.IntegrityErrorf("query %q advertised %d issues but %d pages yielded %d", query.JQL, total, pageCount, len(merged))
	}

	logger.WithField("issues", len(merged)).Info("Compiled search results")
	return &issues.Payload{
		Total:   total,
		Issues:  merged,
		Query:   query.JQL,
		Comment: issues.CompiledMarker,
	}, nil
}

// page fetches a single page, bounded by the page timeout
func (a *Aggregator) page(ctx context.Context, query issues.Query, startAt, maxResults int) (*issues.Page, error) {
	if a.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.pageTimeout)
		defer cancel()
	}

	page, err := a.searcher.Search(ctx, query.JQL, query.Fields, startAt, maxResults)
	if err == nil && page == nil {
		err = fmt.Errorf("search returned no page")
	}
	if err != nil {
		pageFetches.WithLabelValues("error").Inc()
		return nil, &issues.TransportError{JQL: query.JQL, StartAt: startAt, Err: err}
	}
	pageFetches.WithLabelValues("success").Inc()
	return page, nil
}
