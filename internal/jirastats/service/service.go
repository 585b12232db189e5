package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/petr-muller/jirastats/internal/config"
	"github.com/petr-muller/jirastats/internal/flagutil"
	"github.com/petr-muller/jirastats/internal/jirastats/aggregate"
	"github.com/petr-muller/jirastats/internal/jirastats/cache"
	"github.com/petr-muller/jirastats/internal/jirastats/dataset"
	"github.com/petr-muller/jirastats/internal/jirastats/issues"
	"github.com/petr-muller/jirastats/internal/jirastats/jira"
	"github.com/petr-muller/jirastats/internal/jirastats/timeline"
)

// StatisticsFields is the projection fetched to build statistics
var StatisticsFields = []string{"summary", "status", "issuetype", "assignee", "created", "changelog"}

// Service orchestrates fetching, caching and timeline reconstruction
type Service struct {
	cache         *cache.Cache
	reconstructor *timeline.Reconstructor
	logger        *logrus.Entry
}

// NewService creates a new service instance talking to Jira
func NewService(jiraOptions flagutil.JiraOptions, settings *config.Settings) (*Service, error) {
	jiraClient, err := jira.NewClient(jiraOptions, jira.FieldNames{
		Status:   settings.StatusField,
		Assignee: settings.AssigneeField,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JIRA client: %w", err)
	}

	return New(jiraClient, settings, clock.RealClock{}, logrus.NewEntry(logrus.StandardLogger())), nil
}

// errOffline is returned by searches of a service created without a Jira client
var errOffline = errors.New("no JIRA client configured")

type offlineSearcher struct{}

func (offlineSearcher) Search(context.Context, string, []string, int, int) (*issues.Page, error) {
	return nil, errOffline
}

// NewOffline creates a service that can only analyze payloads it is given
func NewOffline(settings *config.Settings) *Service {
	return New(offlineSearcher{}, settings, clock.RealClock{}, logrus.NewEntry(logrus.StandardLogger()))
}

// New creates a service over the given searcher
func New(searcher aggregate.Searcher, settings *config.Settings, clk clock.PassiveClock, logger *logrus.Entry) *Service {
	aggregator := aggregate.New(searcher, aggregate.Options{
		PageSize:       settings.PageSize,
		PageTimeout:    settings.PageTimeout,
		MaxConcurrency: settings.MaxConcurrency,
		Logger:         logger.WithField("component", "aggregator"),
	})

	return &Service{
		cache: cache.New(aggregator, cache.Options{
			TTL:    settings.CacheTTL,
			Clock:  clk,
			Logger: logger.WithField("component", "cache"),
		}),
		reconstructor: timeline.New(timeline.Options{
			Clock:  clk,
			Logger: logger.WithField("component", "timeline"),
		}),
		logger: logger,
	}
}

// Count returns the number of issues matching jql
func (s *Service) Count(ctx context.Context, jql string) (int, error) {
	payload, err := s.cache.GetOrFetch(ctx, issues.Query{JQL: jql, Mode: issues.ModeCount})
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return payload.Total, nil
}

// Issues returns all issues matching jql, projected to fields
func (s *Service) Issues(ctx context.Context, jql string, fields []string) (*issues.Payload, error) {
	payload, err := s.cache.GetOrFetch(ctx, issues.Query{JQL: jql, Fields: fields, Mode: issues.ModeContents})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues: %w", err)
	}
	return payload, nil
}

// Statistics fetches issues matching jql with their change history and
// reconstructs their timelines
func (s *Service) Statistics(ctx context.Context, jql string) (*timeline.Report, error) {
	payload, err := s.Issues(ctx, jql, StatisticsFields)
	if err != nil {
		return nil, err
	}
	return s.Analyze(payload)
}

// Analyze validates an already fetched payload and reconstructs its timelines
func (s *Service) Analyze(payload *issues.Payload) (*timeline.Report, error) {
	ds, err := dataset.Validate(payload)
	if err != nil {
		return nil, err
	}

	report, err := s.reconstructor.Build(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct timelines: %w", err)
	}
	return report, nil
}

// FlushCache drops all cached search results
func (s *Service) FlushCache() {
	s.cache.Flush()
	s.logger.Debug("Flushed search result cache")
}
