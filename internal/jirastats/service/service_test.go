package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/petr-muller/jirastats/internal/config"
	"github.com/petr-muller/jirastats/internal/jirastats/dataset"
	"github.com/petr-muller/jirastats/internal/jirastats/issues"
	"github.com/petr-muller/jirastats/internal/jirastats/timeline"
)

var now = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

type fakeSearcher struct {
	issues []issues.Entity
	err    error

	lock  sync.Mutex
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ []string, startAt, maxResults int) (*issues.Page, error) {
	f.lock.Lock()
	f.calls++
	f.lock.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	end := min(startAt+maxResults, len(f.issues))
	page := &issues.Page{StartAt: startAt, Total: len(f.issues)}
	if startAt < end {
		page.Issues = f.issues[startAt:end]
	}
	return page, nil
}

func (f *fakeSearcher) callCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

func entity(i int, assignee string) issues.Entity {
	user := &issues.User{ID: "acc-" + assignee, DisplayName: assignee}
	return issues.Entity{
		Key: fmt.Sprintf("OTA-%d", i),
		Fields: &issues.Fields{
			Status:   "New",
			Type:     "Bug",
			Summary:  fmt.Sprintf("Issue %d", i),
			Assignee: user,
			Created:  now.Add(-time.Duration(i+1) * 24 * time.Hour),
		},
		Changelog: &issues.Changelog{Histories: []issues.HistoryEntry{{
			ID:      fmt.Sprintf("h-%d", i),
			Author:  *user,
			Created: now.Add(-12 * time.Hour),
			Items:   []issues.ChangeItem{{Kind: issues.ChangeStatus, Field: "status", ToString: "New"}},
		}}},
	}
}

func newTestService(searcher *fakeSearcher) (*Service, *testingclock.FakePassiveClock) {
	clk := testingclock.NewFakePassiveClock(now)
	settings := config.NewSettings()
	settings.PageSize = 2
	settings.CacheTTL = time.Minute
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(searcher, settings, clk, logrus.NewEntry(logger)), clk
}

func TestStatistics(t *testing.T) {
	searcher := &fakeSearcher{issues: []issues.Entity{entity(0, "Alice"), entity(1, "Bob"), entity(2, "Alice")}}
	svc, _ := newTestService(searcher)

	report, err := svc.Statistics(context.Background(), "project = OTA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"OTA-0", "OTA-1", "OTA-2"}, report.Order); diff != "" {
		t.Errorf("order mismatch (-expected +actual):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"New": 3}, report.Statuses); diff != "" {
		t.Errorf("status index mismatch (-expected +actual):\n%s", diff)
	}
	if report.Users["Alice"].Owned != 2 || report.Users["Bob"].Owned != 1 {
		t.Errorf("unexpected owned counts: Alice=%d Bob=%d", report.Users["Alice"].Owned, report.Users["Bob"].Owned)
	}
	ota2 := report.Timelines["OTA-2"]
	if ota2.Age != (timeline.Age{Days: 3, Source: timeline.AgeFromCreated}) {
		t.Errorf("unexpected age of OTA-2: %+v", ota2.Age)
	}
	if ota2.StatusAge != 0 {
		t.Errorf("expected status age 0, got %d", ota2.StatusAge)
	}
}

func TestCountIsCached(t *testing.T) {
	searcher := &fakeSearcher{issues: []issues.Entity{entity(0, "Alice"), entity(1, "Bob")}}
	svc, clk := newTestService(searcher)
	ctx := context.Background()

	for range 2 {
		count, err := svc.Count(ctx, "project = OTA")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 2 {
			t.Errorf("expected count 2, got %d", count)
		}
	}
	if calls := searcher.callCount(); calls != 1 {
		t.Errorf("expected one search call, got %d", calls)
	}

	clk.SetTime(now.Add(2 * time.Minute))
	if _, err := svc.Count(ctx, "project = OTA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := searcher.callCount(); calls != 2 {
		t.Errorf("expected expired entry to be refetched, got %d calls", calls)
	}

	svc.FlushCache()
	if _, err := svc.Count(ctx, "project = OTA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := searcher.callCount(); calls != 3 {
		t.Errorf("expected flushed entry to be refetched, got %d calls", calls)
	}
}

func TestStatisticsErrors(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		expected error
		reason   dataset.Reason
	}{
		{
			name:     "no matching issues",
			searcher: &fakeSearcher{},
			expected: issues.ErrValidation,
			reason:   dataset.ReasonMissing,
		},
		{
			name:     "transport failure",
			searcher: &fakeSearcher{err: errors.New("connection refused")},
			expected: issues.ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(tt.searcher)
			_, err := svc.Statistics(context.Background(), "project = OTA")
			if !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
			if tt.reason != "" {
				var validationErr *dataset.ValidationError
				if !errors.As(err, &validationErr) || validationErr.Reason != tt.reason {
					t.Errorf("expected validation reason %q, got %v", tt.reason, err)
				}
			}
		})
	}
}

func TestAnalyzeWithoutHistory(t *testing.T) {
	svc, _ := newTestService(&fakeSearcher{})
	withoutHistory := entity(0, "Alice")
	withoutHistory.Changelog = nil

	report, err := svc.Analyze(&issues.Payload{Total: 1, Issues: []issues.Entity{withoutHistory}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.HasHistory {
		t.Errorf("expected report without history")
	}
	if notes := report.Timelines["OTA-0"].Notes; len(notes) != 1 {
		t.Errorf("expected a note about missing history, got %v", notes)
	}
}

func TestOfflineServiceDoesNotSearch(t *testing.T) {
	svc := NewOffline(config.NewSettings())

	if _, err := svc.Count(context.Background(), "project = OTA"); !errors.Is(err, errOffline) {
		t.Errorf("expected offline error, got %v", err)
	}

	report, err := svc.Analyze(&issues.Payload{Total: 1, Issues: []issues.Entity{entity(0, "Alice")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"OTA-0"}, report.Order); diff != "" {
		t.Errorf("order mismatch (-expected +actual):\n%s", diff)
	}
}
