package timeline

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/petr-muller/jirastats/internal/jirastats/dataset"
	"github.com/petr-muller/jirastats/internal/jirastats/issues"
)

const (
	// UnassignedUser is the user index key crediting issues without an assignee
	UnassignedUser = "Unassigned"

	noHistoryNote = "no change history available"
)

// ErrHistoryOrder is returned when a change history is not ordered newest
// first or has entries without a timestamp. Ages derived from such a history
// would be wrong.
var ErrHistoryOrder = fmt.Errorf("%w: change history is not ordered newest first", issues.ErrValidation)

// Options configure the reconstructor
type Options struct {
	Clock  clock.PassiveClock
	Logger *logrus.Entry
}

// Reconstructor derives timelines and aggregate indexes from validated datasets
type Reconstructor struct {
	clock  clock.PassiveClock
	logger *logrus.Entry
}

// New creates a new reconstructor
func New(opts Options) *Reconstructor {
	r := &Reconstructor{clock: opts.Clock, logger: opts.Logger}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return r
}

// Build reconstructs the timeline of every issue in the dataset and the status,
// type and user indexes. Every call rebuilds the report from scratch.
func (r *Reconstructor) Build(ds *dataset.Dataset) (*Report, error) {
	if ds == nil {
		return nil, fmt.Errorf("no dataset to build from")
	}

	now := r.clock.Now()
	report := &Report{
		Timelines:  make(map[string]*Timeline, len(ds.Issues)),
		Order:      make([]string, 0, len(ds.Issues)),
		HasHistory: ds.HasHistory,
	}

	if ds.HasHistory {
		for _, issue := range ds.Issues {
			if err := checkOrder(issue); err != nil {
				return nil, err
			}
		}
	}

	var err error
	if report.Statuses, report.Types, err = countIndexes(ds.Issues); err != nil {
		return nil, err
	}
	var userNames map[string]string
	report.Users, userNames = userIndex(ds)

	for _, issue := range ds.Issues {
		if _, exists := report.Timelines[issue.Key]; exists {
			return nil, issues.IntegrityErrorf("issue %s appears more than once", issue.Key)
		}
		report.Timelines[issue.Key] = reconstruct(issue, ds.HasHistory, userNames, now)
		report.Order = append(report.Order, issue.Key)
	}

	r.logger.WithFields(logrus.Fields{
		"issues":   len(report.Order),
		"statuses": len(report.Statuses),
		"users":    len(report.Users),
		"history":  ds.HasHistory,
	}).Debug("Reconstructed issue timelines")

	return report, nil
}

// checkOrder verifies that the history of an issue is ordered newest first
func checkOrder(issue issues.Entity) error {
	histories := issue.Changelog.Histories
	for i, entry := range histories {
		if entry.Created.IsZero() {
			return fmt.Errorf("issue %s: history entry %s has no timestamp: %w", issue.Key, entry.ID, ErrHistoryOrder)
		}
		if i > 0 && entry.Created.After(histories[i-1].Created) {
			return fmt.Errorf("issue %s: history entry %s is newer than its predecessor %s: %w", issue.Key, entry.ID, histories[i-1].ID, ErrHistoryOrder)
		}
	}
	return nil
}

// countIndexes counts issues by status and by type. Both indexes must account
// for every issue.
func countIndexes(entities []issues.Entity) (map[string]int, map[string]int, error) {
	statuses := map[string]int{}
	types := map[string]int{}
	for _, issue := range entities {
		if issue.Fields == nil {
			continue
		}
		statuses[issue.Fields.Status]++
		types[issue.Fields.Type]++
	}

	if sum := sumCounts(statuses); sum != len(entities) {
		return nil, nil, issues.IntegrityErrorf("status index counts %d issues, dataset has %d", sum, len(entities))
	}
	if sum := sumCounts(types); sum != len(entities) {
		return nil, nil, issues.IntegrityErrorf("type index counts %d issues, dataset has %d", sum, len(entities))
	}
	return statuses, types, nil
}

func sumCounts(index map[string]int) int {
	sum := 0
	for _, count := range index {
		sum += count
	}
	return sum
}

// userIndex credits assignees with owned issues and history authors with
// edits. It also returns the user ID to display name map it collected.
func userIndex(ds *dataset.Dataset) (map[string]*UserActivity, map[string]string) {
	users := map[string]*UserActivity{}
	names := map[string]string{}
	edited := map[string]sets.Set[string]{}

	activity := func(name string) *UserActivity {
		if users[name] == nil {
			users[name] = &UserActivity{}
		}
		return users[name]
	}

	for _, issue := range ds.Issues {
		if issue.Fields != nil {
			owner := UnassignedUser
			if assignee := issue.Fields.Assignee; assignee != nil {
				owner = assignee.DisplayName
				if assignee.ID != "" {
					names[assignee.ID] = assignee.DisplayName
				}
			}
			a := activity(owner)
			a.Owned++
			a.OwnedIssues = append(a.OwnedIssues, issue.Key)
		}

		if !ds.HasHistory {
			continue
		}
		for _, entry := range issue.Changelog.Histories {
			author := entry.Author.DisplayName
			if entry.Author.ID != "" {
				names[entry.Author.ID] = author
			}
			a := activity(author)
			a.Edits++
			if edited[author] == nil {
				edited[author] = sets.New[string]()
			}
			if !edited[author].Has(issue.Key) {
				edited[author].Insert(issue.Key)
				a.EditedIssues = append(a.EditedIssues, issue.Key)
			}
		}
	}

	return users, names
}

// reconstruct derives the timeline of a single issue. The history is walked
// newest first, so the first status or assignee change seen is the latest one.
func reconstruct(issue issues.Entity, hasHistory bool, userNames map[string]string, now time.Time) *Timeline {
	t := &Timeline{Key: issue.Key}
	var histories []issues.HistoryEntry
	if hasHistory {
		histories = issue.Changelog.Histories
	}

	if issue.Fields != nil {
		t.Title = issue.Fields.Summary
		if !issue.Fields.Created.IsZero() {
			t.Age = Age{Days: daysSince(now, issue.Fields.Created), Source: AgeFromCreated}
		}
	}
	if t.Age.Source == AgeUnknown && len(histories) > 0 {
		oldest := histories[len(histories)-1]
		t.Age = Age{Days: daysSince(now, oldest.Created), Source: AgeFromHistory}
	}

	statusSeen, assigneeSeen := false, false
	if !hasHistory {
		t.Notes = append(t.Notes, noHistoryNote)
	} else {
		t.Updates = len(histories)
		authors := sets.New[string]()
		for _, entry := range histories {
			authors.Insert(entry.Author.DisplayName)
		}
		if authors.Len() > 0 {
			t.UpdateAuthors = sets.List(authors)
		}

		assignees := sets.New[string]()
		for _, entry := range histories {
			for _, item := range entry.Items {
				switch item.Kind {
				case issues.ChangeStatus:
					t.StatusChanges++
					if !statusSeen {
						t.StatusAge = daysSince(now, entry.Created)
						statusSeen = true
					}
				case issues.ChangeAssignee:
					t.AssigneeChanges++
					if !assigneeSeen {
						t.AssigneeAge = daysSince(now, entry.Created)
						assigneeSeen = true
					}
					// Unknown identifiers resolve to an empty name
					name := userNames[item.To]
					if !assignees.Has(name) {
						assignees.Insert(name)
						t.Assignees = append(t.Assignees, name)
						t.AssigneeCount++
					}
				}
			}
		}
	}

	if !statusSeen {
		t.StatusAge = t.Age.Days
	}
	if !assigneeSeen {
		t.AssigneeAge = t.Age.Days
	}
	return t
}

// daysSince returns the number of whole days elapsed between then and now
func daysSince(now, then time.Time) int {
	return int(math.Floor(now.Sub(then).Hours() / 24))
}
