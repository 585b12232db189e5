package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andygrunwald/go-jira"
	"github.com/petr-muller/jirastats/internal/jirastats/issues"
)

// historyTimeLayout is the timestamp format of changelog entries
const historyTimeLayout = "2006-01-02T15:04:05.999-0700"

// convertIssue converts a go-jira Issue to our Entity
func convertIssue(issue *jira.Issue, names FieldNames) (issues.Entity, error) {
	entity := issues.Entity{Key: issue.Key}

	if issue.Fields != nil {
		fields := &issues.Fields{
			Type:    issue.Fields.Type.Name,
			Summary: issue.Fields.Summary,
			Created: time.Time(issue.Fields.Created),
		}
		if issue.Fields.Status != nil {
			fields.Status = issue.Fields.Status.Name
		}
		if issue.Fields.Assignee != nil {
			assignee := convertUser(*issue.Fields.Assignee)
			fields.Assignee = &assignee
		}
		entity.Fields = fields
	}

	if issue.Changelog != nil {
		histories := make([]issues.HistoryEntry, 0, len(issue.Changelog.Histories))
		for _, history := range issue.Changelog.Histories {
			entry, err := convertHistory(history, names)
			if err != nil {
				return issues.Entity{}, err
			}
			histories = append(histories, entry)
		}
		// Reconstruction relies on the newest entry coming first
		sort.SliceStable(histories, func(i, j int) bool {
			return histories[i].Created.After(histories[j].Created)
		})
		entity.Changelog = &issues.Changelog{Histories: histories}
	}

	return entity, nil
}

func convertUser(user jira.User) issues.User {
	id := user.AccountID
	if id == "" {
		id = user.Key
	}
	if id == "" {
		id = user.Name
	}
	return issues.User{ID: id, DisplayName: user.DisplayName}
}

func convertHistory(history jira.ChangelogHistory, names FieldNames) (issues.HistoryEntry, error) {
	created, err := parseHistoryTime(history.Created)
	if err != nil {
		return issues.HistoryEntry{}, fmt.Errorf("history %s: %w", history.Id, err)
	}

	entry := issues.HistoryEntry{
		ID:      history.Id,
		Author:  convertUser(history.Author),
		Created: created,
		Items:   make([]issues.ChangeItem, 0, len(history.Items)),
	}
	for _, item := range history.Items {
		entry.Items = append(entry.Items, issues.ChangeItem{
			Kind:       names.classify(item.Field),
			Field:      item.Field,
			From:       rawValue(item.From),
			FromString: item.FromString,
			To:         rawValue(item.To),
			ToString:   item.ToString,
		})
	}
	return entry, nil
}

func (n FieldNames) classify(field string) issues.ChangeKind {
	switch {
	case n.Status != "" && strings.EqualFold(field, n.Status):
		return issues.ChangeStatus
	case n.Assignee != "" && strings.EqualFold(field, n.Assignee):
		return issues.ChangeAssignee
	default:
		return issues.ChangeOther
	}
}

func parseHistoryTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(historyTimeLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse timestamp %q", value)
	}
	return t, nil
}

func rawValue(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// compiledDump is the shape of a payload written by the aggregator
type compiledDump struct {
	Comment string       `json:"comment"`
	Query   string       `json:"query"`
	Total   int          `json:"total"`
	Issues  []jira.Issue `json:"issues"`
}

// DecodePayload parses a raw JSON search dump. The dump is either a bare array
// of JIRA issues or an object wrapping an issues list with its total.
func DecodePayload(data []byte, names FieldNames) (*issues.Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var dump compiledDump
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &dump.Issues); err != nil {
			return nil, fmt.Errorf("failed to decode issue list: %w", err)
		}
		dump.Total = len(dump.Issues)
	} else if err := json.Unmarshal(trimmed, &dump); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	payload := &issues.Payload{
		Total:   dump.Total,
		Query:   dump.Query,
		Comment: dump.Comment,
		Issues:  make([]issues.Entity, 0, len(dump.Issues)),
	}
	for i := range dump.Issues {
		entity, err := convertIssue(&dump.Issues[i], names)
		if err != nil {
			return nil, fmt.Errorf("failed to convert issue %s: %w", dump.Issues[i].Key, err)
		}
		payload.Issues = append(payload.Issues, entity)
	}
	return payload, nil
}
