package issues

import (
	"time"
)

// CompiledMarker tags a payload that was merged from all pages of a search
const CompiledMarker = "compiled"

// Mode selects what a search fetch returns
type Mode int

const (
	// ModeCount fetches only the total number of matching issues
	ModeCount Mode = iota
	// ModeContents fetches all matching issues
	ModeContents
)

func (m Mode) String() string {
	switch m {
	case ModeCount:
		return "count"
	case ModeContents:
		return "contents"
	default:
		return "unknown"
	}
}

// Query identifies one search: the JQL text, the field projection and the mode
type Query struct {
	JQL    string
	Fields []string
	Mode   Mode
}

// Entity represents a JIRA issue with the fields we care about
type Entity struct {
	Key    string  `yaml:"key" json:"key"`
	Fields *Fields `yaml:"fields,omitempty" json:"fields,omitempty"`
	// Changelog is nil when the history was not expanded
	Changelog *Changelog `yaml:"changelog,omitempty" json:"changelog,omitempty"`
}

// Fields holds the projected issue fields
type Fields struct {
	Status   string    `yaml:"status" json:"status"`
	Type     string    `yaml:"type" json:"type"`
	Summary  string    `yaml:"summary" json:"summary"`
	Assignee *User     `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Created  time.Time `yaml:"created,omitempty" json:"created,omitempty"`
}

// User is a JIRA user identity
type User struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
}

// Changelog is the issue history, newest entry first
type Changelog struct {
	Histories []HistoryEntry `yaml:"histories" json:"histories"`
}

// HistoryEntry is one recorded edit of an issue
type HistoryEntry struct {
	ID      string       `yaml:"id" json:"id"`
	Author  User         `yaml:"author" json:"author"`
	Created time.Time    `yaml:"created" json:"created"`
	Items   []ChangeItem `yaml:"items" json:"items"`
}

// ChangeKind classifies the field a change item touched
type ChangeKind int

const (
	// ChangeOther is any field the timeline does not track
	ChangeOther ChangeKind = iota
	ChangeStatus
	ChangeAssignee
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeStatus:
		return "status"
	case ChangeAssignee:
		return "assignee"
	default:
		return "other"
	}
}

// ChangeItem represents a change of a single field within a history entry
type ChangeItem struct {
	Kind       ChangeKind `yaml:"kind" json:"kind"`
	Field      string     `yaml:"field" json:"field"`
	From       string     `yaml:"from" json:"from"`
	FromString string     `yaml:"from_string" json:"from_string"`
	To         string     `yaml:"to" json:"to"`
	ToString   string     `yaml:"to_string" json:"to_string"`
}

// Page is a single page of search results as returned by the remote service
type Page struct {
	StartAt int
	Total   int
	Issues  []Entity
}

// Payload is the result of a search. Payloads produced by merging all pages
// carry CompiledMarker in Comment; anything else is a raw single-page result.
type Payload struct {
	Total   int      `yaml:"total" json:"total"`
	Issues  []Entity `yaml:"issues" json:"issues"`
	Query   string   `yaml:"query,omitempty" json:"query,omitempty"`
	Comment string   `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// Compiled returns true if the payload was merged by the aggregator
func (p *Payload) Compiled() bool {
	return p != nil && p.Comment == CompiledMarker
}
