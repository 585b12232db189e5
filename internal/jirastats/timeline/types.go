package timeline

// AgeSource records where the age of an issue was taken from
type AgeSource string

const (
	AgeUnknown     AgeSource = ""
	AgeFromCreated AgeSource = "created"
	// AgeFromHistory means the oldest history entry stood in for a missing creation date
	AgeFromHistory AgeSource = "history"
)

// Age is the age of an issue in whole days
type Age struct {
	Days   int       `yaml:"days"`
	Source AgeSource `yaml:"source,omitempty"`
}

// Timeline is the summary derived from one issue and its change history
type Timeline struct {
	Key   string `yaml:"key"`
	Title string `yaml:"title"`
	Age   Age    `yaml:"age"`
	// StatusAge is the number of days since the last status change, or Age.Days when there was none
	StatusAge int `yaml:"status_age"`
	// AssigneeAge is the number of days since the last assignee change, or Age.Days when there was none
	AssigneeAge int `yaml:"assignee_age"`

	Updates       int      `yaml:"updates"`
	UpdateAuthors []string `yaml:"update_authors,omitempty"`
	StatusChanges int      `yaml:"status_changes"`

	AssigneeChanges int `yaml:"assignee_changes"`
	AssigneeCount   int `yaml:"assignee_count"`
	// Assignees lists every distinct assignee the issue was handed to, most recent first
	Assignees []string `yaml:"assignees,omitempty"`

	Notes []string `yaml:"notes,omitempty"`
}

// UserActivity summarizes what a single user owns and edited
type UserActivity struct {
	Owned        int      `yaml:"owned"`
	OwnedIssues  []string `yaml:"owned_issues,omitempty"`
	Edits        int      `yaml:"edits"`
	EditedIssues []string `yaml:"edited_issues,omitempty"`
}

// Report is the result of reconstructing a whole dataset
type Report struct {
	Timelines map[string]*Timeline `yaml:"-"`
	// Order holds the issue keys in the order of the dataset
	Order      []string                 `yaml:"order"`
	Statuses   map[string]int           `yaml:"statuses"`
	Types      map[string]int           `yaml:"types"`
	Users      map[string]*UserActivity `yaml:"users"`
	HasHistory bool                     `yaml:"has_history"`
}

// Ordered returns the timelines in dataset order
func (r *Report) Ordered() []*Timeline {
	result := make([]*Timeline, 0, len(r.Order))
	for _, key := range r.Order {
		result = append(result, r.Timelines[key])
	}
	return result
}
