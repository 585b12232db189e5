package jira

import (
	"context"
	"fmt"

	"github.com/andygrunwald/go-jira"

	"github.com/petr-muller/jirastats/internal/flagutil"
	"github.com/petr-muller/jirastats/internal/jirastats/issues"
)

const (
	// changelogField is a pseudo-field: requesting it expands the issue history
	changelogField  = "changelog"
	changelogExpand = "changelog"
)

// searchClient is the subset of the prow jira client we use
type searchClient interface {
	SearchWithContext(context.Context, string, *jira.SearchOptions) ([]jira.Issue, *jira.Response, error)
}

// Client wraps the prow jira client with our specific functionality
type Client struct {
	jiraClient searchClient
	fields     FieldNames
}

// FieldNames are the changelog field names classified as status and assignee changes
type FieldNames struct {
	Status   string
	Assignee string
}

// NewClient creates a new JIRA client using the existing flagutil pattern
func NewClient(jiraOptions flagutil.JiraOptions, fields FieldNames) (*Client, error) {
	jiraClient, err := jiraOptions.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to create JIRA client: %w", err)
	}

	return newClient(jiraClient, fields), nil
}

func newClient(jiraClient searchClient, fields FieldNames) *Client {
	return &Client{
		jiraClient: jiraClient,
		fields:     fields,
	}
}

// Search executes a single page of a JQL query. The returned page carries the
// total number of issues matching the query as advertised by the server.
func (c *Client) Search(ctx context.Context, jql string, fields []string, startAt, maxResults int) (*issues.Page, error) {
	options := &jira.SearchOptions{
		StartAt:    startAt,
		MaxResults: maxResults,
	}
	for _, field := range fields {
		if field == changelogField {
			options.Expand = changelogExpand
			continue
		}
		options.Fields = append(options.Fields, field)
	}

	found, response, err := c.jiraClient.SearchWithContext(ctx, jql, options)
	if err != nil {
		return nil, fmt.Errorf("failed to execute JQL query: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("search response for %q carries no total", jql)
	}

	page := &issues.Page{
		StartAt: startAt,
		Total:   response.Total,
		Issues:  make([]issues.Entity, 0, len(found)),
	}
	for i := range found {
		entity, err := convertIssue(&found[i], c.fields)
		if err != nil {
			return nil, fmt.Errorf("failed to convert issue %s: %w", found[i].Key, err)
		}
		page.Issues = append(page.Issues, entity)
	}

	return page, nil
}
