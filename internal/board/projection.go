package board

import (
	"sort"
	"strings"

	"sprintboard/internal/domain"
)

// Filter narrows the board. Zero values match everything.
type Filter struct {
	Search    string   `json:"search,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Priority  string   `json:"priority,omitempty"`
}

type Column struct {
	Status string         `json:"status"`
	Issues []domain.Issue `json:"issues"`
}

// Board is one column per status, left to right.
type Board struct {
	Columns []Column `json:"columns"`
	Total   int      `json:"total"`
	Shown   int      `json:"shown"`
}

// Column returns the column for status, or an empty one.
func (b Board) Column(status string) Column {
	for _, c := range b.Columns {
		if c.Status == status {
			return c
		}
	}
	return Column{Status: status, Issues: []domain.Issue{}}
}

// Project filters issues and groups them into columns ordered by ascending
// order. It never modifies issues and always returns every column.
func Project(issues []domain.Issue, f Filter) Board {
	search := strings.ToLower(f.Search)
	assignees := make(map[string]struct{}, len(f.Assignees))
	for _, a := range f.Assignees {
		assignees[a] = struct{}{}
	}
	cols := make(map[string][]domain.Issue, len(domain.IssueStatuses))
	shown := 0
	for _, it := range issues {
		if search != "" && !strings.Contains(strings.ToLower(it.Title), search) {
			continue
		}
		if len(assignees) > 0 {
			if _, ok := assignees[it.Assigned()]; !ok {
				continue
			}
		}
		if f.Priority != "" && it.Priority != f.Priority {
			continue
		}
		cols[it.Status] = append(cols[it.Status], it)
		shown++
	}
	b := Board{Columns: make([]Column, 0, len(domain.IssueStatuses)), Total: len(issues), Shown: shown}
	for _, status := range domain.IssueStatuses {
		members := cols[status]
		if members == nil {
			members = []domain.Issue{}
		}
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].Order != members[j].Order {
				return members[i].Order < members[j].Order
			}
			return members[i].ID < members[j].ID
		})
		b.Columns = append(b.Columns, Column{Status: status, Issues: members})
	}
	return b
}

// Assignees returns the distinct assignees of issues, sorted by name then id.
func Assignees(issues []domain.Issue) []domain.User {
	seen := map[string]struct{}{}
	var res []domain.User
	for _, it := range issues {
		if it.Assignee == nil {
			continue
		}
		if _, ok := seen[it.Assignee.ID]; ok {
			continue
		}
		seen[it.Assignee.ID] = struct{}{}
		res = append(res, *it.Assignee)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res
}
