package search

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"nel/api/internal/store"
)

// DateRange bounds task due dates. Both bounds are inclusive; a zero bound is
// ignored.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Filters narrow task results. Empty lists mean "no filter". Projects are
// only ever filtered by the text query.
type Filters struct {
	Status     []string
	Priority   []string
	AssigneeID []string
	Tags       []string
	DateRange  *DateRange
}

// Options describes a search request.
type Options struct {
	Query     string
	ProjectID string
	Filters   Filters
	Limit     int
}

// Result is the envelope returned by Search. Totals are the lengths of the
// returned slices.
type Result struct {
	Tasks         []store.Task
	Projects      []store.Project
	TotalTasks    int
	TotalProjects int
}

// Term normalizes a text query; an empty term disables text matching.
func Term(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func containsFold(value, term string) bool {
	return strings.Contains(strings.ToLower(value), term)
}

func anyTagContains(tags []string, term string) bool {
	return lo.SomeBy(tags, func(tag string) bool { return containsFold(tag, term) })
}

// MatchTask reports whether the title, description or any tag contains term.
func MatchTask(task store.Task, term string) bool {
	if term == "" {
		return true
	}
	return containsFold(task.Title, term) || containsFold(task.Description, term) || anyTagContains(task.Tags, term)
}

// MatchProject reports whether the name, description or any tag contains term.
func MatchProject(project store.Project, term string) bool {
	if term == "" {
		return true
	}
	return containsFold(project.Name, term) || containsFold(project.Description, term) || anyTagContains(project.Tags, term)
}

// MatchFilters applies the structured task filters.
func MatchFilters(task store.Task, f Filters) bool {
	if len(f.Status) > 0 && !lo.Contains(f.Status, task.Status) {
		return false
	}
	if len(f.Priority) > 0 && !lo.Contains(f.Priority, task.Priority) {
		return false
	}
	if len(f.AssigneeID) > 0 && (task.AssigneeID == "" || !lo.Contains(f.AssigneeID, task.AssigneeID)) {
		return false
	}
	if len(f.Tags) > 0 && !lo.Some(task.Tags, f.Tags) {
		return false
	}
	if r := f.DateRange; r != nil {
		if task.DueDate == nil {
			return false
		}
		if !r.Start.IsZero() && task.DueDate.Before(r.Start) {
			return false
		}
		if !r.End.IsZero() && task.DueDate.After(r.End) {
			return false
		}
	}
	return true
}

// Apply runs the in-memory engine over candidate collections, preserving
// their order. It does not apply the limit.
func Apply(tasks []store.Task, projects []store.Project, opts Options) ([]store.Task, []store.Project) {
	term := Term(opts.Query)
	matchedTasks := lo.Filter(tasks, func(task store.Task, _ int) bool {
		return MatchTask(task, term) && MatchFilters(task, opts.Filters)
	})
	matchedProjects := lo.Filter(projects, func(project store.Project, _ int) bool {
		return MatchProject(project, term)
	})
	return matchedTasks, matchedProjects
}

// Rank reorders items so those listed in ranked come first in ranked order;
// the rest keep their relative order.
func Rank[T any](items []T, ranked []string, id func(T) string) []T {
	if len(ranked) == 0 || len(items) == 0 {
		return items
	}
	position := make(map[string]int, len(ranked))
	for i, key := range ranked {
		if _, seen := position[key]; !seen {
			position[key] = i
		}
	}
	hits := make([]T, len(ranked))
	filled := make([]bool, len(ranked))
	rest := make([]T, 0, len(items))
	for _, item := range items {
		if pos, ok := position[id(item)]; ok && !filled[pos] {
			hits[pos] = item
			filled[pos] = true
			continue
		}
		rest = append(rest, item)
	}
	out := make([]T, 0, len(items))
	for i, item := range hits {
		if filled[i] {
			out = append(out, item)
		}
	}
	return append(out, rest...)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// Finish applies the limit independently to both collections and fills in
// totals.
func Finish(tasks []store.Task, projects []store.Project, n int) Result {
	tasks = limit(tasks, n)
	projects = limit(projects, n)
	if tasks == nil {
		tasks = []store.Task{}
	}
	if projects == nil {
		projects = []store.Project{}
	}
	return Result{Tasks: tasks, Projects: projects, TotalTasks: len(tasks), TotalProjects: len(projects)}
}

// Pushdown extracts the filters Postgres can evaluate. The in-memory engine
// is always re-applied afterwards.
func Pushdown(orgID string, opts Options) store.TaskFilter {
	filter := store.TaskFilter{
		OrgID:      orgID,
		ProjectID:  opts.ProjectID,
		Status:     opts.Filters.Status,
		Priority:   opts.Filters.Priority,
		AssigneeID: opts.Filters.AssigneeID,
	}
	if r := opts.Filters.DateRange; r != nil {
		filter.RequireDue = true
		if !r.Start.IsZero() {
			start := r.Start
			filter.DueFrom = &start
		}
		if !r.End.IsZero() {
			end := r.End
			filter.DueTo = &end
		}
	}
	return filter
}
