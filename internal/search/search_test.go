package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nel/api/internal/store"
)

func day(d int) *time.Time {
	t := time.Date(2026, 6, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func sampleTasks() []store.Task {
	return []store.Task{
		{ID: "t1", Title: "Pour concrete slab", Status: "pending", Priority: "high", AssigneeID: "u1", Tags: []string{"Concrete"}, DueDate: day(5)},
		{ID: "t2", Title: "Order rebar", Description: "for slab level 2", Status: "in_progress", Priority: "medium", DueDate: day(10)},
		{ID: "t3", Title: "Site induction", Status: "completed", Priority: "low", AssigneeID: "u2", Tags: []string{"safety", "onboarding"}},
		{ID: "t4", Title: "Scaffold check", Status: "pending", Priority: "critical", AssigneeID: "u1", Tags: []string{"safety"}, DueDate: day(20)},
	}
}

func sampleProjects() []store.Project {
	return []store.Project{
		{ID: "p1", Name: "Harbour Tower", Description: "Concrete frame", Tags: []string{"commercial"}},
		{ID: "p2", Name: "Riverside Homes", Tags: []string{"residential", "SLAB-on-ground"}},
	}
}

func ids[T any](items []T, id func(T) string) []string {
	return lo.Map(items, func(item T, _ int) string { return id(item) })
}

func taskIDs(tasks []store.Task) []string {
	return ids(tasks, func(t store.Task) string { return t.ID })
}

func projectIDs(projects []store.Project) []string {
	return ids(projects, func(p store.Project) string { return p.ID })
}

func TestApplyTextQueryIsCaseInsensitiveAndTrimmed(t *testing.T) {
	tasks, projects := Apply(sampleTasks(), sampleProjects(), Options{Query: "  SLAB "})
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(tasks))
	assert.Equal(t, []string{"p2"}, projectIDs(projects))
}

func TestApplyMatchesTags(t *testing.T) {
	tasks, _ := Apply(sampleTasks(), nil, Options{Query: "concrete"})
	assert.Equal(t, []string{"t1"}, taskIDs(tasks))
}

func TestApplyEmptyQueryMatchesEverything(t *testing.T) {
	tasks, projects := Apply(sampleTasks(), sampleProjects(), Options{Query: "   "})
	assert.Len(t, tasks, 4)
	assert.Len(t, projects, 2)
}

func TestFiltersApplyToTasksOnly(t *testing.T) {
	tasks, projects := Apply(sampleTasks(), sampleProjects(), Options{
		Filters: Filters{Status: []string{"pending"}, Priority: []string{"critical"}},
	})
	assert.Equal(t, []string{"t4"}, taskIDs(tasks))
	assert.Len(t, projects, 2)
}

func TestAssigneeFilterExcludesUnassigned(t *testing.T) {
	tasks, _ := Apply(sampleTasks(), nil, Options{Filters: Filters{AssigneeID: []string{"u1", ""}}})
	assert.Equal(t, []string{"t1", "t4"}, taskIDs(tasks))
}

func TestTagFilterIsExactAndCaseSensitive(t *testing.T) {
	tasks, _ := Apply(sampleTasks(), nil, Options{Filters: Filters{Tags: []string{"concrete", "safety"}}})
	assert.Equal(t, []string{"t3", "t4"}, taskIDs(tasks))
}

func TestDateRangeIsInclusiveAndExcludesUndated(t *testing.T) {
	tasks, _ := Apply(sampleTasks(), nil, Options{Filters: Filters{DateRange: &DateRange{Start: *day(5), End: *day(10)}}})
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(tasks))

	tasks, _ = Apply(sampleTasks(), nil, Options{Filters: Filters{DateRange: &DateRange{Start: *day(6)}}})
	assert.Equal(t, []string{"t2", "t4"}, taskIDs(tasks))

	tasks, _ = Apply(sampleTasks(), nil, Options{Filters: Filters{DateRange: &DateRange{}}})
	assert.Equal(t, []string{"t1", "t2", "t4"}, taskIDs(tasks))
}

func TestFinishLimitsEachCollectionAndReportsReturnedTotals(t *testing.T) {
	result := Finish(sampleTasks(), sampleProjects(), 1)
	assert.Len(t, result.Tasks, 1)
	assert.Len(t, result.Projects, 1)
	assert.Equal(t, 1, result.TotalTasks)
	assert.Equal(t, 1, result.TotalProjects)

	result = Finish(nil, nil, 0)
	assert.NotNil(t, result.Tasks)
	assert.Equal(t, 0, result.TotalTasks)
}

func TestRankPutsHitsFirstAndKeepsRest(t *testing.T) {
	ranked := Rank(sampleTasks(), []string{"t4", "missing", "t2"}, func(t store.Task) string { return t.ID })
	assert.Equal(t, []string{"t4", "t2", "t1", "t3"}, taskIDs(ranked))
}

func TestPushdownTranslatesDateRange(t *testing.T) {
	filter := Pushdown("org_1", Options{
		ProjectID: "p1",
		Filters:   Filters{Status: []string{"pending"}, DateRange: &DateRange{End: *day(10)}},
	})
	assert.Equal(t, "org_1", filter.OrgID)
	assert.Equal(t, "p1", filter.ProjectID)
	assert.True(t, filter.RequireDue)
	assert.Nil(t, filter.DueFrom)
	require.NotNil(t, filter.DueTo)
	assert.Equal(t, *day(10), *filter.DueTo)
}

type fakeSource struct {
	tasks    []store.Task
	projects []store.Project
	filter   store.TaskFilter
	err      error
}

func (f *fakeSource) ListTasksFiltered(_ context.Context, filter store.TaskFilter) ([]store.Task, error) {
	f.filter = filter
	return f.tasks, f.err
}

func (f *fakeSource) ListProjects(context.Context, string) ([]store.Project, error) {
	return f.projects, nil
}

func (f *fakeSource) ListAllTasks(context.Context) ([]store.Task, error) { return f.tasks, nil }

func (f *fakeSource) ListAllProjects(context.Context) ([]store.Project, error) { return f.projects, nil }

type fakeBackend struct {
	healthy    bool
	taskIDs    []string
	projectIDs []string
	rankErr    error
	indexed    int
}

func (f *fakeBackend) Rank(string, string) ([]string, []string, error) {
	return f.taskIDs, f.projectIDs, f.rankErr
}
func (f *fakeBackend) Healthy() bool { return f.healthy }
func (f *fakeBackend) IndexTasks(tasks []TaskRecord) error {
	f.indexed += len(tasks)
	return nil
}
func (f *fakeBackend) IndexProjects(projects []ProjectRecord) error {
	f.indexed += len(projects)
	return nil
}
func (f *fakeBackend) DeleteTask(string) error    { return nil }
func (f *fakeBackend) DeleteProject(string) error { return nil }

func TestServiceSearchWithoutBackendUsesStoreOrder(t *testing.T) {
	src := &fakeSource{tasks: sampleTasks(), projects: sampleProjects()}
	svc := NewService(nil, src)

	result, err := svc.Search(context.Background(), "org_1", Options{Query: "slab", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(result.Tasks))
	assert.Equal(t, 2, result.TotalTasks)
	assert.Equal(t, "org_1", src.filter.OrgID)
}

func TestServiceSearchRanksWithHealthyBackend(t *testing.T) {
	src := &fakeSource{tasks: sampleTasks(), projects: sampleProjects()}
	backend := &fakeBackend{healthy: true, taskIDs: []string{"t2", "t3"}}
	svc := NewService(backend, src)

	result, err := svc.Search(context.Background(), "org_1", Options{Query: "slab"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, taskIDs(result.Tasks), "ranking never adds non-matching tasks")
}

func TestServiceSearchFallsBackWhenRankingFails(t *testing.T) {
	src := &fakeSource{tasks: sampleTasks(), projects: sampleProjects()}
	backend := &fakeBackend{healthy: true, rankErr: errors.New("boom")}
	svc := NewService(backend, src)

	result, err := svc.Search(context.Background(), "org_1", Options{Query: "slab"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(result.Tasks))
}

func TestServiceSearchPropagatesSourceErrors(t *testing.T) {
	svc := NewService(nil, &fakeSource{err: errors.New("db down")})
	_, err := svc.Search(context.Background(), "org_1", Options{})
	assert.Error(t, err)
}

func TestReindexPushesEverything(t *testing.T) {
	src := &fakeSource{tasks: sampleTasks(), projects: sampleProjects()}
	backend := &fakeBackend{healthy: true}
	svc := NewService(backend, src)

	tasks, projects, err := svc.Reindex(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 4, tasks)
	assert.Equal(t, 2, projects)
	assert.Equal(t, 6, backend.indexed)

	_, _, err = NewService(nil, src).Reindex(context.Background(), src)
	assert.Error(t, err)
}
