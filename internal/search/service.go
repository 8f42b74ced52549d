package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/metrics"
	"nel/api/internal/store"
)

// Source supplies candidate tasks and projects. Postgres answers the
// pushed-down filters.
type Source interface {
	ListTasksFiltered(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	ListProjects(ctx context.Context, orgID string) ([]store.Project, error)
}

// ReindexSource loads every searchable entity.
type ReindexSource interface {
	ListAllTasks(ctx context.Context) ([]store.Task, error)
	ListAllProjects(ctx context.Context) ([]store.Project, error)
}

// Backend is what Service needs from the search engine.
type Backend interface {
	Ranker
	Indexer
}

// Service matches in memory and asks Meilisearch, when healthy, to rank the
// matches. Results never depend on which backend was available.
type Service struct {
	backend Backend
	source  Source
}

// NewService creates a search service. backend may be nil when Meilisearch
// is not configured.
func NewService(backend Backend, source Source) *Service {
	if m, ok := backend.(*Meili); ok && m == nil {
		backend = nil
	}
	return &Service{backend: backend, source: source}
}

func (s *Service) available() bool {
	return s.backend != nil && s.backend.Healthy()
}

// Search runs filter, rank and limit over the organization's tasks and projects.
func (s *Service) Search(ctx context.Context, orgID string, opts Options) (Result, error) {
	tasks, err := s.source.ListTasksFiltered(ctx, Pushdown(orgID, opts))
	if err != nil {
		return Result{}, fmt.Errorf("load search tasks: %w", err)
	}
	projects, err := s.source.ListProjects(ctx, orgID)
	if err != nil {
		return Result{}, fmt.Errorf("load search projects: %w", err)
	}

	tasks, projects = Apply(tasks, projects, opts)

	backend := "memory"
	if Term(opts.Query) != "" && s.available() {
		taskIDs, projectIDs, err := s.backend.Rank(orgID, opts.Query)
		if err != nil {
			logger.FromContext(ctx).Warn("search: meilisearch ranking failed, keeping store order", zap.Error(err))
		} else {
			backend = "meilisearch"
			tasks = Rank(tasks, taskIDs, func(t store.Task) string { return t.ID })
			projects = Rank(projects, projectIDs, func(p store.Project) string { return p.ID })
		}
	}
	metrics.SearchBackend.WithLabelValues(backend).Inc()

	return Finish(tasks, projects, opts.Limit), nil
}

// IndexTask indexes a task (fire-and-forget to Meilisearch).
func (s *Service) IndexTask(task store.Task) {
	if !s.available() {
		return
	}
	record := TaskRecordFrom(task)
	go func() {
		if err := s.backend.IndexTasks([]TaskRecord{record}); err != nil {
			logger.GetLogger().Warn("search: index task", zap.String("task_id", record.ID), zap.Error(err))
		}
	}()
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(project store.Project) {
	if !s.available() {
		return
	}
	record := ProjectRecordFrom(project)
	go func() {
		if err := s.backend.IndexProjects([]ProjectRecord{record}); err != nil {
			logger.GetLogger().Warn("search: index project", zap.String("project_id", record.ID), zap.Error(err))
		}
	}()
}

// DeleteTask removes a task from the index (fire-and-forget).
func (s *Service) DeleteTask(id string) {
	if !s.available() {
		return
	}
	go func() {
		if err := s.backend.DeleteTask(id); err != nil {
			logger.GetLogger().Warn("search: delete task", zap.String("task_id", id), zap.Error(err))
		}
	}()
}

// DeleteProject removes a project from the index (fire-and-forget).
func (s *Service) DeleteProject(id string) {
	if !s.available() {
		return
	}
	go func() {
		if err := s.backend.DeleteProject(id); err != nil {
			logger.GetLogger().Warn("search: delete project", zap.String("project_id", id), zap.Error(err))
		}
	}()
}

// Reindex rebuilds both indexes from the source. It returns the number of
// tasks and projects pushed.
func (s *Service) Reindex(ctx context.Context, src ReindexSource) (int, int, error) {
	if !s.available() {
		return 0, 0, fmt.Errorf("meilisearch is not available")
	}
	tasks, err := src.ListAllTasks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load tasks: %w", err)
	}
	projects, err := src.ListAllProjects(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load projects: %w", err)
	}

	taskRecords := make([]TaskRecord, 0, len(tasks))
	for _, task := range tasks {
		taskRecords = append(taskRecords, TaskRecordFrom(task))
	}
	projectRecords := make([]ProjectRecord, 0, len(projects))
	for _, project := range projects {
		projectRecords = append(projectRecords, ProjectRecordFrom(project))
	}

	if err := s.backend.IndexTasks(taskRecords); err != nil {
		return 0, 0, fmt.Errorf("index tasks: %w", err)
	}
	if err := s.backend.IndexProjects(projectRecords); err != nil {
		return len(taskRecords), 0, fmt.Errorf("index projects: %w", err)
	}
	return len(taskRecords), len(projectRecords), nil
}
