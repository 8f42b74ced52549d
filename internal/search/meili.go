package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/store"
)

const (
	idxTasks    = "nel_tasks"
	idxProjects = "nel_projects"

	// rankWindow caps how many hits are pulled per index for ranking.
	rankWindow = 1000
)

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"orgId"`
	ProjectID   string   `json:"projectId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"orgId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
}

func TaskRecordFrom(task store.Task) TaskRecord {
	return TaskRecord{
		ID:          task.ID,
		OrgID:       task.OrgID,
		ProjectID:   task.ProjectID,
		Title:       task.Title,
		Description: task.Description,
		Tags:        task.Tags,
		Status:      task.Status,
		Priority:    task.Priority,
	}
}

func ProjectRecordFrom(project store.Project) ProjectRecord {
	return ProjectRecord{
		ID:          project.ID,
		OrgID:       project.OrgID,
		Name:        project.Name,
		Description: project.Description,
		Tags:        project.Tags,
		Status:      project.Status,
	}
}

// Ranker orders matches by relevance.
type Ranker interface {
	Rank(orgID, query string) (taskIDs, projectIDs []string, err error)
	Healthy() bool
}

// Indexer pushes entities into the search index.
type Indexer interface {
	IndexTasks(tasks []TaskRecord) error
	IndexProjects(projects []ProjectRecord) error
	DeleteTask(id string) error
	DeleteProject(id string) error
}

// Meili implements Ranker and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.GetLogger().Warn("search: meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxTasks,
			filterable: []string{"orgId", "projectId", "status", "priority"},
			searchable: []string{"title", "description", "tags"},
		},
		{
			uid:        idxProjects,
			filterable: []string{"orgId", "status"},
			searchable: []string{"name", "description", "tags"},
		},
	}

	log := logger.GetLogger()
	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Debug("search: create index (may already exist)", zap.String("index", idx.uid), zap.Error(err))
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Warn("search: update filterable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Warn("search: update searchable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				logger.GetLogger().Info("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Rank asks both indexes for the query within an organization and returns
// the hit ids in relevance order.
func (m *Meili) Rank(orgID, query string) ([]string, []string, error) {
	if !m.healthy.Load() {
		return nil, nil, fmt.Errorf("meilisearch unhealthy")
	}

	orgFilter := fmt.Sprintf("orgId = %q", orgID)
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{
			{
				IndexUID:             idxTasks,
				Query:                query,
				Limit:                rankWindow,
				Filter:               orgFilter,
				AttributesToRetrieve: []string{"id"},
			},
			{
				IndexUID:             idxProjects,
				Query:                query,
				Limit:                rankWindow,
				Filter:               orgFilter,
				AttributesToRetrieve: []string{"id"},
			},
		},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var taskIDs, projectIDs []string
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			id := decodeString(hit, "id")
			if id == "" {
				continue
			}
			switch sr.IndexUID {
			case idxTasks:
				taskIDs = append(taskIDs, id)
			case idxProjects:
				projectIDs = append(projectIDs, id)
			}
		}
	}
	return taskIDs, projectIDs, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func (m *Meili) IndexTasks(tasks []TaskRecord) error {
	if len(tasks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTasks).AddDocuments(tasks, nil)
	return err
}

func (m *Meili) IndexProjects(projects []ProjectRecord) error {
	if len(projects) == 0 {
		return nil
	}
	_, err := m.client.Index(idxProjects).AddDocuments(projects, nil)
	return err
}

func (m *Meili) DeleteTask(id string) error {
	_, err := m.client.Index(idxTasks).DeleteDocument(id, nil)
	return err
}

func (m *Meili) DeleteProject(id string) error {
	_, err := m.client.Index(idxProjects).DeleteDocument(id, nil)
	return err
}
