package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProject(ctx context.Context, orgID, projectID string) (store.Project, error)
	ListTasksByProject(ctx context.Context, orgID, projectID string) ([]store.Task, error)
	ListIncidentsByProject(ctx context.Context, orgID, projectID string) ([]store.SafetyIncident, error)
	ListResourcesByProject(ctx context.Context, orgID, projectID string) ([]store.Resource, error)
	LatestMetrics(ctx context.Context, orgID, projectID string) (map[string]float64, error)
}

type renderFunc func(ctx context.Context, html string, data ReportData) (*Result, error)

// Service provides project report export
type Service struct {
	store DataStore
	now   func() time.Time
	pdf   renderFunc
	docx  renderFunc
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		pdf:   exportPDF,
		docx:  exportDOCX,
	}
}

// Export builds the report for a project and renders it in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	data, err := s.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	logger.FromContext(ctx).Info("export: rendering project report",
		zap.String("project_id", req.ProjectID),
		zap.String("format", string(req.Format)),
	)

	switch req.Format {
	case FormatPDF:
		return s.pdf(ctx, html, data)
	case FormatDOCX:
		return s.docx(ctx, html, data)
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: reportFilename(data, ".html"),
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// Build loads everything the report shows.
func (s *Service) Build(ctx context.Context, req Request) (ReportData, error) {
	project, err := s.store.GetProject(ctx, req.OrgID, req.ProjectID)
	if err != nil {
		return ReportData{}, fmt.Errorf("get project: %w", err)
	}
	tasks, err := s.store.ListTasksByProject(ctx, req.OrgID, req.ProjectID)
	if err != nil {
		return ReportData{}, fmt.Errorf("list tasks: %w", err)
	}
	metrics, err := s.store.LatestMetrics(ctx, req.OrgID, req.ProjectID)
	if err != nil {
		return ReportData{}, fmt.Errorf("latest metrics: %w", err)
	}

	completed := lo.CountBy(tasks, func(t store.Task) bool { return t.Status == "completed" })
	data := ReportData{
		Name:            project.Name,
		Description:     project.Description,
		Status:          project.Status,
		Priority:        project.Priority,
		StartDate:       project.StartDate,
		EndDate:         project.EndDate,
		Budget:          project.Budget,
		Spent:           project.Spent,
		Progress:        util.Percent(float64(completed), float64(len(tasks))),
		TaskCount:       len(tasks),
		CompletedTasks:  completed,
		Metrics:         metricRows(metrics),
		GeneratedAt:     s.now(),
		IncludesDetails: req.IncludeDetails,
	}
	if project.Spent > 0 {
		data.BudgetUsed = util.Percent(project.Spent, project.Budget)
	}
	if project.Location != nil {
		data.Address = project.Location.Address
	}

	if !req.IncludeDetails {
		return data, nil
	}

	incidents, err := s.store.ListIncidentsByProject(ctx, req.OrgID, req.ProjectID)
	if err != nil {
		return ReportData{}, fmt.Errorf("list incidents: %w", err)
	}
	resources, err := s.store.ListResourcesByProject(ctx, req.OrgID, req.ProjectID)
	if err != nil {
		return ReportData{}, fmt.Errorf("list resources: %w", err)
	}

	data.Tasks = lo.Map(tasks, func(t store.Task, _ int) ReportTask {
		return ReportTask{Title: t.Title, Status: t.Status, Priority: t.Priority, DueDate: t.DueDate}
	})
	data.Incidents = lo.Map(incidents, func(i store.SafetyIncident, _ int) ReportIncident {
		return ReportIncident{Type: i.Type, Severity: i.Severity, Description: i.Description, Resolved: i.Resolved, OccurredAt: i.OccurredAt}
	})
	data.Resources = lo.Map(resources, func(r store.Resource, _ int) ReportResource {
		return ReportResource{Name: r.Name, Type: r.Type, Status: r.Status, Quantity: r.Quantity, Unit: r.Unit}
	})
	return data, nil
}

func metricRows(latest map[string]float64) []ReportMetric {
	rows := make([]ReportMetric, 0, len(latest))
	for name, value := range latest {
		rows = append(rows, ReportMetric{Name: name, Value: value})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
