package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nel/api/internal/export"
	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

const progressHistoryLimit = 30

type MetricInput struct {
	ProjectID  string         `json:"projectId"`
	Metric     string         `json:"metric"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit"`
	OccurredAt *time.Time     `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

// PerformanceMetrics holds the latest sample of each tracked metric.
type PerformanceMetrics struct {
	Progress   float64 `json:"progress"`
	Efficiency float64 `json:"efficiency"`
	Quality    float64 `json:"quality"`
	Safety     float64 `json:"safety"`
}

func (s *Service) RecordMetric(ctx context.Context, session Session, in MetricInput) (store.AnalyticsSample, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.AnalyticsSample{}, err
	}
	errs := fieldErrors{}
	errs.oneOf("metric", in.Metric, metricNames)
	if err := errs.err(); err != nil {
		return store.AnalyticsSample{}, err
	}
	if _, err := s.requireProject(ctx, session.OrgID, in.ProjectID); err != nil {
		return store.AnalyticsSample{}, err
	}
	sample := store.AnalyticsSample{
		ID:         util.NewID("mtr"),
		OrgID:      session.OrgID,
		ProjectID:  in.ProjectID,
		Metric:     in.Metric,
		Value:      in.Value,
		Unit:       in.Unit,
		OccurredAt: s.now(),
		Metadata:   in.Metadata,
	}
	if in.OccurredAt != nil {
		sample.OccurredAt = in.OccurredAt.UTC()
	}
	if err := s.store.CreateMetric(ctx, sample); err != nil {
		return store.AnalyticsSample{}, err
	}
	return sample, nil
}

// GetProgressByProject returns the latest progress samples, newest first.
func (s *Service) GetProgressByProject(ctx context.Context, session Session, projectID string) ([]store.AnalyticsSample, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListMetrics(ctx, session.OrgID, projectID, "progress", progressHistoryLimit)
}

// GetBudgetUtilization is round(spent/budget*100) once anything was spent.
// A missing project or a zero budget reports 0.
func (s *Service) GetBudgetUtilization(ctx context.Context, session Session, projectID string) (int, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return 0, err
	}
	project, err := s.store.GetProject(ctx, session.OrgID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if project.Spent <= 0 {
		return 0, nil
	}
	return util.Percent(project.Spent, project.Budget), nil
}

func (s *Service) GetPerformanceMetrics(ctx context.Context, session Session, projectID string) (PerformanceMetrics, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return PerformanceMetrics{}, err
	}
	latest, err := s.store.LatestMetrics(ctx, session.OrgID, projectID)
	if err != nil {
		return PerformanceMetrics{}, err
	}
	return PerformanceMetrics{
		Progress:   latest["progress"],
		Efficiency: latest["efficiency"],
		Quality:    latest["quality"],
		Safety:     latest["safety"],
	}, nil
}

// ExportProjectReport renders the project report as PDF, DOCX or HTML.
func (s *Service) ExportProjectReport(ctx context.Context, session Session, projectID, format string, includeDetails bool) (*export.Result, error) {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return nil, err
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, export.Request{
		OrgID:          session.OrgID,
		ProjectID:      projectID,
		Format:         parsed,
		IncludeDetails: includeDetails,
	})
	if err != nil {
		return nil, orNotFound(err, "Project")
	}
	return result, nil
}
