package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// notifiedSeverities trigger a warning to the project manager.
var notifiedSeverities = []string{"high", "critical"}

type ResourceInput struct {
	ProjectID      string         `json:"projectId"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Quantity       float64        `json:"quantity"`
	Unit           string         `json:"unit"`
	Cost           float64        `json:"cost"`
	Supplier       string         `json:"supplier"`
	Status         string         `json:"status"`
	DeliveryDate   *time.Time     `json:"deliveryDate"`
	ReturnDate     *time.Time     `json:"returnDate"`
	Specifications map[string]any `json:"specifications"`
}

type EquipmentInput struct {
	ProjectID           string          `json:"projectId"`
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	Status              string          `json:"status"`
	Location            *store.Location `json:"location"`
	OperatorID          string          `json:"operatorId"`
	MaintenanceSchedule string          `json:"maintenanceSchedule"`
	LastMaintenance     *time.Time      `json:"lastMaintenance"`
	NextMaintenance     *time.Time      `json:"nextMaintenance"`
	HourlyRate          float64         `json:"hourlyRate"`
	DailyRate           float64         `json:"dailyRate"`
	Specifications      map[string]any  `json:"specifications"`
}

type SiteActivityInput struct {
	ProjectID   string          `json:"projectId"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Location    *store.Location `json:"location"`
	Photos      []string        `json:"photos"`
	Weather     *store.Weather  `json:"weather"`
	OccurredAt  *time.Time      `json:"timestamp"`
}

type IncidentInput struct {
	ProjectID   string          `json:"projectId"`
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	Location    *store.Location `json:"location"`
	Photos      []string        `json:"photos"`
	OccurredAt  *time.Time      `json:"timestamp"`
}

func (s *Service) requireProject(ctx context.Context, orgID, projectID string) (store.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return store.Project{}, validationError("projectId is required", map[string]string{"projectId": "projectId is required"})
	}
	project, err := s.store.GetProject(ctx, orgID, projectID)
	return project, orNotFound(err, "Project")
}

func (s *Service) ListResources(ctx context.Context, session Session, projectID string) ([]store.Resource, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListResourcesByProject(ctx, session.OrgID, projectID)
}

func (s *Service) CreateResource(ctx context.Context, session Session, in ResourceInput) (store.Resource, error) {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return store.Resource{}, err
	}
	if in.Status == "" {
		in.Status = "ordered"
	}
	errs := fieldErrors{}
	errs.required("name", in.Name)
	errs.oneOf("type", in.Type, resourceTypes)
	errs.oneOf("status", in.Status, resourceStatuses)
	errs.check(in.Quantity >= 0, "quantity", "quantity must not be negative")
	errs.check(in.Cost >= 0, "cost", "cost must not be negative")
	if err := errs.err(); err != nil {
		return store.Resource{}, err
	}
	if _, err := s.requireProject(ctx, session.OrgID, in.ProjectID); err != nil {
		return store.Resource{}, err
	}

	resource := store.Resource{
		ID:             util.NewID("res"),
		OrgID:          session.OrgID,
		ProjectID:      in.ProjectID,
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		Quantity:       in.Quantity,
		Unit:           in.Unit,
		Cost:           in.Cost,
		Supplier:       in.Supplier,
		Status:         in.Status,
		DeliveryDate:   in.DeliveryDate,
		ReturnDate:     in.ReturnDate,
		Specifications: in.Specifications,
	}
	if err := s.store.CreateResource(ctx, resource); err != nil {
		return store.Resource{}, err
	}
	return resource, nil
}

func (s *Service) UpdateResourceStatus(ctx context.Context, session Session, resourceID, status string) error {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return err
	}
	errs := fieldErrors{}
	errs.oneOf("status", status, resourceStatuses)
	if err := errs.err(); err != nil {
		return err
	}
	return orNotFound(s.store.UpdateResourceStatus(ctx, session.OrgID, resourceID, status), "Resource")
}

// GetResourceUtilization is the rounded share of a project's resources that
// are in use, 0 when it has none.
func (s *Service) GetResourceUtilization(ctx context.Context, session Session, projectID string) (int, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return 0, err
	}
	total, inUse, err := s.store.CountResourcesByStatus(ctx, session.OrgID, projectID, "in_use")
	if err != nil {
		return 0, err
	}
	return util.Percent(float64(inUse), float64(total)), nil
}

func (s *Service) ListEquipment(ctx context.Context, session Session, projectID string) ([]store.Equipment, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListEquipmentByProject(ctx, session.OrgID, projectID)
}

func (s *Service) ListEquipmentDueForMaintenance(ctx context.Context, session Session) ([]store.Equipment, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListEquipmentDueForMaintenance(ctx, session.OrgID, s.now())
}

func (s *Service) CreateEquipment(ctx context.Context, session Session, in EquipmentInput) (store.Equipment, error) {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return store.Equipment{}, err
	}
	if in.Status == "" {
		in.Status = "available"
	}
	errs := fieldErrors{}
	errs.required("name", in.Name)
	errs.required("type", in.Type)
	errs.oneOf("status", in.Status, equipmentStatuses)
	errs.check(in.HourlyRate >= 0, "hourlyRate", "hourlyRate must not be negative")
	errs.check(in.DailyRate >= 0, "dailyRate", "dailyRate must not be negative")
	if err := errs.err(); err != nil {
		return store.Equipment{}, err
	}
	if in.ProjectID != "" {
		if _, err := s.requireProject(ctx, session.OrgID, in.ProjectID); err != nil {
			return store.Equipment{}, err
		}
	}

	item := store.Equipment{
		ID:                  util.NewID("eqp"),
		OrgID:               session.OrgID,
		ProjectID:           in.ProjectID,
		Name:                strings.TrimSpace(in.Name),
		Type:                in.Type,
		Status:              in.Status,
		Location:            in.Location,
		OperatorID:          in.OperatorID,
		MaintenanceSchedule: in.MaintenanceSchedule,
		LastMaintenance:     in.LastMaintenance,
		NextMaintenance:     in.NextMaintenance,
		HourlyRate:          in.HourlyRate,
		DailyRate:           in.DailyRate,
		Specifications:      in.Specifications,
	}
	if err := s.store.CreateEquipment(ctx, item); err != nil {
		return store.Equipment{}, err
	}
	return item, nil
}

func (s *Service) UpdateEquipmentStatus(ctx context.Context, session Session, equipmentID, status string) error {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return err
	}
	errs := fieldErrors{}
	errs.oneOf("status", status, equipmentStatuses)
	if err := errs.err(); err != nil {
		return err
	}
	return orNotFound(s.store.UpdateEquipmentStatus(ctx, session.OrgID, equipmentID, status), "Equipment")
}

func (s *Service) RecordSiteActivity(ctx context.Context, session Session, in SiteActivityInput) (store.SiteActivity, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.SiteActivity{}, err
	}
	errs := fieldErrors{}
	errs.oneOf("type", in.Type, activityTypes)
	errs.required("description", in.Description)
	if err := errs.err(); err != nil {
		return store.SiteActivity{}, err
	}
	if _, err := s.requireProject(ctx, session.OrgID, in.ProjectID); err != nil {
		return store.SiteActivity{}, err
	}

	now := s.now()
	activity := store.SiteActivity{
		ID:          util.NewID("act"),
		OrgID:       session.OrgID,
		ProjectID:   in.ProjectID,
		Type:        in.Type,
		Description: strings.TrimSpace(in.Description),
		RecordedBy:  session.UserID,
		Location:    in.Location,
		Photos:      in.Photos,
		Weather:     in.Weather,
		OccurredAt:  now,
		CreatedAt:   now,
	}
	if in.OccurredAt != nil {
		activity.OccurredAt = in.OccurredAt.UTC()
	}
	if err := s.store.CreateSiteActivity(ctx, activity); err != nil {
		return store.SiteActivity{}, err
	}
	return activity, nil
}

// ListSiteActivities lists a project's activities newest first.
func (s *Service) ListSiteActivities(ctx context.Context, session Session, projectID string, limit int) ([]store.SiteActivity, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListSiteActivities(ctx, session.OrgID, projectID, clampLimit(limit, defaultActivityLimit, maxActivityLimit))
}

func (s *Service) ListIncidents(ctx context.Context, session Session, projectID string) ([]store.SafetyIncident, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListIncidentsByProject(ctx, session.OrgID, projectID)
}

// ReportIncident records a safety incident. High and critical incidents
// warn the project manager.
func (s *Service) ReportIncident(ctx context.Context, session Session, in IncidentInput) (store.SafetyIncident, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.SafetyIncident{}, err
	}
	errs := fieldErrors{}
	errs.oneOf("type", in.Type, incidentTypes)
	errs.oneOf("severity", in.Severity, severities)
	errs.required("description", in.Description)
	if err := errs.err(); err != nil {
		return store.SafetyIncident{}, err
	}
	project, err := s.requireProject(ctx, session.OrgID, in.ProjectID)
	if err != nil {
		return store.SafetyIncident{}, err
	}

	now := s.now()
	incident := store.SafetyIncident{
		ID:          util.NewID("inc"),
		OrgID:       session.OrgID,
		ProjectID:   in.ProjectID,
		Type:        in.Type,
		Severity:    in.Severity,
		Description: strings.TrimSpace(in.Description),
		ReportedBy:  session.UserID,
		Location:    in.Location,
		Photos:      in.Photos,
		OccurredAt:  now,
		CreatedAt:   now,
	}
	if in.OccurredAt != nil {
		incident.OccurredAt = in.OccurredAt.UTC()
	}
	if err := s.store.CreateIncident(ctx, incident); err != nil {
		return store.SafetyIncident{}, err
	}

	if lo.Contains(notifiedSeverities, incident.Severity) && project.ManagerID != "" {
		_, _, err := s.Notify(ctx, store.Notification{
			OrgID:     session.OrgID,
			UserID:    project.ManagerID,
			Type:      "warning",
			Title:     "Safety incident reported",
			Message:   fmt.Sprintf("A %s severity %s was reported on %s.", incident.Severity, strings.ReplaceAll(incident.Type, "_", " "), project.Name),
			DedupeKey: "incident:" + incident.ID,
			Data:      map[string]any{"incidentId": incident.ID, "projectId": project.ID},
		})
		if err != nil {
			logger.FromContext(ctx).Warn("incident: notify manager", zap.String("incident_id", incident.ID), zap.Error(err))
		}
	}
	return incident, nil
}

func (s *Service) ResolveIncident(ctx context.Context, session Session, incidentID, notes string) (store.SafetyIncident, error) {
	if err := s.authorizeOrg(session, rbac.ActionModerate); err != nil {
		return store.SafetyIncident{}, err
	}
	incident, err := s.store.GetIncident(ctx, session.OrgID, incidentID)
	if err != nil {
		return store.SafetyIncident{}, orNotFound(err, "Incident")
	}
	now := s.now()
	notes = strings.TrimSpace(notes)
	if err := s.store.ResolveIncident(ctx, session.OrgID, incidentID, notes, now); err != nil {
		return store.SafetyIncident{}, orNotFound(err, "Incident")
	}
	incident.Resolved, incident.ResolvedAt, incident.ResolutionNotes = true, &now, notes
	return incident, nil
}

func (s *Service) GetIncidentStats(ctx context.Context, session Session) (store.IncidentStats, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return store.IncidentStats{}, err
	}
	stats, err := s.store.IncidentStats(ctx, session.OrgID)
	if err != nil {
		return store.IncidentStats{}, err
	}
	if stats.BySeverity == nil {
		stats.BySeverity = map[string]int{}
	}
	for _, severity := range severities {
		if _, ok := stats.BySeverity[severity]; !ok {
			stats.BySeverity[severity] = 0
		}
	}
	return stats, nil
}
