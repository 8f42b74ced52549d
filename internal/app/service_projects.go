package app

import (
	"context"
	"strings"
	"time"

	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

// ProjectInput is a create or patch payload; nil fields are left unchanged.
type ProjectInput struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Status      *string                `json:"status"`
	Progress    *int                   `json:"progress"`
	StartDate   *time.Time             `json:"startDate"`
	EndDate     *time.Time             `json:"endDate"`
	Budget      *float64               `json:"budget"`
	Spent       *float64               `json:"spent"`
	ManagerID   *string                `json:"managerId"`
	Location    *store.Location        `json:"location"`
	Priority    *string                `json:"priority"`
	Tags        []string               `json:"tags"`
	Metadata    *store.ProjectMetadata `json:"metadata"`
}

func (in ProjectInput) apply(p *store.Project) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.Progress != nil {
		p.Progress = *in.Progress
	}
	if in.StartDate != nil {
		p.StartDate = in.StartDate.UTC()
	}
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		p.EndDate = &end
	}
	if in.Budget != nil {
		p.Budget = *in.Budget
	}
	if in.Spent != nil {
		p.Spent = *in.Spent
	}
	if in.ManagerID != nil {
		p.ManagerID = *in.ManagerID
	}
	if in.Location != nil {
		p.Location = in.Location
	}
	if in.Priority != nil {
		p.Priority = *in.Priority
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}
	if in.Metadata != nil {
		p.Metadata = *in.Metadata
	}
}

func validateProject(p store.Project) error {
	errs := fieldErrors{}
	errs.required("name", p.Name)
	errs.oneOf("status", p.Status, projectStatuses)
	errs.oneOf("priority", p.Priority, priorities)
	errs.check(p.Progress >= 0 && p.Progress <= 100, "progress", "progress must be between 0 and 100")
	errs.check(!p.StartDate.IsZero(), "startDate", "startDate is required")
	errs.check(p.EndDate == nil || !p.EndDate.Before(p.StartDate), "endDate", "endDate must not be before startDate")
	errs.check(p.Budget >= 0, "budget", "budget must not be negative")
	errs.check(p.Spent >= 0, "spent", "spent must not be negative")
	return errs.err()
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.GetProject(ctx, session.OrgID, projectID)
	return project, orNotFound(err, "Project")
}

// ListProjects lists the organization's projects, optionally by status.
func (s *Service) ListProjects(ctx context.Context, session Session, status string) ([]store.Project, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if status == "" {
		return s.store.ListProjects(ctx, session.OrgID)
	}
	errs := fieldErrors{}
	errs.oneOf("status", status, projectStatuses)
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.store.ListProjectsByStatus(ctx, session.OrgID, status)
}

// ListUserProjects lists projects managed by managerID, the caller by default.
func (s *Service) ListUserProjects(ctx context.Context, session Session, managerID string) ([]store.Project, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if managerID == "" {
		managerID = session.UserID
	}
	return s.store.ListProjectsByManager(ctx, session.OrgID, managerID)
}

// GetProjectProgress is the rounded share of completed tasks, 0 without tasks.
func (s *Service) GetProjectProgress(ctx context.Context, session Session, projectID string) (int, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return 0, err
	}
	total, completed, err := s.store.CountProjectTasks(ctx, session.OrgID, projectID)
	if err != nil {
		return 0, err
	}
	return util.Percent(float64(completed), float64(total)), nil
}

func (s *Service) CreateProject(ctx context.Context, session Session, in ProjectInput) (store.Project, error) {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return store.Project{}, err
	}
	project := store.Project{
		ID:        util.NewID("prj"),
		OrgID:     session.OrgID,
		Status:    "planning",
		Priority:  "medium",
		ManagerID: session.UserID,
	}
	in.apply(&project)
	if err := validateProject(project); err != nil {
		return store.Project{}, err
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return store.Project{}, err
	}
	now := s.now()
	project.CreatedAt, project.UpdatedAt = now, now
	s.search.IndexProject(project)
	return project, nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, in ProjectInput) (store.Project, error) {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.GetProject(ctx, session.OrgID, projectID)
	if err != nil {
		return store.Project{}, orNotFound(err, "Project")
	}
	in.apply(&project)
	if err := validateProject(project); err != nil {
		return store.Project{}, err
	}
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return store.Project{}, orNotFound(err, "Project")
	}
	project.UpdatedAt = s.now()
	s.search.IndexProject(project)
	return project, nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, session.OrgID, projectID); err != nil {
		return orNotFound(err, "Project")
	}
	s.search.DeleteProject(projectID)
	return nil
}
