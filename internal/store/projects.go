package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var projectColumns = []string{
	"id", "org_id", "name", "description", "status", "progress", "start_date", "end_date",
	"budget", "spent", "manager_id", "location", "priority", "tags", "metadata", "created_at", "updated_at",
}

func scanProject(row scanner) (Project, error) {
	var (
		project                 Project
		endDate                 sql.NullTime
		location, tags, rawMeta []byte
	)
	err := row.Scan(
		&project.ID, &project.OrgID, &project.Name, &project.Description, &project.Status, &project.Progress,
		&project.StartDate, &endDate, &project.Budget, &project.Spent, &project.ManagerID,
		&location, &project.Priority, &tags, &rawMeta, &project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	project.EndDate = timePtr(endDate)
	if project.Location, err = decodeLocation(location); err != nil {
		return Project{}, err
	}
	if project.Tags, err = decodeList(tags); err != nil {
		return Project{}, err
	}
	if err := decodeJSON(rawMeta, &project.Metadata); err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) queryProjects(ctx context.Context, q sq.SelectBuilder) ([]Project, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build project query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) GetProject(ctx context.Context, orgID, projectID string) (Project, error) {
	query, args, err := psql.Select(projectColumns...).From("projects").
		Where(sq.Eq{"org_id": orgID, "id": projectID}).ToSql()
	if err != nil {
		return Project{}, fmt.Errorf("build project query: %w", err)
	}
	return scanProject(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListProjects(ctx context.Context, orgID string) ([]Project, error) {
	return s.queryProjects(ctx, psql.Select(projectColumns...).From("projects").
		Where(sq.Eq{"org_id": orgID}).OrderBy("created_at DESC"))
}

func (s *PostgresStore) ListProjectsByStatus(ctx context.Context, orgID, status string) ([]Project, error) {
	return s.queryProjects(ctx, psql.Select(projectColumns...).From("projects").
		Where(sq.Eq{"org_id": orgID, "status": status}).OrderBy("created_at DESC"))
}

func (s *PostgresStore) ListProjectsByManager(ctx context.Context, orgID, managerID string) ([]Project, error) {
	return s.queryProjects(ctx, psql.Select(projectColumns...).From("projects").
		Where(sq.Eq{"org_id": orgID, "manager_id": managerID}).OrderBy("created_at DESC"))
}

// ListAllProjects returns every project across organizations, for reindexing.
func (s *PostgresStore) ListAllProjects(ctx context.Context) ([]Project, error) {
	return s.queryProjects(ctx, psql.Select(projectColumns...).From("projects").OrderBy("created_at ASC"))
}

func (s *PostgresStore) CreateProject(ctx context.Context, project Project) error {
	location, err := encodeLocation(project.Location)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(project.Metadata)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("projects").
		Columns("id", "org_id", "name", "description", "status", "progress", "start_date", "end_date",
			"budget", "spent", "manager_id", "location", "priority", "tags", "metadata").
		Values(project.ID, project.OrgID, project.Name, project.Description, project.Status, project.Progress,
			project.StartDate, nullTime(project.EndDate), project.Budget, project.Spent, project.ManagerID,
			location, project.Priority, encodeList(project.Tags), metadata).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert project: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// UpdateProject overwrites the mutable columns with the given values.
func (s *PostgresStore) UpdateProject(ctx context.Context, project Project) error {
	location, err := encodeLocation(project.Location)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(project.Metadata)
	if err != nil {
		return err
	}
	query, args, err := psql.Update("projects").
		Set("name", project.Name).
		Set("description", project.Description).
		Set("status", project.Status).
		Set("progress", project.Progress).
		Set("start_date", project.StartDate).
		Set("end_date", nullTime(project.EndDate)).
		Set("budget", project.Budget).
		Set("spent", project.Spent).
		Set("manager_id", project.ManagerID).
		Set("location", location).
		Set("priority", project.Priority).
		Set("tags", encodeList(project.Tags)).
		Set("metadata", metadata).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"org_id": project.OrgID, "id": project.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update project: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, orgID, projectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE org_id=$1 AND id=$2`, orgID, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return affectedOrNotFound(res)
}
