package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const incidentColumns = `id, org_id, project_id, type, severity, description, reported_by, location, photos,
	resolved, resolved_at, resolution_notes, occurred_at, created_at`

func scanIncident(row scanner) (SafetyIncident, error) {
	var (
		item             SafetyIncident
		location, photos []byte
		resolvedAt       sql.NullTime
	)
	err := row.Scan(&item.ID, &item.OrgID, &item.ProjectID, &item.Type, &item.Severity, &item.Description,
		&item.ReportedBy, &location, &photos, &item.Resolved, &resolvedAt, &item.ResolutionNotes,
		&item.OccurredAt, &item.CreatedAt)
	if err != nil {
		return SafetyIncident{}, err
	}
	item.ResolvedAt = timePtr(resolvedAt)
	if item.Location, err = decodeLocation(location); err != nil {
		return SafetyIncident{}, err
	}
	if item.Photos, err = decodeList(photos); err != nil {
		return SafetyIncident{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetIncident(ctx context.Context, orgID, incidentID string) (SafetyIncident, error) {
	return scanIncident(s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM safety_incidents WHERE org_id=$1 AND id=$2`, orgID, incidentID))
}

func (s *PostgresStore) ListIncidentsByProject(ctx context.Context, orgID, projectID string) ([]SafetyIncident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM safety_incidents WHERE org_id=$1 AND project_id=$2 ORDER BY occurred_at DESC`,
		orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	items := []SafetyIncident{}
	for rows.Next() {
		item, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateIncident(ctx context.Context, incident SafetyIncident) error {
	location, err := encodeLocation(incident.Location)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("safety_incidents").
		Columns("id", "org_id", "project_id", "type", "severity", "description", "reported_by", "location",
			"photos", "occurred_at").
		Values(incident.ID, incident.OrgID, incident.ProjectID, incident.Type, incident.Severity,
			incident.Description, incident.ReportedBy, location, encodeList(incident.Photos), incident.OccurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert incident: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResolveIncident(ctx context.Context, orgID, incidentID, notes string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE safety_incidents SET resolved=TRUE, resolved_at=$3, resolution_notes=$4
		WHERE org_id=$1 AND id=$2
	`, orgID, incidentID, at, notes)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	return affectedOrNotFound(res)
}

// IncidentStats counts incidents of an organization by resolution and severity.
func (s *PostgresStore) IncidentStats(ctx context.Context, orgID string) (IncidentStats, error) {
	stats := IncidentStats{BySeverity: map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0}}
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, resolved, COUNT(*)
		FROM safety_incidents
		WHERE org_id=$1
		GROUP BY severity, resolved
	`, orgID)
	if err != nil {
		return IncidentStats{}, fmt.Errorf("incident stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			severity string
			resolved bool
			count    int
		)
		if err := rows.Scan(&severity, &resolved, &count); err != nil {
			return IncidentStats{}, fmt.Errorf("scan incident stats: %w", err)
		}
		stats.Total += count
		if resolved {
			stats.Resolved += count
		} else {
			stats.Pending += count
		}
		stats.BySeverity[severity] += count
	}
	return stats, rows.Err()
}
