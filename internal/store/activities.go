package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateSiteActivity(ctx context.Context, activity SiteActivity) error {
	location, err := encodeLocation(activity.Location)
	if err != nil {
		return err
	}
	var weather any
	if activity.Weather != nil {
		if weather, err = encodeJSON(activity.Weather); err != nil {
			return err
		}
	}
	query, args, err := psql.Insert("site_activities").
		Columns("id", "org_id", "project_id", "type", "description", "recorded_by", "location", "photos", "weather", "occurred_at").
		Values(activity.ID, activity.OrgID, activity.ProjectID, activity.Type, activity.Description,
			activity.RecordedBy, location, encodeList(activity.Photos), weather, activity.OccurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert site activity: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert site activity: %w", err)
	}
	return nil
}

// ListSiteActivities returns the newest activities of a project first.
func (s *PostgresStore) ListSiteActivities(ctx context.Context, orgID, projectID string, limit int) ([]SiteActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, project_id, type, description, recorded_by, location, photos, weather, occurred_at, created_at
		FROM site_activities
		WHERE org_id=$1 AND project_id=$2
		ORDER BY occurred_at DESC
		LIMIT $3
	`, orgID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list site activities: %w", err)
	}
	defer rows.Close()

	items := []SiteActivity{}
	for rows.Next() {
		var (
			item                     SiteActivity
			location, photos, rawWth []byte
		)
		if err := rows.Scan(&item.ID, &item.OrgID, &item.ProjectID, &item.Type, &item.Description, &item.RecordedBy,
			&location, &photos, &rawWth, &item.OccurredAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site activity: %w", err)
		}
		if item.Location, err = decodeLocation(location); err != nil {
			return nil, err
		}
		if item.Photos, err = decodeList(photos); err != nil {
			return nil, err
		}
		if len(rawWth) > 0 && string(rawWth) != "null" {
			item.Weather = &Weather{}
			if err := decodeJSON(rawWth, item.Weather); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
