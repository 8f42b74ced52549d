package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateMetric(ctx context.Context, sample AnalyticsSample) error {
	metadata, err := encodeMap(sample.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics (id, org_id, project_id, metric, value, unit, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sample.ID, sample.OrgID, sample.ProjectID, sample.Metric, sample.Value, sample.Unit, sample.OccurredAt, metadata)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// ListMetrics returns the newest samples of one metric for a project.
func (s *PostgresStore) ListMetrics(ctx context.Context, orgID, projectID, metric string, limit int) ([]AnalyticsSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, project_id, metric, value, unit, occurred_at, metadata
		FROM analytics
		WHERE org_id=$1 AND project_id=$2 AND metric=$3
		ORDER BY occurred_at DESC
		LIMIT $4
	`, orgID, projectID, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	items := []AnalyticsSample{}
	for rows.Next() {
		var (
			item     AnalyticsSample
			metadata []byte
		)
		if err := rows.Scan(&item.ID, &item.OrgID, &item.ProjectID, &item.Metric, &item.Value, &item.Unit,
			&item.OccurredAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if item.Metadata, err = decodeMap(metadata); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LatestMetrics returns the most recent value of each metric recorded for a project.
func (s *PostgresStore) LatestMetrics(ctx context.Context, orgID, projectID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (metric) metric, value
		FROM analytics
		WHERE org_id=$1 AND project_id=$2
		ORDER BY metric, occurred_at DESC
	`, orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}
	defer rows.Close()

	values := map[string]float64{}
	for rows.Next() {
		var (
			metric string
			value  float64
		)
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("scan latest metric: %w", err)
		}
		values[metric] = value
	}
	return values, rows.Err()
}
