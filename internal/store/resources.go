package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var resourceColumns = []string{
	"id", "org_id", "project_id", "name", "type", "quantity", "unit", "cost", "supplier", "status",
	"delivery_date", "return_date", "specifications", "created_at", "updated_at",
}

var equipmentColumns = []string{
	"id", "org_id", "COALESCE(project_id, '')", "name", "type", "status", "location",
	"COALESCE(operator_id, '')", "maintenance_schedule", "last_maintenance", "next_maintenance",
	"hourly_rate", "daily_rate", "specifications", "created_at", "updated_at",
}

func scanResource(row scanner) (Resource, error) {
	var (
		res                Resource
		delivery, returned sql.NullTime
		specs              []byte
	)
	err := row.Scan(
		&res.ID, &res.OrgID, &res.ProjectID, &res.Name, &res.Type, &res.Quantity, &res.Unit, &res.Cost,
		&res.Supplier, &res.Status, &delivery, &returned, &specs, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return Resource{}, err
	}
	res.DeliveryDate = timePtr(delivery)
	res.ReturnDate = timePtr(returned)
	if res.Specifications, err = decodeMap(specs); err != nil {
		return Resource{}, err
	}
	return res, nil
}

func scanEquipment(row scanner) (Equipment, error) {
	var (
		item              Equipment
		location, specs   []byte
		lastMaint, nextMt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.OrgID, &item.ProjectID, &item.Name, &item.Type, &item.Status, &location,
		&item.OperatorID, &item.MaintenanceSchedule, &lastMaint, &nextMt,
		&item.HourlyRate, &item.DailyRate, &specs, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Equipment{}, err
	}
	item.LastMaintenance = timePtr(lastMaint)
	item.NextMaintenance = timePtr(nextMt)
	if item.Location, err = decodeLocation(location); err != nil {
		return Equipment{}, err
	}
	if item.Specifications, err = decodeMap(specs); err != nil {
		return Equipment{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetResource(ctx context.Context, orgID, resourceID string) (Resource, error) {
	query, args, err := psql.Select(resourceColumns...).From("resources").
		Where(sq.Eq{"org_id": orgID, "id": resourceID}).ToSql()
	if err != nil {
		return Resource{}, fmt.Errorf("build resource query: %w", err)
	}
	return scanResource(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListResourcesByProject(ctx context.Context, orgID, projectID string) ([]Resource, error) {
	query, args, err := psql.Select(resourceColumns...).From("resources").
		Where(sq.Eq{"org_id": orgID, "project_id": projectID}).
		OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build resource query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	items := []Resource{}
	for rows.Next() {
		item, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateResource(ctx context.Context, res Resource) error {
	specs, err := encodeMap(res.Specifications)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("resources").
		Columns("id", "org_id", "project_id", "name", "type", "quantity", "unit", "cost", "supplier", "status",
			"delivery_date", "return_date", "specifications").
		Values(res.ID, res.OrgID, res.ProjectID, res.Name, res.Type, res.Quantity, res.Unit, res.Cost, res.Supplier,
			res.Status, nullTime(res.DeliveryDate), nullTime(res.ReturnDate), specs).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert resource: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateResourceStatus(ctx context.Context, orgID, resourceID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET status=$3, updated_at=NOW() WHERE org_id=$1 AND id=$2
	`, orgID, resourceID, status)
	if err != nil {
		return fmt.Errorf("update resource status: %w", err)
	}
	return affectedOrNotFound(res)
}

// CountResourcesByStatus returns the number of project resources and how many
// of them carry the given status.
func (s *PostgresStore) CountResourcesByStatus(ctx context.Context, orgID, projectID, status string) (total, matching int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $3)
		FROM resources WHERE org_id=$1 AND project_id=$2
	`, orgID, projectID, status).Scan(&total, &matching)
	if err != nil {
		return 0, 0, fmt.Errorf("count resources: %w", err)
	}
	return total, matching, nil
}

func (s *PostgresStore) queryEquipment(ctx context.Context, q sq.SelectBuilder) ([]Equipment, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build equipment query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	defer rows.Close()

	items := []Equipment{}
	for rows.Next() {
		item, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetEquipment(ctx context.Context, orgID, equipmentID string) (Equipment, error) {
	query, args, err := psql.Select(equipmentColumns...).From("equipment").
		Where(sq.Eq{"org_id": orgID, "id": equipmentID}).ToSql()
	if err != nil {
		return Equipment{}, fmt.Errorf("build equipment query: %w", err)
	}
	return scanEquipment(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListEquipmentByProject(ctx context.Context, orgID, projectID string) ([]Equipment, error) {
	return s.queryEquipment(ctx, psql.Select(equipmentColumns...).From("equipment").
		Where(sq.Eq{"org_id": orgID, "project_id": projectID}).OrderBy("name ASC"))
}

// ListEquipmentDueForMaintenance returns equipment whose next maintenance is
// at or before now. An empty orgID spans all organizations.
func (s *PostgresStore) ListEquipmentDueForMaintenance(ctx context.Context, orgID string, now time.Time) ([]Equipment, error) {
	q := psql.Select(equipmentColumns...).From("equipment").
		Where(sq.NotEq{"next_maintenance": nil}).
		Where(sq.LtOrEq{"next_maintenance": now}).
		Where(sq.NotEq{"status": "retired"}).
		OrderBy("next_maintenance ASC")
	if orgID != "" {
		q = q.Where(sq.Eq{"org_id": orgID})
	}
	return s.queryEquipment(ctx, q)
}

func (s *PostgresStore) CreateEquipment(ctx context.Context, item Equipment) error {
	location, err := encodeLocation(item.Location)
	if err != nil {
		return err
	}
	specs, err := encodeMap(item.Specifications)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("equipment").
		Columns("id", "org_id", "project_id", "name", "type", "status", "location", "operator_id",
			"maintenance_schedule", "last_maintenance", "next_maintenance", "hourly_rate", "daily_rate", "specifications").
		Values(item.ID, item.OrgID, nullString(item.ProjectID), item.Name, item.Type, item.Status, location,
			nullString(item.OperatorID), item.MaintenanceSchedule, nullTime(item.LastMaintenance),
			nullTime(item.NextMaintenance), item.HourlyRate, item.DailyRate, specs).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert equipment: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert equipment: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEquipmentStatus(ctx context.Context, orgID, equipmentID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE equipment SET status=$3, updated_at=NOW() WHERE org_id=$1 AND id=$2
	`, orgID, equipmentID, status)
	if err != nil {
		return fmt.Errorf("update equipment status: %w", err)
	}
	return affectedOrNotFound(res)
}
