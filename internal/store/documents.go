package store

import (
	"context"
	"fmt"
)

const documentColumns = `id, org_id, project_id, name, type, object_key, url, uploaded_by, size, mime_type, tags, metadata, created_at`

func scanDocument(row scanner) (Document, error) {
	var (
		doc            Document
		tags, metadata []byte
	)
	err := row.Scan(&doc.ID, &doc.OrgID, &doc.ProjectID, &doc.Name, &doc.Type, &doc.ObjectKey, &doc.URL,
		&doc.UploadedBy, &doc.Size, &doc.MimeType, &tags, &metadata, &doc.CreatedAt)
	if err != nil {
		return Document{}, err
	}
	if doc.Tags, err = decodeList(tags); err != nil {
		return Document{}, err
	}
	if doc.Metadata, err = decodeMap(metadata); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) error {
	metadata, err := encodeMap(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, org_id, project_id, name, type, object_key, url, uploaded_by, size, mime_type, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, doc.ID, doc.OrgID, doc.ProjectID, doc.Name, doc.Type, doc.ObjectKey, doc.URL, doc.UploadedBy, doc.Size,
		doc.MimeType, encodeList(doc.Tags), metadata)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, orgID, documentID string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE org_id=$1 AND id=$2`, orgID, documentID))
}

func (s *PostgresStore) ListDocuments(ctx context.Context, orgID, projectID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE org_id=$1 AND project_id=$2 ORDER BY created_at DESC`,
		orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, orgID, documentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE org_id=$1 AND id=$2`, orgID, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return affectedOrNotFound(res)
}
