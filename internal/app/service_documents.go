package app

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/rbac"
	"nel/api/internal/storage"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

type DocumentUpload struct {
	ProjectID string
	Name      string
	Type      string
	MimeType  string
	Size      int64
	Tags      []string
	Body      io.Reader
}

// UploadDocument stores the file in object storage and records its metadata.
func (s *Service) UploadDocument(ctx context.Context, session Session, in DocumentUpload) (store.Document, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.Document{}, err
	}
	errs := fieldErrors{}
	errs.required("name", in.Name)
	errs.oneOf("type", in.Type, documentTypes)
	errs.check(in.Body != nil, "file", "file is required")
	if err := errs.err(); err != nil {
		return store.Document{}, err
	}
	if _, err := s.requireProject(ctx, session.OrgID, in.ProjectID); err != nil {
		return store.Document{}, err
	}
	if in.MimeType == "" {
		in.MimeType = "application/octet-stream"
	}

	doc := store.Document{
		ID:         util.NewID("doc"),
		OrgID:      session.OrgID,
		ProjectID:  in.ProjectID,
		Name:       strings.TrimSpace(in.Name),
		Type:       in.Type,
		UploadedBy: session.UserID,
		MimeType:   in.MimeType,
		Tags:       in.Tags,
		CreatedAt:  s.now(),
	}
	doc.ObjectKey = storage.ObjectKey(doc.OrgID, doc.ProjectID, doc.ID, doc.Name)

	size, err := s.blobs.Upload(ctx, doc.ObjectKey, in.Body, in.Size, in.MimeType)
	if err != nil {
		return store.Document{}, err
	}
	doc.Size = size
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), doc.ObjectKey); delErr != nil {
			logger.FromContext(ctx).Warn("document: remove orphaned object", zap.String("key", doc.ObjectKey), zap.Error(delErr))
		}
		return store.Document{}, err
	}
	return doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, session Session, projectID string) ([]store.Document, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, session.OrgID, projectID)
}

// GetDocumentURL returns a short-lived download link.
func (s *Service) GetDocumentURL(ctx context.Context, session Session, documentID string) (string, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return "", err
	}
	doc, err := s.store.GetDocument(ctx, session.OrgID, documentID)
	if err != nil {
		return "", orNotFound(err, "Document")
	}
	return s.blobs.URL(ctx, doc.ObjectKey, doc.Name)
}

// DeleteDocument removes a document. Uploaders may delete their own files;
// anyone else needs the moderate permission.
func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, session.OrgID, documentID)
	if err != nil {
		return orNotFound(err, "Document")
	}
	if doc.UploadedBy != session.UserID && !s.Can(session, rbac.ActionModerate) {
		return errForbidden
	}
	if err := s.store.DeleteDocument(ctx, session.OrgID, documentID); err != nil {
		return orNotFound(err, "Document")
	}
	if err := s.blobs.Delete(ctx, doc.ObjectKey); err != nil {
		logger.FromContext(ctx).Warn("document: delete object", zap.String("key", doc.ObjectKey), zap.Error(err))
	}
	return nil
}
