package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"nel/api/internal/auth"
	"nel/api/internal/authpw"
	"nel/api/internal/email"
	"nel/api/internal/export"
	"nel/api/internal/storage"
	"nel/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errNotAuthenticated = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
	errForbidden        = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errOrgRequired      = domainError(http.StatusBadRequest, "ORG_REQUIRED", "Organization required", nil)
	errNotMember        = domainError(http.StatusForbidden, "NOT_A_MEMBER", "Not a member of this organization", nil)
)

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

// orNotFound turns a missing row into a named 404.
func orNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what)
	}
	return err
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil
	case errors.Is(err, authpw.ErrUserExists):
		return http.StatusConflict, "USER_EXISTS", "User already exists", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrUserBanned):
		return http.StatusForbidden, "USER_BANNED", "Account is banned", nil
	case errors.Is(err, authpw.ErrInvalidToken):
		return http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired token", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "CONFLICT", "Record already exists", nil
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Document storage not configured", nil
	case errors.Is(err, email.ErrNotConfigured):
		return http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email delivery not configured", nil
	case errors.Is(err, email.ErrNotCancelable):
		return http.StatusConflict, "EMAIL_NOT_CANCELABLE", "Email can no longer be canceled", nil
	case errors.Is(err, email.ErrMissingSignature), errors.Is(err, email.ErrInvalidSignature), errors.Is(err, email.ErrStaleWebhook):
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export renderer unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
