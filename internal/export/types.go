// Package export renders project reports as PDF and DOCX.
package export

import (
	"errors"
	"fmt"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

// ParseFormat accepts the lower-case format names used in query strings.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatPDF, FormatDOCX, FormatHTML:
		return Format(raw), nil
	case "":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
	}
}

// Request contains parameters for an export operation
type Request struct {
	OrgID     string
	ProjectID string
	Format    Format
	// Tasks, incidents and resources sections are omitted when false.
	IncludeDetails bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
