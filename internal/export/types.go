// Package export renders ideas to PDF and DOCX one-pagers and produces
// spreadsheet exports for the admin screens.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
)

// Request contains parameters for a single-idea export
type Request struct {
	IdeaID          string
	Version         string // "latest" or a revision hash
	Format          Format
	IncludeComments bool
	IncludeHistory  bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// IdeaInfo holds the idea fields the renderers need
type IdeaInfo struct {
	ID               string
	Title            string
	Category         string
	Status           string
	Priority         string
	Department       string
	Submitter        string
	Votes            int
	Tags             []string
	Description      string
	Impact           string
	Inspiration      string
	SimilarSolutions string
	CostSaved        float64
	RevenueGenerated float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SnapshotInfo holds the content fields of an idea at a past revision
type SnapshotInfo struct {
	Title            string
	Description      string
	Category         string
	Status           string
	Priority         string
	Impact           string
	Inspiration      string
	SimilarSolutions string
	Tags             []string
}

// CommentInfo holds comment data for export
type CommentInfo struct {
	Author    string
	Role      string
	Body      string
	CreatedAt time.Time
}

// StatusChangeInfo holds a workflow transition for export
type StatusChangeInfo struct {
	FromStatus string
	ToStatus   string
	ChangedBy  string
	Note       string
	CreatedAt  time.Time
}

var (
	// ErrContentUnavailable indicates idea content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
