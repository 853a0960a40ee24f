// Package export renders an engagement report as PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
)

// Report is the assembled, already visibility-filtered view of one
// engagement. The caller decides what the viewer may see; export only
// renders.
type Report struct {
	RequestID   string
	Category    string
	Subcategory string
	Location    string
	Description string
	ClientName  string
	ProName     string
	Status      string
	CreatedAt   time.Time
	Offers      []ReportOffer
	Timeline    []ReportEvent
	Ratings     []ReportRating
}

// ReportOffer is one offer line in the report.
type ReportOffer struct {
	ProName  string
	Amount   string // formatted, e.g. "150,00 EUR"
	Status   string
	Reason   string
	SentAt   time.Time
	Accepted bool
}

// ReportEvent is one timeline entry in the report.
type ReportEvent struct {
	Kind        string
	Title       string
	Description string
	ActorName   string
	At          time.Time
}

// ReportRating is one rating in the report.
type ReportRating struct {
	ReviewerName string
	Score        int
	Comment      string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
