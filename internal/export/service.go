package export

import (
	"fmt"
)

// Service turns an assembled engagement report into a downloadable file.
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export generates an export in the requested format
func (s *Service) Export(report Report, format Format) (*Result, error) {
	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatPDF:
		return exportPDF(html, report.Category+"-"+report.RequestID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
