// Package reporting renders incident records as PDF or CSV export
// documents for GET /api/incidents/{id}/report.pdf.
package reporting

import (
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// IncidentReportData is the input to every Generator in this package.
type IncidentReportData struct {
	Incident    models.Incident
	GeneratedAt time.Time
}

// IncidentReportRequest is what a pluggable Engine receives; Format
// selects between the built-in generators ("pdf", "csv").
type IncidentReportRequest struct {
	Data   IncidentReportData
	Format string
}

// Engine renders a report and reports its content type, letting a caller
// swap in a different rendering backend (e.g. a licensed/enterprise one)
// without touching callers of GetEngine.
type Engine interface {
	Generate(req IncidentReportRequest) ([]byte, string, error)
}

var engine Engine

// SetEngine installs a package-wide override. Passing nil restores the
// built-in PDF/CSV generators.
func SetEngine(e Engine) {
	engine = e
}

// GetEngine returns the currently installed override, or nil.
func GetEngine() Engine {
	return engine
}

type defaultEngine struct{}

// Generate dispatches to the PDF or CSV generator by req.Format, defaulting
// to PDF.
func (defaultEngine) Generate(req IncidentReportRequest) ([]byte, string, error) {
	if req.Format == "csv" {
		b, err := NewCSVGenerator().Generate(&req.Data)
		return b, "text/csv", err
	}
	b, err := NewPDFGenerator().Generate(&req.Data)
	return b, "application/pdf", err
}

// Render uses the installed Engine if one was set via SetEngine,
// otherwise the built-in generators.
func Render(req IncidentReportRequest) ([]byte, string, error) {
	if e := GetEngine(); e != nil {
		return e.Generate(req)
	}
	return defaultEngine{}.Generate(req)
}
