package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// PDFGenerator renders an IncidentReportData as a single-page PDF summary.
type PDFGenerator struct{}

// NewPDFGenerator builds a PDFGenerator.
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

// Generate renders data to PDF bytes.
func (g *PDFGenerator) Generate(data *IncidentReportData) ([]byte, error) {
	inc := data.Incident

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Incident Report: %s", inc.Name), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Incident Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, inc.Name, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.Ln(2)
	for _, line := range []string{
		fmt.Sprintf("Incident ID: %s", inc.ID),
		fmt.Sprintf("Severity: %s", inc.Severity),
		fmt.Sprintf("Status: %s", inc.Status),
		fmt.Sprintf("Attack vector: %s", inc.AttackVector),
		fmt.Sprintf("Alert count: %d", inc.AlertCount),
		fmt.Sprintf("Affected devices: %s", strings.Join(inc.AffectedDevices, ", ")),
		fmt.Sprintf("Created: %s", inc.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("Updated: %s", inc.UpdatedAt.Format(time.RFC3339)),
	} {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	if inc.ResolvedAt != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Resolved: %s", inc.ResolvedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
	}

	if inc.Description != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 6, "Description", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, inc.Description, "", "L", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", data.GeneratedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render incident pdf: %w", err)
	}
	return buf.Bytes(), nil
}
