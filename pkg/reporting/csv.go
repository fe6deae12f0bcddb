package reporting

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// CSVGenerator renders an IncidentReportData as a flat key/value CSV,
// the twin export format alongside PDFGenerator.
type CSVGenerator struct{}

// NewCSVGenerator builds a CSVGenerator.
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

// Generate renders data to CSV bytes.
func (g *CSVGenerator) Generate(data *IncidentReportData) ([]byte, error) {
	inc := data.Incident

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"field", "value"},
		{"incident_id", inc.ID},
		{"name", inc.Name},
		{"severity", string(inc.Severity)},
		{"status", string(inc.Status)},
		{"attack_vector", inc.AttackVector},
		{"alert_count", fmt.Sprintf("%d", inc.AlertCount)},
		{"affected_devices", strings.Join(inc.AffectedDevices, "; ")},
		{"created_at", inc.CreatedAt.Format(time.RFC3339)},
		{"updated_at", inc.UpdatedAt.Format(time.RFC3339)},
	}
	if inc.ResolvedAt != nil {
		rows = append(rows, []string{"resolved_at", inc.ResolvedAt.Format(time.RFC3339)})
	}
	rows = append(rows, []string{"generated_at", data.GeneratedAt.Format(time.RFC3339)})

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("render incident csv: %w", err)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
