package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/septivank/water-ops-service/internal/report"
)

// Format is the delivery format of a generated report
type Format string

const (
	PDF  Format = "pdf"
	CSV  Format = "csv"
	JSON Format = "json"
)

// Content types per format. The pdf payload is the plain text report
// labelled as a PDF download, not a rendered PDF document.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeJSON = "application/json; charset=utf-8"
)

// ParseFormat resolves a requested format. Unrecognized values fall back to
// csv, matching the permissive handling of report types.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case PDF:
		return PDF
	case JSON:
		return JSON
	}
	return CSV
}

// ReportOutput is the rendering the formatter must produce for f. JSON
// exports serialize raw records and ignore it.
func (f Format) ReportOutput() report.Output {
	if f == PDF {
		return report.Text
	}
	return report.CSV
}

// Meta describes the report being packaged
type Meta struct {
	ReportType string
	Start      time.Time
	End        time.Time
}

// Export is a report ready for download
type Export struct {
	Bytes       []byte
	ContentType string
	Filename    string
}

// Package frames a report for delivery. For pdf and csv, body is the
// formatter output. For json, records are serialized with two-space
// indentation and body is ignored.
func Package(body []byte, records any, format Format, meta Meta) (Export, error) {
	out := Export{Filename: Filename(meta, format)}

	switch format {
	case PDF:
		out.Bytes = body
		out.ContentType = ContentTypePDF
	case JSON:
		if records == nil {
			records = []any{}
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return Export{}, fmt.Errorf("failed to encode report records: %w", err)
		}
		out.Bytes = data
		out.ContentType = ContentTypeJSON
	default:
		out.Bytes = body
		out.ContentType = ContentTypeCSV
	}
	return out, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds {reportType}_{startDate}_{endDate}.{format}. Dates are
// rendered in the location of meta.Start and meta.End.
func Filename(meta Meta, format Format) string {
	reportType := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(meta.ReportType), "-")
	reportType = strings.Trim(reportType, "-")
	if reportType == "" {
		reportType = "report"
	}
	return fmt.Sprintf("%s_%s_%s.%s", reportType, meta.Start.Format("2006-01-02"), meta.End.Format("2006-01-02"), format)
}
