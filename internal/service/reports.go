package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/septivank/water-ops-service/internal/export"
	"github.com/septivank/water-ops-service/internal/report"
	"go.uber.org/zap"
)

// ReportRequest is the body of a report generation request
type ReportRequest struct {
	ReportType string `json:"reportType"`
	Format     string `json:"format"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

// GenerateReport renders a report over the inclusive date range and packages
// it for download. Unrecognized report types produce the default usage
// export and unrecognized formats fall back to csv.
func (s *Dashboard) GenerateReport(ctx context.Context, req ReportRequest) (export.Export, error) {
	r, err := s.validator.ParseReportRange(req.StartDate, req.EndDate)
	if err != nil {
		return export.Export{}, err
	}

	kind := report.ParseKind(req.ReportType)
	format := export.ParseFormat(req.Format)

	var body []byte
	var records any
	if format == export.JSON {
		records, err = s.formatter.Records(ctx, kind, r.Start, r.End)
	} else {
		body, err = s.formatter.Format(ctx, kind, r.Start, r.End, format.ReportOutput())
	}
	if err != nil {
		return export.Export{}, fmt.Errorf("failed to render %s report: %w", kind, err)
	}

	reportType := strings.TrimSpace(req.ReportType)
	if reportType == "" {
		reportType = kind.String()
	}
	out, err := export.Package(body, records, format, export.Meta{
		ReportType: reportType,
		Start:      r.Start,
		End:        r.End,
	})
	if err != nil {
		return export.Export{}, err
	}

	if kind == report.UnknownKind {
		s.logger.Info("unrecognized report type, using default usage export",
			zap.String("report_type", req.ReportType),
		)
	}
	s.metrics.ReportGenerated(kind.String(), string(format))
	s.record(ctx, "report", "generated", ActivityReportGenerated, "", 0,
		fmt.Sprintf("%s report generated as %s (%s)", kind.Title(), format, out.Filename), nil)

	return out, nil
}
