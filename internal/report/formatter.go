package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/kpi"
	"github.com/septivank/water-ops-service/internal/repository"
)

const (
	notAvailable = "N/A"
	emptyBody    = "No records in range."
	separator    = "========================================"
)

var csvHeaders = map[Entity][]string{
	EntityUsage:       {"ID", "Timestamp", "Location", "Gallons", "Pressure", "Flow Rate", "Temperature"},
	EntityLeaks:       {"ID", "Location", "Severity", "Status", "Detected At", "Estimated Gallons Lost", "Assigned Technician", "Notes"},
	EntityMaintenance: {"ID", "Task Type", "Location", "Priority", "Status", "Scheduled Date", "Completed Date", "Assigned Technician", "Description", "Estimated Duration", "Cost"},
	EntityAlerts:      {"ID", "Type", "Severity", "Location", "Message", "Timestamp", "Read"},
}

// Header returns the CSV column header for an entity
func Header(e Entity) []string {
	return append([]string(nil), csvHeaders[e]...)
}

// Formatter renders reports from the record store
type Formatter struct {
	store   repository.Store
	summary *kpi.Aggregator
	loc     *time.Location
	now     func() time.Time
}

// NewFormatter creates a formatter that prints times in loc
func NewFormatter(store repository.Store, loc *time.Location, now func() time.Time) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Formatter{
		store:   store,
		summary: kpi.NewAggregator(store, loc, now),
		loc:     loc,
		now:     now,
	}
}

// Records loads the raw records a report of kind k covers in [start, end]
func (f *Formatter) Records(ctx context.Context, k Kind, start, end time.Time) (any, error) {
	r := db.TimeRange{Start: start, End: end}
	switch k.Entity() {
	case EntityAlerts:
		return f.store.ListAlerts(ctx, r)
	case EntityMaintenance:
		return f.store.ListMaintenance(ctx, r)
	case EntityLeaks:
		return f.store.ListLeaks(ctx, r)
	default:
		return f.store.ListUsage(ctx, r)
	}
}

// Format renders a report of kind k over [start, end]
func (f *Formatter) Format(ctx context.Context, k Kind, start, end time.Time, out Output) ([]byte, error) {
	if out == CSV {
		return f.formatCSV(ctx, k, start, end)
	}
	return f.formatText(ctx, k, start, end)
}

func (f *Formatter) formatCSV(ctx context.Context, k Kind, start, end time.Time) ([]byte, error) {
	records, err := f.Records(ctx, k, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", k, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header(k.Entity())); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	var rows [][]string
	switch recs := records.(type) {
	case []db.UsageReading:
		for _, u := range recs {
			rows = append(rows, f.usageRow(u))
		}
	case []db.Leak:
		for _, l := range recs {
			rows = append(rows, f.leakRow(l))
		}
	case []db.MaintenanceTask:
		for _, m := range recs {
			rows = append(rows, f.maintenanceRow(m))
		}
	case []db.Alert:
		for _, a := range recs {
			rows = append(rows, f.alertRow(a))
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *Formatter) formatText(ctx context.Context, k Kind, start, end time.Time) ([]byte, error) {
	var body []string
	switch k {
	case DailyOperations:
		summary, err := f.dailySummary(ctx, start, end)
		if err != nil {
			return nil, err
		}
		body = summary
	default:
		records, err := f.Records(ctx, k, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s records: %w", k, err)
		}
		body = f.textLines(records)
	}

	var b strings.Builder
	b.WriteString("Water Operations Report\n")
	fmt.Fprintf(&b, "Report Type: %s\n", k.Title())
	fmt.Fprintf(&b, "Period: %s to %s\n", f.date(start), f.date(end))
	fmt.Fprintf(&b, "Generated: %s\n", f.now().In(f.loc).Format(time.RFC3339))
	b.WriteString(separator + "\n")
	if len(body) == 0 {
		b.WriteString(emptyBody + "\n")
	}
	for _, line := range body {
		b.WriteString(line + "\n")
	}
	return []byte(b.String()), nil
}

func (f *Formatter) dailySummary(ctx context.Context, start, end time.Time) ([]string, error) {
	s, err := f.summary.Summary(ctx, db.TimeRange{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("Total Usage: %s gallons (%d readings)", number(s.TotalUsage), s.ReadingCount),
		fmt.Sprintf("Average Pressure: %s psi", optionalNumber(s.AveragePressure)),
		fmt.Sprintf("Average Flow Rate: %s gpm", optionalNumber(s.AverageFlowRate)),
		fmt.Sprintf("Leaks Detected: %d (%d open, %s gallons lost)", s.LeaksDetected, s.OpenLeaks, number(s.EstimatedGallonsLost)),
		fmt.Sprintf("Maintenance Tasks: %d scheduled, %d completed, %d pending", s.TasksScheduled, s.TasksCompleted, s.TasksPending),
		fmt.Sprintf("Maintenance Cost: %s", number(s.MaintenanceCost)),
		fmt.Sprintf("Alerts: %d raised, %d unread, %d critical", s.AlertsRaised, s.UnreadAlerts, s.CriticalAlerts),
	}, nil
}

func (f *Formatter) textLines(records any) []string {
	var lines []string
	switch recs := records.(type) {
	case []db.UsageReading:
		for _, u := range recs {
			lines = append(lines, fmt.Sprintf("%s | %s | %s gal | %s psi | %s gpm | temp %s",
				f.stamp(u.Timestamp), u.Location, number(u.Gallons), number(u.Pressure), number(u.FlowRate), optionalNumber(u.Temperature)))
		}
	case []db.MaintenanceTask:
		for _, m := range recs {
			lines = append(lines, fmt.Sprintf("#%d | %s | %s | %s | %s | scheduled %s | completed %s | tech %s | %s h | cost %s",
				m.ID, m.TaskType, m.Location, m.Priority, m.Status, f.stamp(m.ScheduledDate), f.optionalStamp(m.CompletedDate),
				orNA(m.AssignedTechnician), optionalNumber(m.EstimatedDuration), optionalNumber(m.Cost)))
		}
	case []db.Leak:
		for _, l := range recs {
			lines = append(lines, fmt.Sprintf("#%d | %s | %s | %s | detected %s | %s gal lost | tech %s",
				l.ID, l.Location, l.Severity, l.Status, f.stamp(l.DetectedAt), optionalNumber(l.EstimatedGallonsLost), orNA(deref(l.AssignedTechnician))))
		}
	}
	return lines
}

func (f *Formatter) usageRow(u db.UsageReading) []string {
	return []string{
		id(u.ID), f.stamp(u.Timestamp), u.Location,
		number(u.Gallons), number(u.Pressure), number(u.FlowRate), optionalNumber(u.Temperature),
	}
}

func (f *Formatter) leakRow(l db.Leak) []string {
	return []string{
		id(l.ID), l.Location, string(l.Severity), string(l.Status), f.stamp(l.DetectedAt),
		optionalNumber(l.EstimatedGallonsLost), deref(l.AssignedTechnician), deref(l.Notes),
	}
}

func (f *Formatter) maintenanceRow(m db.MaintenanceTask) []string {
	completed := ""
	if m.CompletedDate != nil {
		completed = f.stamp(*m.CompletedDate)
	}
	return []string{
		id(m.ID), m.TaskType, m.Location, string(m.Priority), string(m.Status), f.stamp(m.ScheduledDate), completed,
		m.AssignedTechnician, m.Description, optionalNumber(m.EstimatedDuration), optionalNumber(m.Cost),
	}
}

func (f *Formatter) alertRow(a db.Alert) []string {
	return []string{
		id(a.ID), a.Type, string(a.Severity), a.Location, a.Message, f.stamp(a.Timestamp), strconv.FormatBool(a.IsRead),
	}
}

func (f *Formatter) stamp(t time.Time) string {
	return t.In(f.loc).Format(time.RFC3339)
}

func (f *Formatter) optionalStamp(t *time.Time) string {
	if t == nil {
		return notAvailable
	}
	return f.stamp(*t)
}

func (f *Formatter) date(t time.Time) string {
	return t.In(f.loc).Format("2006-01-02")
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optionalNumber(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return number(*v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
