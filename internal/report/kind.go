package report

import "strings"

// Kind is one of the report templates. UnknownKind is what any unrecognized
// report type parses to; it renders the default usage export instead of
// failing, so the export path always produces output.
type Kind int

const (
	UnknownKind Kind = iota
	DailyOperations
	WeeklyUsage
	MaintenanceLog
	LeakAnalysis
)

var kindNames = map[Kind]string{
	UnknownKind:     "defaultUsageExport",
	DailyOperations: "daily-operations",
	WeeklyUsage:     "weekly-usage",
	MaintenanceLog:  "maintenance-log",
	LeakAnalysis:    "leak-analysis",
}

var kindTitles = map[Kind]string{
	UnknownKind:     "Usage Export",
	DailyOperations: "Daily Operations",
	WeeklyUsage:     "Weekly Usage",
	MaintenanceLog:  "Maintenance Log",
	LeakAnalysis:    "Leak Analysis",
}

// ParseKind never fails: unrecognized values map to UnknownKind
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily-operations":
		return DailyOperations
	case "weekly-usage":
		return WeeklyUsage
	case "maintenance-log":
		return MaintenanceLog
	case "leak-analysis":
		return LeakAnalysis
	}
	return UnknownKind
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[UnknownKind]
}

// Title is the human heading for the report
func (k Kind) Title() string {
	if title, ok := kindTitles[k]; ok {
		return title
	}
	return kindTitles[UnknownKind]
}

// Entity is the record kind a CSV export of k contains
func (k Kind) Entity() Entity {
	switch k {
	case DailyOperations:
		return EntityAlerts
	case MaintenanceLog:
		return EntityMaintenance
	case LeakAnalysis:
		return EntityLeaks
	}
	// WeeklyUsage and the default usage export
	return EntityUsage
}

// Entity names a record kind with a fixed CSV layout
type Entity string

const (
	EntityUsage       Entity = "usage"
	EntityLeaks       Entity = "leaks"
	EntityMaintenance Entity = "maintenance"
	EntityAlerts      Entity = "alerts"
)

// Output selects the rendering of a report
type Output int

const (
	Text Output = iota
	CSV
)
