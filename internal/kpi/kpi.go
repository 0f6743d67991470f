package kpi

import "time"

// KPIs is the dashboard headline block. AverageSystemPressure is nil when no
// reading was taken today.
type KPIs struct {
	TotalUsageToday         float64   `json:"totalUsageToday"`
	UsageChangePercent      float64   `json:"usageChangePercent"`
	ActiveLeakCount         int       `json:"activeLeakCount"`
	AverageSystemPressure   *float64  `json:"averageSystemPressure"`
	PendingMaintenanceCount int       `json:"pendingMaintenanceCount"`
	UnreadAlertCount        int       `json:"unreadAlertCount"`
	GeneratedAt             time.Time `json:"generatedAt"`
}

// RangeSummary aggregates every record kind over a reporting window
type RangeSummary struct {
	From                 time.Time `json:"from"`
	To                   time.Time `json:"to"`
	ReadingCount         int       `json:"readingCount"`
	TotalUsage           float64   `json:"totalUsage"`
	AveragePressure      *float64  `json:"averagePressure"`
	AverageFlowRate      *float64  `json:"averageFlowRate"`
	LeaksDetected        int       `json:"leaksDetected"`
	OpenLeaks            int       `json:"openLeaks"`
	EstimatedGallonsLost float64   `json:"estimatedGallonsLost"`
	TasksScheduled       int       `json:"tasksScheduled"`
	TasksCompleted       int       `json:"tasksCompleted"`
	TasksPending         int       `json:"tasksPending"`
	MaintenanceCost      float64   `json:"maintenanceCost"`
	AlertsRaised         int       `json:"alertsRaised"`
	UnreadAlerts         int       `json:"unreadAlerts"`
	CriticalAlerts       int       `json:"criticalAlerts"`
}
