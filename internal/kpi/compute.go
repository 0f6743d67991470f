package kpi

import (
	"math"
	"time"

	"github.com/septivank/water-ops-service/internal/db"
)

// Day is a calendar day [Start, End) in the service timezone
type Day struct {
	Start time.Time
	End   time.Time
}

// DayOf returns the calendar day containing t in loc
func DayOf(t time.Time, loc *time.Location) Day {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

// Previous returns the day before d
func (d Day) Previous() Day {
	return Day{Start: d.Start.AddDate(0, 0, -1), End: d.Start}
}

// Contains reports whether t falls in [Start, End)
func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// ComputeKPIs derives the dashboard metrics for today from the given records.
//
// totalUsageToday    = Σ gallons over readings in today, unrounded
// usageChangePercent = 100 · (today − yesterday) / yesterday, 0 when yesterday's total is 0
// averageSystemPressure = mean pressure over today's readings, nil when there are none
//
// Counts are taken over every record passed in, regardless of date.
func ComputeKPIs(today Day, readings []db.UsageReading, leaks []db.Leak, tasks []db.MaintenanceTask, alerts []db.Alert) KPIs {
	yesterday := today.Previous()

	var todayTotal, yesterdayTotal, pressureSum float64
	var todayCount int
	for _, r := range readings {
		switch {
		case today.Contains(r.Timestamp):
			todayTotal += r.Gallons
			pressureSum += r.Pressure
			todayCount++
		case yesterday.Contains(r.Timestamp):
			yesterdayTotal += r.Gallons
		}
	}

	out := KPIs{
		TotalUsageToday:         todayTotal,
		UsageChangePercent:      ChangePercent(todayTotal, yesterdayTotal),
		ActiveLeakCount:         countOpenLeaks(leaks),
		PendingMaintenanceCount: countTasks(tasks, db.MaintenancePending),
		UnreadAlertCount:        countUnread(alerts),
	}
	if todayCount > 0 {
		avg := round2(pressureSum / float64(todayCount))
		out.AverageSystemPressure = &avg
	}
	return out
}

// ChangePercent is the percentage change from previous to current rounded to
// two decimals. A zero previous total yields 0.
func ChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round2((current - previous) / previous * 100)
}

// Summarize aggregates records that the caller already filtered to
// [from, to].
func Summarize(from, to time.Time, readings []db.UsageReading, leaks []db.Leak, tasks []db.MaintenanceTask, alerts []db.Alert) RangeSummary {
	s := RangeSummary{
		From:           from,
		To:             to,
		ReadingCount:   len(readings),
		LeaksDetected:  len(leaks),
		OpenLeaks:      countOpenLeaks(leaks),
		TasksScheduled: len(tasks),
		TasksCompleted: countTasks(tasks, db.MaintenanceCompleted),
		TasksPending:   countTasks(tasks, db.MaintenancePending),
		AlertsRaised:   len(alerts),
		UnreadAlerts:   countUnread(alerts),
	}

	var total, pressure, flow float64
	for _, r := range readings {
		total += r.Gallons
		pressure += r.Pressure
		flow += r.FlowRate
	}
	s.TotalUsage = round2(total)
	if len(readings) > 0 {
		p := round2(pressure / float64(len(readings)))
		f := round2(flow / float64(len(readings)))
		s.AveragePressure = &p
		s.AverageFlowRate = &f
	}

	var lost float64
	for _, l := range leaks {
		if l.EstimatedGallonsLost != nil {
			lost += *l.EstimatedGallonsLost
		}
	}
	s.EstimatedGallonsLost = round2(lost)

	var cost float64
	for _, t := range tasks {
		if t.Cost != nil {
			cost += *t.Cost
		}
	}
	s.MaintenanceCost = round2(cost)

	for _, a := range alerts {
		if a.Severity == db.AlertCritical {
			s.CriticalAlerts++
		}
	}
	return s
}

func countOpenLeaks(leaks []db.Leak) int {
	n := 0
	for _, l := range leaks {
		if l.Status.Open() {
			n++
		}
	}
	return n
}

func countTasks(tasks []db.MaintenanceTask, status db.MaintenanceStatus) int {
	n := 0
	for _, t := range tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

func countUnread(alerts []db.Alert) int {
	n := 0
	for _, a := range alerts {
		if !a.IsRead {
			n++
		}
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
