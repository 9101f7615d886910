// Package model defines the entities produced by an analysis run.
//
// Every entity is created fresh per run; the orchestrator owns the aggregate
// Report for the duration of one run and discards it after rendering. All
// types carry JSON tags because the structured report is a lossless
// serialization of this package.
package model

import "sort"

// Severity grades a finding. The constants form a total order:
// critical < high < medium < low. All emitted finding lists are sorted
// by this order.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the sort position of s. Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// SortVulnerabilities orders vulns by severity, stable otherwise.
func SortVulnerabilities(vulns []Vulnerability) {
	sort.SliceStable(vulns, func(i, j int) bool {
		return vulns[i].Severity.Rank() < vulns[j].Severity.Rank()
	})
}

// SortPerformanceIssues orders issues by severity, stable otherwise.
func SortPerformanceIssues(issues []PerformanceIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})
}

// SortIssues orders generic issues by severity, stable otherwise.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})
}
