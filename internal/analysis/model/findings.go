package model

// VulnKind enumerates the security vulnerability classes.
type VulnKind string

const (
	VulnNoRowSecurity    VulnKind = "no_row_security"
	VulnRLSNoPolicy      VulnKind = "enabled_but_no_policy"
	VulnPermissivePolicy VulnKind = "overly_permissive_policy"
	VulnPublicGrant      VulnKind = "public_grant"
	VulnExcessSuperusers VulnKind = "excess_superuser"
)

// Vulnerability is one security finding.
type Vulnerability struct {
	Kind        VulnKind `json:"kind"`
	Severity    Severity `json:"severity"`
	Table       string   `json:"table,omitempty"`
	Role        string   `json:"role,omitempty"`
	Description string   `json:"description"`
	Risk        string   `json:"risk"`
	Remediation string   `json:"remediation"`
}

// PerfKind enumerates the performance issue classes.
type PerfKind string

const (
	PerfUnusedIndex     PerfKind = "unused_index"
	PerfTableBloat      PerfKind = "table_bloat"
	PerfSeqScanDominant PerfKind = "sequential_scan_dominant"
	PerfLowCacheHit     PerfKind = "low_cache_hit"
	PerfSlowQuery       PerfKind = "slow_query"
)

// PerformanceIssue is one performance finding.
type PerformanceIssue struct {
	Kind        PerfKind `json:"kind"`
	Severity    Severity `json:"severity"`
	Table       string   `json:"table,omitempty"`
	Index       string   `json:"index,omitempty"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Remediation string   `json:"remediation"`
}

// Issue is the generic finding shape used by the realtime, edge-function,
// and storage inspectors.
type Issue struct {
	Kind        string   `json:"kind"`
	Severity    Severity `json:"severity"`
	Subject     string   `json:"subject,omitempty"` // table, function, or bucket name
	Description string   `json:"description"`
	Remediation string   `json:"remediation,omitempty"`
}
