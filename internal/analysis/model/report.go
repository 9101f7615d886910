package model

import "time"

// DiscoveryMethod records which fallback produced the table list.
type DiscoveryMethod string

const (
	DiscoveryCatalog DiscoveryMethod = "catalog"
	DiscoveryOpenAPI DiscoveryMethod = "openapi"
	DiscoveryProbe   DiscoveryMethod = "probe"
)

// DiscoveryResult is the outcome of schema discovery. Probe-based results
// are inherently incomplete (only anticipated names are found) and carry
// ProvenanceInferred.
type DiscoveryResult struct {
	Tables     []TableRef      `json:"tables"`
	Method     DiscoveryMethod `json:"method"`
	Confidence Provenance      `json:"confidence"`
}

// --- security ---

// RoleInfo describes one database role.
type RoleInfo struct {
	Name          string   `json:"name"`
	IsSuperuser   bool     `json:"is_superuser"`
	CanLogin      bool     `json:"can_login"`
	CanCreateRole bool     `json:"can_create_role"`
	MemberOf      []string `json:"member_of,omitempty"`
}

// GrantInfo describes one table-level privilege grant.
type GrantInfo struct {
	Grantee   string `json:"grantee"`
	Table     string `json:"table"`
	Privilege string `json:"privilege"`

	// IsPublic marks grants to the wildcard "public" pseudo-role.
	IsPublic bool `json:"is_public"`
}

// SecuritySummary rolls up vulnerability counts by severity.
type SecuritySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// SecurityReport is the security inspector's output.
type SecurityReport struct {
	Policies        []AccessPolicy  `json:"policies"`
	Roles           []RoleInfo      `json:"roles"`
	Grants          []GrantInfo     `json:"grants"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Summary         SecuritySummary `json:"summary"`
}

// --- performance ---

// IndexUsage is database-wide per-index usage statistics.
type IndexUsage struct {
	Schema        string   `json:"schema"`
	Table         string   `json:"table"`
	Index         string   `json:"index"`
	Scans         int64    `json:"scans"`
	TuplesRead    int64    `json:"tuples_read"`
	TuplesFetched int64    `json:"tuples_fetched"`
	UsageRatio    float64  `json:"usage_ratio"`
	IsPrimary     bool     `json:"is_primary"`
	IsUnused      bool     `json:"is_unused"`
	Size          SizeInfo `json:"size"`
}

// TableStats is per-table scan and bloat statistics.
type TableStats struct {
	Schema     string `json:"schema"`
	Table      string `json:"table"`
	SeqScans   int64  `json:"seq_scans"`
	IndexScans int64  `json:"index_scans"`
	LiveTuples int64  `json:"live_tuples"`
	DeadTuples int64  `json:"dead_tuples"`

	// BloatRatio is dead/live; VacuumNeeded when it exceeds 0.20.
	BloatRatio   float64 `json:"bloat_ratio"`
	VacuumNeeded bool    `json:"vacuum_needed"`
}

// DatabaseStats is database-wide cache and scan statistics.
type DatabaseStats struct {
	// CacheHitRatio is hits/(hits+reads)*100.
	CacheHitRatio float64 `json:"cache_hit_ratio"`
	// IndexScanRatio is idx_scan/(idx_scan+seq_scan)*100.
	IndexScanRatio float64 `json:"index_scan_ratio"`
	BlocksHit      int64   `json:"blocks_hit"`
	BlocksRead     int64   `json:"blocks_read"`
}

// PerformanceReport is the performance inspector's output.
type PerformanceReport struct {
	Indexes    []IndexUsage       `json:"indexes"`
	TableStats []TableStats       `json:"table_stats"`
	DBStats    DatabaseStats      `json:"db_stats"`
	Issues     []PerformanceIssue `json:"issues"`
}

// --- objects ---

// FunctionInfo describes one stored function or procedure.
type FunctionInfo struct {
	Schema     string `json:"schema"`
	Name       string `json:"name"`
	Language   string `json:"language"`
	ReturnType string `json:"return_type"`

	IsAggregate      bool `json:"is_aggregate"`
	IsWindow         bool `json:"is_window"`
	IsTriggerReturns bool `json:"is_trigger_returns"`
}

// ViewInfo describes one view or materialized view.
type ViewInfo struct {
	Schema         string `json:"schema"`
	Name           string `json:"name"`
	IsMaterialized bool   `json:"is_materialized"`
}

// TriggerInfo describes one trigger.
type TriggerInfo struct {
	Name     string `json:"name"`
	Table    string `json:"table"`
	Event    string `json:"event"`
	Timing   string `json:"timing"`
	Function string `json:"function"`
}

// SequenceInfo describes one sequence.
type SequenceInfo struct {
	Schema   string `json:"schema"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// ExtensionInfo describes one installed extension.
type ExtensionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Schema  string `json:"schema"`
}

// TypeInfo describes one custom type. EnumValues is populated for enums.
type TypeInfo struct {
	Schema     string   `json:"schema"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"` // enum, composite, domain
	EnumValues []string `json:"enum_values,omitempty"`
}

// ObjectStatistics rolls up object counts.
type ObjectStatistics struct {
	Functions          int `json:"functions"`
	AggregateFunctions int `json:"aggregate_functions"`
	WindowFunctions    int `json:"window_functions"`
	TriggerFunctions   int `json:"trigger_functions"`
	Views              int `json:"views"`
	MaterializedViews  int `json:"materialized_views"`
	Triggers           int `json:"triggers"`
	Sequences          int `json:"sequences"`
	Extensions         int `json:"extensions"`
	CustomTypes        int `json:"custom_types"`
}

// ObjectsReport is the object inspector's output. Every category is
// independently optional: a failed sub-query yields an empty list plus a
// run warning, never an error.
type ObjectsReport struct {
	Functions         []FunctionInfo   `json:"functions"`
	Views             []ViewInfo       `json:"views"`
	MaterializedViews []ViewInfo       `json:"materialized_views"`
	Triggers          []TriggerInfo    `json:"triggers"`
	Sequences         []SequenceInfo   `json:"sequences"`
	Extensions        []ExtensionInfo  `json:"extensions"`
	CustomTypes       []TypeInfo       `json:"custom_types"`
	Statistics        ObjectStatistics `json:"statistics"`
}

// --- realtime ---

// RealtimePublicationEntry is the publish configuration of one table.
// EstimatedMessageRate is a documented approximation bucketed by table
// size, not a measured rate.
type RealtimePublicationEntry struct {
	Table    string `json:"table"`
	Inserts  bool   `json:"inserts"`
	Updates  bool   `json:"updates"`
	Deletes  bool   `json:"deletes"`
	RowCount int64  `json:"row_count"`

	// EstimatedMessageRate in messages/second: >100k rows → 1000,
	// >10k → 100, >1k → 10, else 1.
	EstimatedMessageRate int64 `json:"estimated_message_rate"`

	// Source is ProvenanceInferred when publish eligibility was derived
	// from replica identity instead of publication config.
	Source Provenance `json:"source"`
}

// ChannelGroup is a name-pattern grouping of published tables. It is a
// labeling convenience, not derived from actual subscription data.
type ChannelGroup struct {
	Name   string   `json:"name"`
	Tables []string `json:"tables"`
}

// RealtimeStatistics rolls up fan-out counts.
type RealtimeStatistics struct {
	PublishedTables    int   `json:"published_tables"`
	TotalEstimatedRate int64 `json:"total_estimated_rate"`
	Channels           int   `json:"channels"`
}

// RealtimeReport is the realtime inspector's output.
type RealtimeReport struct {
	Publications      []RealtimePublicationEntry `json:"publications"`
	PotentialChannels []ChannelGroup             `json:"potential_channels"`
	Issues            []Issue                    `json:"issues"`
	Statistics        RealtimeStatistics         `json:"statistics"`
}

// --- edge functions ---

// EdgeFunction describes one locally discovered function.
type EdgeFunction struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Size        SizeInfo `json:"size"`
	Imports     []string `json:"imports,omitempty"`
	HasCORS     bool     `json:"has_cors"`
	Description string   `json:"description,omitempty"`

	// Deployment cross-reference; zero values when the management API is
	// not configured.
	Deployed    bool    `json:"deployed"`
	Invocations int64   `json:"invocations"`
	ErrorRate   float64 `json:"error_rate"`
}

// EdgeFunctionStatistics rolls up function counts.
type EdgeFunctionStatistics struct {
	Total     int      `json:"total"`
	Deployed  int      `json:"deployed"`
	WithCORS  int      `json:"with_cors"`
	TotalSize SizeInfo `json:"total_size"`
}

// EdgeFunctionsReport is the edge-function inspector's output.
type EdgeFunctionsReport struct {
	Functions  []EdgeFunction         `json:"functions"`
	Secrets    []string               `json:"secrets"`
	Issues     []Issue                `json:"issues"`
	Statistics EdgeFunctionStatistics `json:"statistics"`
}

// --- storage ---

// FolderStat aggregates one top-level prefix inside a bucket.
type FolderStat struct {
	Prefix    string   `json:"prefix"`
	FileCount int64    `json:"file_count"`
	TotalSize SizeInfo `json:"total_size"`
}

// BucketProfile aggregates one bucket.
type BucketProfile struct {
	Name      string       `json:"name"`
	Public    bool         `json:"public"`
	FileCount int64        `json:"file_count"`
	TotalSize SizeInfo     `json:"total_size"`
	Folders   []FolderStat `json:"folders,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// FileTypeStat is one bucket-spanning extension histogram entry.
type FileTypeStat struct {
	Extension string   `json:"extension"`
	Count     int64    `json:"count"`
	TotalSize SizeInfo `json:"total_size"`
}

// LargeFile is one entry of the top-N largest files list.
type LargeFile struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         SizeInfo  `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// StorageReport is the storage inspector's output.
type StorageReport struct {
	Buckets         []BucketProfile `json:"buckets"`
	FileTypes       []FileTypeStat  `json:"file_type_distribution"`
	LargeFiles      []LargeFile     `json:"large_files"`
	Recommendations []string        `json:"recommendations"`
}

// --- aggregate ---

// RelationshipMap is the directed foreign-key graph over all profiled
// tables: the tables each table references, and the reverse.
type RelationshipMap struct {
	References   map[string][]string `json:"references"`
	ReferencedBy map[string][]string `json:"referenced_by"`
}

// RunMetadata describes one analysis run. Warnings enumerates every
// degraded category so operators know which sections are incomplete.
type RunMetadata struct {
	RunID           string          `json:"run_id"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Duration        string          `json:"duration"`
	DatabaseName    string          `json:"database_name,omitempty"`
	DatabaseVersion string          `json:"database_version,omitempty"`
	CurrentUser     string          `json:"current_user,omitempty"`
	IsSuperuser     bool            `json:"is_superuser"`
	DiscoveryMethod DiscoveryMethod `json:"discovery_method"`
	Warnings        []string        `json:"warnings"`
}

// Summary holds the run-level roll-up counts.
type Summary struct {
	TotalTables       int              `json:"total_tables"`
	TotalRows         int64            `json:"total_rows"`
	MissingRLS        []string         `json:"missing_rls"`
	OrphanedTables    []string         `json:"orphaned_tables"`
	Vulnerabilities   map[Severity]int `json:"vulnerabilities"`
	PerformanceIssues map[Severity]int `json:"performance_issues"`
}

// Report is the full merged analysis of one run.
type Report struct {
	Metadata      RunMetadata         `json:"metadata"`
	Tables        []TableProfile      `json:"tables"`
	Security      SecurityReport      `json:"security"`
	Performance   PerformanceReport   `json:"performance"`
	Objects       ObjectsReport       `json:"objects"`
	Realtime      RealtimeReport      `json:"realtime"`
	EdgeFunctions EdgeFunctionsReport `json:"edge_functions"`
	Storage       StorageReport       `json:"storage"`
	Relationships RelationshipMap     `json:"relationships"`
	Summary       Summary             `json:"summary"`
}

// EstimateMessageRate buckets a table's row count into the documented
// messages/second approximation.
func EstimateMessageRate(rowCount int64) int64 {
	switch {
	case rowCount > 100_000:
		return 1000
	case rowCount > 10_000:
		return 100
	case rowCount > 1_000:
		return 10
	default:
		return 1
	}
}
