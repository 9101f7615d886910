package model

import "github.com/dustin/go-humanize"

// Provenance records whether a fact came from the catalog or was inferred
// heuristically. Inferred facts (sampled column types, name-convention
// foreign keys, replica-identity realtime eligibility) carry strictly less
// certainty than catalog facts and must never be silently mixed with them.
type Provenance string

const (
	ProvenanceCatalog  Provenance = "catalog"
	ProvenanceInferred Provenance = "inferred"
)

// TableRef identifies a table.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

func (r TableRef) String() string {
	return r.Schema + "." + r.Name
}

// SizeInfo carries a byte count plus its human-readable form.
type SizeInfo struct {
	Bytes int64  `json:"bytes"`
	Human string `json:"human"`
}

// NewSize builds a SizeInfo from raw bytes.
func NewSize(bytes int64) SizeInfo {
	if bytes < 0 {
		bytes = 0
	}
	return SizeInfo{Bytes: bytes, Human: humanize.IBytes(uint64(bytes))}
}

// TableProfile is the full catalog profile of one table.
type TableProfile struct {
	Schema   string `json:"schema"`
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`

	DataSize  SizeInfo `json:"data_size"`
	IndexSize SizeInfo `json:"index_size"`
	TotalSize SizeInfo `json:"total_size"`

	HasRowLevelSecurity bool `json:"has_row_level_security"`

	Columns     []ColumnProfile  `json:"columns"`
	PrimaryKey  []string         `json:"primary_key_columns"`
	ForeignKeys []ForeignKeyEdge `json:"foreign_keys"`
	Indexes     []IndexProfile   `json:"indexes"`
	Policies    []AccessPolicy   `json:"policies"`

	// Source is ProvenanceInferred when the profile was built from row
	// sampling because catalog access was unavailable.
	Source Provenance `json:"source"`
}

// Ref returns the table's identity.
func (t *TableProfile) Ref() TableRef {
	return TableRef{Schema: t.Schema, Name: t.Name}
}

// ColumnProfile describes one column. When Source is ProvenanceInferred the
// type and nullability were guessed from sampled values and are heuristics,
// not guarantees.
type ColumnProfile struct {
	Name       string     `json:"name"`
	DataType   string     `json:"data_type"`
	Nullable   bool       `json:"nullable"`
	Default    *string    `json:"default,omitempty"`
	IsIdentity bool       `json:"is_identity"`
	Ordinal    int        `json:"ordinal_position"`
	Source     Provenance `json:"source"`
}

// ForeignKeyEdge is one edge of the cross-table relationship graph.
type ForeignKeyEdge struct {
	ConstraintName string     `json:"constraint_name"`
	Column         string     `json:"column"`
	RefTable       string     `json:"ref_table"`
	RefColumn      string     `json:"ref_column"`
	OnUpdate       string     `json:"on_update,omitempty"`
	OnDelete       string     `json:"on_delete,omitempty"`
	Source         Provenance `json:"source"`
}

// IndexProfile describes one index with usage statistics when available.
type IndexProfile struct {
	Name       string   `json:"name"`
	Method     string   `json:"method"`
	IsUnique   bool     `json:"is_unique"`
	IsPrimary  bool     `json:"is_primary"`
	Columns    []string `json:"columns"`
	Size       SizeInfo `json:"size"`
	Scans      int64    `json:"scans"`
	TuplesRead int64    `json:"tuples_read"`

	// UsageRatio is tuples fetched over tuples read; 0 when no reads
	// have happened yet.
	UsageRatio float64 `json:"usage_ratio"`

	// IsUnused is true for indexes with zero scans that are not primary
	// key indexes.
	IsUnused bool `json:"is_unused"`
}

// AccessPolicy is one row-level security policy.
type AccessPolicy struct {
	Name       string   `json:"name"`
	Table      string   `json:"table"`
	Command    string   `json:"command"` // ALL, SELECT, INSERT, UPDATE, DELETE
	Permissive bool     `json:"permissive"`
	Roles      []string `json:"roles"`
	UsingExpr  string   `json:"using_expr,omitempty"`
	CheckExpr  string   `json:"with_check_expr,omitempty"`
}
