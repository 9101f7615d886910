package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/pgscope/internal/analysis/model"
)

// action weights order the priority list: critical security findings first,
// then critical performance, then cleanup, then storage hygiene.
const (
	weightSecurityCritical = iota
	weightPerfCritical
	weightSecurityOther
	weightPerfOther
	weightCleanup
	weightStorage
)

type action struct {
	weight int
	text   string
}

// renderMarkdown builds the narrative document: executive summary, a block
// telling the reader how to consume the findings, per-table schema detail,
// storage detail, the prioritized action list, and the relationship map.
func renderMarkdown(report *model.Report) string {
	var b strings.Builder

	meta := report.Metadata
	fmt.Fprintf(&b, "# Database Analysis Report\n\n")
	fmt.Fprintf(&b, "Run `%s` generated %s in %s.\n\n",
		meta.RunID, meta.GeneratedAt.Format("2006-01-02 15:04:05 UTC"), meta.Duration)
	if meta.DatabaseName != "" {
		fmt.Fprintf(&b, "Database `%s` (%s), analyzed as `%s`.\n\n",
			meta.DatabaseName, meta.DatabaseVersion, meta.CurrentUser)
	}

	writeSummary(&b, report)
	writeHowToRead(&b)
	writeWarnings(&b, meta.Warnings)
	writeTables(&b, report.Tables)
	writeStorage(&b, report.Storage)
	writeActions(&b, report)
	writeRelationships(&b, report.Relationships)

	return b.String()
}

func writeSummary(b *strings.Builder, report *model.Report) {
	s := report.Summary
	fmt.Fprintf(b, "## Executive Summary\n\n")
	fmt.Fprintf(b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Tables | %d |\n", s.TotalTables)
	fmt.Fprintf(b, "| Total rows | %d |\n", s.TotalRows)
	fmt.Fprintf(b, "| Tables without row-level security | %d |\n", len(s.MissingRLS))
	fmt.Fprintf(b, "| Orphaned tables | %d |\n", len(s.OrphanedTables))
	fmt.Fprintf(b, "| Security findings | %d |\n", len(report.Security.Vulnerabilities))
	fmt.Fprintf(b, "| Performance findings | %d |\n", len(report.Performance.Issues))
	fmt.Fprintf(b, "| Storage buckets | %d |\n", len(report.Storage.Buckets))
	fmt.Fprintf(b, "| Discovery method | %s |\n\n", report.Metadata.DiscoveryMethod)
}

func writeHowToRead(b *strings.Builder) {
	fmt.Fprintf(b, "## How To Read This Report\n\n")
	fmt.Fprintf(b, "Findings are sorted by severity: critical, high, medium, low. ")
	fmt.Fprintf(b, "Work the Priority Actions list in order; each entry names the object to change. ")
	fmt.Fprintf(b, "Facts labeled `inferred` come from sampling or naming heuristics rather than ")
	fmt.Fprintf(b, "the database catalog and should be verified before acting on them. ")
	fmt.Fprintf(b, "The Warnings section lists every category that could not be fully analyzed.\n\n")
}

func writeWarnings(b *strings.Builder, warns []string) {
	if len(warns) == 0 {
		return
	}
	fmt.Fprintf(b, "## Warnings\n\n")
	for _, w := range warns {
		fmt.Fprintf(b, "- %s\n", w)
	}
	fmt.Fprintf(b, "\n")
}

func writeTables(b *strings.Builder, tables []model.TableProfile) {
	fmt.Fprintf(b, "## Tables\n\n")
	for _, t := range tables {
		fmt.Fprintf(b, "### %s.%s\n\n", t.Schema, t.Name)
		fmt.Fprintf(b, "%d rows, %s total (%s data, %s indexes). Row-level security: %s.",
			t.RowCount, t.TotalSize.Human, t.DataSize.Human, t.IndexSize.Human,
			onOff(t.HasRowLevelSecurity))
		if t.Source == model.ProvenanceInferred {
			fmt.Fprintf(b, " Profile inferred from sampled rows.")
		}
		fmt.Fprintf(b, "\n\n")

		if len(t.Columns) > 0 {
			fmt.Fprintf(b, "| Column | Type | Nullable | Source |\n|---|---|---|---|\n")
			for _, c := range t.Columns {
				fmt.Fprintf(b, "| %s | %s | %v | %s |\n", c.Name, c.DataType, c.Nullable, c.Source)
			}
			fmt.Fprintf(b, "\n")
		}
		if len(t.PrimaryKey) > 0 {
			fmt.Fprintf(b, "Primary key: %s.\n\n", strings.Join(t.PrimaryKey, ", "))
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(b, "- FK %s: %s -> %s.%s (%s)\n", fk.ConstraintName, fk.Column, fk.RefTable, fk.RefColumn, fk.Source)
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(b, "- Index %s (%s) on %s, %s, %d scans%s\n",
				idx.Name, idx.Method, strings.Join(idx.Columns, ", "), idx.Size.Human,
				idx.Scans, unusedSuffix(idx.IsUnused))
		}
		for _, p := range t.Policies {
			fmt.Fprintf(b, "- Policy %s (%s) roles %s using `%s`\n",
				p.Name, p.Command, strings.Join(p.Roles, ", "), p.UsingExpr)
		}
		if len(t.ForeignKeys)+len(t.Indexes)+len(t.Policies) > 0 {
			fmt.Fprintf(b, "\n")
		}
	}
}

func writeStorage(b *strings.Builder, s model.StorageReport) {
	if len(s.Buckets) == 0 {
		return
	}
	fmt.Fprintf(b, "## Storage\n\n")
	for _, bucket := range s.Buckets {
		fmt.Fprintf(b, "### Bucket %s\n\n", bucket.Name)
		fmt.Fprintf(b, "%d files, %s. Access: %s.\n\n",
			bucket.FileCount, bucket.TotalSize.Human, publicPrivate(bucket.Public))
		for _, f := range bucket.Folders {
			fmt.Fprintf(b, "- %s/: %d files, %s\n", f.Prefix, f.FileCount, f.TotalSize.Human)
		}
		if len(bucket.Folders) > 0 {
			fmt.Fprintf(b, "\n")
		}
	}
	if len(s.LargeFiles) > 0 {
		fmt.Fprintf(b, "Largest files:\n\n")
		for _, f := range s.LargeFiles {
			fmt.Fprintf(b, "- %s/%s (%s)\n", f.Bucket, f.Key, f.Size.Human)
		}
		fmt.Fprintf(b, "\n")
	}
}

// writeActions emits the numbered priority list, ordered by fixed weights.
func writeActions(b *strings.Builder, report *model.Report) {
	var actions []action

	for _, v := range report.Security.Vulnerabilities {
		w := weightSecurityOther
		if v.Severity == model.SeverityCritical {
			w = weightSecurityCritical
		}
		subject := v.Table
		if subject == "" {
			subject = v.Role
		}
		actions = append(actions, action{w, fmt.Sprintf("[%s] %s: %s", v.Severity, subject, v.Remediation)})
	}
	for _, issue := range report.Performance.Issues {
		w := weightPerfOther
		if issue.Severity == model.SeverityCritical {
			w = weightPerfCritical
		}
		actions = append(actions, action{w, fmt.Sprintf("[%s] %s", issue.Severity, issue.Remediation)})
	}
	for _, name := range report.Summary.OrphanedTables {
		actions = append(actions, action{weightCleanup,
			fmt.Sprintf("[cleanup] table %q is empty and unreferenced; archive or drop it", name)})
	}
	for _, issue := range report.Realtime.Issues {
		actions = append(actions, action{weightCleanup, fmt.Sprintf("[%s] %s", issue.Severity, issue.Remediation)})
	}
	for _, issue := range report.EdgeFunctions.Issues {
		actions = append(actions, action{weightCleanup, fmt.Sprintf("[%s] %s", issue.Severity, issue.Remediation)})
	}
	for _, rec := range report.Storage.Recommendations {
		actions = append(actions, action{weightStorage, "[storage] " + rec})
	}

	if len(actions) == 0 {
		return
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].weight < actions[j].weight })

	fmt.Fprintf(b, "## Priority Actions\n\n")
	for i, a := range actions {
		fmt.Fprintf(b, "%d. %s\n", i+1, a.text)
	}
	fmt.Fprintf(b, "\n")
}

func writeRelationships(b *strings.Builder, rel model.RelationshipMap) {
	if len(rel.References) == 0 && len(rel.ReferencedBy) == 0 {
		return
	}
	fmt.Fprintf(b, "## Relationships\n\n")

	names := make([]string, 0, len(rel.References))
	for name := range rel.References {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "- %s references %s\n", name, strings.Join(rel.References[name], ", "))
	}

	names = names[:0]
	for name := range rel.ReferencedBy {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "- %s is referenced by %s\n", name, strings.Join(rel.ReferencedBy[name], ", "))
	}
	fmt.Fprintf(b, "\n")
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func publicPrivate(v bool) string {
	if v {
		return "public"
	}
	return "private"
}

func unusedSuffix(unused bool) string {
	if unused {
		return " (unused)"
	}
	return ""
}
