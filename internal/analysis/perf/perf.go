// Package perf retrieves table and index usage statistics, bloat and cache
// indicators, and derives the performance-issue list.
package perf

import (
	"context"
	"fmt"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/logger"
)

const (
	// bloatThreshold is the dead/live ratio above which a vacuum is due.
	bloatThreshold = 0.20
	// cacheHitFloor is the database-wide cache hit percentage below which
	// the database is considered memory-starved.
	cacheHitFloor = 90.0
	// seqScanFactor flags tables whose sequential scans outnumber index
	// scans by this factor.
	seqScanFactor = 10
	// seqScanMinRows keeps tiny tables (where seq scans are optimal) out
	// of the sequential-scan rule.
	seqScanMinRows = 1000
)

// Inspector runs the performance analysis.
type Inspector struct {
	db     database.DB
	schema string
	log    *logger.Logger
}

// New builds a performance Inspector.
func New(db database.DB, schema string, log *logger.Logger) *Inspector {
	return &Inspector{db: db, schema: schema, log: log}
}

// Inspect fetches index usage, table statistics, and database-wide cache
// numbers, then derives issues. Each fetch degrades independently; warnings
// name the missing categories.
func (i *Inspector) Inspect(ctx context.Context) (model.PerformanceReport, []string) {
	var report model.PerformanceReport
	var warns []string

	indexes, err := i.fetchIndexUsage(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("performance: index statistics unavailable: %v", err))
	}
	report.Indexes = indexes

	tableStats, err := i.fetchTableStats(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("performance: table statistics unavailable: %v", err))
	}
	report.TableStats = tableStats

	dbStats, err := i.fetchDatabaseStats(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("performance: database statistics unavailable: %v", err))
	} else {
		report.DBStats = dbStats
	}

	report.Issues = deriveIssues(report)
	model.SortPerformanceIssues(report.Issues)

	i.log.Debugf("performance inspection: %d indexes, %d tables, %d issues",
		len(report.Indexes), len(report.TableStats), len(report.Issues))

	return report, warns
}

func (i *Inspector) fetchIndexUsage(ctx context.Context) ([]model.IndexUsage, error) {
	const q = `
		SELECT s.schemaname,
		       s.relname,
		       s.indexrelname,
		       s.idx_scan,
		       s.idx_tup_read,
		       s.idx_tup_fetch,
		       x.indisprimary,
		       pg_relation_size(s.indexrelid)
		FROM pg_stat_user_indexes s
		JOIN pg_index x ON x.indexrelid = s.indexrelid
		WHERE s.schemaname = $1
		ORDER BY s.relname, s.indexrelname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []model.IndexUsage
	for rows.Next() {
		var (
			u         model.IndexUsage
			sizeBytes int64
		)
		if err := rows.Scan(&u.Schema, &u.Table, &u.Index, &u.Scans, &u.TuplesRead, &u.TuplesFetched, &u.IsPrimary, &sizeBytes); err != nil {
			return nil, err
		}
		u.Size = model.NewSize(sizeBytes)
		if u.TuplesRead > 0 {
			u.UsageRatio = float64(u.TuplesFetched) / float64(u.TuplesRead)
		}
		u.IsUnused = u.Scans == 0 && !u.IsPrimary
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (i *Inspector) fetchTableStats(ctx context.Context) ([]model.TableStats, error) {
	const q = `
		SELECT schemaname,
		       relname,
		       COALESCE(seq_scan, 0),
		       COALESCE(idx_scan, 0),
		       COALESCE(n_live_tup, 0),
		       COALESCE(n_dead_tup, 0)
		FROM pg_stat_user_tables
		WHERE schemaname = $1
		ORDER BY relname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.TableStats
	for rows.Next() {
		var s model.TableStats
		if err := rows.Scan(&s.Schema, &s.Table, &s.SeqScans, &s.IndexScans, &s.LiveTuples, &s.DeadTuples); err != nil {
			return nil, err
		}
		if s.LiveTuples > 0 {
			s.BloatRatio = float64(s.DeadTuples) / float64(s.LiveTuples)
		}
		s.VacuumNeeded = s.BloatRatio > bloatThreshold
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (i *Inspector) fetchDatabaseStats(ctx context.Context) (model.DatabaseStats, error) {
	var stats model.DatabaseStats

	const cacheQ = `
		SELECT COALESCE(sum(blks_hit), 0),
		       COALESCE(sum(blks_read), 0)
		FROM pg_stat_database
		WHERE datname = current_database()`

	if err := i.db.QueryRow(ctx, cacheQ).Scan(&stats.BlocksHit, &stats.BlocksRead); err != nil {
		return stats, err
	}
	if total := stats.BlocksHit + stats.BlocksRead; total > 0 {
		stats.CacheHitRatio = float64(stats.BlocksHit) / float64(total) * 100
	}

	const scanQ = `
		SELECT COALESCE(sum(idx_scan), 0),
		       COALESCE(sum(seq_scan), 0)
		FROM pg_stat_user_tables
		WHERE schemaname = $1`

	var idxScans, seqScans int64
	if err := i.db.QueryRow(ctx, scanQ, i.schema).Scan(&idxScans, &seqScans); err != nil {
		return stats, err
	}
	if total := idxScans + seqScans; total > 0 {
		stats.IndexScanRatio = float64(idxScans) / float64(total) * 100
	}

	return stats, nil
}

// deriveIssues applies the derivation rules:
//
//   - unused non-primary index → medium
//   - table needing vacuum (bloat > 0.20) → high
//   - table with >1000 rows and seq scans > 10× index scans → medium
//   - database-wide cache hit ratio < 90% → critical
func deriveIssues(report model.PerformanceReport) []model.PerformanceIssue {
	var issues []model.PerformanceIssue

	for _, u := range report.Indexes {
		if u.IsUnused {
			issues = append(issues, model.PerformanceIssue{
				Kind:        model.PerfUnusedIndex,
				Severity:    model.SeverityMedium,
				Table:       u.Table,
				Index:       u.Index,
				Description: fmt.Sprintf("index %q on %q has never been scanned", u.Index, u.Table),
				Impact:      fmt.Sprintf("%s of storage plus write amplification for no read benefit", u.Size.Human),
				Remediation: fmt.Sprintf("DROP INDEX %q after confirming it is not a recent addition", u.Index),
			})
		}
	}

	for _, s := range report.TableStats {
		if s.VacuumNeeded {
			issues = append(issues, model.PerformanceIssue{
				Kind:        model.PerfTableBloat,
				Severity:    model.SeverityHigh,
				Table:       s.Table,
				Description: fmt.Sprintf("table %q carries %d dead tuples against %d live (ratio %.2f)", s.Table, s.DeadTuples, s.LiveTuples, s.BloatRatio),
				Impact:      "dead tuples inflate physical size and slow scans",
				Remediation: fmt.Sprintf("VACUUM (ANALYZE) %q; check autovacuum settings", s.Table),
			})
		}
		if s.LiveTuples > seqScanMinRows && s.SeqScans > seqScanFactor*s.IndexScans {
			issues = append(issues, model.PerformanceIssue{
				Kind:        model.PerfSeqScanDominant,
				Severity:    model.SeverityMedium,
				Table:       s.Table,
				Description: fmt.Sprintf("table %q sees %d sequential scans against %d index scans", s.Table, s.SeqScans, s.IndexScans),
				Impact:      "large tables read in full instead of via indexes",
				Remediation: "add indexes matching the dominant query predicates",
			})
		}
	}

	if report.DBStats.BlocksHit+report.DBStats.BlocksRead > 0 && report.DBStats.CacheHitRatio < cacheHitFloor {
		issues = append(issues, model.PerformanceIssue{
			Kind:        model.PerfLowCacheHit,
			Severity:    model.SeverityCritical,
			Description: fmt.Sprintf("database cache hit ratio is %.1f%%", report.DBStats.CacheHitRatio),
			Impact:      "queries fall through to disk far more than a healthy working set would",
			Remediation: "increase shared_buffers / instance memory or reduce the hot data set",
		})
	}

	return issues
}
