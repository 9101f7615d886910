package perf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database/databasetest"
	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

// registerHealthy stubs all four statistics queries with unremarkable numbers.
func registerHealthy(db *databasetest.FakeDB) {
	db.Register("pg_stat_user_indexes", []string{
		"schemaname", "relname", "indexrelname", "idx_scan", "idx_tup_read", "idx_tup_fetch", "indisprimary", "size",
	}, [][]any{
		{"public", "orders", "orders_pkey", int64(9000), int64(12000), int64(11800), true, int64(8192)},
		{"public", "orders", "orders_customer_idx", int64(450), int64(900), int64(880), false, int64(16384)},
	})
	db.Register("n_live_tup", []string{
		"schemaname", "relname", "seq_scan", "idx_scan", "n_live_tup", "n_dead_tup",
	}, [][]any{
		{"public", "orders", int64(12), int64(9400), int64(50000), int64(300)},
	})
	db.Register("blks_hit", []string{"hit", "read"}, [][]any{
		{int64(990_000), int64(10_000)},
	})
	db.Register("sum(idx_scan)", []string{"idx", "seq"}, [][]any{
		{int64(9400), int64(12)},
	})
}

func TestInspect_HealthyDatabaseHasNoIssues(t *testing.T) {
	db := databasetest.New()
	registerHealthy(db)

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)
	assert.Empty(t, report.Issues)
	require.Len(t, report.Indexes, 2)
	assert.InDelta(t, 99.0, report.DBStats.CacheHitRatio, 0.01)
	assert.Greater(t, report.DBStats.IndexScanRatio, 99.0)
	require.Len(t, report.TableStats, 1)
	assert.False(t, report.TableStats[0].VacuumNeeded)
}

func TestInspect_UnusedIndex(t *testing.T) {
	db := databasetest.New()
	// One never-scanned secondary index and one never-scanned primary key.
	db.Register("pg_stat_user_indexes", []string{
		"schemaname", "relname", "indexrelname", "idx_scan", "idx_tup_read", "idx_tup_fetch", "indisprimary", "size",
	}, [][]any{
		{"public", "orders", "orders_pkey", int64(0), int64(0), int64(0), true, int64(8192)},
		{"public", "orders", "orders_legacy_idx", int64(0), int64(0), int64(0), false, int64(1 << 20)},
	})
	db.Register("n_live_tup", []string{
		"schemaname", "relname", "seq_scan", "idx_scan", "n_live_tup", "n_dead_tup",
	}, [][]any{
		{"public", "orders", int64(12), int64(9400), int64(50000), int64(300)},
	})
	db.Register("blks_hit", []string{"hit", "read"}, [][]any{{int64(990_000), int64(10_000)}})
	db.Register("sum(idx_scan)", []string{"idx", "seq"}, [][]any{{int64(9400), int64(12)}})

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)
	require.Len(t, report.Issues, 1)
	issue := report.Issues[0]
	assert.Equal(t, model.PerfUnusedIndex, issue.Kind)
	assert.Equal(t, model.SeverityMedium, issue.Severity)
	assert.Equal(t, "orders_legacy_idx", issue.Index)
	assert.Contains(t, issue.Impact, "MiB")

	// The primary key is reported as primary, never as unused.
	for _, u := range report.Indexes {
		if u.Index == "orders_pkey" {
			assert.False(t, u.IsUnused)
		}
	}
}

func TestInspect_BloatAndSeqScans(t *testing.T) {
	db := databasetest.New()
	db.Register("pg_stat_user_indexes", nil, nil)
	db.Register("n_live_tup", []string{
		"schemaname", "relname", "seq_scan", "idx_scan", "n_live_tup", "n_dead_tup",
	}, [][]any{
		// 30% dead → vacuum needed; also seq-scan dominant on a big table.
		{"public", "events", int64(5000), int64(10), int64(100000), int64(30000)},
		// Tiny table with all seq scans stays clean.
		{"public", "settings", int64(400), int64(0), int64(12), int64(0)},
	})
	db.Register("blks_hit", []string{"hit", "read"}, [][]any{{int64(99), int64(1)}})
	db.Register("sum(idx_scan)", []string{"idx", "seq"}, [][]any{{int64(10), int64(5400)}})

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)
	require.Len(t, report.Issues, 2)

	// High severity sorts before medium.
	assert.Equal(t, model.PerfTableBloat, report.Issues[0].Kind)
	assert.Equal(t, model.SeverityHigh, report.Issues[0].Severity)
	assert.Equal(t, "events", report.Issues[0].Table)

	assert.Equal(t, model.PerfSeqScanDominant, report.Issues[1].Kind)
	assert.Equal(t, model.SeverityMedium, report.Issues[1].Severity)
	assert.Equal(t, "events", report.Issues[1].Table)
}

func TestInspect_LowCacheHitIsCritical(t *testing.T) {
	db := databasetest.New()
	db.Register("pg_stat_user_indexes", nil, nil)
	db.Register("n_live_tup", nil, nil)
	db.Register("blks_hit", []string{"hit", "read"}, [][]any{{int64(700), int64(300)}})
	db.Register("sum(idx_scan)", []string{"idx", "seq"}, [][]any{{int64(0), int64(0)}})

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)
	assert.InDelta(t, 70.0, report.DBStats.CacheHitRatio, 0.01)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, model.PerfLowCacheHit, report.Issues[0].Kind)
	assert.Equal(t, model.SeverityCritical, report.Issues[0].Severity)
}

func TestInspect_ColdDatabaseIsNotLowCacheHit(t *testing.T) {
	db := databasetest.New()
	db.Register("pg_stat_user_indexes", nil, nil)
	db.Register("n_live_tup", nil, nil)
	db.Register("blks_hit", []string{"hit", "read"}, [][]any{{int64(0), int64(0)}})
	db.Register("sum(idx_scan)", []string{"idx", "seq"}, [][]any{{int64(0), int64(0)}})

	report, _ := New(db, "public", testLogger()).Inspect(context.Background())

	assert.Zero(t, report.DBStats.CacheHitRatio)
	assert.Empty(t, report.Issues, "no block traffic yet means no verdict")
}

func TestInspect_DegradesPerCategory(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("pg_stat_user_indexes", errs.New(errs.ErrKindPermissionDenied, "permission denied for view pg_stat_user_indexes"))
	db.Register("n_live_tup", []string{
		"schemaname", "relname", "seq_scan", "idx_scan", "n_live_tup", "n_dead_tup",
	}, [][]any{
		{"public", "events", int64(0), int64(50), int64(2000), int64(900)},
	})
	db.RegisterErr("blks_hit", errs.New(errs.ErrKindQueryFailed, "statistics collector disabled"))

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	require.Len(t, warns, 2)
	assert.Contains(t, warns[0], "index statistics")
	assert.Contains(t, warns[1], "database statistics")

	// Table statistics still produce findings.
	require.Len(t, report.Issues, 1)
	assert.Equal(t, model.PerfTableBloat, report.Issues[0].Kind)
}
