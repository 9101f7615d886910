package objects

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgscope/internal/database/databasetest"
	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func registerAll(db *databasetest.FakeDB) {
	db.Register("pg_proc", []string{"nspname", "proname", "lanname", "result", "prokind"}, [][]any{
		{"public", "order_total", "plpgsql", "numeric", "f"},
		{"public", "median", "internal", "numeric", "a"},
		{"public", "running_rank", "internal", "bigint", "w"},
		{"public", "set_updated_at", "plpgsql", "trigger", "f"},
	})
	db.Register("information_schema.views", []string{"table_schema", "table_name"}, [][]any{
		{"public", "active_orders"},
	})
	db.Register("pg_matviews", []string{"schemaname", "matviewname"}, [][]any{
		{"public", "daily_revenue"},
	})
	db.Register("information_schema.triggers", []string{
		"trigger_name", "event_object_table", "event_manipulation", "action_timing", "action_statement",
	}, [][]any{
		{"orders_touch", "orders", "UPDATE", "BEFORE", "EXECUTE FUNCTION set_updated_at()"},
	})
	db.Register("information_schema.sequences", []string{"sequence_schema", "sequence_name", "data_type"}, [][]any{
		{"public", "orders_id_seq", "bigint"},
	})
	db.Register("pg_extension", []string{"extname", "extversion", "nspname"}, [][]any{
		{"pgcrypto", "1.3", "public"},
		{"uuid-ossp", "1.1", "public"},
	})
	db.Register("pg_type", []string{"nspname", "typname", "typtype", "labels"}, [][]any{
		{"public", "order_status", "e", []string{"pending", "shipped", "cancelled"}},
		{"public", "money_range", "d", []string{}},
	})
}

func TestInspect_FullInventory(t *testing.T) {
	db := databasetest.New()
	registerAll(db)

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)

	require.Len(t, report.Functions, 4)
	assert.True(t, report.Functions[1].IsAggregate, "median")
	assert.True(t, report.Functions[2].IsWindow, "running_rank")
	assert.True(t, report.Functions[3].IsTriggerReturns, "set_updated_at")

	require.Len(t, report.Views, 1)
	require.Len(t, report.MaterializedViews, 1)
	assert.True(t, report.MaterializedViews[0].IsMaterialized)

	require.Len(t, report.Triggers, 1)
	assert.Equal(t, "set_updated_at", report.Triggers[0].Function)

	require.Len(t, report.Sequences, 1)
	assert.Equal(t, "bigint", report.Sequences[0].DataType)

	require.Len(t, report.Extensions, 2)

	require.Len(t, report.CustomTypes, 2)
	assert.Equal(t, "enum", report.CustomTypes[0].Kind)
	assert.Equal(t, []string{"pending", "shipped", "cancelled"}, report.CustomTypes[0].EnumValues)
	assert.Equal(t, "domain", report.CustomTypes[1].Kind)
	assert.Empty(t, report.CustomTypes[1].EnumValues, "only enums carry member values")

	stats := report.Statistics
	assert.Equal(t, 4, stats.Functions)
	assert.Equal(t, 1, stats.AggregateFunctions)
	assert.Equal(t, 1, stats.WindowFunctions)
	assert.Equal(t, 1, stats.TriggerFunctions)
	assert.Equal(t, 1, stats.Views)
	assert.Equal(t, 1, stats.MaterializedViews)
	assert.Equal(t, 2, stats.Extensions)
	assert.Equal(t, 2, stats.CustomTypes)
}

func TestInspect_CategoriesDegradeIndependently(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("pg_proc", errs.New(errs.ErrKindPermissionDenied, "permission denied for table pg_proc"))
	db.RegisterErr("information_schema.triggers", errs.New(errs.ErrKindQueryFailed, "timeout"))
	registerAll(db)

	report, warns := New(db, "public", testLogger()).Inspect(context.Background())

	require.Len(t, warns, 2)
	assert.Contains(t, warns[0], "functions")
	assert.Contains(t, warns[1], "triggers")

	assert.Empty(t, report.Functions)
	assert.Empty(t, report.Triggers)
	assert.NotEmpty(t, report.Views, "other categories still load")
	assert.NotEmpty(t, report.Sequences)
	assert.Zero(t, report.Statistics.Functions)
	assert.Equal(t, 1, report.Statistics.Views)
}

func TestFunctionFromAction(t *testing.T) {
	cases := map[string]string{
		"EXECUTE FUNCTION set_updated_at()":     "set_updated_at",
		"EXECUTE PROCEDURE audit_row()":         "audit_row",
		"EXECUTE FUNCTION log_change('orders')": "log_change",
		"refresh_totals()":                      "refresh_totals",
	}
	for statement, want := range cases {
		assert.Equal(t, want, functionFromAction(statement), statement)
	}
}
