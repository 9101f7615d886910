package realtime

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

func table(name string, rows int64, cols int) model.TableProfile {
	t := model.TableProfile{Schema: "public", Name: name, RowCount: rows}
	for i := 0; i < cols; i++ {
		t.Columns = append(t.Columns, model.ColumnProfile{Name: "c", Ordinal: i + 1})
	}
	return t
}

func TestInspect_PublicationsFromCatalog(t *testing.T) {
	db := databasetest.New()
	db.Register("pg_publication_tables", []string{"tablename", "pubinsert", "pubupdate", "pubdelete"}, [][]any{
		{"messages", true, true, true},
		{"orders", true, true, false},
	})

	tables := []model.TableProfile{
		table("messages", 250_000, 8),
		table("orders", 5_000, 12),
	}

	report, warns := New(db, "public", testLogger()).Inspect(context.Background(), tables)

	assert.Empty(t, warns)
	require.Len(t, report.Publications, 2)

	msgs := report.Publications[0]
	assert.Equal(t, model.ProvenanceCatalog, msgs.Source)
	assert.Equal(t, int64(250_000), msgs.RowCount)
	assert.Equal(t, int64(1000), msgs.EstimatedMessageRate)

	assert.Equal(t, int64(10), report.Publications[1].EstimatedMessageRate)
	assert.Equal(t, int64(1010), report.Statistics.TotalEstimatedRate)
	assert.Equal(t, 2, report.Statistics.PublishedTables)
}

func TestInspect_FallsBackToReplicaIdentity(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("pg_publication_tables", errs.New(errs.ErrKindPermissionDenied, "permission denied"))
	db.Register("relreplident", []string{"relname", "relreplident"}, [][]any{
		{"orders", "d"},
		{"audit_log", "f"},
		{"scratch", "n"},
	})

	tables := []model.TableProfile{table("orders", 100, 5), table("audit_log", 50, 5)}

	report, warns := New(db, "public", testLogger()).Inspect(context.Background(), tables)

	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "replica identity")

	require.Len(t, report.Publications, 2, "replica identity 'nothing' is excluded")
	for _, e := range report.Publications {
		assert.Equal(t, model.ProvenanceInferred, e.Source)
	}
	// Full identity carries delete payloads, default does not.
	assert.False(t, report.Publications[0].Deletes, "orders")
	assert.True(t, report.Publications[1].Deletes, "audit_log")
}

func TestInspect_IssueRules(t *testing.T) {
	db := databasetest.New()
	db.Register("pg_publication_tables", []string{"tablename", "pubinsert", "pubupdate", "pubdelete"}, [][]any{
		{"messages", true, true, true}, // high rate + all ops
		{"audit_trail", true, false, false},
		{"scratch", true, false, false}, // empty table
	})

	wide := table("audit_trail", 500, 25) // wide payload
	tables := []model.TableProfile{
		table("messages", 250_000, 8),
		wide,
		table("scratch", 0, 3),
	}

	report, _ := New(db, "public", testLogger()).Inspect(context.Background(), tables)

	kinds := make(map[string]model.Severity)
	for _, issue := range report.Issues {
		kinds[issue.Kind+"/"+issue.Subject] = issue.Severity
	}

	assert.Equal(t, model.SeverityHigh, kinds["high_message_rate/messages"])
	assert.Equal(t, model.SeverityMedium, kinds["all_operations_published/messages"])
	assert.Equal(t, model.SeverityMedium, kinds["wide_payload/audit_trail"])
	assert.Equal(t, model.SeverityLow, kinds["empty_published_table/scratch"])

	// Severity never increases down the sorted list.
	for i := 1; i < len(report.Issues); i++ {
		assert.LessOrEqual(t,
			report.Issues[i-1].Severity.Rank(),
			report.Issues[i].Severity.Rank())
	}
}

func TestGroupChannels(t *testing.T) {
	entries := []model.RealtimePublicationEntry{
		{Table: "user_sessions"},
		{Table: "chat_messages"},
		{Table: "orders"},
		{Table: "widgets"},
		{Table: "profiles"},
	}

	groups := groupChannels(entries)

	byName := make(map[string][]string)
	for _, g := range groups {
		byName[g.Name] = g.Tables
	}

	assert.Equal(t, []string{"user_sessions", "profiles"}, byName["user-activity"])
	assert.Equal(t, []string{"chat_messages"}, byName["chat-messages"])
	assert.Equal(t, []string{"orders"}, byName["commerce"])
	assert.Equal(t, []string{"widgets"}, byName["general"])
}

func TestInspect_BothSourcesUnavailable(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("pg_publication_tables", errs.New(errs.ErrKindQueryFailed, "boom"))
	db.RegisterErr("relreplident", errs.New(errs.ErrKindQueryFailed, "boom"))

	report, warns := New(db, "public", testLogger()).Inspect(context.Background(), nil)

	assert.Len(t, warns, 2)
	assert.Empty(t, report.Publications)
	assert.Empty(t, report.Issues)
	assert.Zero(t, report.Statistics.PublishedTables)
}
