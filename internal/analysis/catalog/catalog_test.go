package catalog

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

func ordersRef() model.TableRef {
	return model.TableRef{Schema: "public", Name: "orders"}
}

func registerFullCatalog(db *databasetest.FakeDB) {
	db.Register(`count(*) from "public"."orders"`, []string{"count"}, [][]any{{int64(500)}})
	db.Register("pg_indexes_size", []string{"data", "index", "total"}, [][]any{
		{int64(81920), int64(16384), int64(98304)},
	})
	db.Register("information_schema.columns",
		[]string{"column_name", "data_type", "nullable", "column_default", "is_identity", "ordinal_position"},
		[][]any{
			{"id", "uuid", false, nil, false, 1},
			{"customer_id", "uuid", false, nil, false, 2},
			{"total", "numeric", true, nil, false, 3},
		})
	// "table_constraints" pins this stub to the primary-key query; the
	// index query also contains the tokens "primary" and "key".
	db.Register("table_constraints PRIMARY KEY", []string{"column_name"}, [][]any{{"id"}})
	db.Register("referential_constraints",
		[]string{"constraint_name", "column_name", "ref_table", "ref_column", "update_rule", "delete_rule"},
		[][]any{
			{"orders_customer_id_fkey", "customer_id", "customers", "id", "NO ACTION", "CASCADE"},
		})
	db.Register("pg_index",
		[]string{"index_name", "amname", "indisunique", "indisprimary", "size", "scans", "read", "fetch", "columns"},
		[][]any{
			{"orders_pkey", "btree", true, true, int64(16384), int64(120), int64(300), int64(290), []string{"id"}},
			{"orders_created_idx", "btree", false, false, int64(8192), int64(0), int64(0), int64(0), []string{"created_at"}},
		})
	db.Register("relrowsecurity", []string{"relrowsecurity"}, [][]any{{true}})
}

func TestInspect_FullCatalog(t *testing.T) {
	db := databasetest.New()
	registerFullCatalog(db)

	insp := New(db, "public", testLogger())
	profile, warns := insp.Inspect(context.Background(), ordersRef(), nil)

	assert.Empty(t, warns)
	assert.Equal(t, model.ProvenanceCatalog, profile.Source)
	assert.Equal(t, int64(500), profile.RowCount)
	assert.Equal(t, int64(98304), profile.TotalSize.Bytes)
	assert.True(t, profile.HasRowLevelSecurity)

	require.Len(t, profile.Columns, 3)
	assert.Equal(t, "id", profile.Columns[0].Name)
	assert.Equal(t, 1, profile.Columns[0].Ordinal)
	assert.Equal(t, model.ProvenanceCatalog, profile.Columns[0].Source)

	assert.Equal(t, []string{"id"}, profile.PrimaryKey)

	require.Len(t, profile.ForeignKeys, 1)
	assert.Equal(t, "customers", profile.ForeignKeys[0].RefTable)
	assert.Equal(t, "CASCADE", profile.ForeignKeys[0].OnDelete)

	require.Len(t, profile.Indexes, 2)
	pkey := profile.Indexes[0]
	assert.True(t, pkey.IsPrimary)
	assert.False(t, pkey.IsUnused, "primary key index is never unused")
	assert.InDelta(t, 290.0/300.0, pkey.UsageRatio, 1e-9)

	unused := profile.Indexes[1]
	assert.True(t, unused.IsUnused, "zero scans and not primary")
}

func TestInspect_SubFetchFailuresDegrade(t *testing.T) {
	db := databasetest.New()
	// Earlier registrations win, so the FK failure goes in first.
	db.RegisterErr("referential_constraints", errs.New(errs.ErrKindPermissionDenied, "denied"))
	registerFullCatalog(db)

	insp := New(db, "public", testLogger())
	known := map[string]bool{"customers": true}
	profile, warns := insp.Inspect(context.Background(), ordersRef(), known)

	// Columns and indexes still arrive despite the FK failure.
	assert.Len(t, profile.Columns, 3)
	assert.Len(t, profile.Indexes, 2)
	require.NotEmpty(t, warns)

	// FK fell back to naming-convention inference, labeled as such.
	require.Len(t, profile.ForeignKeys, 1)
	assert.Equal(t, model.ProvenanceInferred, profile.ForeignKeys[0].Source)
	assert.Equal(t, "customers", profile.ForeignKeys[0].RefTable)
}

func TestInspect_SamplingFallback(t *testing.T) {
	db := databasetest.New()
	db.Register(`count(*) from "public"."orders"`, []string{"count"}, [][]any{{int64(2)}})
	db.RegisterErr("pg_indexes_size", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("information_schema.columns", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("table_constraints PRIMARY KEY", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("referential_constraints", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("pg_index", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("relrowsecurity", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.Register(`select * from "public"."orders"`,
		[]string{"id", "customer_id", "total", "created_at", "paid"},
		[][]any{
			{"a1b2c3d4-e5f6-7890-abcd-ef1234567890", "b1b2c3d4-e5f6-7890-abcd-ef1234567890", 19.99, "2026-08-29T10:30:00Z", true},
			{"c1b2c3d4-e5f6-7890-abcd-ef1234567890", nil, 20.0, "2026-08-29T11:00:00Z", false},
		})

	insp := New(db, "public", testLogger())
	profile, warns := insp.Inspect(context.Background(), ordersRef(), map[string]bool{"customers": true})

	assert.NotEmpty(t, warns)
	assert.Equal(t, model.ProvenanceInferred, profile.Source, "sampled profile must be labeled inferred")

	require.Len(t, profile.Columns, 5)
	byName := make(map[string]model.ColumnProfile)
	for _, col := range profile.Columns {
		byName[col.Name] = col
		assert.Equal(t, model.ProvenanceInferred, col.Source)
	}
	assert.Equal(t, "uuid", byName["id"].DataType)
	assert.Equal(t, "timestamp", byName["created_at"].DataType)
	assert.Equal(t, "boolean", byName["paid"].DataType)
	assert.True(t, byName["customer_id"].Nullable, "observed NULL implies nullable")

	// FK inference still ran off the sampled columns.
	require.Len(t, profile.ForeignKeys, 1)
	assert.Equal(t, "customers", profile.ForeignKeys[0].RefTable)
}
