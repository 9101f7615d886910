// Package catalog builds per-table profiles: row counts, columns, keys,
// indexes, sizes, and the row-level security flag.
//
// Every sub-fetch is independently fault-tolerant: a failure fetching
// foreign keys never blocks column or index retrieval. Missing sub-results
// degrade to empty lists plus a warning, never abort the table's profile.
// When catalog metadata is unavailable the inspector falls back to row
// sampling and naming-convention inference, and the profile is labeled
// ProvenanceInferred.
package catalog

import (
	"context"
	"fmt"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/logger"
)

// sampleLimit is how many rows the no-catalog fallback reads to infer
// column types.
const sampleLimit = 5

// Inspector profiles tables for one schema.
type Inspector struct {
	db     database.DB
	schema string
	log    *logger.Logger
}

// New builds a catalog Inspector.
func New(db database.DB, schema string, log *logger.Logger) *Inspector {
	return &Inspector{db: db, schema: schema, log: log}
}

// Inspect builds the profile of one table. known is the full discovered
// table-name set, used only by the foreign-key inference fallback. The
// returned warnings name each sub-fetch that degraded.
func (i *Inspector) Inspect(ctx context.Context, ref model.TableRef, known map[string]bool) (model.TableProfile, []string) {
	profile := model.TableProfile{
		Schema: ref.Schema,
		Name:   ref.Name,
		Source: model.ProvenanceCatalog,
	}
	var warns []string
	warn := func(what string, err error) {
		warns = append(warns, fmt.Sprintf("catalog %s: %s failed: %v", ref, what, err))
	}

	if count, err := i.fetchRowCount(ctx, ref); err != nil {
		warn("row count", err)
	} else {
		profile.RowCount = count
	}

	if data, index, total, err := i.fetchSizes(ctx, ref); err != nil {
		warn("sizes", err)
		profile.DataSize = model.NewSize(0)
		profile.IndexSize = model.NewSize(0)
		profile.TotalSize = model.NewSize(0)
	} else {
		profile.DataSize = model.NewSize(data)
		profile.IndexSize = model.NewSize(index)
		profile.TotalSize = model.NewSize(total)
	}

	cols, err := i.fetchColumns(ctx, ref)
	if err != nil {
		warn("columns", err)
		// No catalog access to columns: sample rows and infer.
		sampled, sampleErr := i.sampleColumns(ctx, ref)
		if sampleErr != nil {
			warn("column sampling", sampleErr)
		} else {
			cols = sampled
			profile.Source = model.ProvenanceInferred
		}
	}
	profile.Columns = cols

	if pks, err := i.fetchPrimaryKey(ctx, ref); err != nil {
		warn("primary key", err)
	} else {
		profile.PrimaryKey = pks
	}

	fks, err := i.fetchForeignKeys(ctx, ref)
	if err != nil {
		warn("foreign keys", err)
		// Heuristic fallback: derive edges from column naming. Strictly
		// lower confidence; each edge is labeled inferred.
		fks = InferForeignKeys(profile.Columns, known)
	}
	profile.ForeignKeys = fks

	if indexes, err := i.fetchIndexes(ctx, ref); err != nil {
		warn("indexes", err)
	} else {
		profile.Indexes = indexes
	}

	if rls, err := i.fetchRLSEnabled(ctx, ref); err != nil {
		warn("row level security flag", err)
	} else {
		profile.HasRowLevelSecurity = rls
	}

	return profile, warns
}

// fetchRowCount returns the exact row count at analysis time. Concurrent
// writes can make this drift from later counts; callers treat it as a
// point-in-time value.
func (i *Inspector) fetchRowCount(ctx context.Context, ref model.TableRef) (int64, error) {
	q := fmt.Sprintf(`SELECT count(*) FROM %q.%q`, ref.Schema, ref.Name)
	var count int64
	if err := i.db.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (i *Inspector) fetchSizes(ctx context.Context, ref model.TableRef) (data, index, total int64, err error) {
	const q = `
		SELECT pg_relation_size(c.oid),
		       pg_indexes_size(c.oid),
		       pg_total_relation_size(c.oid)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relname = $2`

	err = i.db.QueryRow(ctx, q, ref.Schema, ref.Name).Scan(&data, &index, &total)
	return data, index, total, err
}

func (i *Inspector) fetchColumns(ctx context.Context, ref model.TableRef) ([]model.ColumnProfile, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES',
		       column_default,
		       is_identity = 'YES',
		       ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name   = $2
		ORDER BY ordinal_position`

	rows, err := i.db.Query(ctx, q, ref.Schema, ref.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []model.ColumnProfile
	for rows.Next() {
		col := model.ColumnProfile{Source: model.ProvenanceCatalog}
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.Default, &col.IsIdentity, &col.Ordinal); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not visible in information_schema", ref)
	}
	return cols, nil
}

func (i *Inspector) fetchPrimaryKey(ctx context.Context, ref model.TableRef) ([]string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2
		ORDER BY kcu.ordinal_position`

	rows, err := i.db.Query(ctx, q, ref.Schema, ref.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pks []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		pks = append(pks, name)
	}
	return pks, rows.Err()
}

func (i *Inspector) fetchForeignKeys(ctx context.Context, ref model.TableRef) ([]model.ForeignKeyEdge, error) {
	const q = `
		SELECT tc.constraint_name,
		       kcu.column_name,
		       ccu.table_name  AS ref_table,
		       ccu.column_name AS ref_column,
		       rc.update_rule,
		       rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		JOIN information_schema.referential_constraints rc
		  ON tc.constraint_name   = rc.constraint_name
		 AND tc.table_schema      = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2`

	rows, err := i.db.Query(ctx, q, ref.Schema, ref.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []model.ForeignKeyEdge
	for rows.Next() {
		fk := model.ForeignKeyEdge{Source: model.ProvenanceCatalog}
		if err := rows.Scan(&fk.ConstraintName, &fk.Column, &fk.RefTable, &fk.RefColumn, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (i *Inspector) fetchIndexes(ctx context.Context, ref model.TableRef) ([]model.IndexProfile, error) {
	const q = `
		SELECT ci.relname AS index_name,
		       am.amname,
		       x.indisunique,
		       x.indisprimary,
		       pg_relation_size(ci.oid),
		       COALESCE(s.idx_scan, 0),
		       COALESCE(s.idx_tup_read, 0),
		       COALESCE(s.idx_tup_fetch, 0),
		       ARRAY(
		           SELECT a.attname
		           FROM unnest(x.indkey) WITH ORDINALITY AS key(attnum, ord)
		           JOIN pg_attribute a ON a.attrelid = x.indrelid AND a.attnum = key.attnum
		           ORDER BY key.ord
		       ) AS columns
		FROM pg_index x
		JOIN pg_class ci ON ci.oid = x.indexrelid
		JOIN pg_class ct ON ct.oid = x.indrelid
		JOIN pg_namespace n ON n.oid = ct.relnamespace
		JOIN pg_am am ON am.oid = ci.relam
		LEFT JOIN pg_stat_user_indexes s ON s.indexrelid = x.indexrelid
		WHERE n.nspname = $1
		  AND ct.relname = $2
		ORDER BY ci.relname`

	rows, err := i.db.Query(ctx, q, ref.Schema, ref.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []model.IndexProfile
	for rows.Next() {
		var (
			idx        model.IndexProfile
			sizeBytes  int64
			tupFetched int64
		)
		if err := rows.Scan(&idx.Name, &idx.Method, &idx.IsUnique, &idx.IsPrimary,
			&sizeBytes, &idx.Scans, &idx.TuplesRead, &tupFetched, &idx.Columns); err != nil {
			return nil, err
		}
		idx.Size = model.NewSize(sizeBytes)
		if idx.TuplesRead > 0 {
			idx.UsageRatio = float64(tupFetched) / float64(idx.TuplesRead)
		}
		idx.IsUnused = idx.Scans == 0 && !idx.IsPrimary
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (i *Inspector) fetchRLSEnabled(ctx context.Context, ref model.TableRef) (bool, error) {
	const q = `
		SELECT c.relrowsecurity
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relname = $2`

	var enabled bool
	if err := i.db.QueryRow(ctx, q, ref.Schema, ref.Name).Scan(&enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// sampleColumns reads a handful of rows and infers the column set from
// observed values. Inferred nullability and types are heuristics, not
// guarantees; every returned column is labeled ProvenanceInferred.
func (i *Inspector) sampleColumns(ctx context.Context, ref model.TableRef) ([]model.ColumnProfile, error) {
	q := fmt.Sprintf(`SELECT * FROM %q.%q LIMIT %d`, ref.Schema, ref.Name, sampleLimit)
	rows, err := i.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	cols := make([]model.ColumnProfile, len(names))
	for idx, name := range names {
		cols[idx] = model.ColumnProfile{
			Name:     name,
			DataType: "varchar", // until a value says otherwise
			Ordinal:  idx + 1,
			Source:   model.ProvenanceInferred,
		}
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for idx, v := range vals {
			if idx >= len(cols) {
				break
			}
			if v == nil {
				cols[idx].Nullable = true
				continue
			}
			cols[idx].DataType = inferType(v)
		}
	}
	return cols, rows.Err()
}
