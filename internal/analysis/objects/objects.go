// Package objects inventories stored functions, views, triggers, sequences,
// extensions, and custom types. Every category is independently optional:
// the catalog views behind some of them require privileges a restricted
// credential may lack, so a failed category yields an empty list plus a
// warning, never an error.
package objects

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/logger"
)

// Inspector runs the database-object inventory.
type Inspector struct {
	db     database.DB
	schema string
	log    *logger.Logger
}

// New builds an object Inspector.
func New(db database.DB, schema string, log *logger.Logger) *Inspector {
	return &Inspector{db: db, schema: schema, log: log}
}

// Inspect fetches all seven categories and rolls up statistics.
func (i *Inspector) Inspect(ctx context.Context) (model.ObjectsReport, []string) {
	var report model.ObjectsReport
	var warns []string

	warn := func(category string, err error) {
		warns = append(warns, fmt.Sprintf("objects: %s unavailable: %v", category, err))
	}

	var err error
	if report.Functions, err = i.fetchFunctions(ctx); err != nil {
		warn("functions", err)
	}
	if report.Views, err = i.fetchViews(ctx); err != nil {
		warn("views", err)
	}
	if report.MaterializedViews, err = i.fetchMaterializedViews(ctx); err != nil {
		warn("materialized views", err)
	}
	if report.Triggers, err = i.fetchTriggers(ctx); err != nil {
		warn("triggers", err)
	}
	if report.Sequences, err = i.fetchSequences(ctx); err != nil {
		warn("sequences", err)
	}
	if report.Extensions, err = i.fetchExtensions(ctx); err != nil {
		warn("extensions", err)
	}
	if report.CustomTypes, err = i.fetchCustomTypes(ctx); err != nil {
		warn("custom types", err)
	}

	report.Statistics = summarize(report)

	i.log.Debugf("object inspection: %d functions, %d views, %d triggers",
		len(report.Functions), len(report.Views), len(report.Triggers))

	return report, warns
}

func (i *Inspector) fetchFunctions(ctx context.Context) ([]model.FunctionInfo, error) {
	const q = `
		SELECT n.nspname,
		       p.proname,
		       l.lanname,
		       pg_get_function_result(p.oid),
		       p.prokind
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		JOIN pg_language l ON l.oid = p.prolang
		WHERE n.nspname = $1
		ORDER BY p.proname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fns []model.FunctionInfo
	for rows.Next() {
		var (
			fn   model.FunctionInfo
			kind string
		)
		if err := rows.Scan(&fn.Schema, &fn.Name, &fn.Language, &fn.ReturnType, &kind); err != nil {
			return nil, err
		}
		fn.IsAggregate = kind == "a"
		fn.IsWindow = kind == "w"
		fn.IsTriggerReturns = fn.ReturnType == "trigger"
		fns = append(fns, fn)
	}
	return fns, rows.Err()
}

func (i *Inspector) fetchViews(ctx context.Context) ([]model.ViewInfo, error) {
	const q = `
		SELECT table_schema, table_name
		FROM information_schema.views
		WHERE table_schema = $1
		ORDER BY table_name`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []model.ViewInfo
	for rows.Next() {
		var v model.ViewInfo
		if err := rows.Scan(&v.Schema, &v.Name); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (i *Inspector) fetchMaterializedViews(ctx context.Context) ([]model.ViewInfo, error) {
	const q = `
		SELECT schemaname, matviewname
		FROM pg_matviews
		WHERE schemaname = $1
		ORDER BY matviewname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []model.ViewInfo
	for rows.Next() {
		v := model.ViewInfo{IsMaterialized: true}
		if err := rows.Scan(&v.Schema, &v.Name); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (i *Inspector) fetchTriggers(ctx context.Context) ([]model.TriggerInfo, error) {
	const q = `
		SELECT trigger_name,
		       event_object_table,
		       event_manipulation,
		       action_timing,
		       action_statement
		FROM information_schema.triggers
		WHERE trigger_schema = $1
		ORDER BY event_object_table, trigger_name`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []model.TriggerInfo
	for rows.Next() {
		var (
			t         model.TriggerInfo
			statement string
		)
		if err := rows.Scan(&t.Name, &t.Table, &t.Event, &t.Timing, &statement); err != nil {
			return nil, err
		}
		t.Function = functionFromAction(statement)
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// functionFromAction extracts the function name from an action statement of
// the form "EXECUTE FUNCTION set_updated_at()".
func functionFromAction(statement string) string {
	s := strings.TrimSpace(statement)
	for _, prefix := range []string{"EXECUTE FUNCTION ", "EXECUTE PROCEDURE "} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	return s
}

func (i *Inspector) fetchSequences(ctx context.Context) ([]model.SequenceInfo, error) {
	const q = `
		SELECT sequence_schema, sequence_name, data_type
		FROM information_schema.sequences
		WHERE sequence_schema = $1
		ORDER BY sequence_name`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []model.SequenceInfo
	for rows.Next() {
		var s model.SequenceInfo
		if err := rows.Scan(&s.Schema, &s.Name, &s.DataType); err != nil {
			return nil, err
		}
		seqs = append(seqs, s)
	}
	return seqs, rows.Err()
}

func (i *Inspector) fetchExtensions(ctx context.Context) ([]model.ExtensionInfo, error) {
	const q = `
		SELECT e.extname, e.extversion, n.nspname
		FROM pg_extension e
		JOIN pg_namespace n ON n.oid = e.extnamespace
		ORDER BY e.extname`

	rows, err := i.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exts []model.ExtensionInfo
	for rows.Next() {
		var e model.ExtensionInfo
		if err := rows.Scan(&e.Name, &e.Version, &e.Schema); err != nil {
			return nil, err
		}
		exts = append(exts, e)
	}
	return exts, rows.Err()
}

func (i *Inspector) fetchCustomTypes(ctx context.Context) ([]model.TypeInfo, error) {
	const q = `
		SELECT n.nspname,
		       t.typname,
		       t.typtype,
		       COALESCE(array_agg(e.enumlabel ORDER BY e.enumsortorder)
		                FILTER (WHERE e.enumlabel IS NOT NULL), '{}')
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		LEFT JOIN pg_enum e ON e.enumtypid = t.oid
		WHERE n.nspname = $1
		  AND t.typtype IN ('e', 'c', 'd')
		  AND NOT EXISTS (
		      SELECT 1 FROM pg_class c
		      WHERE c.oid = t.typrelid AND c.relkind <> 'c')
		GROUP BY n.nspname, t.typname, t.typtype
		ORDER BY t.typname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []model.TypeInfo
	for rows.Next() {
		var (
			info    model.TypeInfo
			typtype string
		)
		if err := rows.Scan(&info.Schema, &info.Name, &typtype, &info.EnumValues); err != nil {
			return nil, err
		}
		switch typtype {
		case "e":
			info.Kind = "enum"
		case "c":
			info.Kind = "composite"
		case "d":
			info.Kind = "domain"
		}
		if info.Kind != "enum" {
			info.EnumValues = nil
		}
		types = append(types, info)
	}
	return types, rows.Err()
}

func summarize(report model.ObjectsReport) model.ObjectStatistics {
	stats := model.ObjectStatistics{
		Functions:         len(report.Functions),
		Views:             len(report.Views),
		MaterializedViews: len(report.MaterializedViews),
		Triggers:          len(report.Triggers),
		Sequences:         len(report.Sequences),
		Extensions:        len(report.Extensions),
		CustomTypes:       len(report.CustomTypes),
	}
	for _, fn := range report.Functions {
		if fn.IsAggregate {
			stats.AggregateFunctions++
		}
		if fn.IsWindow {
			stats.WindowFunctions++
		}
		if fn.IsTriggerReturns {
			stats.TriggerFunctions++
		}
	}
	return stats
}
