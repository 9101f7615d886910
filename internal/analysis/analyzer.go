// Package analysis orchestrates one full run: schema discovery, per-table
// profiling, the concurrent inspector fan-out, merging, and rendering.
//
// Partial-failure tolerance is the central reliability property. From the
// profiling phase onward every failure is caught at the smallest boundary
// (per sub-query, per table, per inspector), recorded as a warning on the
// run metadata, and converted to an empty result. The run reaches the
// failed state only when no tables are discoverable or the database cannot
// be reached at all.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/koustreak/pgscope/internal/analysis/catalog"
	"github.com/koustreak/pgscope/internal/analysis/discover"
	"github.com/koustreak/pgscope/internal/analysis/edgefn"
	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/analysis/objects"
	"github.com/koustreak/pgscope/internal/analysis/perf"
	"github.com/koustreak/pgscope/internal/analysis/realtime"
	"github.com/koustreak/pgscope/internal/analysis/security"
	"github.com/koustreak/pgscope/internal/analysis/storage"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/filestore"
	"github.com/koustreak/pgscope/internal/logger"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateProfiling   State = "profiling"
	StateFanningOut  State = "fanning_out"
	StateMerging     State = "merging"
	StateRendering   State = "rendering"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Renderer turns a merged report into artifacts. Implemented by the report
// package; nil skips rendering.
type Renderer interface {
	Render(report *model.Report) (string, error)
}

// Analyzer owns the aggregate result for the duration of one run.
type Analyzer struct {
	db       database.DB
	schema   string
	disc     *discover.Discoverer
	catalog  *catalog.Inspector
	security *security.Inspector
	perf     *perf.Inspector
	objects  *objects.Inspector
	realtime *realtime.Inspector
	edgefn   *edgefn.Inspector
	storage  *storage.Inspector
	renderer Renderer
	log      *logger.Logger

	mu    sync.Mutex
	state State
}

// Options carries the optional collaborators of a run.
type Options struct {
	// Store is the object-storage backend; nil disables the storage
	// inspector (warning, not error).
	Store filestore.Store
	// FunctionsDir is the local edge-function checkout; empty disables the
	// edge-function inspector.
	FunctionsDir string
	// Management cross-references edge-function deployments; may be nil.
	Management edgefn.ManagementClient
	// Discovery options (schema document, candidate list, probe workers).
	Discovery []discover.Option
	// Renderer writes the artifacts; nil skips rendering.
	Renderer Renderer
}

// New wires an Analyzer over one database connection.
func New(db database.DB, schema string, log *logger.Logger, opts Options) *Analyzer {
	return &Analyzer{
		db:       db,
		schema:   schema,
		disc:     discover.New(db, schema, log, opts.Discovery...),
		catalog:  catalog.New(db, schema, log),
		security: security.New(db, schema, log),
		perf:     perf.New(db, schema, log),
		objects:  objects.New(db, schema, log),
		realtime: realtime.New(db, schema, log),
		edgefn:   edgefn.New(opts.FunctionsDir, opts.Management, log),
		storage:  storage.New(opts.Store, log),
		renderer: opts.Renderer,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current lifecycle position.
func (a *Analyzer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Analyzer) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.log.With().Str("state", string(s)).Logger().Debug("run state changed")
}

// Run executes one full analysis. The returned report is complete in shape
// even when categories degraded; Metadata.Warnings enumerates what is
// missing and why.
func (a *Analyzer) Run(ctx context.Context) (*model.Report, error) {
	started := time.Now()
	report := &model.Report{}
	var warns []string

	a.setState(StateDiscovering)

	if err := a.db.Ping(ctx); err != nil {
		a.setState(StateFailed)
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "database unreachable", err)
	}

	discovery, err := a.disc.Discover(ctx)
	if err != nil {
		a.setState(StateFailed)
		return nil, err
	}
	if len(discovery.Tables) == 0 {
		a.setState(StateFailed)
		return nil, errs.New(errs.ErrKindNotFound, "no tables discovered, nothing to analyze")
	}

	a.setState(StateProfiling)

	known := make(map[string]bool, len(discovery.Tables))
	for _, ref := range discovery.Tables {
		known[ref.Name] = true
	}
	for _, ref := range discovery.Tables {
		profile, tableWarns := a.profileTable(ctx, ref, known)
		warns = append(warns, tableWarns...)
		if profile == nil {
			continue
		}
		if discovery.Confidence == model.ProvenanceInferred {
			profile.Source = model.ProvenanceInferred
		}
		report.Tables = append(report.Tables, *profile)
	}

	a.setState(StateFanningOut)
	warns = append(warns, a.fanOut(ctx, report)...)

	a.setState(StateMerging)
	attachPolicies(report.Tables, report.Security.Policies)
	report.Relationships = relationshipMap(report.Tables)
	report.Summary = summarize(report)

	report.Metadata = model.RunMetadata{
		RunID:           started.UTC().Format("20060102-150405"),
		GeneratedAt:     started.UTC(),
		Duration:        time.Since(started).Round(time.Millisecond).String(),
		DiscoveryMethod: discovery.Method,
		Warnings:        warns,
	}
	a.fetchConnInfo(ctx, &report.Metadata)

	a.setState(StateRendering)
	if a.renderer != nil {
		if dir, err := a.renderer.Render(report); err != nil {
			report.Metadata.Warnings = append(report.Metadata.Warnings,
				fmt.Sprintf("render: %v", err))
			a.log.ErrorWith("report rendering failed", err, nil)
		} else {
			a.log.With().Str("dir", dir).Logger().Info("report written")
		}
	}

	a.setState(StateDone)
	a.log.With().
		Int("tables", len(report.Tables)).
		Int("warnings", len(report.Metadata.Warnings)).
		Str("duration", report.Metadata.Duration).
		Logger().Info("analysis run complete")

	return report, nil
}

// profileTable wraps one table's profiling so a panic skips the table
// instead of ending the run.
func (a *Analyzer) profileTable(ctx context.Context, ref model.TableRef, known map[string]bool) (profile *model.TableProfile, warns []string) {
	defer func() {
		if r := recover(); r != nil {
			profile = nil
			warns = append(warns, fmt.Sprintf("catalog %s: profiling panicked: %v", ref, r))
		}
	}()
	p, w := a.catalog.Inspect(ctx, ref, known)
	return &p, w
}

// fanOut runs the six independent inspectors concurrently and waits for all
// of them. Each goroutine writes only its own result slot; warnings are
// collected after the join, so no locking is shared between inspectors.
func (a *Analyzer) fanOut(ctx context.Context, report *model.Report) []string {
	warnSlots := make([][]string, 6)

	run := func(slot int, name string, fn func() []string) func() {
		return func() {
			defer func() {
				if r := recover(); r != nil {
					warnSlots[slot] = append(warnSlots[slot],
						fmt.Sprintf("%s: inspector panicked: %v", name, r))
				}
			}()
			warnSlots[slot] = fn()
		}
	}

	var wg sync.WaitGroup
	for _, task := range []func(){
		run(0, "security", func() []string {
			r, w := a.security.Inspect(ctx, report.Tables)
			report.Security = r
			return w
		}),
		run(1, "performance", func() []string {
			r, w := a.perf.Inspect(ctx)
			report.Performance = r
			return w
		}),
		run(2, "objects", func() []string {
			r, w := a.objects.Inspect(ctx)
			report.Objects = r
			return w
		}),
		run(3, "realtime", func() []string {
			r, w := a.realtime.Inspect(ctx, report.Tables)
			report.Realtime = r
			return w
		}),
		run(4, "edge functions", func() []string {
			r, w := a.edgefn.Inspect(ctx)
			report.EdgeFunctions = r
			return w
		}),
		run(5, "storage", func() []string {
			r, w := a.storage.Inspect(ctx)
			report.Storage = r
			return w
		}),
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task()
		}()
	}
	wg.Wait()

	var warns []string
	for _, w := range warnSlots {
		warns = append(warns, w...)
	}
	return warns
}

// attachPolicies merges the security inspector's policy list into the table
// profiles so the rendered per-table detail is self-contained.
func attachPolicies(tables []model.TableProfile, policies []model.AccessPolicy) {
	byTable := make(map[string][]model.AccessPolicy)
	for _, p := range policies {
		byTable[p.Table] = append(byTable[p.Table], p)
	}
	for i := range tables {
		tables[i].Policies = byTable[tables[i].Name]
	}
}

// relationshipMap builds the directed foreign-key graph over all profiles.
func relationshipMap(tables []model.TableProfile) model.RelationshipMap {
	m := model.RelationshipMap{
		References:   make(map[string][]string),
		ReferencedBy: make(map[string][]string),
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			m.References[t.Name] = appendUnique(m.References[t.Name], fk.RefTable)
			m.ReferencedBy[fk.RefTable] = appendUnique(m.ReferencedBy[fk.RefTable], t.Name)
		}
	}
	return m
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// summarize computes the run-level roll-up: totals, the missing-RLS list,
// orphan detection, and severity counts.
func summarize(report *model.Report) model.Summary {
	s := model.Summary{
		TotalTables:       len(report.Tables),
		Vulnerabilities:   make(map[model.Severity]int),
		PerformanceIssues: make(map[model.Severity]int),
	}

	for _, t := range report.Tables {
		s.TotalRows += t.RowCount
		if t.RowCount > 0 && !t.HasRowLevelSecurity {
			s.MissingRLS = append(s.MissingRLS, t.Name)
		}
		if isOrphan(t, report.Relationships) {
			s.OrphanedTables = append(s.OrphanedTables, t.Name)
		}
	}
	sort.Strings(s.MissingRLS)
	sort.Strings(s.OrphanedTables)

	for _, v := range report.Security.Vulnerabilities {
		s.Vulnerabilities[v.Severity]++
	}
	for _, issue := range report.Performance.Issues {
		s.PerformanceIssues[issue.Severity]++
	}
	return s
}

// isOrphan reports whether a table is empty and disconnected: zero rows, no
// outgoing foreign keys, and no other table's foreign key pointing at it.
func isOrphan(t model.TableProfile, rel model.RelationshipMap) bool {
	return t.RowCount == 0 &&
		len(t.ForeignKeys) == 0 &&
		len(rel.ReferencedBy[t.Name]) == 0
}

// fetchConnInfo fills the metadata's connection block. Best effort; a
// restricted credential that cannot read pg_roles simply leaves the
// superuser flag false.
func (a *Analyzer) fetchConnInfo(ctx context.Context, meta *model.RunMetadata) {
	_ = a.db.QueryRow(ctx,
		`SELECT current_database(), current_user, version()`).
		Scan(&meta.DatabaseName, &meta.CurrentUser, &meta.DatabaseVersion)

	_ = a.db.QueryRow(ctx,
		`SELECT rolsuper FROM pg_roles WHERE rolname = current_user`).
		Scan(&meta.IsSuperuser)
}
