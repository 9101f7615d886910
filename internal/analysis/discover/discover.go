// Package discover enumerates the tables of a database pgscope has no
// prior knowledge of.
//
// Three methods are tried in order, stopping at the first that yields at
// least one table:
//
//  1. catalog — a metadata query against information_schema (needs a
//     credential that can read it).
//  2. openapi — the hosted data API's auto-generated schema document,
//     which describes every exposed table-as-endpoint.
//  3. probe — cheap existence checks against an injectable list of
//     plausible table names. Inherently incomplete; results are labeled
//     ProvenanceInferred.
//
// Discovery never aborts the run by itself: the orchestrator decides what
// an empty result means.
package discover

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/logger"
)

// SchemaDocument fetches the hosted API's schema description and returns
// the exposed table names. Implemented by rest.Client; nil when the data
// API is not configured.
type SchemaDocument interface {
	TableNames(ctx context.Context) ([]string, error)
}

// Discoverer runs the layered fallback.
type Discoverer struct {
	db         database.DB
	schema     string
	doc        SchemaDocument  // optional
	candidates CandidateSource // optional; DefaultCandidates when nil
	workers    int
	log        *logger.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithSchemaDocument enables the OpenAPI fallback.
func WithSchemaDocument(doc SchemaDocument) Option {
	return func(d *Discoverer) { d.doc = doc }
}

// WithCandidates replaces the built-in probe list.
func WithCandidates(src CandidateSource) Option {
	return func(d *Discoverer) { d.candidates = src }
}

// WithProbeWorkers bounds probe concurrency. Values below 1 fall back to 8.
func WithProbeWorkers(n int) Option {
	return func(d *Discoverer) {
		if n >= 1 {
			d.workers = n
		}
	}
}

// New builds a Discoverer for the given connection and schema.
func New(db database.DB, schema string, log *logger.Logger, opts ...Option) *Discoverer {
	d := &Discoverer{
		db:         db,
		schema:     schema,
		candidates: DefaultCandidates(),
		workers:    8,
		log:        log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover runs the fallback chain and returns whatever table set the
// first successful method produced. An empty table list with a nil error
// means every method came up empty.
func (d *Discoverer) Discover(ctx context.Context) (model.DiscoveryResult, error) {
	if tables, err := d.fromCatalog(ctx); err == nil && len(tables) > 0 {
		d.log.With().Str("method", "catalog").Int("tables", len(tables)).Logger().
			Info("schema discovery complete")
		return model.DiscoveryResult{
			Tables:     tables,
			Method:     model.DiscoveryCatalog,
			Confidence: model.ProvenanceCatalog,
		}, nil
	} else if err != nil {
		d.log.With().Str("method", "catalog").Err(err).Logger().
			Warn("catalog discovery unavailable, trying schema document")
	}

	if d.doc != nil {
		if tables, err := d.fromSchemaDocument(ctx); err == nil && len(tables) > 0 {
			d.log.With().Str("method", "openapi").Int("tables", len(tables)).Logger().
				Info("schema discovery complete")
			return model.DiscoveryResult{
				Tables:     tables,
				Method:     model.DiscoveryOpenAPI,
				Confidence: model.ProvenanceCatalog,
			}, nil
		} else if err != nil {
			d.log.With().Str("method", "openapi").Err(err).Logger().
				Warn("schema document unavailable, falling back to probing")
		}
	}

	tables, err := d.fromProbes(ctx)
	if err != nil {
		return model.DiscoveryResult{}, err
	}
	d.log.With().Str("method", "probe").Int("tables", len(tables)).Logger().
		Info("schema discovery complete (probe results are lower confidence)")
	return model.DiscoveryResult{
		Tables:     tables,
		Method:     model.DiscoveryProbe,
		Confidence: model.ProvenanceInferred,
	}, nil
}

// fromCatalog lists base tables via information_schema.
func (d *Discoverer) fromCatalog(ctx context.Context) ([]model.TableRef, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := d.db.Query(ctx, q, d.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []model.TableRef
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, model.TableRef{Schema: d.schema, Name: name})
	}
	return tables, rows.Err()
}

// fromSchemaDocument extracts table names from the data API's schema doc.
func (d *Discoverer) fromSchemaDocument(ctx context.Context) ([]model.TableRef, error) {
	names, err := d.doc.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]model.TableRef, 0, len(names))
	for _, name := range names {
		tables = append(tables, model.TableRef{Schema: d.schema, Name: name})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// fromProbes issues a zero-row existence check for every candidate name
// with bounded concurrency. Probing is the dominant latency cost of the
// no-catalog path; correctness does not depend on the batching factor.
func (d *Discoverer) fromProbes(ctx context.Context) ([]model.TableRef, error) {
	candidates := d.candidates.Candidates()

	var (
		mu    sync.Mutex
		found []model.TableRef
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, name := range candidates {
		g.Go(func() error {
			if !d.probe(ctx, name) {
				return nil
			}
			mu.Lock()
			found = append(found, model.TableRef{Schema: d.schema, Name: name})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// probe reports whether a candidate table exists, using a zero-row select
// so no data is transferred.
func (d *Discoverer) probe(ctx context.Context, name string) bool {
	q := fmt.Sprintf(`SELECT 1 FROM %s LIMIT 0`, quoteIdent(d.schema, name))
	rows, err := d.db.Query(ctx, q)
	if err != nil {
		return false
	}
	rows.Close()
	return true
}

// quoteIdent quotes a schema-qualified identifier. Table names come from
// the candidate list or the catalog, never from user input, but quoting
// keeps names with unusual characters working.
func quoteIdent(schema, name string) string {
	return fmt.Sprintf("%q.%q", schema, name)
}
