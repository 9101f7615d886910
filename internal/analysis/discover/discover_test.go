package discover

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
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

func TestDiscover_CatalogFirst(t *testing.T) {
	db := databasetest.New()
	db.Register("information_schema.tables", []string{"table_name"}, [][]any{
		{"customers"}, {"orders"},
	})

	d := New(db, "public", testLogger())
	result, err := d.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.DiscoveryCatalog, result.Method)
	assert.Equal(t, model.ProvenanceCatalog, result.Confidence)
	require.Len(t, result.Tables, 2)
	assert.Equal(t, "customers", result.Tables[0].Name)
}

func TestDiscover_FallsBackToSchemaDocument(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("information_schema.tables", errs.New(errs.ErrKindPermissionDenied, "denied"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		w.Header().Set("Content-Type", "application/openapi+json")
		_, _ = w.Write([]byte(`{
			"definitions": {"orders": {}, "customers": {}},
			"paths": {"/": {}, "/orders": {}, "/rpc/do_thing": {}}
		}`))
	}))
	defer srv.Close()

	d := New(db, "public", testLogger(),
		WithSchemaDocument(NewRestClient(srv.URL, "anon-key")))

	result, err := d.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.DiscoveryOpenAPI, result.Method)
	require.Len(t, result.Tables, 2)
	assert.Equal(t, "customers", result.Tables[0].Name)
	assert.Equal(t, "orders", result.Tables[1].Name)
}

func TestDiscover_ProbeLastResort(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("information_schema.tables", errs.New(errs.ErrKindPermissionDenied, "denied"))
	// Only two of the candidate names exist.
	db.Register(`"public"."orders"`, nil, nil)
	db.Register(`"public"."customers"`, nil, nil)

	d := New(db, "public", testLogger(),
		WithCandidates(StaticCandidates{"orders", "customers", "widgets", "gadgets"}),
		WithProbeWorkers(2))

	result, err := d.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.DiscoveryProbe, result.Method)
	assert.Equal(t, model.ProvenanceInferred, result.Confidence, "probe results must be labeled lower confidence")
	require.Len(t, result.Tables, 2)
	assert.Equal(t, "customers", result.Tables[0].Name)
	assert.Equal(t, "orders", result.Tables[1].Name)
}

func TestDiscover_EmptyEverywhere(t *testing.T) {
	db := databasetest.New()
	db.Register("information_schema.tables", []string{"table_name"}, nil)

	d := New(db, "public", testLogger(), WithCandidates(StaticCandidates{"nope"}))
	result, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Tables)
}

func TestCandidatesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.txt")
	require.NoError(t, os.WriteFile(path, []byte("# field service\njobs\ncrews\n\nwork_orders\n"), 0o644))

	src, err := CandidatesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs", "crews", "work_orders"}, src.Candidates())
}

func TestDefaultCandidates_NoDuplicates(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range DefaultCandidates() {
		assert.False(t, seen[name], "duplicate candidate %q", name)
		seen[name] = true
	}
	assert.Greater(t, len(seen), 100)
}
