package edgefn

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func writeFunction(t *testing.T, root, name, entry, source string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, entry), []byte(source), 0o644))
}

const sendEmailSource = `// Sends transactional email through the provider API.
import { serve } from "https://deno.land/std/http/server.ts";
import { corsHeaders } from "../_shared/cors.ts";

const key = Deno.env.get("EMAIL_API_KEY");

serve(async (req) => {
  return new Response("ok", { headers: corsHeaders });
});
`

const cronSource = `import { serve } from "https://deno.land/std/http/server.ts";

serve(async () => {
  const token = Deno.env.get("CRON_SECRET");
  return new Response("done");
});
`

func TestInspect_ScansLocalFunctions(t *testing.T) {
	root := t.TempDir()
	writeFunction(t, root, "send-email", "index.ts", sendEmailSource)
	writeFunction(t, root, "nightly-cron", "index.ts", cronSource)
	// A directory without an entry file is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_shared"), 0o755))

	report, warns := New(root, nil, testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)
	require.Len(t, report.Functions, 2)

	byName := make(map[string]model.EdgeFunction)
	for _, fn := range report.Functions {
		byName[fn.Name] = fn
	}

	email := byName["send-email"]
	assert.Equal(t, "Sends transactional email through the provider API.", email.Description)
	assert.True(t, email.HasCORS)
	assert.Contains(t, email.Imports, "https://deno.land/std/http/server.ts")
	assert.Contains(t, email.Imports, "../_shared/cors.ts")
	assert.Positive(t, email.Size.Bytes)

	cron := byName["nightly-cron"]
	assert.Empty(t, cron.Description)
	assert.False(t, cron.HasCORS)

	assert.Equal(t, []string{"CRON_SECRET", "EMAIL_API_KEY"}, report.Secrets)
	assert.Equal(t, 2, report.Statistics.Total)
	assert.Equal(t, 1, report.Statistics.WithCORS)
	assert.Zero(t, report.Statistics.Deployed)
}

func TestInspect_IssuesWithoutManagementAPI(t *testing.T) {
	root := t.TempDir()
	writeFunction(t, root, "nightly-cron", "index.ts", cronSource)

	report, _ := New(root, nil, testLogger()).Inspect(context.Background())

	kinds := make(map[string]model.Severity)
	for _, issue := range report.Issues {
		kinds[issue.Kind] = issue.Severity
	}
	assert.Equal(t, model.SeverityLow, kinds["not_deployed"])
	assert.Equal(t, model.SeverityLow, kinds["missing_description"])
	assert.Equal(t, model.SeverityLow, kinds["missing_cors"])
	assert.NotContains(t, kinds, "high_error_rate", "no deployment data, no error-rate verdict")
}

func TestInspect_LargeFunctionFlagged(t *testing.T) {
	root := t.TempDir()
	writeFunction(t, root, "kitchen-sink", "index.ts", "// Everything at once.\n"+strings.Repeat("x", 2<<20))

	report, _ := New(root, nil, testLogger()).Inspect(context.Background())

	var found bool
	for _, issue := range report.Issues {
		if issue.Kind == "large_function" {
			found = true
			assert.Equal(t, model.SeverityMedium, issue.Severity)
			assert.Equal(t, "kitchen-sink", issue.Subject)
		}
	}
	assert.True(t, found)
}

func TestInspect_MergesDeployments(t *testing.T) {
	root := t.TempDir()
	writeFunction(t, root, "send-email", "index.ts", sendEmailSource)
	writeFunction(t, root, "nightly-cron", "index.ts", cronSource)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/functions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"name":"send-email","invocations":1200,"error_rate":7.5}]`)
	}))
	defer srv.Close()

	mgmt := NewHTTPManagementClient(srv.URL, "test-key")
	report, warns := New(root, mgmt, testLogger()).Inspect(context.Background())

	assert.Empty(t, warns)

	byName := make(map[string]model.EdgeFunction)
	for _, fn := range report.Functions {
		byName[fn.Name] = fn
	}
	assert.True(t, byName["send-email"].Deployed)
	assert.Equal(t, int64(1200), byName["send-email"].Invocations)
	assert.False(t, byName["nightly-cron"].Deployed)
	assert.Equal(t, 1, report.Statistics.Deployed)

	kinds := make(map[string]string)
	for _, issue := range report.Issues {
		kinds[issue.Kind] = issue.Subject
	}
	assert.Equal(t, "send-email", kinds["high_error_rate"], "7.5%% error rate exceeds the threshold")
	assert.Equal(t, "nightly-cron", kinds["not_deployed"])
}

func TestInspect_ManagementAPIFailureDegrades(t *testing.T) {
	root := t.TempDir()
	writeFunction(t, root, "send-email", "index.ts", sendEmailSource)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	mgmt := NewHTTPManagementClient(srv.URL, "bad-key")
	report, warns := New(root, mgmt, testLogger()).Inspect(context.Background())

	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "deployment cross-reference")
	require.Len(t, report.Functions, 1)
	assert.False(t, report.Functions[0].Deployed)
}

func TestInspect_UnconfiguredDirectory(t *testing.T) {
	report, warns := New("", nil, testLogger()).Inspect(context.Background())

	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "not configured")
	assert.Empty(t, report.Functions)
}

func TestListDeployments_PermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPManagementClient(srv.URL, "nope").ListDeployments(context.Background())
	assert.True(t, errs.IsPermissionDenied(err))
}

func TestLeadingComment(t *testing.T) {
	cases := map[string]string{
		"// One line.\ncode":                   "One line.",
		"// Two\n// lines.\ncode":              "Two lines.",
		"/* Block comment. */\ncode":           "Block comment.",
		"/*\n * Starred\n * block.\n */\ncode": "Starred block.",
		"code first":                           "",
	}
	for source, want := range cases {
		assert.Equal(t, want, leadingComment(source), source)
	}
}
