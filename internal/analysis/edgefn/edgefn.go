// Package edgefn analyzes locally checked-out edge functions: one
// subdirectory per function with an entry-point source file. It optionally
// cross-references a deployment management API to mark functions deployed
// and merge invocation counters; without that API every function is reported
// as local-only.
package edgefn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/logger"
)

// entryFiles are the recognised entry-point names, checked in order.
var entryFiles = []string{"index.ts", "index.js", "main.ts", "main.js"}

const (
	// largeFunctionBytes flags oversized function bundles.
	largeFunctionBytes = 1 << 20
	// errorRateThreshold in percent, applied when deployment data exists.
	errorRateThreshold = 5.0
)

var (
	importRe = regexp.MustCompile(`(?m)^\s*import\s+(?:[^'"]*?\bfrom\s+)?['"]([^'"]+)['"]`)
	secretRe = regexp.MustCompile(`(?:Deno\.env\.get\(\s*['"]([A-Z0-9_]+)['"]\s*\)|process\.env\.([A-Z0-9_]+))`)
)

// Inspector scans the function directory and merges deployment data.
type Inspector struct {
	dir  string
	mgmt ManagementClient // nil when the management API is not configured
	log  *logger.Logger
}

// New builds an edge-function Inspector. mgmt may be nil.
func New(dir string, mgmt ManagementClient, log *logger.Logger) *Inspector {
	return &Inspector{dir: dir, mgmt: mgmt, log: log}
}

// Inspect scans every function subdirectory, cross-references deployments,
// and derives issues. A missing or unreadable directory degrades to an
// empty report plus a warning.
func (i *Inspector) Inspect(ctx context.Context) (model.EdgeFunctionsReport, []string) {
	var report model.EdgeFunctionsReport
	var warns []string

	if i.dir == "" {
		warns = append(warns, "edge functions: source directory not configured, skipping")
		return report, warns
	}

	fns, secrets, err := i.scan()
	if err != nil {
		warns = append(warns, fmt.Sprintf("edge functions: scan failed: %v", err))
		return report, warns
	}
	report.Functions = fns
	report.Secrets = secrets

	if i.mgmt != nil {
		if err := i.mergeDeployments(ctx, report.Functions); err != nil {
			warns = append(warns, fmt.Sprintf("edge functions: deployment cross-reference unavailable: %v", err))
		}
	}

	report.Issues = deriveIssues(report.Functions, i.mgmt != nil)
	model.SortIssues(report.Issues)
	report.Statistics = summarize(report.Functions)

	i.log.Debugf("edge function inspection: %d functions, %d secrets, %d issues",
		len(report.Functions), len(report.Secrets), len(report.Issues))

	return report, warns
}

func (i *Inspector) scan() ([]model.EdgeFunction, []string, error) {
	dirents, err := os.ReadDir(i.dir)
	if err != nil {
		return nil, nil, err
	}

	secretSet := make(map[string]struct{})
	var fns []model.EdgeFunction

	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		fn, ok, err := i.scanFunction(filepath.Join(i.dir, d.Name()), d.Name(), secretSet)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			fns = append(fns, fn)
		}
	}

	secrets := make([]string, 0, len(secretSet))
	for s := range secretSet {
		secrets = append(secrets, s)
	}
	sort.Strings(secrets)

	return fns, secrets, nil
}

// scanFunction builds the profile of one function directory. Directories
// without a recognised entry file are skipped.
func (i *Inspector) scanFunction(dir, name string, secretSet map[string]struct{}) (model.EdgeFunction, bool, error) {
	var entry string
	for _, candidate := range entryFiles {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
			entry = candidate
			break
		}
	}
	if entry == "" {
		return model.EdgeFunction{}, false, nil
	}

	source, err := os.ReadFile(filepath.Join(dir, entry))
	if err != nil {
		return model.EdgeFunction{}, false, err
	}
	text := string(source)

	fn := model.EdgeFunction{
		Name:        name,
		Path:        filepath.Join(dir, entry),
		Imports:     extractImports(text),
		HasCORS:     detectCORS(text),
		Description: leadingComment(text),
	}

	size, err := dirSize(dir)
	if err != nil {
		return model.EdgeFunction{}, false, err
	}
	fn.Size = model.NewSize(size)

	for _, match := range secretRe.FindAllStringSubmatch(text, -1) {
		for _, group := range match[1:] {
			if group != "" {
				secretSet[group] = struct{}{}
			}
		}
	}

	return fn, true, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func extractImports(source string) []string {
	var imports []string
	seen := make(map[string]struct{})
	for _, match := range importRe.FindAllStringSubmatch(source, -1) {
		if _, dup := seen[match[1]]; dup {
			continue
		}
		seen[match[1]] = struct{}{}
		imports = append(imports, match[1])
	}
	return imports
}

func detectCORS(source string) bool {
	lowered := strings.ToLower(source)
	return strings.Contains(lowered, "access-control-allow-origin") ||
		strings.Contains(lowered, "corsheaders")
}

// leadingComment returns the text of a comment block at the very top of the
// file, as a best-effort description.
func leadingComment(source string) string {
	var lines []string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "//"):
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(trimmed, "//")))
		case strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*"):
			t := strings.TrimPrefix(trimmed, "/*")
			t = strings.TrimSuffix(t, "*/")
			t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "*"))
			if t != "" {
				lines = append(lines, t)
			}
			if strings.HasSuffix(trimmed, "*/") {
				return strings.Join(lines, " ")
			}
		case trimmed == "":
			if len(lines) > 0 {
				return strings.Join(lines, " ")
			}
		default:
			return strings.Join(lines, " ")
		}
	}
	return strings.Join(lines, " ")
}

func (i *Inspector) mergeDeployments(ctx context.Context, fns []model.EdgeFunction) error {
	deployments, err := i.mgmt.ListDeployments(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]Deployment, len(deployments))
	for _, d := range deployments {
		byName[d.Name] = d
	}
	for idx := range fns {
		if d, ok := byName[fns[idx].Name]; ok {
			fns[idx].Deployed = true
			fns[idx].Invocations = d.Invocations
			fns[idx].ErrorRate = d.ErrorRate
		}
	}
	return nil
}

// deriveIssues flags oversized bundles, missing descriptions, missing CORS
// configuration, undeployed functions, and high error rates.
func deriveIssues(fns []model.EdgeFunction, haveDeployments bool) []model.Issue {
	var issues []model.Issue
	for _, fn := range fns {
		if fn.Size.Bytes > largeFunctionBytes {
			issues = append(issues, model.Issue{
				Kind:        "large_function",
				Severity:    model.SeverityMedium,
				Subject:     fn.Name,
				Description: fmt.Sprintf("function %q bundles %s of source", fn.Name, fn.Size.Human),
				Remediation: "split the function or move shared code into an import",
			})
		}
		if fn.Description == "" {
			issues = append(issues, model.Issue{
				Kind:        "missing_description",
				Severity:    model.SeverityLow,
				Subject:     fn.Name,
				Description: fmt.Sprintf("function %q has no leading comment describing it", fn.Name),
				Remediation: "add a short comment at the top of the entry file",
			})
		}
		if !fn.HasCORS {
			issues = append(issues, model.Issue{
				Kind:        "missing_cors",
				Severity:    model.SeverityLow,
				Subject:     fn.Name,
				Description: fmt.Sprintf("function %q sets no cross-origin headers", fn.Name),
				Remediation: "add explicit CORS handling if the function is browser-facing",
			})
		}
		if !fn.Deployed {
			issues = append(issues, model.Issue{
				Kind:        "not_deployed",
				Severity:    model.SeverityLow,
				Subject:     fn.Name,
				Description: fmt.Sprintf("function %q exists locally but is not deployed", fn.Name),
				Remediation: "deploy the function or remove the local source",
			})
		}
		if haveDeployments && fn.Deployed && fn.ErrorRate > errorRateThreshold {
			issues = append(issues, model.Issue{
				Kind:        "high_error_rate",
				Severity:    model.SeverityMedium,
				Subject:     fn.Name,
				Description: fmt.Sprintf("function %q fails %.1f%% of invocations", fn.Name, fn.ErrorRate),
				Remediation: "inspect the function logs for the dominant failure",
			})
		}
	}
	return issues
}

func summarize(fns []model.EdgeFunction) model.EdgeFunctionStatistics {
	stats := model.EdgeFunctionStatistics{Total: len(fns)}
	var totalBytes int64
	for _, fn := range fns {
		if fn.Deployed {
			stats.Deployed++
		}
		if fn.HasCORS {
			stats.WithCORS++
		}
		totalBytes += fn.Size.Bytes
	}
	stats.TotalSize = model.NewSize(totalBytes)
	return stats
}
