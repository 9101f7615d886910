// Package report renders one merged analysis into two artifacts beneath a
// timestamped directory: analysis.json, the lossless machine-readable form,
// and report.md, a narrative document ending in a prioritized action list.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/logger"
)

const (
	jsonName     = "analysis.json"
	markdownName = "report.md"
)

// Renderer writes report artifacts under a base directory.
type Renderer struct {
	baseDir string
	log     *logger.Logger
}

// New builds a Renderer rooted at baseDir.
func New(baseDir string, log *logger.Logger) *Renderer {
	return &Renderer{baseDir: baseDir, log: log}
}

// Render writes both artifacts and returns the run's directory.
func (r *Renderer) Render(report *model.Report) (string, error) {
	dir := filepath.Join(r.baseDir, report.Metadata.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, jsonName), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", jsonName, err)
	}

	narrative := renderMarkdown(report)
	if err := os.WriteFile(filepath.Join(dir, markdownName), []byte(narrative), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", markdownName, err)
	}

	r.log.With().Str("dir", dir).Logger().Debug("report artifacts written")
	return dir, nil
}
