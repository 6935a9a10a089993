package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFiles renders the report into dir as REPORT.md, runs.csv and
// forecast.csv, creating the directory if needed.
func WriteFiles(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	files := map[string]string{
		"REPORT.md":    RenderMarkdown(r),
		"runs.csv":     RenderRunsCSV(r.Runs),
		"forecast.csv": RenderForecastCSV(r.Forecast),
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	return nil
}
