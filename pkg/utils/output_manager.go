package utils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"betterlife-pipeline/internal/model"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	JSONDir     string // "" disables JSON output
	CSVDir      string // "" disables CSV output
	WorkDir     string
	FilePrefix  string
	ArchiveName string
}

// CleanReport counts the files removed by Clean
type CleanReport struct {
	JSONFiles int
	CSVFiles  int
	Archives  int
}

// NewOutputManager creates a new output manager
func NewOutputManager(jsonDir, csvDir, workDir, prefix, archiveName string) *OutputManager {
	return &OutputManager{
		JSONDir:     jsonDir,
		CSVDir:      csvDir,
		WorkDir:     workDir,
		FilePrefix:  prefix,
		ArchiveName: archiveName,
	}
}

// Dir returns the output directory of a format, "" when it is disabled.
func (om *OutputManager) Dir(format model.Format) string {
	switch format {
	case model.FormatJSON:
		return om.JSONDir
	case model.FormatCSV:
		return om.CSVDir
	default:
		return ""
	}
}

// Enabled reports whether a format has an output directory.
func (om *OutputManager) Enabled(format model.Format) bool {
	return om.Dir(format) != ""
}

// PageFileName builds <prefix>_<page:03d>.<ext>
func (om *OutputManager) PageFileName(format model.Format, page int) string {
	return fmt.Sprintf("%s_%03d%s", om.FilePrefix, page, format.Ext())
}

// PagePath is PageFileName joined with the format's directory
func (om *OutputManager) PagePath(format model.Format, page int) string {
	return filepath.Join(om.Dir(format), om.PageFileName(format, page))
}

// ArchivePath returns <workdir>/<name>_<format>.zip
func (om *OutputManager) ArchivePath(format model.Format) string {
	return filepath.Join(om.WorkDir, fmt.Sprintf("%s_%s.zip", om.ArchiveName, format))
}

// EnsureDir creates the format's directory if it doesn't exist
func (om *OutputManager) EnsureDir(format model.Format) error {
	dir := om.Dir(format)
	if dir == "" {
		return fmt.Errorf("no output directory configured for %s", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s output directory: %w", format, err)
	}
	return nil
}

// ListPageFiles returns every file of the format's extension in its
// directory, sorted lexicographically. Zero padding makes that page order.
func (om *OutputManager) ListPageFiles(format model.Format) ([]string, error) {
	dir := om.Dir(format)
	if dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*"+format.Ext()))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}

func removeAll(paths []string) (int, error) {
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", p, err)
		}
		removed++
	}
	return removed, nil
}

// Clean removes page files and archives left by a previous run so page
// numbering restarts from a clean slate. Missing directories are fine.
func (om *OutputManager) Clean() (CleanReport, error) {
	var report CleanReport

	jsonFiles, err := om.ListPageFiles(model.FormatJSON)
	if err != nil {
		return report, err
	}
	if report.JSONFiles, err = removeAll(jsonFiles); err != nil {
		return report, err
	}

	csvFiles, err := om.ListPageFiles(model.FormatCSV)
	if err != nil {
		return report, err
	}
	if report.CSVFiles, err = removeAll(csvFiles); err != nil {
		return report, err
	}

	var archives []string
	for _, format := range model.Formats {
		archives = append(archives, om.ArchivePath(format))
	}
	if report.Archives, err = removeAll(archives); err != nil {
		return report, err
	}

	slog.Info("cleaned previous outputs",
		"json_files", report.JSONFiles,
		"csv_files", report.CSVFiles,
		"archives", report.Archives,
	)
	return report, nil
}
