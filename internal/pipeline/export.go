package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"betterlife-pipeline/internal/model"
	"betterlife-pipeline/pkg/utils"
)

// Exporter writes flushed batches to page files
type Exporter struct {
	Output *utils.OutputManager
	Out    io.Writer // progress lines, os.Stdout when nil
}

// NewExporter creates an exporter printing progress to stdout
func NewExporter(output *utils.OutputManager) *Exporter {
	return &Exporter{Output: output, Out: os.Stdout}
}

func (e *Exporter) progress(format string, args ...interface{}) {
	out := e.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

// Write dispatches a flush to the writer of its format
func (e *Exporter) Write(f Flush) (model.PageFile, error) {
	switch f.Format {
	case model.FormatJSON:
		return e.WriteJSON(f.Page, f.Records)
	case model.FormatCSV:
		return e.WriteCSV(f.Page, f.Records)
	default:
		return model.PageFile{}, fmt.Errorf("unknown output format: %s", f.Format)
	}
}

// WriteJSON writes records as one JSON array, replacing any existing file
func (e *Exporter) WriteJSON(page int, records []GenericRecord) (model.PageFile, error) {
	if err := e.Output.EnsureDir(model.FormatJSON); err != nil {
		return model.PageFile{}, err
	}
	path := e.Output.PagePath(model.FormatJSON, page)

	file, err := os.Create(path)
	if err != nil {
		return model.PageFile{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if records == nil {
		records = []GenericRecord{}
	}
	encoder := json.NewEncoder(file)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(records); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := file.Sync(); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to sync %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to close %s: %w", path, err)
	}

	e.progress("💾 Dumping %d records to %s\n", len(records), path)
	return e.pageFile(model.FormatJSON, page, path, len(records))
}

// WriteCSV writes records under the fixed header. Cells for missing or
// null fields are empty; fields outside the header are left out.
func (e *Exporter) WriteCSV(page int, records []GenericRecord) (model.PageFile, error) {
	if err := e.Output.EnsureDir(model.FormatCSV); err != nil {
		return model.PageFile{}, err
	}
	path := e.Output.PagePath(model.FormatCSV, page)

	file, err := os.Create(path)
	if err != nil {
		return model.PageFile{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := model.CSVColumns()
	if err := writer.Write(header); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(header))
	for _, record := range records {
		for i, key := range header {
			row[i] = utils.FormatCell(record[key])
		}
		if err := writer.Write(row); err != nil {
			return model.PageFile{}, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := file.Sync(); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to sync %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		return model.PageFile{}, fmt.Errorf("failed to close %s: %w", path, err)
	}

	e.progress("💾 Dumping %d records to %s\n", len(records), path)
	return e.pageFile(model.FormatCSV, page, path, len(records))
}

func (e *Exporter) pageFile(format model.Format, page int, path string, records int) (model.PageFile, error) {
	size, err := e.Output.GetFileSize(path)
	if err != nil {
		return model.PageFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return model.PageFile{
		Format:      format,
		Page:        page,
		Path:        path,
		RecordCount: records,
		SizeBytes:   size,
		WrittenAt:   time.Now().UTC(),
	}, nil
}
