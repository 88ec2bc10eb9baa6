package model

import "time"

// PageFile describes one output page written to disk
type PageFile struct {
	Format      Format    `json:"format"`
	Page        int       `json:"page"`
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	SizeBytes   int64     `json:"size_bytes"`
	WrittenAt   time.Time `json:"written_at"`
}

// ArchiveEntry is one file listed in a zip archive
type ArchiveEntry struct {
	Name           string    `json:"name"`
	Modified       time.Time `json:"modified"`
	Size           uint64    `json:"size"`
	CompressedSize uint64    `json:"compressed_size"`
	CRC32          uint32    `json:"crc32"`
	Method         uint16    `json:"method"`
}

// Manifest is the content listing of an archive, read back after writing
type Manifest struct {
	Format  Format         `json:"format"`
	Path    string         `json:"path"`
	Entries []ArchiveEntry `json:"entries"`
}

// Names returns the entry names in archive order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		names = append(names, e.Name)
	}
	return names
}

// RunSummary is what a finished run reports
type RunSummary struct {
	RunID          string        `json:"run_id"`
	Pages          int           `json:"pages"`
	RecordsFetched int           `json:"records_fetched"`
	Files          []PageFile    `json:"files"`
	Manifests      []Manifest    `json:"manifests"`
	Duration       time.Duration `json:"duration"`
}
