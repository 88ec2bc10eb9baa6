package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"betterlife-pipeline/internal/config"
	"betterlife-pipeline/internal/model"
	"betterlife-pipeline/pkg/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/klauspost/compress/flate"
)

// Compression decides how archive entries are stored
type Compression struct {
	Method     uint16
	compressor zip.Compressor
}

// Name is the human-readable method name
func (c Compression) Name() string {
	if c.Method == zip.Deflate {
		return "deflate"
	}
	return "store"
}

func (c Compression) register(zw *zip.Writer) {
	if c.compressor != nil {
		zw.RegisterCompressor(c.Method, c.compressor)
	}
}

// deflateCompressor is nil when no deflate codec can be built
func deflateCompressor() zip.Compressor {
	if _, err := flate.NewWriter(io.Discard, flate.BestCompression); err != nil {
		return nil
	}
	return func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	}
}

// SelectCompression picks the archive codec once, at startup. "auto"
// deflates when a codec is available and stores otherwise.
func SelectCompression(mode string) Compression {
	if mode == config.CompressionStore {
		return Compression{Method: zip.Store}
	}
	if c := deflateCompressor(); c != nil {
		return Compression{Method: zip.Deflate, compressor: c}
	}
	return Compression{Method: zip.Store}
}

// archiveModTime is stamped on every entry so rebuilding identical page
// files yields an identical archive.
var archiveModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Archiver bundles the page files of each format into one zip
type Archiver struct {
	Output      *utils.OutputManager
	Compression Compression
	Out         io.Writer // manifest listing, os.Stdout when nil
}

// NewArchiver creates an archiver printing manifests to stdout
func NewArchiver(output *utils.OutputManager, compression Compression) *Archiver {
	return &Archiver{Output: output, Compression: compression, Out: os.Stdout}
}

// ArchiveAll builds an archive for every enabled format, JSON first
func (a *Archiver) ArchiveAll() ([]model.Manifest, error) {
	var manifests []model.Manifest
	for _, format := range model.Formats {
		if !a.Output.Enabled(format) {
			continue
		}
		manifest, err := a.Archive(format)
		if err != nil {
			return manifests, err
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

// Archive rebuilds the format's zip from scratch out of every page file
// in its directory, then reads it back and prints the manifest.
func (a *Archiver) Archive(format model.Format) (model.Manifest, error) {
	files, err := a.Output.ListPageFiles(format)
	if err != nil {
		return model.Manifest{}, err
	}

	path := a.Output.ArchivePath(format)
	if err := a.write(path, files); err != nil {
		return model.Manifest{}, err
	}

	manifest, err := ReadManifest(path)
	if err != nil {
		return model.Manifest{}, err
	}
	manifest.Format = format

	a.printManifest(manifest)
	return manifest, nil
}

func (a *Archiver) write(path string, files []string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	a.Compression.register(zw)

	for _, file := range files {
		if err := a.addFile(zw, file); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive %s: %w", path, err)
	}
	return out.Close()
}

func (a *Archiver) addFile(zw *zip.Writer, file string) error {
	src, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", file, err)
	}
	header.Name = filepath.Base(file)
	header.Method = a.Compression.Method
	header.Modified = archiveModTime

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", file, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", file, err)
	}
	return nil
}

// ReadManifest opens an archive and lists its entries in order
func ReadManifest(path string) (model.Manifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return model.Manifest{}, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	manifest := model.Manifest{Path: path, Entries: make([]model.ArchiveEntry, 0, len(zr.File))}
	for _, f := range zr.File {
		manifest.Entries = append(manifest.Entries, model.ArchiveEntry{
			Name:           f.Name,
			Modified:       f.Modified,
			Size:           f.UncompressedSize64,
			CompressedSize: f.CompressedSize64,
			CRC32:          f.CRC32,
			Method:         f.Method,
		})
	}
	return manifest, nil
}

func (a *Archiver) printManifest(m model.Manifest) {
	out := a.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintf(out, "📦 %s (%s, %d files)\n", m.Path, a.Compression.Name(), len(m.Entries))
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"File Name", "Modified", "Size"})
	for _, e := range m.Entries {
		t.AppendRow(table.Row{e.Name, e.Modified.Format("2006-01-02 15:04:05"), e.Size})
	}
	t.Render()
}
