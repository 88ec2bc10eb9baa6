package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// DefaultEndpoint is the OECD Better Life Index responses resource.
const DefaultEndpoint = "http://www.oecdbetterlifeindex.org/bli/rest/indexes/responses;offset={offset};limit={limit}"

// Compression modes for archives
const (
	CompressionAuto    = "auto"
	CompressionDeflate = "deflate"
	CompressionStore   = "store"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// CacheConfig controls the optional HTTP response cache.
type CacheConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	TTL     string `json:"ttl,omitempty"` // e.g. "1h"
	Size    int    `json:"size,omitempty"`
}

// Config holds every setting of a pipeline run.
type Config struct {
	Endpoint       string      `json:"endpoint,omitempty"`
	FetchPageSize  int         `json:"fetch_page_size,omitempty"` // records per HTTP request
	JSONPageLimit  int         `json:"json_page_limit,omitempty"` // fetch chunks per JSON file
	CSVPageLimit   int         `json:"csv_page_limit,omitempty"`  // fetch chunks per CSV file
	FilePrefix     string      `json:"file_prefix,omitempty"`
	JSONDir        string      `json:"json_dir,omitempty"`
	CSVDir         string      `json:"csv_dir,omitempty"`
	DisableJSON    bool        `json:"disable_json,omitempty"`
	DisableCSV     bool        `json:"disable_csv,omitempty"`
	WorkDir        string      `json:"work_dir,omitempty"`
	ArchiveName    string      `json:"archive_name,omitempty"`
	Clean          *bool       `json:"clean,omitempty"`
	Compression    string      `json:"compression,omitempty"`
	RequestTimeout string      `json:"request_timeout,omitempty"`
	Cache          CacheConfig `json:"cache"`
	LedgerPath     string      `json:"ledger_path,omitempty"`
	LogLevel       string      `json:"log_level,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Default returns the settings of the stock BLI export.
func Default() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		FetchPageSize:  1000,
		JSONPageLimit:  10,
		CSVPageLimit:   10,
		FilePrefix:     "data_page",
		JSONDir:        "json",
		CSVDir:         "csv",
		WorkDir:        ".",
		ArchiveName:    "data",
		Clean:          boolPtr(true),
		Compression:    CompressionAuto,
		RequestTimeout: "60s",
		Cache: CacheConfig{
			Enabled: boolPtr(true),
			TTL:     "1h",
			Size:    256,
		},
		LedgerPath: "pipeline.db",
		LogLevel:   "info",
	}
}

// CleanEnabled reports whether stale outputs are removed before a run.
func (c Config) CleanEnabled() bool {
	return c.Clean != nil && *c.Clean
}

// CacheEnabled reports whether HTTP responses are cached.
func (c Config) CacheEnabled() bool {
	return c.Cache.Enabled != nil && *c.Cache.Enabled
}

// ResolvedJSONDir returns the JSON output directory, or "" when JSON output is off.
// Relative paths are taken from WorkDir.
func (c Config) ResolvedJSONDir() string {
	if c.DisableJSON {
		return ""
	}
	return c.resolve(c.JSONDir)
}

// ResolvedCSVDir is ResolvedJSONDir for CSV.
func (c Config) ResolvedCSVDir() string {
	if c.DisableCSV {
		return ""
	}
	return c.resolve(c.CSVDir)
}

// ResolvedLedgerPath returns "" when the ledger is off.
func (c Config) ResolvedLedgerPath() string {
	if c.LedgerPath == "" {
		return ""
	}
	return c.resolve(c.LedgerPath)
}

func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the settings a run depends on.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if c.FetchPageSize <= 0 {
		return fmt.Errorf("%w: fetch_page_size must be positive", ErrInvalidConfig)
	}
	if c.JSONPageLimit <= 0 || c.CSVPageLimit <= 0 {
		return fmt.Errorf("%w: page limits must be positive", ErrInvalidConfig)
	}
	if c.DisableJSON && c.DisableCSV {
		return fmt.Errorf("%w: at least one output format must be enabled", ErrInvalidConfig)
	}
	if c.FilePrefix == "" || c.ArchiveName == "" {
		return fmt.Errorf("%w: file_prefix and archive_name are required", ErrInvalidConfig)
	}
	switch c.Compression {
	case CompressionAuto, CompressionDeflate, CompressionStore:
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, c.Compression)
	}
	return nil
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

func readLayer(path string) (Config, bool, error) {
	var out Config
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if len(data) == 0 {
		return out, false, nil
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return out, true, nil
}

// Load builds a Config from the defaults, the file at path and its
// <name>.local.<ext> sibling, later layers winning. Missing files are skipped.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	prefix, ext := splitExt(path)
	layers := []string{path, fmt.Sprintf("%s.local.%s", prefix, ext)}
	for _, layer := range layers {
		override, found, err := readLayer(layer)
		if err != nil {
			return cfg, err
		}
		if !found {
			continue
		}
		if err := mergo.Merge(&cfg, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return cfg, fmt.Errorf("merging %s: %w", layer, err)
		}
		slog.Debug("loaded config layer", "path", layer)
	}

	return cfg, cfg.Validate()
}
