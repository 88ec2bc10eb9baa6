package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"betterlife-pipeline/internal/config"
	"betterlife-pipeline/internal/model"
	"betterlife-pipeline/pkg/utils"

	"github.com/google/uuid"
)

// Ledger records what a run produced. *store.Store implements it.
type Ledger interface {
	StartRun(ctx context.Context, runID, endpoint string) error
	FinishRun(ctx context.Context, runID string, records int, runErr error) error
	SavePageFile(ctx context.Context, runID string, file model.PageFile) error
	SaveArchive(ctx context.Context, runID string, manifest model.Manifest) error
}

// Pipeline wires fetcher, accumulator, exporter and archiver into one run
type Pipeline struct {
	Endpoint   string
	Fetcher    *Fetcher
	Exporter   *Exporter
	Archiver   *Archiver
	Output     *utils.OutputManager
	Tracker    *Tracker
	Ledger     Ledger // optional
	Clean      bool
	PageLimits map[model.Format]int
}

// New builds a pipeline from configuration. The response cache and the
// archive codec are chosen here, once. ledger may be nil.
func New(cfg config.Config, ledger Ledger) *Pipeline {
	output := utils.NewOutputManager(
		cfg.ResolvedJSONDir(),
		cfg.ResolvedCSVDir(),
		cfg.WorkDir,
		cfg.FilePrefix,
		cfg.ArchiveName,
	)

	tracker := NewTracker()
	// a ledger that can hold responses keeps the cache across runs
	responses, _ := ledger.(ResponseStore)
	cache := SelectResponseCache(
		cfg.CacheEnabled(),
		cfg.Cache.Size,
		utils.ParseDuration(cfg.Cache.TTL, time.Hour),
		responses,
	)
	client := NewRestyClient(utils.ParseDuration(cfg.RequestTimeout, time.Minute))

	limits := map[model.Format]int{}
	if output.Enabled(model.FormatJSON) {
		limits[model.FormatJSON] = cfg.JSONPageLimit
	}
	if output.Enabled(model.FormatCSV) {
		limits[model.FormatCSV] = cfg.CSVPageLimit
	}

	return &Pipeline{
		Endpoint:   cfg.Endpoint,
		Fetcher:    NewFetcher(client, cfg.Endpoint, cfg.FetchPageSize, cache, tracker),
		Exporter:   NewExporter(output),
		Archiver:   NewArchiver(output, SelectCompression(cfg.Compression)),
		Output:     output,
		Tracker:    tracker,
		Ledger:     ledger,
		Clean:      cfg.CleanEnabled(),
		PageLimits: limits,
	}
}

// ------------------- Pipeline Runner -------------------

// Run cleans old outputs when enabled, fetches pages until a short one
// ends the stream, writes every flush, and archives the results.
func (p *Pipeline) Run(ctx context.Context) (summary model.RunSummary, err error) {
	start := time.Now()
	summary.RunID = uuid.New().String()
	log := slog.With("run_id", summary.RunID)
	log.Info("🚀 starting pipeline", "endpoint", p.Endpoint, "page_size", p.Fetcher.PageSize())

	if p.Ledger != nil {
		if err := p.Ledger.StartRun(ctx, summary.RunID, p.Endpoint); err != nil {
			return summary, fmt.Errorf("failed to record run start: %w", err)
		}
		defer func() {
			if ferr := p.Ledger.FinishRun(ctx, summary.RunID, summary.RecordsFetched, err); ferr != nil {
				err = errors.Join(err, fmt.Errorf("failed to record run end: %w", ferr))
			}
		}()
	}

	if p.Clean {
		if _, err := p.Output.Clean(); err != nil {
			return summary, err
		}
	}

	acc := NewAccumulator(p.Fetcher.PageSize(), p.PageLimits)
	for page := 0; !acc.Done(); page++ {
		rows, err := p.Fetcher.FetchPage(ctx, page)
		if err != nil {
			return summary, err
		}
		summary.Pages++
		summary.RecordsFetched += len(rows)

		for _, flush := range acc.Accept(rows) {
			file, err := p.Exporter.Write(flush)
			if err != nil {
				return summary, err
			}
			p.Tracker.PageWritten(file.Format, file.RecordCount)
			summary.Files = append(summary.Files, file)

			if p.Ledger != nil {
				if err := p.Ledger.SavePageFile(ctx, summary.RunID, file); err != nil {
					return summary, fmt.Errorf("failed to record page file: %w", err)
				}
			}
		}
	}

	summary.Manifests, err = p.Archiver.ArchiveAll()
	if err != nil {
		return summary, err
	}
	if p.Ledger != nil {
		for _, m := range summary.Manifests {
			if err := p.Ledger.SaveArchive(ctx, summary.RunID, m); err != nil {
				return summary, fmt.Errorf("failed to record archive: %w", err)
			}
		}
	}

	summary.Duration = time.Since(start)
	p.Tracker.LogSummary(summary.RunID)
	log.Info("🏁 pipeline completed",
		"pages", summary.Pages,
		"records", summary.RecordsFetched,
		"files", len(summary.Files),
		"duration", summary.Duration,
	)
	return summary, nil
}
