package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"betterlife-pipeline/internal/config"
	"betterlife-pipeline/internal/model"
	"betterlife-pipeline/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type recordingLedger struct {
	started  []string
	finished map[string]error
	files    []model.PageFile
	archives []model.Manifest
	records  int
}

func (l *recordingLedger) StartRun(_ context.Context, runID, _ string) error {
	l.started = append(l.started, runID)
	return nil
}

func (l *recordingLedger) FinishRun(_ context.Context, runID string, records int, runErr error) error {
	if l.finished == nil {
		l.finished = map[string]error{}
	}
	l.finished[runID] = runErr
	l.records = records
	return nil
}

func (l *recordingLedger) SavePageFile(_ context.Context, _ string, file model.PageFile) error {
	l.files = append(l.files, file)
	return nil
}

func (l *recordingLedger) SaveArchive(_ context.Context, _ string, manifest model.Manifest) error {
	l.archives = append(l.archives, manifest)
	return nil
}

func testConfig(t *testing.T, endpoint string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.WorkDir = t.TempDir()
	cfg.LedgerPath = ""
	return cfg
}

func newTestPipeline(cfg config.Config, ledger Ledger) *Pipeline {
	p := New(cfg, ledger)
	p.Exporter.Out = io.Discard
	p.Archiver.Out = io.Discard
	return p
}

func readJSONPage(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func TestRunEndToEnd(t *testing.T) {
	up := newUpstream(t, 2500, nil)
	cfg := testConfig(t, up.URL+"/responses")
	cfg.JSONPageLimit = 1

	ledger := &recordingLedger{}
	summary, err := newTestPipeline(cfg, ledger).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, summary.Pages)
	require.Equal(t, 2500, summary.RecordsFetched)
	require.EqualValues(t, 3, up.hits.Load())

	jsonDir := filepath.Join(cfg.WorkDir, "json")
	counts := []int{}
	for _, name := range []string{"data_page_001.json", "data_page_002.json", "data_page_003.json"} {
		counts = append(counts, len(readJSONPage(t, filepath.Join(jsonDir, name))))
	}
	require.Equal(t, []int{1000, 1000, 500}, counts)

	entries, err := os.ReadDir(jsonDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	last := readJSONPage(t, filepath.Join(jsonDir, "data_page_003.json"))
	require.EqualValues(t, 2000, last[0]["id"])
	require.EqualValues(t, 2499, last[499]["id"])
	require.NotContains(t, last[0], "timestamp")
	require.Contains(t, last[0], "work_life_balance")

	// CSV keeps the default cadence of 10 chunks, so one page holds everything
	f, err := os.Open(filepath.Join(cfg.WorkDir, "csv", "data_page_001.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2501)

	require.Len(t, summary.Manifests, 2)
	require.Equal(t, model.FormatJSON, summary.Manifests[0].Format)
	require.Equal(t, []string{"data_page_001.json", "data_page_002.json", "data_page_003.json"}, summary.Manifests[0].Names())
	require.Equal(t, []string{"data_page_001.csv"}, summary.Manifests[1].Names())
	require.FileExists(t, filepath.Join(cfg.WorkDir, "data_json.zip"))
	require.FileExists(t, filepath.Join(cfg.WorkDir, "data_csv.zip"))

	require.Len(t, ledger.started, 1)
	require.NoError(t, ledger.finished[ledger.started[0]])
	require.Len(t, ledger.files, 4)
	require.Len(t, ledger.archives, 2)
	require.Equal(t, 2500, ledger.records)
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}

func TestRunIsIdempotent(t *testing.T) {
	up := newUpstream(t, 45, nil)
	cfg := testConfig(t, up.URL)
	cfg.FetchPageSize = 10
	cfg.JSONPageLimit = 2
	cfg.CSVPageLimit = 3

	first, err := newTestPipeline(cfg, nil).Run(context.Background())
	require.NoError(t, err)
	jsonBefore := snapshotDir(t, filepath.Join(cfg.WorkDir, "json"))
	csvBefore := snapshotDir(t, filepath.Join(cfg.WorkDir, "csv"))
	archivesBefore := readArchives(t, cfg.WorkDir)

	// a stale page from some older, longer run
	stale := filepath.Join(cfg.WorkDir, "json", "data_page_009.json")
	require.NoError(t, os.WriteFile(stale, []byte("[]"), 0644))

	second, err := newTestPipeline(cfg, nil).Run(context.Background())
	require.NoError(t, err)

	require.NoFileExists(t, stale)
	require.Equal(t, jsonBefore, snapshotDir(t, filepath.Join(cfg.WorkDir, "json")))
	require.Equal(t, csvBefore, snapshotDir(t, filepath.Join(cfg.WorkDir, "csv")))
	require.Len(t, jsonBefore, 3)
	require.Len(t, csvBefore, 2)

	if diff := cmp.Diff(first.Manifests, second.Manifests); diff != "" {
		t.Fatalf("manifests differ between runs (-first +second):\n%s", diff)
	}
	require.Equal(t, archivesBefore, readArchives(t, cfg.WorkDir))
}

func readArchives(t *testing.T, workDir string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	for _, name := range []string{"data_json.zip", "data_csv.zip"} {
		data, err := os.ReadFile(filepath.Join(workDir, name))
		require.NoError(t, err)
		out[name] = data
	}
	return out
}

func TestRerunServedFromLedgerCache(t *testing.T) {
	up := newUpstream(t, 25, nil)
	cfg := testConfig(t, up.URL)
	cfg.FetchPageSize = 10

	ledger, err := store.Open(filepath.Join(cfg.WorkDir, "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	first, err := newTestPipeline(cfg, ledger).Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, up.hits.Load())
	jsonBefore := snapshotDir(t, filepath.Join(cfg.WorkDir, "json"))

	p := newTestPipeline(cfg, ledger)
	second, err := p.Run(context.Background())
	require.NoError(t, err)

	require.EqualValues(t, 3, up.hits.Load())
	require.Equal(t, float64(3), testutil.ToFloat64(p.Tracker.cacheHits))
	require.Equal(t, first.RecordsFetched, second.RecordsFetched)
	require.Equal(t, jsonBefore, snapshotDir(t, filepath.Join(cfg.WorkDir, "json")))

	files, err := ledger.ListPageFiles(context.Background(), second.RunID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Positive(t, files[0].SizeBytes)
}

func TestRerunWithoutCacheRefetches(t *testing.T) {
	up := newUpstream(t, 25, nil)
	cfg := testConfig(t, up.URL)
	cfg.FetchPageSize = 10
	cfg.Cache.Enabled = new(bool)

	ledger, err := store.Open(filepath.Join(cfg.WorkDir, "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	for i := 0; i < 2; i++ {
		_, err := newTestPipeline(cfg, ledger).Run(context.Background())
		require.NoError(t, err)
	}
	require.EqualValues(t, 6, up.hits.Load())
}

func TestRunWithoutCleanKeepsStaleFiles(t *testing.T) {
	up := newUpstream(t, 5, nil)
	cfg := testConfig(t, up.URL)
	cfg.FetchPageSize = 10
	noClean := false
	cfg.Clean = &noClean

	stale := filepath.Join(cfg.WorkDir, "json", "data_page_007.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("[]"), 0644))

	summary, err := newTestPipeline(cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, stale)
	require.Equal(t, []string{"data_page_001.json", "data_page_007.json"}, summary.Manifests[0].Names())
}

func TestRunDroppedPageEndsStream(t *testing.T) {
	up := newUpstream(t, 50, map[int]int{20: 2})
	cfg := testConfig(t, up.URL)
	cfg.FetchPageSize = 10
	cfg.JSONPageLimit = 1
	cfg.DisableCSV = true

	p := newTestPipeline(cfg, nil)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 20, summary.RecordsFetched)
	require.Len(t, summary.Files, 2)
	require.Len(t, summary.Manifests, 1)
	require.NoDirExists(t, filepath.Join(cfg.WorkDir, "csv"))
	require.Equal(t, float64(1), testutil.ToFloat64(p.Tracker.pagesDropped))
	require.Equal(t, float64(2), testutil.ToFloat64(p.Tracker.pagesWritten.WithLabelValues("json")))
}

func TestRunFailureIsRecorded(t *testing.T) {
	up := newUpstream(t, 5, nil)
	cfg := testConfig(t, up.URL)
	cfg.FetchPageSize = 10

	// a file where the JSON directory should be makes the first write fail
	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkDir, "json"), []byte("x"), 0644))
	noClean := false
	cfg.Clean = &noClean

	ledger := &recordingLedger{}
	_, err := newTestPipeline(cfg, ledger).Run(context.Background())
	require.Error(t, err)
	require.Len(t, ledger.started, 1)
	require.Error(t, ledger.finished[ledger.started[0]])
}
