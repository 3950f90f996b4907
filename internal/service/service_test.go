package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/a-schmidtlab/caption-translator/internal/checkpoint"
	"github.com/a-schmidtlab/caption-translator/internal/config"
	"github.com/a-schmidtlab/caption-translator/internal/dataset"
	"github.com/a-schmidtlab/caption-translator/internal/translate"
)

// fakeBackend is an httptest translation endpoint that prefixes each
// text with "EN:" and records every text it was asked to translate.
type fakeBackend struct {
	mu    sync.Mutex
	seen  []string
	fail  bool
	serve *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	b.serve = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.fail {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		b.mu.Lock()
		b.seen = append(b.seen, req.Texts...)
		b.mu.Unlock()

		translations := make([]string, len(req.Texts))
		for i, text := range req.Texts {
			translations[i] = "EN:" + text
		}
		json.NewEncoder(w).Encode(map[string]any{"translations": translations})
	}))
	t.Cleanup(b.serve.Close)
	return b
}

func (b *fakeBackend) seenTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

func testConfig(t *testing.T, backendURL string) config.Config {
	t.Helper()
	return config.Config{
		Translator: translate.Config{
			Provider: "http",
			APIURL:   backendURL,
			Timeout:  5,
		},
		Translate: config.TranslateConfig{
			SourceLanguage: language.German,
			TargetLanguage: language.English,
		},
		Pipeline: config.PipelineConfig{
			MaxBatchChars:          4000,
			MaxBatchItems:          2,
			Concurrency:            2,
			MaxRetries:             1,
			RetryBaseDelay:         time.Millisecond,
			RetryMultiplier:        2,
			AttemptTimeout:         5 * time.Second,
			MaxConsecutiveFailures: 2,
		},
		Checkpoint: config.CheckpointConfig{
			Dir:          filepath.Join(t.TempDir(), "checkpoints"),
			EveryBatches: 1,
		},
		Progress: config.ProgressConfig{
			StallFatalAfter: 30 * time.Minute,
		},
		LogLevel: "error",
	}
}

func writeInputCSV(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "captions.csv")
	content := "ID,Title_DE,Notes\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunTranslatesDataset(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)
	input := writeInputCSV(t,
		"1,Hallo,keep",
		"2,Welt,keep",
		"3,Hallo,keep", // duplicate cell, translated once
	)

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	output := filepath.Join(t.TempDir(), "out.csv")
	summary, err := runner.Run(context.Background(), input, RunOptions{OutputPath: output})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 2, summary.TotalTexts)
	assert.Equal(t, 2, summary.Translated)
	assert.Equal(t, 0, summary.Failed)

	table, err := dataset.NewReader().Read(output)
	require.NoError(t, err)
	assert.Contains(t, table.Columns, "Title_EN")
	assert.Equal(t, "EN:Hallo", table.Rows[0]["Title_EN"])
	assert.Equal(t, "EN:Welt", table.Rows[1]["Title_EN"])
	assert.Equal(t, "EN:Hallo", table.Rows[2]["Title_EN"])
	// the untranslated column is carried over untouched
	assert.Equal(t, "keep", table.Rows[0]["Notes"])

	// each distinct text crossed the wire exactly once
	assert.ElementsMatch(t, []string{"Hallo", "Welt"}, backend.seenTexts())

	// a finished run leaves no checkpoint behind
	record, err := checkpoint.NewStore(cfg.Checkpoint.Dir).Load(input)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)
	input := writeInputCSV(t, "1,Hallo,", "2,Welt,")

	// a previous run already resolved "Hallo"
	store := checkpoint.NewStore(cfg.Checkpoint.Dir)
	require.NoError(t, store.Save(input, &checkpoint.Record{
		Timestamp:     time.Now().UTC(),
		ProcessedRows: 1,
		Translations:  map[string]string{"Hallo": "EN:Hallo", "Welt": ""},
		TotalRows:     2,
		SourceFile:    filepath.Base(input),
	}))

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	output := filepath.Join(t.TempDir(), "out.csv")
	summary, err := runner.Run(context.Background(), input, RunOptions{OutputPath: output})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Seeded)
	// only the unresolved text reaches the backend
	assert.Equal(t, []string{"Welt"}, backend.seenTexts())

	table, err := dataset.NewReader().Read(output)
	require.NoError(t, err)
	assert.Equal(t, "EN:Hallo", table.Rows[0]["Title_EN"])
	assert.Equal(t, "EN:Welt", table.Rows[1]["Title_EN"])
}

func TestRunSeedsFromPriorOutput(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)
	input := writeInputCSV(t, "1,Hallo,", "2,Welt,")

	// last run produced a partial artifact
	output := filepath.Join(filepath.Dir(input), "out.csv")
	prior := "ID,Title_DE,Notes,Title_EN\n1,Hallo,,EN:Hallo\n2,Welt,,\n"
	require.NoError(t, os.WriteFile(output, []byte(prior), 0o644))

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	_, err = runner.Run(context.Background(), input, RunOptions{OutputPath: output})
	require.NoError(t, err)

	assert.Equal(t, []string{"Welt"}, backend.seenTexts())
}

func TestRunBackendDownSavesCheckpoint(t *testing.T) {
	backend := newFakeBackend(t)
	backend.fail = true
	cfg := testConfig(t, backend.serve.URL)
	cfg.Pipeline.Concurrency = 1
	cfg.Pipeline.MaxRetries = 0
	input := writeInputCSV(t, "1,Hallo,", "2,Welt,", "3,Morgen,")

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	output := filepath.Join(t.TempDir(), "out.csv")
	_, err = runner.Run(context.Background(), input, RunOptions{OutputPath: output})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrBackend))
	// no output, but a checkpoint to resume from
	assert.NoFileExists(t, output)
	record, loadErr := checkpoint.NewStore(cfg.Checkpoint.Dir).Load(input)
	require.NoError(t, loadErr)
	assert.NotNil(t, record)
}

func TestRunDryRun(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)
	input := writeInputCSV(t, "1,Hallo,", "2,Welt,")

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	output := filepath.Join(t.TempDir(), "out.csv")
	summary, err := runner.Run(context.Background(), input, RunOptions{OutputPath: output, DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.TotalTexts)
	assert.Empty(t, backend.seenTexts())
	assert.NoFileExists(t, output)
}

func TestRunSampleMode(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)
	input := writeInputCSV(t, "1,Alpha,", "2,Beta,", "3,Gamma,", "4,Delta,")

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	output := filepath.Join(t.TempDir(), "out.csv")
	_, err = runner.Run(context.Background(), input, RunOptions{OutputPath: output, SampleSize: 2})
	require.NoError(t, err)

	assert.Len(t, backend.seenTexts(), 2)
}

func TestRunInvalidInput(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	_, err = runner.Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), RunOptions{})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrFileRead))
}

func TestRunNoEligibleColumns(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)

	path := filepath.Join(t.TempDir(), "plain.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,Notes\n1,x\n"), 0o644))

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	_, err = runner.Run(context.Background(), path, RunOptions{})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestRunUsesTranslationMemory(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.serve.URL)
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "memory.db")

	first := writeInputCSV(t, "1,Hallo,")

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), first, RunOptions{
		OutputPath: filepath.Join(t.TempDir(), "first.csv"),
	})
	require.NoError(t, err)
	require.NoError(t, runner.Close())
	require.Equal(t, []string{"Hallo"}, backend.seenTexts())

	// a different input containing the same text resolves from memory
	second := writeInputCSV(t, "9,Hallo,")
	runner, err = NewRunner(cfg)
	require.NoError(t, err)
	defer runner.Close()

	summary, err := runner.Run(context.Background(), second, RunOptions{
		OutputPath: filepath.Join(t.TempDir(), "second.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Seeded)
	// no new backend traffic for the remembered text
	assert.Equal(t, []string{"Hallo"}, backend.seenTexts())
}
