package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/a-schmidtlab/caption-translator/internal/batch"
	"github.com/a-schmidtlab/caption-translator/internal/checkpoint"
	"github.com/a-schmidtlab/caption-translator/internal/config"
	"github.com/a-schmidtlab/caption-translator/internal/dataset"
	"github.com/a-schmidtlab/caption-translator/internal/executor"
	"github.com/a-schmidtlab/caption-translator/internal/persistence"
	"github.com/a-schmidtlab/caption-translator/internal/progress"
	"github.com/a-schmidtlab/caption-translator/internal/translate"
	"github.com/a-schmidtlab/caption-translator/internal/workset"
	"github.com/a-schmidtlab/caption-translator/pkg/file"
	"github.com/a-schmidtlab/caption-translator/pkg/log"
)

// Runner wires the whole pipeline: work-set construction, batch
// grouping, the concurrent executor, checkpointing, progress tracking
// and final materialization.
type Runner struct {
	cfg         config.Config
	reader      dataset.Reader
	writer      dataset.Writer
	translator  translate.Translator
	checkpoints *checkpoint.Store
	memory      *persistence.SQLiteStore
}

// RunOptions are per-invocation switches from the CLI.
type RunOptions struct {
	OutputPath string
	SampleSize int  // translate at most N pending texts (0 = all)
	DryRun     bool // build the work set, estimate, make no remote calls
}

// Summary is the final report of one run.
type Summary struct {
	InputPath  string
	OutputPath string
	Rows       int
	TotalTexts int
	Translated int
	Failed     int
	Skipped    int
	Seeded     int
	Batches    int
	DryRun     bool
	Duration   time.Duration
}

func NewRunner(cfg config.Config) (*Runner, error) {
	translator, err := translate.NewTranslator(cfg.Translator)
	if err != nil {
		return nil, WrapError(err, ErrConfig, "failed to create translator")
	}

	runner := &Runner{
		cfg:         cfg,
		reader:      dataset.NewReader(),
		writer:      dataset.NewWriter(),
		translator:  translator,
		checkpoints: checkpoint.NewStore(cfg.Checkpoint.Dir),
	}

	if cfg.Memory.Enabled() {
		memory, err := persistence.NewSQLiteStore(cfg.Memory.DBPath)
		if err != nil {
			return nil, WrapError(err, ErrConfig, "failed to open translation memory")
		}
		runner.memory = memory
	}

	return runner, nil
}

func (r *Runner) Close() error {
	return r.memory.Close()
}

// Run translates a single input file end to end.
func (r *Runner) Run(ctx context.Context, inputPath string, opts RunOptions) (*Summary, error) {
	started := time.Now()
	sourceLang := r.cfg.Translate.SourceLanguage.String()
	targetLang := r.cfg.Translate.TargetLanguage.String()

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = file.OutputPath(inputPath, targetLang)
	}

	table, err := r.reader.Read(inputPath)
	if err != nil {
		return nil, WrapError(err, ErrFileRead, "failed to read input dataset").
			WithContext("path", inputPath)
	}

	cache, columns, skipped, err := r.buildWorkSet(table)
	if err != nil {
		return nil, err
	}

	seeded := r.seed(ctx, cache, columns, inputPath, outputPath)

	pending := cache.Pending()
	if opts.SampleSize > 0 && len(pending) > opts.SampleSize {
		log.Info("Sample mode: translating %d of %d pending texts", opts.SampleSize, len(pending))
		pending = pending[:opts.SampleSize]
	}

	batches := batch.Group(pending, r.cfg.Pipeline.MaxBatchChars, r.cfg.Pipeline.MaxBatchItems)
	log.Info("Pending %d texts in %d batches (%d seeded, %d skipped)",
		len(pending), len(batches), seeded, skipped)

	summary := &Summary{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Rows:       len(table.Rows),
		TotalTexts: cache.Len(),
		Skipped:    skipped,
		Seeded:     seeded,
		Batches:    len(batches),
		DryRun:     opts.DryRun,
	}

	if opts.DryRun {
		log.Info("Dry run: %d rows, %d distinct texts, %d pending, %d requests estimated",
			summary.Rows, summary.TotalTexts, len(pending), len(batches))
		summary.Duration = time.Since(started)
		return summary, nil
	}

	if err := r.execute(ctx, cache, batches, inputPath, sourceLang, targetLang); err != nil {
		return nil, err
	}

	failedCells := workset.Apply(table, columns, cache)
	if err := r.writer.Write(outputPath, table); err != nil {
		r.saveCheckpoint(cache, inputPath)
		return nil, WrapError(err, ErrFileWrite, "failed to write output dataset").
			WithContext("path", outputPath)
	}

	r.remember(ctx, cache)

	// The checkpoint has served its purpose once the output exists.
	if err := r.checkpoints.Delete(inputPath); err != nil {
		log.Warn("Failed to remove checkpoint: %v", err)
	}

	summary.Translated = cache.DoneCount() - cache.FailedCount()
	summary.Failed = cache.FailedCount()
	summary.Duration = time.Since(started)
	log.Info("Done: %d/%d texts translated, %d failed, %d cells left empty, output %s",
		summary.Translated, summary.TotalTexts, summary.Failed, failedCells, outputPath)
	return summary, nil
}

func (r *Runner) buildWorkSet(table *dataset.Table) (*workset.Cache, []workset.Column, int, error) {
	builder := workset.NewBuilder(workset.ColumnRules{
		AllowList:    r.cfg.Translate.ColumnAllowList,
		DenyList:     r.cfg.Translate.ColumnDenyList,
		SourceSuffix: r.cfg.Translate.SourceSuffix(),
		TargetSuffix: r.cfg.Translate.TargetSuffix(),
	})
	if r.cfg.Translate.SkipTargetCells {
		base, _ := r.cfg.Translate.TargetLanguage.Base()
		builder.SkipTargetLanguage = true
		builder.TargetLangISO = base.String()
	}

	cache, columns, skipped, err := builder.Build(table)
	if err != nil {
		if errors.Is(err, workset.ErrEmptyDataset) || errors.Is(err, workset.ErrNoEligibleColumns) {
			return nil, nil, 0, WrapError(err, ErrValidation, "input dataset is not translatable")
		}
		return nil, nil, 0, WrapError(err, ErrParse, "failed to build work set")
	}
	return cache, columns, skipped, nil
}

// seed merges prior knowledge into the cache. Precedence, lowest first:
// translation memory, prior output artifact, checkpoint (most recent).
func (r *Runner) seed(ctx context.Context, cache *workset.Cache, columns []workset.Column, inputPath, outputPath string) int {
	seeded := 0

	if r.memory != nil {
		sourceLang := r.cfg.Translate.SourceLanguage.String()
		targetLang := r.cfg.Translate.TargetLanguage.String()
		known, err := r.memory.LoadTranslations(ctx, sourceLang, targetLang)
		if err != nil {
			log.Warn("Failed to load translation memory: %v", err)
		} else if n := cache.Merge(known); n > 0 {
			log.Info("Seeded %d translations from translation memory", n)
			seeded += n
		}
	}

	if file.Exists(outputPath) {
		artifact, err := r.reader.Read(outputPath)
		if err != nil {
			log.Warn("Failed to read prior output %s: %v", outputPath, err)
		} else if n := workset.SeedFromArtifact(cache, columns, artifact); n > 0 {
			log.Info("Seeded %d translations from prior output %s", n, outputPath)
			seeded += n
		}
	}

	record, err := r.checkpoints.Load(inputPath)
	if err != nil {
		log.Warn("Failed to load checkpoint: %v", err)
	} else if record != nil {
		if n := cache.Merge(record.Translations); n > 0 {
			log.Info("Resumed %d translations from checkpoint (saved %s)",
				n, record.Timestamp.Format(time.RFC3339))
			seeded += n
		}
	}

	return seeded
}

// execute runs the batches through the executor while a single
// coordinating goroutine handles progress observation, stall escalation
// and checkpoint cadence.
func (r *Runner) execute(ctx context.Context, cache *workset.Cache, batches []batch.Batch, inputPath, sourceLang, targetLang string) error {
	if len(batches) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitor := progress.NewMonitor(cache.Len(), r.cfg.Progress.StallMinRate)
	monitor.SetStallWindow(r.cfg.Progress.StallWindow)
	trigger := checkpoint.NewTrigger(r.cfg.Checkpoint.EveryBatches, r.cfg.Checkpoint.Interval)

	var mu sync.Mutex
	var stalledSince time.Time
	var stallFatal bool

	observe := func(fromBatch bool) {
		mu.Lock()
		defer mu.Unlock()

		status := monitor.Observe(cache.DoneCount())
		if status.Stalled {
			if stalledSince.IsZero() {
				stalledSince = time.Now()
				log.Warn("Run appears stalled: no forward progress detected")
			} else if time.Since(stalledSince) > r.cfg.Progress.StallFatalAfter {
				stallFatal = true
				cancel()
			}
		} else {
			stalledSince = time.Time{}
		}

		if fromBatch {
			eta := "unknown"
			if status.ETAKnown {
				eta = status.ETA.Round(time.Second).String()
			}
			log.Info("Progress: %.1f%% (%d/%d), %.1f texts/min, ETA %s",
				status.Percent, status.Completed, status.Total, status.RatePerMinute, eta)

			if trigger.Tick() {
				r.saveCheckpoint(cache, inputPath)
				trigger.Reset()
			}
		}
	}

	exec := executor.New(executor.Config{
		Concurrency:            r.cfg.Pipeline.Concurrency,
		MaxRetries:             r.cfg.Pipeline.MaxRetries,
		BaseDelay:              r.cfg.Pipeline.RetryBaseDelay,
		Multiplier:             r.cfg.Pipeline.RetryMultiplier,
		AttemptTimeout:         r.cfg.Pipeline.AttemptTimeout,
		RateCount:              r.cfg.Pipeline.RateLimitCount,
		RateWindow:             r.cfg.Pipeline.RateLimitWindow,
		MaxConsecutiveFailures: r.cfg.Pipeline.MaxConsecutiveFailures,
	}, r.translator, cache, executor.Hooks{
		OnBatchResolved: func(executor.Stats) { observe(true) },
	})

	// A stalled run resolves no batches, so the stall check also has to
	// run on a timer.
	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickerDone:
				return
			case <-ticker.C:
				observe(false)
			}
		}
	}()

	stats, execErr := exec.Run(runCtx, batches, sourceLang, targetLang)
	close(tickerDone)

	mu.Lock()
	fatalStall := stallFatal
	mu.Unlock()

	switch {
	case fatalStall:
		r.saveCheckpoint(cache, inputPath)
		return NewError(ErrStalled, "run stalled beyond the configured limit").
			WithContext("completed", cache.DoneCount())
	case errors.Is(execErr, executor.ErrBackendUnavailable):
		r.saveCheckpoint(cache, inputPath)
		return WrapError(execErr, ErrBackend, "aborting run, backend is unavailable").
			WithContext("consecutiveFailures", stats.ConsecutiveFailures)
	case execErr != nil:
		// External cancellation; keep the progress made so far.
		r.saveCheckpoint(cache, inputPath)
		return WrapError(execErr, ErrTranslation, "run interrupted")
	}

	if stats.BatchesFailed > 0 {
		log.Warn("%d of %d batches failed terminally; their texts carry no translation",
			stats.BatchesFailed, stats.BatchesResolved)
	}
	return nil
}

// saveCheckpoint persists current progress. Failures are warnings: the
// run continues in-memory, and atomic replace guarantees the last good
// checkpoint survives.
func (r *Runner) saveCheckpoint(cache *workset.Cache, inputPath string) {
	record := &checkpoint.Record{
		Timestamp:     time.Now().UTC(),
		ProcessedRows: cache.DoneCount(),
		Translations:  cache.Snapshot(),
		TotalRows:     cache.Len(),
		SourceFile:    filepath.Base(inputPath),
	}
	if err := r.checkpoints.Save(inputPath, record); err != nil {
		log.Warn("Failed to save checkpoint: %v", err)
	}
}

// remember pushes this run's successful translations into the
// translation memory, best effort.
func (r *Runner) remember(ctx context.Context, cache *workset.Cache) {
	if r.memory == nil {
		return
	}

	resolved := make(map[string]string)
	for text, translated := range cache.Snapshot() {
		if translated != "" && translated != workset.FailedSentinel {
			resolved[text] = translated
		}
	}

	sourceLang := r.cfg.Translate.SourceLanguage.String()
	targetLang := r.cfg.Translate.TargetLanguage.String()
	if err := r.memory.SaveTranslations(ctx, sourceLang, targetLang, resolved); err != nil {
		log.Warn("Failed to update translation memory: %v", err)
	}
}

// FormatSummary renders the final run report for the console.
func FormatSummary(s *Summary) string {
	if s.DryRun {
		return fmt.Sprintf("dry run: %d rows, %d distinct texts, %d batches estimated",
			s.Rows, s.TotalTexts, s.Batches)
	}
	return fmt.Sprintf("%d rows, %d distinct texts: %d translated, %d failed, %d skipped -> %s (%s)",
		s.Rows, s.TotalTexts, s.Translated, s.Failed, s.Skipped, s.OutputPath,
		s.Duration.Round(time.Millisecond))
}
