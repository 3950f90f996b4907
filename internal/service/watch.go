package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/a-schmidtlab/caption-translator/internal/config"
	"github.com/a-schmidtlab/caption-translator/pkg/file"
	"github.com/a-schmidtlab/caption-translator/pkg/log"
)

// Watcher periodically scans the configured directories for dataset
// files that have no up-to-date translated output yet and runs the
// pipeline on each. Scans are serialized: if one is still running when
// the next cron tick fires, the tick joins it instead of starting over.
type Watcher struct {
	cfg      config.Config
	runner   *Runner
	cron     *cron.Cron
	group    singleflight.Group
	lastScan time.Time
}

func NewWatcher(cfg config.Config, runner *Runner) *Watcher {
	return &Watcher{
		cfg:    cfg,
		runner: runner,
		cron:   cron.New(),
	}
}

// Run installs the cron schedule, performs one immediate scan and then
// blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.cfg.Watch.Dirs) == 0 {
		return NewError(ErrConfig, "watch mode requires WATCH_DIRS")
	}

	if _, err := w.cron.AddFunc(w.cfg.Watch.CronExpr, func() { w.scan(ctx) }); err != nil {
		return WrapError(err, ErrConfig, "invalid watch cron expression").
			WithContext("cron", w.cfg.Watch.CronExpr)
	}

	log.Info("Watching %s on schedule %q", strings.Join(w.cfg.Watch.Dirs, ", "), w.cfg.Watch.CronExpr)
	w.scan(ctx)

	w.cron.Start()
	<-ctx.Done()

	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (w *Watcher) scan(ctx context.Context) {
	_, _, _ = w.group.Do("scan", func() (any, error) {
		scanStarted := time.Now()
		for _, dir := range w.cfg.Watch.Dirs {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err := w.scanDir(ctx, dir); err != nil {
				log.Error("Scan of %s failed: %v", dir, err)
			}
		}
		w.lastScan = scanStarted
		return nil, nil
	})
}

func (w *Watcher) scanDir(ctx context.Context, dir string) error {
	candidates, err := file.FindRecentAfter(dir, w.lastScan, ".xlsx", ".csv")
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}

	targetLang := w.cfg.Translate.TargetLanguage.String()
	for _, path := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !w.needsTranslation(path, targetLang) {
			continue
		}

		log.Info("Picked up %s", path)
		summary, err := w.runner.Run(ctx, path, RunOptions{})
		if err != nil {
			log.Error("Translation of %s failed: %v", path, err)
			continue
		}
		log.Info("Finished %s: %s", path, FormatSummary(summary))
	}
	return nil
}

// needsTranslation filters out our own outputs and inputs whose derived
// output is already newer than the input.
func (w *Watcher) needsTranslation(path, targetLang string) bool {
	marker := "." + strings.ToLower(targetLang)
	if strings.HasSuffix(file.BaseName(path), marker) {
		return false
	}

	outputPath := file.OutputPath(path, targetLang)
	if file.Exists(outputPath) && !file.ModTime(outputPath).Before(file.ModTime(path)) {
		return false
	}
	return true
}
