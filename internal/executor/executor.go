// Package executor drives the remote translation calls: a bounded worker
// pool over the prepared batches, with per-attempt timeout, retry with
// jittered exponential backoff, an outbound rate cap and a circuit
// breaker guarding against a down backend.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/a-schmidtlab/caption-translator/internal/batch"
	"github.com/a-schmidtlab/caption-translator/internal/translate"
	"github.com/a-schmidtlab/caption-translator/internal/workset"
	"github.com/a-schmidtlab/caption-translator/pkg/log"
)

// ErrBackendUnavailable reports that consecutive batch failures crossed
// the configured threshold and the run was aborted instead of burning
// further attempts against a down backend.
var ErrBackendUnavailable = errors.New("translation backend unavailable")

// Config bundles the executor tunables. All values come from the
// top-level configuration; the executor never queries host state itself.
type Config struct {
	Concurrency            int
	MaxRetries             int
	BaseDelay              time.Duration
	Multiplier             float64
	AttemptTimeout         time.Duration
	RateCount              int           // max requests per RateWindow
	RateWindow             time.Duration // rolling window for RateCount
	MaxConsecutiveFailures int
}

// Stats counts resolved work. A batch is "resolved" once it succeeded or
// failed terminally; either way the run moves on.
type Stats struct {
	BatchesResolved     int
	BatchesFailed       int
	TextsResolved       int
	TextsFailed         int
	ConsecutiveFailures int
}

// Hooks are invoked serially, in resolution order, from the executor's
// coordination lock. Keep them fast; checkpoint saves and progress
// observation belong here so their ordering is naturally preserved.
type Hooks struct {
	OnBatchResolved func(stats Stats)
}

type Executor struct {
	cfg        Config
	translator translate.Translator
	cache      *workset.Cache
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	hooks      Hooks

	mu        sync.Mutex
	stats     Stats
	fatal     chan struct{}
	fatalOnce sync.Once
}

func New(cfg Config, translator translate.Translator, cache *workset.Cache, hooks Hooks) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateCount > 0 && cfg.RateWindow > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateCount)/cfg.RateWindow.Seconds()), cfg.RateCount)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "translation-backend",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxConsecutiveFailures)
		},
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Executor{
		cfg:        cfg,
		translator: translator,
		cache:      cache,
		limiter:    limiter,
		breaker:    breaker,
		hooks:      hooks,
		fatal:      make(chan struct{}),
	}
}

// Run translates every batch to completion, success or terminal failure,
// and merges results into the cache. At most Concurrency batches are in
// flight; a finished slot immediately picks up the next queued batch.
//
// Cancellation is cooperative: it is checked between dispatches, and
// in-flight attempts finish within their own timeout.
func (e *Executor) Run(ctx context.Context, batches []batch.Batch, sourceLang, targetLang string) (Stats, error) {
	if len(batches) == 0 {
		return e.snapshot(), nil
	}

	log.Info("Executing %d batches with %d workers via %s backend",
		len(batches), e.cfg.Concurrency, e.translator.Name())

	feed := make(chan batch.Batch)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range feed {
				e.processBatch(ctx, b, sourceLang, targetLang)
			}
		}()
	}

dispatch:
	for _, b := range batches {
		select {
		case <-ctx.Done():
			break dispatch
		case <-e.fatal:
			break dispatch
		case feed <- b:
		}
	}
	close(feed)
	wg.Wait()

	stats := e.snapshot()
	select {
	case <-e.fatal:
		return stats, fmt.Errorf("%w: %d consecutive batch failures", ErrBackendUnavailable, stats.ConsecutiveFailures)
	default:
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (e *Executor) processBatch(ctx context.Context, b batch.Batch, sourceLang, targetLang string) {
	translations, err := e.translateWithRetry(ctx, b, sourceLang, targetLang)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a backend verdict. The texts stay pending so
			// a resumed run retries them.
			return
		}
		log.Error("Batch of %d texts failed terminally: %v", len(b.Texts), err)
		for _, text := range b.Texts {
			e.cache.MarkFailed(text)
		}
		e.resolve(false, len(b.Texts))
		return
	}

	for i, text := range b.Texts {
		e.cache.Put(text, translations[i])
	}
	e.resolve(true, len(b.Texts))
}

// translateWithRetry runs up to MaxRetries+1 attempts with exponential
// backoff and randomized jitter so concurrently failing batches do not
// retry in lockstep.
func (e *Executor) translateWithRetry(ctx context.Context, b batch.Batch, sourceLang, targetLang string) ([]string, error) {
	operation := func() ([]string, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()

		ret, err := e.breaker.Execute(func() (interface{}, error) {
			return e.translator.Translate(attemptCtx, b.Texts, sourceLang, targetLang)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				// Breaker is open: fail the batch fast instead of
				// hammering a backend that is already down.
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return ret.([]string), nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.BaseDelay
	policy.Multiplier = e.cfg.Multiplier
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 0

	return backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.cfg.MaxRetries)), ctx))
}

// resolve updates the shared counters and fires the resolution hook under
// one lock, so hook invocations are serialized in resolution order.
func (e *Executor) resolve(success bool, textCount int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.BatchesResolved++
	if success {
		e.stats.TextsResolved += textCount
		e.stats.ConsecutiveFailures = 0
	} else {
		e.stats.BatchesFailed++
		e.stats.TextsFailed += textCount
		e.stats.ConsecutiveFailures++
		if e.stats.ConsecutiveFailures >= e.cfg.MaxConsecutiveFailures {
			e.fatalOnce.Do(func() { close(e.fatal) })
		}
	}

	if e.hooks.OnBatchResolved != nil {
		e.hooks.OnBatchResolved(e.stats)
	}
}

func (e *Executor) snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
