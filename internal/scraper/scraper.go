// Package scraper retrieves changes from a Gerrit instance, enriches them with
// file diffs, classifies their review outcome and hands them to storage sinks.
package scraper

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/review-scraper/internal/core"
	"github.com/sevigo/review-scraper/internal/gerrit"
	"github.com/sevigo/review-scraper/internal/workerpool"
)

const defaultWorkers = 5

// ScrapeOptions selects what a run retrieves.
type ScrapeOptions struct {
	Query            Query
	LastRevisionOnly bool
}

// Stats are the counters of a scrape.
type Stats struct {
	Processed int `json:"processed"`
	Stored    int `json:"stored"`
}

// Scraper drives the query paginator, the diff fanout and the sinks.
type Scraper struct {
	client    gerrit.Client
	sinks     []core.Sink
	workers   int
	pageDelay time.Duration
	retry     *RetryPolicy
	sleep     sleepFunc
	paginator *Paginator
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithSinks sets the sinks that receive stored changes.
func WithSinks(sinks ...core.Sink) Option {
	return func(s *Scraper) { s.sinks = append(s.sinks, sinks...) }
}

// WithWorkers sets the size of the diff worker pool.
func WithWorkers(n int) Option {
	return func(s *Scraper) { s.workers = n }
}

// WithPageDelay sets the pause between two pages.
func WithPageDelay(d time.Duration) Option {
	return func(s *Scraper) { s.pageDelay = d }
}

// WithRetryPolicy overrides the default retry policy, which retries forever
// with the page delay as base delay.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Scraper) { s.retry = &p }
}

// New creates a Scraper backed by client.
func New(client gerrit.Client, logger *slog.Logger, opts ...Option) *Scraper {
	if client == nil {
		panic("gerrit client cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	s := &Scraper{
		client:  client,
		workers: defaultWorkers,
		sleep:   sleepContext,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	retry := DefaultRetryPolicy(s.pageDelay)
	if s.retry != nil {
		retry = *s.retry
	}
	s.paginator = NewPaginator(client, s.pageDelay, retry, logger)
	s.paginator.sleep = s.sleep
	return s
}

// Stats returns the counters accumulated over all runs of this scraper.
func (s *Scraper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scraper) addStats(processed, stored int) {
	s.mu.Lock()
	s.stats.Processed += processed
	s.stats.Stored += stored
	s.mu.Unlock()
}

// Changes returns the processed changes of a query: each one has its diffs
// attached and its review outcome classified before it is yielded. The diff
// worker pool lives for as long as the sequence is being consumed. A change
// whose diffs were interrupted by ctx is never yielded; the sequence ends with
// ctx.Err() instead.
func (s *Scraper) Changes(ctx context.Context, opts ScrapeOptions) iter.Seq2[*core.Change, error] {
	return func(yield func(*core.Change, error) bool) {
		pool := workerpool.New(s.workers, s.logger)
		defer func() {
			if err := pool.Close(); err != nil {
				s.logger.Error("diff workers failed", "error", err)
			}
		}()
		fanout := NewDiffFanout(s.client, pool, s.logger)

		seq := 0
		for change, err := range s.paginator.Pages(ctx, opts.Query) {
			if err != nil {
				yield(nil, err)
				return
			}
			seq++
			s.logger.Info("processing change", "seq", seq, "change", change.Number)

			if err := Classify(change); err != nil {
				s.logger.Warn("failed to classify change", "change", change.Number, "error", err)
			}
			fanout.Enrich(ctx, change, opts.LastRevisionOnly)

			// Diffs missing because ctx ended make the change incomplete.
			if err := ctx.Err(); err != nil {
				s.logger.Warn("dropping change interrupted while fetching diffs", "change", change.Number)
				yield(nil, err)
				return
			}
			s.addStats(1, 0)

			if !yield(change, nil) {
				return
			}
		}
	}
}

// ScrapeAndStore runs a query and saves every change accepted by decision to
// all sinks. A nil decision means core.HasVotes. Sinks are opened before the
// first change and closed exactly once when the run ends, however it ends.
// The returned error is the one that stopped the run; stats cover the changes
// handled until then.
func (s *Scraper) ScrapeAndStore(ctx context.Context, opts ScrapeOptions, decision core.StoreDecision) (Stats, error) {
	if decision == nil {
		decision = core.HasVotes
	}

	var run Stats

	opened, err := s.openSinks(ctx)
	defer s.closeSinks(opened)
	if err != nil {
		s.logger.Error("failed to open sinks", "error", err)
		return run, err
	}

	for change, err := range s.Changes(ctx, opts) {
		if err != nil {
			s.logger.Error("scrape stopped", "processed", run.Processed, "stored", run.Stored, "error", err)
			return run, fmt.Errorf("scrape stopped after %d changes: %w", run.Processed, err)
		}
		run.Processed++

		if !decision.ShouldStore(change) {
			s.logger.Info("skipping change", "change", change.Number)
			continue
		}

		s.logger.Info("storing change", "change", change.Number)
		for _, sink := range opened {
			n := sink.SaveChange(ctx, change)
			run.Stored += n
			s.addStats(0, n)
		}
	}

	s.logger.Info("scrape finished", "processed", run.Processed, "stored", run.Stored)
	return run, nil
}

func (s *Scraper) openSinks(ctx context.Context) ([]core.Sink, error) {
	opened := make([]core.Sink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		if err := sink.Open(ctx); err != nil {
			return opened, fmt.Errorf("failed to open sink %s: %w", sink.Name(), err)
		}
		s.logger.Debug("opened sink", "sink", sink.Name())
		opened = append(opened, sink)
	}
	return opened, nil
}

func (s *Scraper) closeSinks(sinks []core.Sink) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			s.logger.Error("failed to close sink", "sink", sink.Name(), "error", err)
		}
	}
}
