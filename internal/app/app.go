// Package app wires the configuration, the Gerrit client, the storage sinks
// and the scraper of review-scraper together.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/review-scraper/internal/config"
	"github.com/sevigo/review-scraper/internal/core"
	"github.com/sevigo/review-scraper/internal/gerrit"
	"github.com/sevigo/review-scraper/internal/scraper"
	"github.com/sevigo/review-scraper/internal/storage"
)

// Sinks are the configured storage sinks of a run.
type Sinks struct {
	All []core.Sink
	// Collection is the collection sink among All, nil when none is
	// configured.
	Collection *storage.CollectionSink
	// Memory backs the collection sink of a dry run.
	Memory *storage.MemoryCollection
}

// App holds the main application components.
type App struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Client  gerrit.Client
	Scraper *scraper.Scraper
	Sinks   Sinks
}

// NewApp sets up the application with all its dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger, client gerrit.Client, sinks Sinks, s *scraper.Scraper) *App {
	return &App{
		Cfg:     cfg,
		Logger:  logger,
		Client:  client,
		Scraper: s,
		Sinks:   sinks,
	}
}

// NewSinks builds the sinks enabled in cfg.
func NewSinks(cfg *config.Config, logger *slog.Logger) Sinks {
	var sinks Sinks
	dbCfg := cfg.Storage.Database
	opts := storage.CollectionOptions{
		ClearBefore:  dbCfg.ClearBefore,
		SkipExisting: dbCfg.SkipExisting,
		Transform:    storage.KeyTransform{Replace: dbCfg.KeyReplace, Replacement: dbCfg.KeyReplacement},
	}

	if cfg.Storage.DryRun {
		sinks.Memory = storage.NewMemoryCollection()
		sinks.Collection = storage.NewCollectionSink("memory", sinks.Memory.Opener(), opts, logger)
		sinks.All = append(sinks.All, sinks.Collection)
		return sinks
	}

	if cfg.Storage.JSON.Enabled {
		sinks.All = append(sinks.All, storage.NewJSONFileSink(cfg.Storage.JSON.Path, logger))
	}
	if dbCfg.Enabled {
		sinks.Collection = storage.NewCollectionSink("postgres", storage.PostgresOpener(&dbCfg, logger), opts, logger)
		sinks.All = append(sinks.All, sinks.Collection)
	}
	return sinks
}

// NewScraper creates the scraper configured by cfg.
func NewScraper(cfg *config.Config, client gerrit.Client, sinks Sinks, logger *slog.Logger) *scraper.Scraper {
	return scraper.New(client, logger,
		scraper.WithSinks(sinks.All...),
		scraper.WithWorkers(cfg.Scrape.Workers),
		scraper.WithPageDelay(cfg.Scrape.PageDelay),
		scraper.WithRetryPolicy(RetryPolicy(cfg)),
	)
}

// RetryPolicy converts the retry settings. A zero base delay falls back to
// the page delay.
func RetryPolicy(cfg *config.Config) scraper.RetryPolicy {
	base := cfg.Retry.BaseDelay
	if base == 0 {
		base = cfg.Scrape.PageDelay
	}
	return scraper.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   base,
		Growth:      cfg.Retry.Growth,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
}

// ScrapeOptions returns what a run retrieves.
func (a *App) ScrapeOptions() scraper.ScrapeOptions {
	return scraper.ScrapeOptions{
		Query: scraper.Query{
			Q:         a.Cfg.Scrape.Query,
			Options:   a.Cfg.Scrape.Options,
			PageSize:  a.Cfg.Scrape.PageSize,
			PageLimit: a.Cfg.Scrape.Pages,
		},
		LastRevisionOnly: !a.Cfg.Scrape.AllRevisions,
	}
}

// StoreDecision returns the rule deciding which changes are stored.
func (a *App) StoreDecision() core.StoreDecision {
	if a.Cfg.Scrape.StoreAll {
		return core.StoreAll
	}
	return core.HasVotes
}

// Run scrapes the configured instance into every sink.
func (a *App) Run(ctx context.Context) (scraper.Stats, error) {
	a.Logger.Info("starting scrape",
		"url", a.Cfg.Gerrit.URL,
		"query", a.Cfg.Scrape.Query,
		"workers", a.Cfg.Scrape.Workers,
		"all_revisions", a.Cfg.Scrape.AllRevisions,
		"sinks", len(a.Sinks.All))

	stats, err := a.Scraper.ScrapeAndStore(ctx, a.ScrapeOptions(), a.StoreDecision())
	if err != nil {
		return stats, fmt.Errorf("scrape of %s failed: %w", a.Cfg.Gerrit.URL, err)
	}
	a.Logger.Info("scrape finished", "processed", stats.Processed, "stored", stats.Stored)
	return stats, nil
}

// Show reads one stored change back from the database. It never purges the
// collection, whatever clear_before says.
func (a *App) Show(ctx context.Context, number int) (storage.Document, error) {
	dbCfg := a.Cfg.Storage.Database
	opts := storage.CollectionOptions{
		Transform: storage.KeyTransform{Replace: dbCfg.KeyReplace, Replacement: dbCfg.KeyReplacement},
	}
	sink := storage.NewCollectionSink("postgres", storage.PostgresOpener(&dbCfg, a.Logger), opts, a.Logger)
	if err := sink.Open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			a.Logger.Warn("failed to close collection", "error", err)
		}
	}()

	doc, found, err := sink.Find(ctx, number)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("change %d is not stored", number)
	}
	return doc, nil
}
