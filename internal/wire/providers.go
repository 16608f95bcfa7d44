package wire

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/sevigo/review-scraper/internal/app"
	"github.com/sevigo/review-scraper/internal/config"
	"github.com/sevigo/review-scraper/internal/gerrit"
	"github.com/sevigo/review-scraper/internal/logger"
)

var AppSet = wire.NewSet(
	app.NewApp,
	app.NewSinks,
	app.NewScraper,
	provideLogger,
	provideGerritClient,
)

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(cfg.Logging, nil)
}

func provideGerritClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gerrit.Client, error) {
	auth := gerrit.Auth{
		Username: cfg.Gerrit.Username,
		Password: cfg.Gerrit.Password,
		Token:    cfg.Gerrit.Token,
	}
	return gerrit.NewClient(ctx, cfg.Gerrit.URL, auth, cfg.Gerrit.Timeout, logger)
}
