package wire

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-scraper/internal/config"
	"github.com/sevigo/review-scraper/internal/logger"
)

func TestInitializeApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/changes/" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, ")]}'\n"+`[{"_number":4,"labels":{"Code-Review":{"all":[{"value":-1}]}}}]`)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Gerrit:  config.GerritConfig{URL: srv.URL, Timeout: 5 * time.Second},
		Scrape:  config.ScrapeConfig{Query: config.DefaultQuery, Workers: 1},
		Retry:   config.RetryConfig{Growth: 1},
		Storage: config.StorageConfig{DryRun: true, Database: config.DBConfig{KeyReplace: ".", KeyReplacement: "__dot__"}},
		Logging: logger.Config{Level: "error"},
	}

	app, cleanup, err := InitializeApp(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	stats, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, []int{4}, app.Sinks.Memory.Numbers())
}

func TestInitializeApp_InvalidURL(t *testing.T) {
	cfg := &config.Config{Gerrit: config.GerritConfig{URL: "review.example.org"}}

	_, _, err := InitializeApp(context.Background(), cfg)
	assert.Error(t, err)
}
