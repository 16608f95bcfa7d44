package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sevigo/review-scraper/internal/core"
	"github.com/sevigo/review-scraper/internal/gerrit"
)

// Query describes a changes search. PageSize 0 omits the n parameter and lets
// the server pick; PageLimit 0 means no limit on the number of pages.
type Query struct {
	Q         string
	Options   []string
	PageSize  int
	PageLimit int
}

// Path returns the request path for the page starting at start.
func (q Query) Path(start int) string {
	var b strings.Builder
	b.WriteString("/changes/?q=")
	b.WriteString(url.QueryEscape(q.Q))
	for _, o := range q.Options {
		b.WriteString("&o=")
		b.WriteString(url.QueryEscape(o))
	}
	if q.PageSize > 0 {
		fmt.Fprintf(&b, "&n=%d", q.PageSize)
	}
	fmt.Fprintf(&b, "&start=%d", start)
	return b.String()
}

// Paginator walks the result pages of a changes query using the start offset.
type Paginator struct {
	client    gerrit.Client
	pageDelay time.Duration
	retry     RetryPolicy
	sleep     sleepFunc
	logger    *slog.Logger
}

// NewPaginator creates a paginator that waits pageDelay between pages and
// retries failed pages according to retry.
func NewPaginator(client gerrit.Client, pageDelay time.Duration, retry RetryPolicy, logger *slog.Logger) *Paginator {
	return &Paginator{
		client:    client,
		pageDelay: pageDelay,
		retry:     retry,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// Pages returns the changes matched by q, one at a time. All changes of a
// page are yielded before the next page is requested. A failed page is
// retried from the same offset; the sequence only ends with an error when
// ctx is done or the retry policy gives up.
func (p *Paginator) Pages(ctx context.Context, q Query) iter.Seq2[*core.Change, error] {
	return func(yield func(*core.Change, error) bool) {
		page, start, failures := 1, 0, 0
		backoff := p.retry.Backoff()

		for {
			path := q.Path(start)
			changes, err := p.fetchPage(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
				failures++
				p.logger.Error("failed to fetch changes page", "page", page, "start", start, "failures", failures, "error", err)
				delay, stop := backoff.Next()
				if stop {
					yield(nil, &RetryExhaustedError{Attempts: failures, Start: start, Err: err})
					return
				}
				p.logger.Info("waiting before retrying page", "page", page, "delay", delay)
				if err := p.sleep(ctx, delay); err != nil {
					yield(nil, err)
					return
				}
				continue
			}
			if failures > 0 {
				failures = 0
				backoff = p.retry.Backoff()
			}

			p.logger.Info("fetched changes page", "page", page, "start", start, "changes", len(changes))
			if len(changes) == 0 {
				return
			}

			hasMore := changes[len(changes)-1].MoreChanges
			for _, change := range changes {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				if !yield(change, nil) {
					return
				}
			}

			if !hasMore || (q.PageLimit > 0 && page >= q.PageLimit) {
				return
			}
			start += len(changes)
			page++

			p.logger.Info("waiting before next page", "page", page, "delay", p.pageDelay)
			if err := p.sleep(ctx, p.pageDelay); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

func (p *Paginator) fetchPage(ctx context.Context, path string) ([]*core.Change, error) {
	p.logger.Debug("requesting changes", "path", path)

	body, err := p.client.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	var changes []*core.Change
	if err := json.Unmarshal(body, &changes); err != nil {
		return nil, fmt.Errorf("failed to decode changes page: %w", err)
	}

	out := changes[:0]
	for _, c := range changes {
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}
