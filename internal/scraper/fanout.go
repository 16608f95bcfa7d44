package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"github.com/sevigo/review-scraper/internal/core"
	"github.com/sevigo/review-scraper/internal/gerrit"
	"github.com/sevigo/review-scraper/internal/workerpool"
)

// DiffFanout fetches file diffs of a change's revisions on a shared worker
// pool. The pool is owned by the caller and outlives the fanout.
type DiffFanout struct {
	client gerrit.Client
	pool   *workerpool.Pool
	logger *slog.Logger
}

var errDiffAborted = errors.New("diff request aborted")

type diffResult struct {
	path string
	diff json.RawMessage
	err  error
}

// NewDiffFanout creates a fanout that dispatches to pool.
func NewDiffFanout(client gerrit.Client, pool *workerpool.Pool, logger *slog.Logger) *DiffFanout {
	return &DiffFanout{client: client, pool: pool, logger: logger}
}

// DiffPath returns the diff endpoint of a file within a revision.
func DiffPath(changeNumber, revisionNumber int, filePath string) string {
	return fmt.Sprintf("/changes/%d/revisions/%d/files/%s/diff", changeNumber, revisionNumber, url.QueryEscape(filePath))
}

// Enrich attaches diffs to the files of the selected revisions. Failures are
// logged; files whose diff could not be fetched are left without one.
func (f *DiffFanout) Enrich(ctx context.Context, change *core.Change, lastRevisionOnly bool) {
	for _, id := range SelectRevisions(change, lastRevisionOnly) {
		f.fillRevision(ctx, change, change.Revisions[id])
	}
}

// SelectRevisions returns the revision keys to enrich, in sorted order. With
// lastRevisionOnly it returns the key of the revision with the highest
// number; when several revisions share that number the smallest key wins.
func SelectRevisions(change *core.Change, lastRevisionOnly bool) []string {
	ids := make([]string, 0, len(change.Revisions))
	for id, rev := range change.Revisions {
		if rev != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	if !lastRevisionOnly {
		return ids
	}
	last, ok := LastRevisionNumber(change)
	if !ok {
		return nil
	}
	for _, id := range ids {
		if change.Revisions[id].Number == last {
			return []string{id}
		}
	}
	return nil
}

func (f *DiffFanout) fillRevision(ctx context.Context, change *core.Change, revision *core.Revision) {
	if len(revision.Files) == 0 {
		return
	}

	paths := make([]string, 0, len(revision.Files))
	for p := range revision.Files {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	results := make(chan diffResult, len(paths))
	submitted := 0
	for _, p := range paths {
		reqPath := DiffPath(change.Number, revision.Number, p)
		err := f.pool.Submit(ctx, func(ctx context.Context) {
			res := diffResult{path: p, err: errDiffAborted}
			defer func() { results <- res }()
			res.diff, res.err = f.client.Get(ctx, reqPath)
		})
		if err != nil {
			f.logger.Error("failed to submit diff requests",
				"change", change.Number,
				"revision", revision.Number,
				"submitted", submitted,
				"error", err,
			)
			break
		}
		submitted++
	}

	fetched := 0
	for range submitted {
		res := <-results
		if res.err != nil {
			f.logger.Warn("failed to fetch file diff",
				"change", change.Number,
				"revision", revision.Number,
				"file", res.path,
				"error", res.err,
			)
			continue
		}
		if file := revision.Files[res.path]; file != nil {
			file.Diff = res.diff
			fetched++
		}
	}

	f.logger.Info("processed revision", "change", change.Number, "revision", revision.Number, "files", len(paths), "diffs", fetched)
}
