package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-scraper/internal/workerpool"
)

func TestDiffPath(t *testing.T) {
	assert.Equal(t,
		"/changes/42/revisions/3/files/src%2Fmain%2Fjava%2FApp+Main.java/diff",
		DiffPath(42, 3, "src/main/java/App Main.java"),
	)
	assert.Equal(t, "/changes/1/revisions/1/files/%2FCOMMIT_MSG/diff", DiffPath(1, 1, "/COMMIT_MSG"))
}

func TestDiffFanout_AttachesDiffsToMatchingFiles(t *testing.T) {
	pool := workerpool.New(2, testLogger())
	defer pool.Close()

	client := &diffClient{}
	fanout := NewDiffFanout(client, pool, testLogger())

	files := []string{"a/alpha.go", "b/beta.go", "c d/gamma.go"}
	for range 5 {
		change := newChange(100, map[string]int{"rev1": 1}, files...)
		fanout.Enrich(context.Background(), change, true)

		for _, f := range files {
			assert.Equal(t, f, diffFile(change, "rev1", f))
		}
	}
	assert.Equal(t, 15, client.requestCount())
}

func TestDiffFanout_LastRevisionOnly(t *testing.T) {
	pool := workerpool.New(3, testLogger())
	defer pool.Close()

	client := &diffClient{}
	fanout := NewDiffFanout(client, pool, testLogger())

	change := newChange(7, map[string]int{"old": 1, "new": 3, "mid": 2}, "x.go", "y.go")
	fanout.Enrich(context.Background(), change, true)

	assert.Equal(t, "x.go", diffFile(change, "new", "x.go"))
	assert.Equal(t, "y.go", diffFile(change, "new", "y.go"))
	assert.Empty(t, diffFile(change, "old", "x.go"))
	assert.Empty(t, diffFile(change, "mid", "y.go"))
	assert.Equal(t, 2, client.requestCount())
}

func TestDiffFanout_AllRevisions(t *testing.T) {
	pool := workerpool.New(2, testLogger())
	defer pool.Close()

	client := &diffClient{}
	fanout := NewDiffFanout(client, pool, testLogger())

	change := newChange(7, map[string]int{"old": 1, "new": 2}, "x.go")
	fanout.Enrich(context.Background(), change, false)

	assert.Equal(t, "x.go", diffFile(change, "old", "x.go"))
	assert.Equal(t, "x.go", diffFile(change, "new", "x.go"))
}

func TestDiffFanout_FailedFileHasNoDiff(t *testing.T) {
	pool := workerpool.New(2, testLogger())
	defer pool.Close()

	client := &diffClient{fail: map[string]bool{"broken.go": true}}
	fanout := NewDiffFanout(client, pool, testLogger())

	change := newChange(9, map[string]int{"r": 1}, "ok.go", "broken.go", "fine.go")
	fanout.Enrich(context.Background(), change, true)

	assert.Equal(t, "ok.go", diffFile(change, "r", "ok.go"))
	assert.Equal(t, "fine.go", diffFile(change, "r", "fine.go"))
	assert.Nil(t, change.Revisions["r"].Files["broken.go"].Diff)
}

func TestDiffFanout_PanickingRequestLeavesFileWithoutDiff(t *testing.T) {
	pool := workerpool.New(2, testLogger())

	client := &diffClient{panics: map[string]bool{"crash.go": true}}
	fanout := NewDiffFanout(client, pool, testLogger())

	change := newChange(11, map[string]int{"r": 1}, "ok.go", "crash.go")
	fanout.Enrich(context.Background(), change, true)

	assert.Equal(t, "ok.go", diffFile(change, "r", "ok.go"))
	assert.Nil(t, change.Revisions["r"].Files["crash.go"].Diff)

	err := pool.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crash.go")
}

func TestDiffFanout_ClosedPool(t *testing.T) {
	pool := workerpool.New(2, testLogger())
	pool.Close()

	client := &diffClient{}
	fanout := NewDiffFanout(client, pool, testLogger())

	change := newChange(9, map[string]int{"r": 1}, "a.go", "b.go")
	fanout.Enrich(context.Background(), change, true)

	assert.Nil(t, change.Revisions["r"].Files["a.go"].Diff)
	assert.Zero(t, client.requestCount())
}

func TestSelectRevisions(t *testing.T) {
	change := newChange(1, map[string]int{"c": 2, "a": 1, "b": 2})

	assert.Equal(t, []string{"a", "b", "c"}, SelectRevisions(change, false))
	assert.Equal(t, []string{"b"}, SelectRevisions(change, true))

	empty := newChange(2, nil)
	require.Empty(t, SelectRevisions(empty, true))
	require.Empty(t, SelectRevisions(empty, false))
}
