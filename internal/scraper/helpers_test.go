package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sevigo/review-scraper/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func withSleeper(f sleepFunc) Option {
	return func(s *Scraper) { s.sleep = f }
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// diffClient answers diff requests with {"file": "<path>"} after a random
// delay, so completion order differs from submission order.
type diffClient struct {
	mu       sync.Mutex
	requests []string
	fail     map[string]bool
	panics   map[string]bool
}

func (c *diffClient) Get(ctx context.Context, path string) (json.RawMessage, error) {
	c.mu.Lock()
	c.requests = append(c.requests, path)
	c.mu.Unlock()

	time.Sleep(time.Duration(rand.IntN(15)) * time.Millisecond)

	file, err := fileFromDiffPath(path)
	if err != nil {
		return nil, err
	}
	if c.panics[file] {
		panic("diff decoder crashed on " + file)
	}
	if c.fail[file] {
		return nil, fmt.Errorf("diff for %s unavailable", file)
	}
	body, _ := json.Marshal(map[string]string{"file": file})
	return body, nil
}

func (c *diffClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func fileFromDiffPath(path string) (string, error) {
	start := strings.Index(path, "/files/")
	end := strings.LastIndex(path, "/diff")
	if start < 0 || end < start {
		return "", fmt.Errorf("not a diff path: %s", path)
	}
	return url.QueryUnescape(path[start+len("/files/") : end])
}

func diffFile(change *core.Change, revision, file string) string {
	f := change.Revisions[revision].Files[file]
	if f == nil || f.Diff == nil {
		return ""
	}
	var body map[string]string
	_ = json.Unmarshal(f.Diff, &body)
	return body["file"]
}

func newChange(number int, revisions map[string]int, files ...string) *core.Change {
	c := &core.Change{Number: number, Revisions: map[string]*core.Revision{}}
	for id, n := range revisions {
		rev := &core.Revision{Number: n, Files: map[string]*core.FileInfo{}}
		for _, f := range files {
			rev.Files[f] = &core.FileInfo{}
		}
		c.Revisions[id] = rev
	}
	return c
}
