package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sevigo/review-scraper/internal/core"
)

// Document is a change as stored in a Collection.
type Document = map[string]any

// Collection is a keyed document store holding one document per change
// number.
type Collection interface {
	FindByNumber(ctx context.Context, number int) (Document, bool, error)
	Upsert(ctx context.Context, number int, doc Document) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// OpenCollectionFunc connects to the backing store of a CollectionSink.
type OpenCollectionFunc func(ctx context.Context) (Collection, error)

// CollectionOptions controls how a CollectionSink writes.
type CollectionOptions struct {
	// ClearBefore removes every stored document when the sink is opened.
	ClearBefore bool
	// SkipExisting keeps documents that are already stored untouched.
	SkipExisting bool
	Transform    KeyTransform
}

// DefaultCollectionOptions purges the collection on open and overwrites
// existing documents.
func DefaultCollectionOptions() CollectionOptions {
	return CollectionOptions{
		ClearBefore: true,
		Transform:   DefaultKeyTransform(),
	}
}

// CollectionSink stores changes as documents in a Collection, keyed by
// change number.
type CollectionSink struct {
	name    string
	connect OpenCollectionFunc
	opts    CollectionOptions
	logger  *slog.Logger

	coll Collection
}

func NewCollectionSink(name string, connect OpenCollectionFunc, opts CollectionOptions, logger *slog.Logger) *CollectionSink {
	return &CollectionSink{
		name:    name,
		connect: connect,
		opts:    opts,
		logger:  logger,
	}
}

func (s *CollectionSink) Name() string { return s.name }

// Open connects to the collection and purges it when ClearBefore is set.
func (s *CollectionSink) Open(ctx context.Context) error {
	if s.coll != nil {
		return fmt.Errorf("collection sink %s is already open", s.name)
	}
	if err := s.opts.Transform.Validate(); err != nil {
		return err
	}

	coll, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", s.name, err)
	}

	if s.opts.ClearBefore {
		if err := coll.DeleteAll(ctx); err != nil {
			return errors.Join(fmt.Errorf("failed to clear collection %s: %w", s.name, err), coll.Close())
		}
		s.logger.Info("collection cleared", "sink", s.name)
	}
	s.coll = coll
	return nil
}

// SaveChange writes change into the collection, replacing the document with
// the same number. It returns 1 when a document was written and 0 when the
// change was skipped or the write failed.
func (s *CollectionSink) SaveChange(ctx context.Context, change *core.Change) int {
	if s.coll == nil {
		s.logger.Error("collection sink is not open", "sink", s.name, "change", change.Number)
		return 0
	}
	change.StripPaginationMarker()

	if !s.opts.ClearBefore || s.opts.SkipExisting {
		_, found, err := s.coll.FindByNumber(ctx, change.Number)
		if err != nil {
			s.logger.Error("failed to look up change", "sink", s.name, "change", change.Number, "error", err)
			return 0
		}
		if found && s.opts.SkipExisting {
			s.logger.Info("skipping existing change", "sink", s.name, "change", change.Number)
			return 0
		}
	}

	doc, err := change.Document()
	if err != nil {
		s.logger.Error("failed to encode change", "sink", s.name, "change", change.Number, "error", err)
		return 0
	}
	if err := s.coll.Upsert(ctx, change.Number, s.opts.Transform.Incoming(doc)); err != nil {
		s.logger.Error("failed to store change", "sink", s.name, "change", change.Number, "error", err)
		return 0
	}
	return 1
}

// Find returns the stored document for number with its original keys
// restored.
func (s *CollectionSink) Find(ctx context.Context, number int) (Document, bool, error) {
	if s.coll == nil {
		return nil, false, fmt.Errorf("collection sink %s is not open", s.name)
	}
	doc, found, err := s.coll.FindByNumber(ctx, number)
	if err != nil || !found {
		return nil, found, err
	}
	return s.opts.Transform.Outgoing(doc), true, nil
}

// Count returns the number of stored documents.
func (s *CollectionSink) Count(ctx context.Context) (int, error) {
	if s.coll == nil {
		return 0, fmt.Errorf("collection sink %s is not open", s.name)
	}
	return s.coll.Count(ctx)
}

// Close releases the collection. Calling Close on a sink that is not open is
// a no-op.
func (s *CollectionSink) Close() error {
	if s.coll == nil {
		return nil
	}
	coll := s.coll
	s.coll = nil
	return coll.Close()
}

// MemoryCollection is an in-process Collection. It backs dry runs and keeps
// its documents after Close so they can be inspected.
type MemoryCollection struct {
	mu   sync.RWMutex
	docs map[int]Document
}

func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{docs: make(map[int]Document)}
}

// Opener returns an OpenCollectionFunc that always yields c.
func (c *MemoryCollection) Opener() OpenCollectionFunc {
	return func(context.Context) (Collection, error) { return c, nil }
}

func (c *MemoryCollection) FindByNumber(_ context.Context, number int) (Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[number]
	return doc, ok, nil
}

func (c *MemoryCollection) Upsert(_ context.Context, number int, doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[number] = doc
	return nil
}

func (c *MemoryCollection) DeleteAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.docs)
	return nil
}

func (c *MemoryCollection) Count(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

// Numbers returns the stored change numbers in ascending order.
func (c *MemoryCollection) Numbers() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	numbers := make([]int, 0, len(c.docs))
	for n := range c.docs {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func (c *MemoryCollection) Close() error { return nil }
