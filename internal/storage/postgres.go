package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/review-scraper/internal/config"
	"github.com/sevigo/review-scraper/internal/db"
)

// PostgresCollection stores change documents in the JSONB "changes" table.
type PostgresCollection struct {
	db      *sqlx.DB
	release func()
}

// NewPostgresCollection wraps an open connection. release is called by Close
// and may be nil.
func NewPostgresCollection(conn *sqlx.DB, release func()) *PostgresCollection {
	return &PostgresCollection{db: conn, release: release}
}

// PostgresOpener connects to the database described by cfg and applies the
// schema migrations each time a sink is opened.
func PostgresOpener(cfg *config.DBConfig, logger *slog.Logger) OpenCollectionFunc {
	return func(ctx context.Context) (Collection, error) {
		conn, cleanup, err := db.NewDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewPostgresCollection(conn.DB, cleanup), nil
	}
}

// FindByNumber loads the document stored for a change number.
func (c *PostgresCollection) FindByNumber(ctx context.Context, number int) (Document, bool, error) {
	var raw []byte
	err := c.db.GetContext(ctx, &raw, `SELECT document FROM changes WHERE number = $1`, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load change %d: %w", number, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode change %d: %w", number, err)
	}
	return doc, true, nil
}

// Upsert inserts the document or replaces the one stored for the same number.
func (c *PostgresCollection) Upsert(ctx context.Context, number int, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode change %d: %w", number, err)
	}
	query := `
		INSERT INTO changes (number, document, created_at, updated_at)
		VALUES ($1, $2::jsonb, NOW(), NOW())
		ON CONFLICT (number) DO UPDATE
		SET document = EXCLUDED.document, updated_at = NOW()`
	if _, err := c.db.ExecContext(ctx, query, number, string(data)); err != nil {
		return fmt.Errorf("failed to store change %d: %w", number, err)
	}
	return nil
}

// DeleteAll removes every stored document.
func (c *PostgresCollection) DeleteAll(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM changes`); err != nil {
		return fmt.Errorf("failed to clear changes: %w", err)
	}
	return nil
}

func (c *PostgresCollection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM changes`); err != nil {
		return 0, fmt.Errorf("failed to count changes: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection.
func (c *PostgresCollection) Close() error {
	if c.release != nil {
		c.release()
		c.release = nil
	}
	return nil
}
