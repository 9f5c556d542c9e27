// Package store caches best-effort lookup payloads (encyclopedia summaries,
// product database hits) so repeated scans do not refetch them. Pipeline
// state is never persisted.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/internal/config"
)

// Lookup sources.
const (
	SourceWikipedia     = "wikipedia"
	SourceOpenFoodFacts = "openfoodfacts"
)

// Cache stores lookup payloads keyed by (source, term).
type Cache interface {
	// GetLookup returns the cached payload, or nil when absent or expired.
	GetLookup(ctx context.Context, source, term string) ([]byte, error)
	SetLookup(ctx context.Context, source, term string, data []byte, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the cache selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch cfg.Driver {
	case "none", "":
		return Noop{}, nil
	case "sqlite":
		c, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		c, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Migrate(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NormalizeTerm is the cache key form of a lookup term.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}

// Noop is a Cache that stores nothing.
type Noop struct{}

func (Noop) GetLookup(context.Context, string, string) ([]byte, error) { return nil, nil }

func (Noop) SetLookup(context.Context, string, string, []byte, time.Duration) error { return nil }

func (Noop) DeleteExpired(context.Context) (int, error) { return 0, nil }

func (Noop) Migrate(context.Context) error { return nil }

func (Noop) Close() error { return nil }
