// Package postgres provides the optional Postgres-backed product sink.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ProductStoreConfig controls the connection pool used for product rows.
type ProductStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ProductStore writes accepted product rows into Postgres.
type ProductStore struct {
	pool  execCloser
	table string
}

// NewProductStore creates a Postgres-backed ProductStore using the
// provided config.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pool, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProductStoreWithPool(pool execCloser, table string) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProductStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Store inserts one product row, skipping duplicates by source URL.
func (s *ProductStore) Store(ctx context.Context, p catalog.Product) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("product store is not configured")
	}
	if p.URL == "" {
		return fmt.Errorf("product url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, name, price, category, url, photo_url, composition, tags,
	weight, energy_100g, protein_100g, fat_100g, carbs_100g
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (url) DO NOTHING`, s.table)

	_, err := s.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Price,
		p.Category,
		p.URL,
		p.PhotoURL,
		p.Composition,
		strings.Join(p.Tags, ";"),
		p.Weight,
		p.Energy,
		p.Protein,
		p.Fat,
		p.Carbs,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}
