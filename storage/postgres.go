package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"price_crew/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	codes []string
	known map[string]bool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema creates the price tables and adds any missing column group for
// the given region codes. Existing columns are never dropped.
func (s *PostgresStore) EnsureSchema(ctx context.Context, codes []string) error {
	if err := checkCodes(codes); err != nil {
		return err
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS product_prices (
			product_id TEXT PRIMARY KEY,
			title TEXT,
			image_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id BIGSERIAL PRIMARY KEY,
			product_id TEXT NOT NULL,
			region TEXT NOT NULL,
			status TEXT NOT NULL,
			price DOUBLE PRECISION,
			currency TEXT,
			seller TEXT,
			data_source TEXT,
			error_message TEXT,
			elapsed_ms BIGINT,
			batch_id TEXT,
			scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id, scraped_at DESC)`,
	}
	if defs := columnDDL(codes, "DOUBLE PRECISION", "TEXT"); len(defs) > 0 {
		adds := make([]string, len(defs))
		for i, d := range defs {
			adds[i] = "ADD COLUMN IF NOT EXISTS " + d
		}
		stmts = append(stmts, "ALTER TABLE product_prices "+strings.Join(adds, ", "))
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	s.mu.Lock()
	s.codes = append([]string(nil), codes...)
	s.known = codeSet(codes)
	s.mu.Unlock()
	return nil
}

// =============================================================================
// Prices
// =============================================================================

func (s *PostgresStore) UpsertPrices(ctx context.Context, rec *models.PriceRecord) error {
	s.mu.RLock()
	query, args, err := buildPriceUpsert(s.known, rec, pgPlaceholder, time.Now().UTC())
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

// GetPrices returns the stored row for productID, or nil when there is none.
func (s *PostgresStore) GetPrices(ctx context.Context, productID string) (*models.PriceRecord, error) {
	s.mu.RLock()
	codes := s.codes
	s.mu.RUnlock()

	row := s.pool.QueryRow(ctx, buildPriceSelect(codes, "$1"), productID)
	rec, err := scanPriceRow(row.Scan, codes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// =============================================================================
// Price history
// =============================================================================

func (s *PostgresStore) AppendHistory(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO price_history (product_id, region, status, price, currency, seller,
				data_source, error_message, elapsed_ms, batch_id, scraped_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ProductID, p.Region, string(p.Status), p.Price, p.Currency, p.Seller,
			p.DataSource, p.ErrorMessage, p.ElapsedMs, p.BatchID, p.ScrapedAt)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, region, status, price, COALESCE(currency, ''), seller,
			COALESCE(data_source, ''), error_message, COALESCE(elapsed_ms, 0), COALESCE(batch_id, ''), scraped_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY scraped_at DESC, id DESC
		LIMIT $2`, productID, historyLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Region, &p.Status, &p.Price, &p.Currency, &p.Seller,
			&p.DataSource, &p.ErrorMessage, &p.ElapsedMs, &p.BatchID, &p.ScrapedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func pgPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
