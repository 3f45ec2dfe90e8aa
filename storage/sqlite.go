package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"price_crew/models"
)

// SQLiteStore holds operational data (runs, logs, commands, region health,
// watchlist). It doubles as the price store when no Postgres is configured.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.RWMutex
	codes []string
	known map[string]bool
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatch_runs (
		id INTEGER PRIMARY KEY,
		batch_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		regions TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		unavailable INTEGER DEFAULT 0,
		persist_error TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		batch_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS region_health (
		id INTEGER PRIMARY KEY,
		region TEXT NOT NULL,
		status TEXT NOT NULL,
		latency_ms INTEGER,
		error_message TEXT,
		checked_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS watchlist (
		product_id TEXT PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS price_alerts (
		id INTEGER PRIMARY KEY,
		product_id TEXT NOT NULL,
		batch_id TEXT,
		region TEXT NOT NULL,
		currency TEXT,
		old_price REAL,
		new_price REAL,
		price_change REAL,
		price_change_percentage REAL,
		alert_type TEXT,
		created_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_batch ON scrape_logs(batch_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_product ON dispatch_runs(product_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_region_health_checked ON region_health(region, checked_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Prices
// =============================================================================

// EnsureSchema creates the price tables and adds missing region columns.
func (s *SQLiteStore) EnsureSchema(ctx context.Context, codes []string) error {
	if err := checkCodes(codes); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS product_prices (
		product_id TEXT PRIMARY KEY,
		title TEXT,
		image_url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY,
		product_id TEXT NOT NULL,
		region TEXT NOT NULL,
		status TEXT NOT NULL,
		price REAL,
		currency TEXT,
		seller TEXT,
		data_source TEXT,
		error_message TEXT,
		elapsed_ms INTEGER,
		batch_id TEXT,
		scraped_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id, scraped_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	existing, err := s.tableColumns(ctx, pricesTable)
	if err != nil {
		return err
	}
	for _, def := range columnDDL(codes, "REAL", "TEXT") {
		name := strings.Fields(def)[0]
		if existing[name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE "+pricesTable+" ADD COLUMN "+def); err != nil {
			return fmt.Errorf("add column %s: %w", name, err)
		}
	}

	s.mu.Lock()
	s.codes = append([]string(nil), codes...)
	s.known = codeSet(codes)
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (s *SQLiteStore) UpsertPrices(ctx context.Context, rec *models.PriceRecord) error {
	s.mu.RLock()
	query, args, err := buildPriceUpsert(s.known, rec, func(int) string { return "?" }, time.Now().UTC())
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// GetPrices returns the stored row for productID, or nil when there is none.
func (s *SQLiteStore) GetPrices(ctx context.Context, productID string) (*models.PriceRecord, error) {
	s.mu.RLock()
	codes := s.codes
	s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, buildPriceSelect(codes, "?"), productID)
	rec, err := scanPriceRow(row.Scan, codes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (product_id, region, status, price, currency, seller,
			data_source, error_message, elapsed_ms, batch_id, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.ProductID, p.Region, string(p.Status), p.Price, p.Currency,
			p.Seller, p.DataSource, p.ErrorMessage, p.ElapsedMs, p.BatchID, p.ScrapedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, region, status, price, COALESCE(currency, ''), seller,
			COALESCE(data_source, ''), error_message, COALESCE(elapsed_ms, 0), COALESCE(batch_id, ''), scraped_at
		FROM price_history
		WHERE product_id = ?
		ORDER BY scraped_at DESC, id DESC
		LIMIT ?`, productID, historyLimit(limit))
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

// =============================================================================
// Runs and logs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.DispatchRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO dispatch_runs (batch_id, product_id, regions, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.BatchID, run.ProductID, run.Regions, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.DispatchRun) error {
	_, err := s.db.Exec(`
		UPDATE dispatch_runs SET finished_at = ?, status = ?, succeeded = ?, failed = ?,
			unavailable = ?, persist_error = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Succeeded, run.Failed, run.Unavailable, run.PersistError, run.ID)
	return err
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.DispatchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, product_id, regions, started_at, finished_at, status,
			succeeded, failed, unavailable, COALESCE(persist_error, '')
		FROM dispatch_runs ORDER BY started_at DESC, id DESC LIMIT ?`, historyLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.DispatchRun
	for rows.Next() {
		var r models.DispatchRun
		if err := rows.Scan(&r.ID, &r.BatchID, &r.ProductID, &r.Regions, &r.StartedAt, &r.FinishedAt,
			&r.Status, &r.Succeeded, &r.Failed, &r.Unavailable, &r.PersistError); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(batchID *string, level models.LogLevel, message, source string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (batch_id, timestamp, level, message, source)
		VALUES (?, ?, ?, ?, ?)`,
		batchID, time.Now(), level, message, source)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) QueueCommand(cmd models.CommandType, params []byte) (int64, error) {
	var p any
	if len(params) > 0 {
		p = string(params)
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, p, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = []byte(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// =============================================================================
// Region health
// =============================================================================

func (s *SQLiteStore) SaveRegionHealth(results []models.RegionHealth) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, h := range results {
		if _, err := tx.Exec(`
			INSERT INTO region_health (region, status, latency_ms, error_message, checked_at)
			VALUES (?, ?, ?, ?, ?)`,
			h.Region, h.Status, h.LatencyMs, h.ErrorMessage, h.CheckedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestRegionHealth returns the most recent result per region.
func (s *SQLiteStore) LatestRegionHealth() ([]models.RegionHealth, error) {
	rows, err := s.db.Query(`
		SELECT h.region, h.status, h.latency_ms, h.error_message, h.checked_at
		FROM region_health h
		WHERE h.id = (SELECT MAX(id) FROM region_health WHERE region = h.region)
		ORDER BY h.region`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.RegionHealth
	for rows.Next() {
		var h models.RegionHealth
		if err := rows.Scan(&h.Region, &h.Status, &h.LatencyMs, &h.ErrorMessage, &h.CheckedAt); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// =============================================================================
// Price alerts
// =============================================================================

func (s *SQLiteStore) SavePriceAlerts(productID, batchID string, alerts []models.PriceChange) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, a := range alerts {
		if _, err := tx.Exec(`
			INSERT INTO price_alerts (product_id, batch_id, region, currency, old_price, new_price,
				price_change, price_change_percentage, alert_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			productID, batchID, a.Region, a.Currency, a.OldPrice, a.NewPrice,
			a.Change, a.ChangePercent, a.Direction(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentPriceAlerts returns the newest alerts first.
func (s *SQLiteStore) RecentPriceAlerts(limit int) ([]models.PriceAlert, error) {
	rows, err := s.db.Query(`
		SELECT id, product_id, batch_id, region, currency, old_price, new_price,
			price_change, price_change_percentage, alert_type, created_at
		FROM price_alerts ORDER BY id DESC LIMIT ?`, historyLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.PriceAlert
	for rows.Next() {
		var a models.PriceAlert
		if err := rows.Scan(&a.ID, &a.ProductID, &a.BatchID, &a.Region, &a.Currency, &a.OldPrice, &a.NewPrice,
			&a.Change, &a.ChangePercent, &a.AlertType, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Alert = true
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// =============================================================================
// Watchlist
// =============================================================================

func (s *SQLiteStore) AddToWatchlist(productID string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO watchlist (product_id, added_at) VALUES (?, ?)`, productID, time.Now())
	return err
}

func (s *SQLiteStore) RemoveFromWatchlist(productID string) error {
	_, err := s.db.Exec(`DELETE FROM watchlist WHERE product_id = ?`, productID)
	return err
}

func (s *SQLiteStore) Watchlist() ([]string, error) {
	rows, err := s.db.Query(`SELECT product_id FROM watchlist ORDER BY added_at, product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
