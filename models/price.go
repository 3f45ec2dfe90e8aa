package models

import "time"

// RegionPrice is the column group stored per region on a product row.
type RegionPrice struct {
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`
	Title    *string  `json:"title"`
	ImageURL *string  `json:"imageUrl"`
}

// PriceRecord is the persisted per-product row. Regions holds only the column
// groups to write (on upsert) or the groups with data (on read).
type PriceRecord struct {
	ProductID string                 `json:"productId"`
	Title     *string                `json:"title"`
	ImageURL  *string                `json:"imageUrl"`
	Regions   map[string]RegionPrice `json:"regions"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// PricePoint is one row of the append-only price history.
type PricePoint struct {
	ID           int64         `json:"id" db:"id"`
	ProductID    string        `json:"productId" db:"product_id"`
	Region       string        `json:"region" db:"region"`
	Status       OutcomeStatus `json:"status" db:"status"`
	Price        *float64      `json:"price" db:"price"`
	Currency     string        `json:"currency" db:"currency"`
	Seller       *string       `json:"seller" db:"seller"`
	DataSource   string        `json:"dataSource" db:"data_source"`
	ErrorMessage *string       `json:"errorMessage,omitempty" db:"error_message"`
	ElapsedMs    int64         `json:"elapsedMs" db:"elapsed_ms"`
	BatchID      string        `json:"batchId" db:"batch_id"`
	ScrapedAt    time.Time     `json:"scrapedAt" db:"scraped_at"`
}

// PriceChange compares one region's new price with the stored one.
type PriceChange struct {
	Region        string  `json:"region" db:"region"`
	Currency      string  `json:"currency" db:"currency"`
	OldPrice      float64 `json:"oldPrice" db:"old_price"`
	NewPrice      float64 `json:"newPrice" db:"new_price"`
	Change        float64 `json:"priceChange" db:"price_change"`
	ChangePercent float64 `json:"priceChangePercentage" db:"price_change_percentage"`
	Alert         bool    `json:"alert" db:"-"`
}

func (c PriceChange) Direction() string {
	if c.Change > 0 {
		return "increase"
	}
	return "decrease"
}

// PriceAlert is a stored price change that crossed the alert threshold.
type PriceAlert struct {
	ID        int64     `json:"id" db:"id"`
	ProductID string    `json:"productId" db:"product_id"`
	BatchID   string    `json:"batchId" db:"batch_id"`
	AlertType string    `json:"alertType" db:"alert_type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	PriceChange
}
