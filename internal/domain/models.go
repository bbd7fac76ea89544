// Package domain defines the core data types shared across the application:
// products discovered by the crawler, alerts generated from them, runtime
// settings, and catalog statistics. Product rows are additionally mapped with
// GORM because the catalog is persisted between restarts; alerts and sessions
// are deliberately ephemeral and carry no persistence tags.
package domain

import (
	"time"
)

// AlertCategory labels the rule that promoted a product into an alert.
type AlertCategory string

// Alert categories, in classification priority order.
const (
	CategorySuper       AlertCategory = "super"
	CategoryElectronics AlertCategory = "electronics"
	CategoryBest        AlertCategory = "best"
	CategoryKeyword     AlertCategory = "keyword"
)

// Categories lists all alert categories in priority order (highest first).
var Categories = []AlertCategory{CategorySuper, CategoryElectronics, CategoryBest, CategoryKeyword}

// Product is one discovered discounted item. A product is identified by the
// stable ID assigned by the upstream source; the ingestion timestamp is
// stamped by the catalog, and records are immutable after insertion.
//
// Fields:
//   - ID: stable external identifier; unique within the catalog.
//   - Title / Price / OriginalPrice / Discount / URL: listing data as crawled.
//   - Category: the source shelf the product was found on (e.g. "electronics").
//   - Timestamp: ingestion time in UTC, set by the catalog on first sight.
type Product struct {
	ID            string        `json:"id"                       gorm:"type:varchar(64);primaryKey"`
	Title         string        `json:"title"                    gorm:"type:varchar(512);not null"`
	Price         float64       `json:"price"`
	OriginalPrice float64       `json:"original_price,omitempty"`
	Discount      int           `json:"discount"`
	Category      AlertCategory `json:"category"                 gorm:"type:varchar(16);index"`
	URL           string        `json:"url"                      gorm:"type:varchar(1024)"`
	Timestamp     time.Time     `json:"timestamp"                gorm:"index"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Alert is one notification minted from a classified product. Alert IDs are
// assigned by the alert log from a process-local counter and are strictly
// increasing in creation order; they are never reused, even across eviction.
// Alerts live only in memory and are lost on restart by design.
type Alert struct {
	ID          int64         `json:"id"`
	Category    AlertCategory `json:"category"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Discount    int           `json:"discount"`
	Price       float64       `json:"price"`
	URL         string        `json:"url"`
	ProductID   string        `json:"product_id"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Stats summarizes the current catalog: total retained products, how many
// were ingested within the last hour, and per-category counts.
type Stats struct {
	Total       int `json:"total"`
	New         int `json:"new"`
	Super       int `json:"super"`
	Electronics int `json:"electronics"`
	Best        int `json:"best"`
	Keyword     int `json:"keyword"`
}

// CrawlResult is the outcome of one crawl run, broadcast to all sessions as
// the crawling-finished payload. Error is set (and the other fields zero)
// when the source fetch failed.
type CrawlResult struct {
	NewProducts []Product `json:"new_products"`
	Alerts      []Alert   `json:"alerts"`
	Total       int       `json:"total"`
	Error       string    `json:"error,omitempty"`
}
