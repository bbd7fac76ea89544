// Package crawler implements the crawl source collaborator: an HTTP client
// for the upstream deals feed that returns raw product records for the
// engine to ingest. Fetch failures (network, status, parse) are returned to
// the caller; the engine decides how to surface them.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// feedItem mirrors one entry of the upstream JSON feed.
type feedItem struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	DiscountRate  int     `json:"discount_rate"`
	Category      string  `json:"category"`
	URL           string  `json:"url"`
}

// Client fetches the deals feed. It is safe for concurrent use.
type Client struct {
	url    string
	http   *http.Client
	logger zerolog.Logger
}

// NewClient constructs a Client for the given feed URL with a per-request
// timeout.
func NewClient(url string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "crawler").Logger(),
	}
}

// Fetch retrieves and decodes the current deals feed. Items without an ID are
// dropped; unknown category labels are kept as-is on the product so the
// classifier can still threshold on discount.
func (c *Client) Fetch(ctx context.Context) ([]domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	products := make([]domain.Product, 0, len(items))
	dropped := 0
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			dropped++
			continue
		}
		products = append(products, domain.Product{
			ID:            it.ID,
			Title:         it.Title,
			Price:         it.Price,
			OriginalPrice: it.OriginalPrice,
			Discount:      it.DiscountRate,
			Category:      mapCategory(it.Category),
			URL:           it.URL,
		})
	}
	if dropped > 0 {
		c.logger.Warn().Int("dropped", dropped).Msg("feed items without id dropped")
	}
	return products, nil
}

// mapCategory normalizes upstream shelf labels onto alert categories.
func mapCategory(raw string) domain.AlertCategory {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "super", "super_deal", "superdeal":
		return domain.CategorySuper
	case "electronics", "digital":
		return domain.CategoryElectronics
	case "best", "bestseller":
		return domain.CategoryBest
	default:
		return domain.AlertCategory(strings.ToLower(strings.TrimSpace(raw)))
	}
}
