// Package market proxies the XMRT ecosystem's external market feeds:
// mining-pool statistics and the token price feed.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client fetches upstream feeds with a short-lived cache so bursts of tool
// calls and proxy requests do not hammer the upstreams.
type Client struct {
	http         *resty.Client
	poolStatsURL string
	priceFeedURL string
	ttl          time.Duration
	log          zerolog.Logger

	mu    sync.Mutex
	pool  cached
	price cached
}

type cached struct {
	data    map[string]interface{}
	fetched time.Time
}

// New builds a Client. ttl <= 0 defaults to 30 seconds.
func New(poolStatsURL, priceFeedURL string, ttl time.Duration, log zerolog.Logger) *Client {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		http:         resty.New().SetTimeout(10 * time.Second),
		poolStatsURL: poolStatsURL,
		priceFeedURL: priceFeedURL,
		ttl:          ttl,
		log:          log,
	}
}

// PoolStats returns the current mining-pool statistics payload.
func (c *Client) PoolStats(ctx context.Context) (map[string]interface{}, error) {
	return c.fetch(ctx, c.poolStatsURL, &c.pool)
}

// TokenPrice returns the current token price payload.
func (c *Client) TokenPrice(ctx context.Context) (map[string]interface{}, error) {
	return c.fetch(ctx, c.priceFeedURL, &c.price)
}

func (c *Client) fetch(ctx context.Context, url string, slot *cached) (map[string]interface{}, error) {
	if url == "" {
		return nil, fmt.Errorf("upstream URL not configured")
	}

	c.mu.Lock()
	if slot.data != nil && time.Since(slot.fetched) < c.ttl {
		out := slot.data
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	var body map[string]interface{}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode())
	}

	c.mu.Lock()
	slot.data = body
	slot.fetched = time.Now()
	c.mu.Unlock()
	return body, nil
}
