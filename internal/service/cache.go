package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"docmark/internal/artifact"
	"docmark/internal/models"
	"docmark/internal/redis"
)

// cacheBackend is the slice of the redis client the cache needs. Tests swap
// in an in-memory map.
type cacheBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ResultCache memoizes conversion responses in redis keyed by the content
// digest plus option flags. Only self-contained responses are eligible:
// inline-mode results without images carry no session-bound URLs, so they can
// be replayed for an identical upload without re-running the converter.
// Cache failures are logged and never affect the request.
type ResultCache struct {
	client cacheBackend
}

// NewResultCache wraps the redis client; nil client means the cache no-ops.
func NewResultCache(client *redis.Client) *ResultCache {
	if client == nil {
		return nil
	}
	return &ResultCache{client: client}
}

func cacheKey(digest string, preserveLayout, extractImages, extractCharts bool) string {
	return fmt.Sprintf("convert:%s:%t:%t:%t", digest, preserveLayout, extractImages, extractCharts)
}

func (c *ResultCache) get(ctx context.Context, key string) *models.ConversionResponse {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("result cache get failed: %v", err)
		}
		return nil
	}
	var resp models.ConversionResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		log.Printf("result cache decode failed: %v", err)
		return nil
	}
	return &resp
}

func (c *ResultCache) put(ctx context.Context, key string, resp *models.ConversionResponse, mode artifact.Mode, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if mode != artifact.ModeInline || resp.HasImages {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Printf("result cache encode failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, ttl); err != nil {
		log.Printf("result cache set failed: %v", err)
	}
}
