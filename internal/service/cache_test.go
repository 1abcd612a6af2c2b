package service

import (
	"context"
	"testing"
	"time"

	"docmark/internal/artifact"
	"docmark/internal/models"
	"docmark/internal/redis"
)

// mapBackend stands in for redis so eligibility rules are testable without a
// server.
type mapBackend struct {
	entries map[string]string
}

func newMapBackend() *mapBackend {
	return &mapBackend{entries: make(map[string]string)}
}

func (b *mapBackend) Get(_ context.Context, key string) (string, error) {
	v, ok := b.entries[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b.entries[key] = string(value.([]byte))
	return nil
}

func TestResultCacheNeverStoresSessionBoundResponses(t *testing.T) {
	backend := newMapBackend()
	cache := &ResultCache{client: backend}
	ctx := context.Background()

	// Disk-mode responses embed serve-artifact URLs scoped to one session.
	diskResp := &models.ConversionResponse{
		Success:     true,
		DownloadURL: "/api/serve-artifact?session=1700000000000-abc123XY&path=doc.md",
		Markdown:    "# Doc",
	}
	cache.put(ctx, cacheKey("d1", false, false, false), diskResp, artifact.ModeDisk, time.Hour)

	// Inline responses with images carry the unavailability notice tied to
	// this conversion's persist outcome, not the content digest.
	imgResp := &models.ConversionResponse{Success: true, HasImages: true, Markdown: "# Img"}
	cache.put(ctx, cacheKey("d2", false, true, false), imgResp, artifact.ModeInline, time.Hour)

	if len(backend.entries) != 0 {
		t.Fatalf("cache stored %d ineligible responses", len(backend.entries))
	}
}

func TestResultCacheRoundTripsInlineImageFreeResponse(t *testing.T) {
	backend := newMapBackend()
	cache := &ResultCache{client: backend}
	ctx := context.Background()
	key := cacheKey("deadbeef", true, false, false)

	resp := &models.ConversionResponse{
		Success:     true,
		Filename:    "notes.pdf",
		DownloadURL: "data:text/markdown;base64,IyBOb3Rlcw==",
		Markdown:    "# Notes",
		Stats:       models.ConversionStats{InputBytes: 42, MarkdownBytes: 7},
	}
	cache.put(ctx, key, resp, artifact.ModeInline, time.Hour)

	got := cache.get(ctx, key)
	if got == nil {
		t.Fatal("eligible response was not cached")
	}
	if got.DownloadURL != resp.DownloadURL || got.Markdown != resp.Markdown || got.Stats.InputBytes != 42 {
		t.Fatalf("cached response = %+v, want %+v", got, resp)
	}
}

func TestResultCacheMissAndNilSafety(t *testing.T) {
	backend := newMapBackend()
	cache := &ResultCache{client: backend}
	ctx := context.Background()

	if got := cache.get(ctx, cacheKey("unknown", false, false, false)); got != nil {
		t.Fatalf("miss returned %+v", got)
	}

	// A nil cache (redis disabled) no-ops on both paths.
	var disabled *ResultCache
	disabled.put(ctx, "k", &models.ConversionResponse{}, artifact.ModeInline, time.Hour)
	if got := disabled.get(ctx, "k"); got != nil {
		t.Fatalf("nil cache returned %+v", got)
	}
}

func TestResultCacheIgnoresCorruptPayload(t *testing.T) {
	backend := newMapBackend()
	backend.entries["k"] = "{not json"
	cache := &ResultCache{client: backend}

	if got := cache.get(context.Background(), "k"); got != nil {
		t.Fatalf("corrupt payload decoded to %+v", got)
	}
}
