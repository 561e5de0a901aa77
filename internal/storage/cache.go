// cache.go - Content-addressed cache for processed invoice results

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// ResultCache returns a previously validated result for an identical
// image. Implementations are best-effort: a broken cache degrades to a
// miss, never to a failed request.
type ResultCache interface {
	Get(ctx context.Context, key string) (*invoice.Result, bool)
	Set(ctx context.Context, key string, result *invoice.Result, ttl time.Duration)
}

// CacheKey derives the cache key from the raw image bytes, so two
// uploads of the same photo hit the same entry.
func CacheKey(image []byte) string {
	sum := sha256.Sum256(image)
	return "ocr_pipeline:" + hex.EncodeToString(sum[:])
}

// --- MongoDB-backed cache ---

type cacheDoc struct {
	Key       string         `bson:"_id"`
	Result    invoice.Result `bson:"result"`
	ExpiresAt time.Time      `bson:"expires_at"`
}

// MongoCache stores results in the ocr_cache collection; a TTL index on
// expires_at handles eviction.
type MongoCache struct{}

func NewMongoCache() *MongoCache { return &MongoCache{} }

func (c *MongoCache) Get(ctx context.Context, key string) (*invoice.Result, bool) {
	if mongoDB == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var doc cacheDoc
	err := mongoDB.Collection("ocr_cache").FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			log.Printf("⚠️  cache read failed: %v", err)
		}
		return nil, false
	}
	// The TTL monitor runs every minute, so expired documents can
	// still be found.
	if time.Now().After(doc.ExpiresAt) {
		return nil, false
	}
	return &doc.Result, true
}

func (c *MongoCache) Set(ctx context.Context, key string, result *invoice.Result, ttl time.Duration) {
	if mongoDB == nil || result == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	doc := cacheDoc{Key: key, Result: *result, ExpiresAt: time.Now().Add(ttl)}
	opts := options.Replace().SetUpsert(true)
	_, err := mongoDB.Collection("ocr_cache").ReplaceOne(ctx, bson.M{"_id": key}, doc, opts)
	if err != nil {
		log.Printf("⚠️  cache write failed: %v", err)
	}
}

// --- In-memory cache ---

type memoryEntry struct {
	result    invoice.Result
	expiresAt time.Time
}

// MemoryCache is the fallback when MongoDB is not configured. Entries
// survive only for the lifetime of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*invoice.Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check: another goroutine may have refreshed the entry
		// between the read unlock and here.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	result := entry.result
	return &result, true
}

func (c *MemoryCache) Set(_ context.Context, key string, result *invoice.Result, ttl time.Duration) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: *result, expiresAt: time.Now().Add(ttl)}
}
