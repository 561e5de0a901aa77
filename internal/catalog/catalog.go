// catalog.go - Product master data with TTL caching

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/warungtech/invoice-ocr/internal/invoice"
	"github.com/warungtech/invoice-ocr/internal/match"
	"github.com/warungtech/invoice-ocr/internal/storage"
)

// Loader fetches the product master data from wherever it lives.
type Loader interface {
	Load(ctx context.Context) ([]invoice.Product, error)
}

// cacheTTL bounds how stale the in-process product list may get.
const cacheTTL = 5 * time.Minute

// Catalog serves the product list with an in-process TTL cache in
// front of the loader, so the matcher does not hit storage per request.
type Catalog struct {
	loader   Loader
	mu       sync.RWMutex
	products []invoice.Product
	loadedAt time.Time
}

func New(loader Loader) *Catalog {
	return &Catalog{loader: loader}
}

// Products returns the cached product list, reloading when the cache
// has expired.
func (c *Catalog) Products(ctx context.Context) ([]invoice.Product, error) {
	c.mu.RLock()
	products, loadedAt := c.products, c.loadedAt
	c.mu.RUnlock()

	if products != nil && time.Since(loadedAt) < cacheTTL {
		return products, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.products != nil && time.Since(c.loadedAt) < cacheTTL {
		return c.products, nil
	}

	fresh, err := c.loader.Load(ctx)
	if err != nil {
		// Serve stale data over failing the request.
		if c.products != nil {
			return c.products, nil
		}
		return nil, err
	}
	c.products = fresh
	c.loadedAt = time.Now()
	return fresh, nil
}

// Invalidate drops the cached list so the next read reloads.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = nil
}

// --- Loaders ---

// FileLoader reads the catalog from a JSON array on disk.
type FileLoader struct {
	Path string
}

func (l *FileLoader) Load(_ context.Context) ([]invoice.Product, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var products []invoice.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", l.Path, err)
	}
	return products, nil
}

// MongoLoader reads the catalog from the products collection.
type MongoLoader struct{}

func (l *MongoLoader) Load(ctx context.Context) ([]invoice.Product, error) {
	return storage.GetProducts(ctx)
}

// StaticLoader serves a fixed in-memory list.
type StaticLoader struct {
	Items []invoice.Product
}

func (l *StaticLoader) Load(_ context.Context) ([]invoice.Product, error) {
	return l.Items, nil
}

// ResolveSupplier nulls out a recognized supplier name that is actually
// one of our own store names. Invoices print the buyer prominently and
// the OCR stage sometimes picks that up as the supplier.
func ResolveSupplier(name string, selfAliases []string) *string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}
	normalized := match.Normalize(trimmed)
	for _, alias := range selfAliases {
		if match.Score(normalized, match.Normalize(alias)) >= 0.85 {
			return nil
		}
	}
	return &trimmed
}
