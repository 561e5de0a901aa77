// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warungtech/invoice-ocr/configs"
	"github.com/warungtech/invoice-ocr/internal/api"
	"github.com/warungtech/invoice-ocr/internal/catalog"
	"github.com/warungtech/invoice-ocr/internal/engine"
	"github.com/warungtech/invoice-ocr/internal/pipeline"
	"github.com/warungtech/invoice-ocr/internal/storage"
	"github.com/warungtech/invoice-ocr/internal/validate"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create the UPLOAD_DIR folder if it doesn't exist
	if err := os.MkdirAll(configs.UPLOAD_DIR, 0755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}

	// Step 2: Initialize MongoDB. The pipeline runs without it, losing
	// only the persistent cache and audit trail.
	var cache storage.ResultCache
	mongoUp := false
	if err := storage.InitMongoDB(); err != nil {
		log.Printf("⚠️  MongoDB unavailable (%v), using in-memory cache", err)
		cache = storage.NewMemoryCache()
	} else {
		defer storage.CloseMongoDB()
		cache = storage.NewMongoCache()
		mongoUp = true
	}

	// Step 3: Build the recognition engines
	local, remote, err := engine.CreateEngines(configs.OCR_LANGUAGES)
	if err != nil {
		log.Fatalf("Failed to create engines: %v", err)
	}

	// Step 4: Product catalog - flat file first, MongoDB as fallback
	var products *catalog.Catalog
	if _, err := os.Stat(configs.CATALOG_PATH); err == nil {
		products = catalog.New(&catalog.FileLoader{Path: configs.CATALOG_PATH})
		log.Printf("catalog: %s", configs.CATALOG_PATH)
	} else if mongoUp {
		products = catalog.New(&catalog.MongoLoader{})
		log.Printf("catalog: mongodb products collection")
	} else {
		log.Printf("⚠️  no catalog configured, product matching disabled")
	}

	validator := validate.NewPipeline(
		configs.ARITHMETIC_TOLERANCE,
		configs.MAX_CORRECTION_PERCENT,
		configs.AUTO_FIX,
		configs.DECIMAL_SHIFT_FIX,
		configs.STRICT_VALIDATION,
	)

	orch := &pipeline.Orchestrator{
		Detector:  local,
		Local:     local,
		Remote:    remote,
		Cache:     cache,
		Validator: validator,
		Catalog:   products,
		Config: pipeline.Config{
			ConfidenceThreshold: configs.CONFIDENCE_THRESHOLD,
			MinCellPx:           configs.MIN_CELL_PX,
			MaxParallelCells:    configs.MAX_PARALLEL_CELLS,
			RemoteTimeout:       time.Duration(configs.REMOTE_TIMEOUT_SEC) * time.Second,
			RetryDelay:          time.Duration(configs.RETRY_DELAY_MS) * time.Millisecond,
			CacheTTL:            time.Duration(configs.CACHE_TTL_HOURS) * time.Hour,
			MatchThreshold:      configs.MATCH_THRESHOLD,
			SelfAliases:         configs.SUPPLIER_SELF_ALIASES,
			PreprocessImages:    configs.ENABLE_IMAGE_PREPROCESSING,
			MaxImageDimension:   configs.MAX_IMAGE_DIMENSION,
		},
	}

	// Step 5: Initialize the Gin router
	router := gin.Default()

	// Add CORS middleware - configure allowed origins for production
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", configs.ALLOWED_ORIGINS)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Root endpoint for SSL verification
	router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "invoice-ocr",
			"version": "1.0.0",
		})
	})

	// Step 6: Define the API routes
	router.POST("/api/v1/process-invoice", api.ProcessInvoiceHandler(orch))
	router.POST("/api/v1/revalidate", api.RevalidateHandler(validator))

	// Step 7: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   3 * time.Minute, // the remote cascade can be slow on bad photos
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on :%s", configs.PORT)
		log.Println("API Endpoints:")
		log.Println("  POST /api/v1/process-invoice")
		log.Println("  POST /api/v1/revalidate")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
