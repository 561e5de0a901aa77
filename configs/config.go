// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	// Remote engine (Gemini) configuration
	GEMINI_API_KEY    string
	REMOTE_MODEL_NAME string

	// Recognition languages, comma-separated tesseract codes
	OCR_LANGUAGES []string

	// Server configuration
	PORT            string
	UPLOAD_DIR      string
	ALLOWED_ORIGINS string

	// MongoDB configuration (result cache + catalog)
	MONGO_URI     string
	MONGO_DB_NAME string

	// Cascade tuning
	CONFIDENCE_THRESHOLD float64 // below this the cell escalates to the remote engine
	MIN_CELL_PX          int     // cells smaller than this skip the local engine
	MAX_PARALLEL_CELLS   int     // bounded fan-out for per-cell recognition
	REMOTE_TIMEOUT_SEC   int     // per-call timeout for remote invocations
	RETRY_DELAY_MS       int     // delay before the whole-document fallback retry
	CACHE_TTL_HOURS      int

	// Rate limiting for remote engine calls
	RATE_LIMIT_TOKENS         int
	RATE_LIMIT_REFILL_SECONDS int

	// Image preprocessing
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int

	// Validation engine
	STRICT_VALIDATION      bool
	AUTO_FIX               bool
	DECIMAL_SHIFT_FIX      bool
	ARITHMETIC_TOLERANCE   float64 // relative, e.g. 0.01 = 1%
	MAX_CORRECTION_PERCENT float64

	// Fuzzy matching
	MATCH_THRESHOLD float64
	CATALOG_PATH    string

	// Supplier names that actually refer to the buyer itself; such a
	// supplier is nulled and flagged unknown.
	SUPPLIER_SELF_ALIASES []string
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Required: Gemini API Key
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	if GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	REMOTE_MODEL_NAME = getEnv("REMOTE_MODEL_NAME", "gemini-2.5-flash")
	OCR_LANGUAGES = getEnvList("OCR_LANGUAGES", "eng,ind")

	PORT = getEnv("PORT", "8080")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "uploads")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "invoiceocr")

	CONFIDENCE_THRESHOLD = getEnvFloat("CONFIDENCE_THRESHOLD", 0.75)
	MIN_CELL_PX = getEnvInt("MIN_CELL_PX", 15)
	MAX_PARALLEL_CELLS = getEnvInt("MAX_PARALLEL_CELLS", 10)
	REMOTE_TIMEOUT_SEC = getEnvInt("REMOTE_TIMEOUT_SEC", 45)
	RETRY_DELAY_MS = getEnvInt("RETRY_DELAY_MS", 1000)
	CACHE_TTL_HOURS = getEnvInt("CACHE_TTL_HOURS", 24)

	// gemini-2.5-flash free tier is 15 RPM; stay under it with a small
	// safety margin.
	RATE_LIMIT_TOKENS = getEnvInt("RATE_LIMIT_TOKENS", 12)
	RATE_LIMIT_REFILL_SECONDS = getEnvInt("RATE_LIMIT_REFILL_SECONDS", 5)

	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)

	STRICT_VALIDATION = getEnvBool("STRICT_VALIDATION", false)
	AUTO_FIX = getEnvBool("AUTO_FIX", true)
	DECIMAL_SHIFT_FIX = getEnvBool("DECIMAL_SHIFT_FIX", true)
	ARITHMETIC_TOLERANCE = getEnvFloat("ARITHMETIC_TOLERANCE", 0.01)
	MAX_CORRECTION_PERCENT = getEnvFloat("MAX_CORRECTION_PERCENT", 50.0)

	MATCH_THRESHOLD = getEnvFloat("MATCH_THRESHOLD", 0.75)
	CATALOG_PATH = getEnv("CATALOG_PATH", "data/products.json")

	SUPPLIER_SELF_ALIASES = getEnvList("SUPPLIER_SELF_ALIASES", "")

	log.Println("Configuration loaded successfully")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
