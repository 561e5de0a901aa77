// factory.go - Builds the engine pair from configuration

package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/warungtech/invoice-ocr/configs"
	"github.com/warungtech/invoice-ocr/internal/ratelimit"
)

// CreateEngines creates the local/remote engine pair the cascade runs
// on. The local engine always exists; the remote engine requires an API
// key and is what the cascade escalates to.
func CreateEngines(languages []string) (*TesseractEngine, Remote, error) {
	local := NewTesseractEngine(languages)
	log.Printf("local engine: %s (languages: %v)", local.Name(), languages)

	if configs.GEMINI_API_KEY == "" {
		return nil, nil, fmt.Errorf("GEMINI_API_KEY is required for the remote engine")
	}

	limiter := ratelimit.New(
		configs.RATE_LIMIT_TOKENS,
		time.Duration(configs.RATE_LIMIT_REFILL_SECONDS)*time.Second,
	)
	remote := NewGeminiEngine(configs.GEMINI_API_KEY, configs.REMOTE_MODEL_NAME, limiter)
	log.Printf("remote engine: %s (model: %s)", remote.Name(), configs.REMOTE_MODEL_NAME)

	return local, remote, nil
}
