// gemini.go - Remote vision engine backed by the Gemini API

package engine

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/warungtech/invoice-ocr/internal/ratelimit"
)

// GeminiEngine implements Remote against the Gemini generative API.
// Every call goes through the shared rate limiter; Gemini free-tier
// quotas are low enough that bursts of per-cell escalations would
// otherwise trip 429s.
type GeminiEngine struct {
	apiKey  string
	model   string
	limiter *ratelimit.Limiter
	retry   RetryConfig
}

// NewGeminiEngine creates a remote engine client for the given model.
func NewGeminiEngine(apiKey, model string, limiter *ratelimit.Limiter) *GeminiEngine {
	return &GeminiEngine{
		apiKey:  apiKey,
		model:   model,
		limiter: limiter,
		retry:   DefaultRetryConfig,
	}
}

func (g *GeminiEngine) Name() string { return "gemini" }

// Recognize sends the image and instruction to Gemini and returns the
// raw text of the first candidate. The caller bounds the call with a
// context deadline.
func (g *GeminiEngine) Recognize(ctx context.Context, img []byte, instruction string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", Categorize(g.Name(), err)
		}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(int32(8192)),
		Temperature:     ptr(float32(0)),
	}

	mimeType := http.DetectContentType(img)
	resp, err := g.generateWithRetry(ctx, model,
		genai.Text(instruction),
		genai.Blob{MIMEType: mimeType, Data: img},
	)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &CallError{Engine: g.Name(), Category: "empty_response",
			Message: "no candidates in Gemini response"}
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}

// generateWithRetry retries transient failures with exponential backoff.
// Non-retryable categories abort immediately; the cascade above decides
// what to fall back to.
func (g *GeminiEngine) generateWithRetry(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	var lastErr *CallError

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		resp, err := model.GenerateContent(ctx, parts...)
		if err == nil {
			return resp, nil
		}

		lastErr = Categorize(g.Name(), err)
		log.Printf("gemini: call failed (attempt %d/%d): %v", attempt, g.retry.MaxAttempts, lastErr)

		if !lastErr.Retryable || attempt >= g.retry.MaxAttempts {
			break
		}

		delay := g.retry.Backoff(attempt)
		if lastErr.Category == "rate_limit" {
			delay *= 2
		}
		select {
		case <-ctx.Done():
			return nil, Categorize(g.Name(), ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func ptr[T any](v T) *T { return &v }
