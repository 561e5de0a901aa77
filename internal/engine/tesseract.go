// tesseract.go - Local recognition engine backed by Tesseract

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine implements Local using the Tesseract C API. A fresh
// client is created per call: gosseract clients are not safe for
// concurrent use and the cascade runs cells in parallel.
type TesseractEngine struct {
	languages string // "+"-joined tesseract language codes, e.g. "eng+ind"
	psm       gosseract.PageSegMode
}

// NewTesseractEngine creates a local engine for the given languages.
// An empty list defaults to English.
func NewTesseractEngine(languages []string) *TesseractEngine {
	langs := strings.Join(languages, "+")
	if langs == "" {
		langs = "eng"
	}
	return &TesseractEngine{
		languages: langs,
		// Single table cells are one uniform block of text.
		psm: gosseract.PSM_SINGLE_BLOCK,
	}
}

func (t *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs Tesseract on the region and returns per-line guesses
// ordered by position, each with Tesseract's mean word confidence
// rescaled to [0,1].
func (t *TesseractEngine) Recognize(ctx context.Context, region []byte) ([]Guess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(t.languages, "+")...); err != nil {
		return nil, fmt.Errorf("tesseract language %q: %w", t.languages, err)
	}
	client.SetPageSegMode(t.psm)
	if err := client.SetImageFromBytes(region); err != nil {
		return nil, fmt.Errorf("tesseract set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognize: %w", err)
	}

	guesses := make([]Guess, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		guesses = append(guesses, Guess{
			Text:       text,
			Confidence: box.Confidence / 100,
		})
	}
	return guesses, nil
}
