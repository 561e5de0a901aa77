// interface.go - Recognition engine contracts consumed by the cascade

package engine

import "context"

// Guess is one recognition hypothesis for an image region.
type Guess struct {
	Text       string
	Confidence float64 // in [0,1]
}

// Local is the fast on-box recognition engine. Implementations must not
// touch the network; calls are synchronous and cheap enough to run per
// cell.
type Local interface {
	// Recognize returns hypotheses for a single image region, best first.
	// An empty slice means the engine saw nothing it could read.
	Recognize(ctx context.Context, region []byte) ([]Guess, error)

	Name() string
}

// Remote is the slow, high-accuracy vision engine. It accepts either a
// single cell or a whole page together with a natural-language
// instruction and returns free text or a JSON payload.
type Remote interface {
	Recognize(ctx context.Context, img []byte, instruction string) (string, error)

	Name() string
}

// Instructions sent to the remote engine. The cell prompt deliberately
// asks for bare text so the cascade can splice it straight into the cell.
const (
	CellInstruction = "Look carefully at this image. It contains text from a single " +
		"table cell. Extract and return only that text, with no explanation."

	DocumentInstruction = "This image is a photographed paper invoice containing a table " +
		"of line items. Return JSON with a \"lines\" array; each line has " +
		"\"name\", \"qty\", \"unit\", \"price\" and \"amount\". Use null for " +
		"values you cannot read. Return JSON only."
)
