package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/warungtech/invoice-ocr/internal/common"
	"github.com/warungtech/invoice-ocr/internal/engine"
	"github.com/warungtech/invoice-ocr/internal/invoice"
	"github.com/warungtech/invoice-ocr/internal/storage"
	"github.com/warungtech/invoice-ocr/internal/validate"
)

// --- fakes ---

type fakeDetector struct {
	mu    sync.Mutex
	calls int
	cells []invoice.Cell
	err   error
}

func (f *fakeDetector) DetectCells(_ context.Context, _ []byte) ([]invoice.Cell, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]invoice.Cell, len(f.cells))
	copy(out, f.cells)
	return out, nil
}

type fakeRemote struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	response  string
}

func (f *fakeRemote) Recognize(_ context.Context, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return "", errors.New("remote engine unavailable")
	}
	return f.response, nil
}

func (f *fakeRemote) Name() string { return "fake-remote" }

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLocal struct {
	guesses []engine.Guess
}

func (f *fakeLocal) Recognize(_ context.Context, _ []byte) ([]engine.Guess, error) {
	return f.guesses, nil
}

func (f *fakeLocal) Name() string { return "fake-local" }

// --- helpers ---

func pagePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test page: %v", err)
	}
	return buf.Bytes()
}

func rowCells() []invoice.Cell {
	texts := []string{"Beras Premium", "2", "kg", "12000", "24000"}
	cells := make([]invoice.Cell, len(texts))
	for i, text := range texts {
		x := 5 + i*38
		cells[i] = invoice.Cell{
			BBox:       invoice.BBox{X1: x, Y1: 10, X2: x + 30, Y2: 30},
			Text:       text,
			Confidence: 0.92,
		}
	}
	return cells
}

func testConfig() Config {
	return Config{
		ConfidenceThreshold: 0.75,
		MinCellPx:           15,
		MaxParallelCells:    10,
		MatchThreshold:      0.75,
		CacheTTL:            time.Hour,
	}
}

func testOrchestrator(det *fakeDetector, remote engine.Remote) *Orchestrator {
	return &Orchestrator{
		Detector:  det,
		Local:     &fakeLocal{},
		Remote:    remote,
		Cache:     storage.NewMemoryCache(),
		Validator: validate.NewPipeline(0.01, 50, true, true, false),
		Config:    testConfig(),
	}
}

// --- tests ---

func TestProcessIdenticalImageHitsCache(t *testing.T) {
	det := &fakeDetector{cells: rowCells()}
	o := testOrchestrator(det, nil)
	img := pagePNG(t)

	first := o.Process(context.Background(), img)
	if first.Status != "success" {
		t.Fatalf("first run status = %q (%s)", first.Status, first.Message)
	}
	if first.CacheHit {
		t.Error("first run must not be a cache hit")
	}
	if len(first.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(first.Lines))
	}
	if first.Lines[0].Name != "Beras Premium" || first.Lines[0].Amount != 24000 {
		t.Errorf("unexpected line: %+v", first.Lines[0])
	}

	second := o.Process(context.Background(), img)
	if !second.CacheHit {
		t.Error("second run with identical bytes should hit the cache")
	}
	if det.calls != 1 {
		t.Errorf("detector ran %d times, want 1", det.calls)
	}
	if len(second.Lines) != 1 {
		t.Errorf("cached result lost its lines: %+v", second)
	}
}

func TestEscalatesOnlyUntrustworthyCells(t *testing.T) {
	cells := []invoice.Cell{
		{BBox: invoice.BBox{X2: 40, Y2: 40}, Text: "ok", Confidence: 0.95, Image: []byte("img")},
		{BBox: invoice.BBox{X2: 40, Y2: 40}, Text: "blur", Confidence: 0.30, Image: []byte("img")},
		{BBox: invoice.BBox{X2: 40, Y2: 40}, Text: "", Confidence: 0.90, Image: []byte("img")},
		{BBox: invoice.BBox{X2: 8, Y2: 8}, Text: "tiny", Confidence: 0.90, Image: []byte("img")},
	}
	remote := &fakeRemote{response: "REMOTE"}
	o := &Orchestrator{Remote: remote, Config: testConfig()}

	got := o.escalateCells(context.Background(), common.NewRequestContext(), cells)

	if got[0].UsedRemote {
		t.Error("high-confidence cell must not escalate")
	}
	for i := 1; i < 4; i++ {
		if !got[i].UsedRemote {
			t.Errorf("cell %d should have escalated", i)
		}
		if got[i].Text != "REMOTE" {
			t.Errorf("cell %d text = %q, want REMOTE", i, got[i].Text)
		}
	}
	if remote.callCount() != 3 {
		t.Errorf("remote calls = %d, want 3", remote.callCount())
	}
}

func TestChunkFailureReplaysSequentially(t *testing.T) {
	var cells []invoice.Cell
	for i := 0; i < 8; i++ {
		cells = append(cells, invoice.Cell{
			BBox: invoice.BBox{X2: 40, Y2: 40}, Confidence: 0.1, Image: []byte("img"),
		})
	}
	// First call fails, which sinks one parallel chunk; the sequential
	// replay and the remaining chunks succeed.
	remote := &fakeRemote{response: "REMOTE", failFirst: 1}
	o := &Orchestrator{Remote: remote, Config: testConfig()}

	got := o.escalateCells(context.Background(), common.NewRequestContext(), cells)

	for i, c := range got {
		if !c.UsedRemote {
			t.Errorf("cell %d not recognized after sequential replay", i)
		}
	}
}

func TestDocumentFallbackParsesLines(t *testing.T) {
	remote := &fakeRemote{response: `{
		"supplier": "PT Sumber Pangan",
		"total": "39.000",
		"lines": [
			{"name": "Beras", "qty": 2, "unit": "KG", "price": "12.000", "amount": 24000},
			{"name": "Gula", "qty": 1, "unit": "kg", "price": 15000, "amount": null}
		]
	}`}
	o := &Orchestrator{Remote: remote, Config: testConfig()}

	inv, err := o.documentFallback(context.Background(), common.NewRequestContext(), []byte("page"))
	if err != nil {
		t.Fatalf("documentFallback: %v", err)
	}
	if len(inv.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(inv.Lines))
	}
	if inv.Lines[0].Price != 12000 {
		t.Errorf("price = %v, want 12000 (grouped string)", inv.Lines[0].Price)
	}
	if inv.Lines[0].Unit != "kg" {
		t.Errorf("unit = %q, want lowercased kg", inv.Lines[0].Unit)
	}
	if inv.Lines[1].Amount != 0 {
		t.Errorf("null amount = %v, want 0", inv.Lines[1].Amount)
	}
	if inv.Supplier == nil || *inv.Supplier != "PT Sumber Pangan" {
		t.Errorf("supplier = %v", inv.Supplier)
	}
	if inv.TotalPrice == nil || *inv.TotalPrice != 39000 {
		t.Errorf("total = %v", inv.TotalPrice)
	}
}

func TestDocumentFallbackParsesPositions(t *testing.T) {
	remote := &fakeRemote{response: `{"positions": [
		{"text": "Telur", "bbox": [0, 10, 40, 30], "confidence": 0.9},
		{"text": "10", "bbox": [50, 10, 70, 30], "confidence": 0.9},
		{"text": "pcs", "bbox": [80, 10, 110, 30], "confidence": 0.9},
		{"text": "2500", "bbox": [120, 10, 150, 30], "confidence": 0.9},
		{"text": "25000", "bbox": [160, 10, 200, 30], "confidence": 0.9}
	]}`}
	o := &Orchestrator{Remote: remote, Config: testConfig()}

	inv, err := o.documentFallback(context.Background(), common.NewRequestContext(), []byte("page"))
	if err != nil {
		t.Fatalf("documentFallback: %v", err)
	}
	if len(inv.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(inv.Lines))
	}
	line := inv.Lines[0]
	if line.Name != "Telur" || line.Qty != 10 || line.Unit != "pcs" || line.Amount != 25000 {
		t.Errorf("unexpected line: %+v", line)
	}
	if inv.Metadata.RemoteCells != 5 {
		t.Errorf("remote cells = %d, want 5", inv.Metadata.RemoteCells)
	}
}

func TestDocumentFallbackLinesWrongTypeIsStructural(t *testing.T) {
	remote := &fakeRemote{response: `{"lines": "not a table"}`}
	o := &Orchestrator{Remote: remote, Config: testConfig()}

	inv, err := o.documentFallback(context.Background(), common.NewRequestContext(), []byte("page"))
	if err != nil {
		t.Fatalf("wrong payload type must be terminal, got error %v", err)
	}
	if len(inv.Issues) != 1 || inv.Issues[0].Kind != invoice.IssueStructural {
		t.Errorf("issues = %+v, want single structural issue", inv.Issues)
	}
	if inv.Metadata.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0", inv.Metadata.Accuracy)
	}
	if remote.callCount() != 1 {
		t.Errorf("structural payload must not be retried, calls = %d", remote.callCount())
	}
}

func TestProcessWrongTypedPayloadIsStructuralError(t *testing.T) {
	det := &fakeDetector{err: errors.New("no table found")}
	remote := &fakeRemote{response: `{"lines": "not a table"}`}
	o := testOrchestrator(det, remote)

	got := o.Process(context.Background(), pagePNG(t))

	if got.Status != "error" {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if len(got.Issues) != 1 || got.Issues[0].Kind != invoice.IssueStructural {
		t.Fatalf("issues = %+v, want the structural issue to survive validation", got.Issues)
	}
	if got.Metadata.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0", got.Metadata.Accuracy)
	}

	// The broken reading must not be cached.
	got = o.Process(context.Background(), pagePNG(t))
	if got.CacheHit {
		t.Error("structural error must not be served from cache")
	}
	if det.calls != 2 {
		t.Errorf("detector calls = %d, want 2 (no cache short-circuit)", det.calls)
	}
}

func TestDocumentFallbackRetriesOnce(t *testing.T) {
	remote := &fakeRemote{response: `{"lines": []}`, failFirst: 1}
	o := &Orchestrator{Remote: remote, Config: testConfig()}

	_, err := o.documentFallback(context.Background(), common.NewRequestContext(), []byte("page"))
	if err != nil {
		t.Fatalf("fallback should succeed on retry: %v", err)
	}
	if remote.callCount() != 2 {
		t.Errorf("calls = %d, want 2", remote.callCount())
	}

	remote = &fakeRemote{response: `{"lines": []}`, failFirst: 10}
	o.Remote = remote
	_, err = o.documentFallback(context.Background(), common.NewRequestContext(), []byte("page"))
	if err == nil {
		t.Fatal("two failures must surface an error")
	}
	if remote.callCount() != 2 {
		t.Errorf("calls = %d, want exactly 2 (one retry)", remote.callCount())
	}
}

func TestDetectorFailureFallsBackToDocument(t *testing.T) {
	det := &fakeDetector{err: errors.New("no table found")}
	remote := &fakeRemote{response: `{"lines": [
		{"name": "Minyak Goreng", "qty": 1, "unit": "btl", "price": 17000, "amount": 17000}
	]}`}
	o := testOrchestrator(det, remote)

	got := o.Process(context.Background(), pagePNG(t))

	if got.Status != "success" {
		t.Fatalf("status = %q (%s)", got.Status, got.Message)
	}
	if len(got.Lines) != 1 || got.Lines[0].Name != "Minyak Goreng" {
		t.Errorf("unexpected lines: %+v", got.Lines)
	}
}

func TestProcessUnreadableImage(t *testing.T) {
	o := testOrchestrator(&fakeDetector{}, nil)

	got := o.Process(context.Background(), []byte("definitely not an image"))

	if got.Status != "error" {
		t.Errorf("status = %q, want error", got.Status)
	}
}

func TestNeedsRemote(t *testing.T) {
	o := &Orchestrator{Config: testConfig()}
	big := invoice.BBox{X2: 40, Y2: 40}

	tests := []struct {
		name string
		cell invoice.Cell
		want bool
	}{
		{"confident", invoice.Cell{BBox: big, Text: "ok", Confidence: 0.9, Image: []byte("i")}, false},
		{"low confidence", invoice.Cell{BBox: big, Text: "ok", Confidence: 0.5, Image: []byte("i")}, true},
		{"empty text", invoice.Cell{BBox: big, Text: " ", Confidence: 0.9, Image: []byte("i")}, true},
		{"tiny region", invoice.Cell{BBox: invoice.BBox{X2: 10, Y2: 40}, Text: "ok", Confidence: 0.9, Image: []byte("i")}, true},
		{"no crop", invoice.Cell{BBox: big, Text: "", Confidence: 0.1}, false},
		{"already remote", invoice.Cell{BBox: big, Text: "ok", Confidence: 0.5, Image: []byte("i"), UsedRemote: true}, false},
		{"crop failed", invoice.Cell{BBox: big, Confidence: 0.1, Image: []byte("i"), ErrTag: "empty_region"}, false},
	}
	for _, tt := range tests {
		if got := o.needsRemote(tt.cell); got != tt.want {
			t.Errorf("%s: needsRemote = %v, want %v", tt.name, got, tt.want)
		}
	}
}
