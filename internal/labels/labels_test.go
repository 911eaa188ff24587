package labels

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shelfscan/internal/detect"
	"shelfscan/internal/imaging"
	"shelfscan/internal/logging"
	"shelfscan/internal/qrmsg"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	return &Renderer{
		Codec:      qrmsg.Default(),
		Width:      240,
		Height:     120,
		Dir:        t.TempDir(),
		SaveCopies: true,
		Logger:     logging.NewNop(),
		Now:        func() time.Time { return time.Date(2024, 6, 1, 9, 15, 30, 0, time.Local) },
	}
}

func TestRenderDecodesBackToID(t *testing.T) {
	r := newRenderer(t)
	label, err := r.Render(42)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := label.Bounds(); b.Dx() != 240 || b.Dy() != 120 {
		t.Fatalf("label size = %v, want 240x120", b)
	}

	symbols, err := detect.NewQRDecoder().DecodeSymbols(label)
	if err != nil {
		t.Fatalf("DecodeSymbols: %v", err)
	}
	if len(symbols) != 1 {
		t.Fatalf("expected one symbol, got %d", len(symbols))
	}
	ok, id := qrmsg.Default().Decode(symbols[0].Text)
	if !ok || id != 42 {
		t.Fatalf("decoded (%v, %d) from %q", ok, id, symbols[0].Text)
	}
}

func TestRenderLeavesTopBarBlank(t *testing.T) {
	r := newRenderer(t)
	label, err := r.Render(7)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for y := 0; y < 20; y++ {
		for x := 0; x < label.Bounds().Dx(); x++ {
			c := label.RGBAAt(x, y)
			if c.R != 0xff || c.G != 0xff || c.B != 0xff {
				t.Fatalf("pixel (%d,%d) in top bar is %v", x, y, c)
			}
		}
	}
}

func TestRenderRejectsInvalidInput(t *testing.T) {
	r := newRenderer(t)
	if _, err := r.Render(-1); !errors.Is(err, qrmsg.ErrNegativeID) {
		t.Fatalf("expected ErrNegativeID, got %v", err)
	}
	r.Width = 0
	if _, err := r.Render(1); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestSaveWritesTimestampedPNG(t *testing.T) {
	r := newRenderer(t)
	path, _, err := r.Save(42)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "2024_06_01__09_15_30_item-42_label.png" {
		t.Fatalf("unexpected file name %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read label: %v", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		t.Fatalf("decode label: %v", err)
	}
	if img.Bounds().Dx() != 240 {
		t.Fatalf("stored width = %d", img.Bounds().Dx())
	}
}

type recordingPrinter struct {
	labels []image.Image
	err    error
}

func (p *recordingPrinter) PrintLabel(_ context.Context, label image.Image) error {
	if p.err != nil {
		return p.err
	}
	p.labels = append(p.labels, label)
	return nil
}

func TestPrintHandsLabelToPrinter(t *testing.T) {
	r := newRenderer(t)
	r.SaveCopies = false
	printer := &recordingPrinter{}

	path, err := r.Print(context.Background(), 5, printer)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if path != "" {
		t.Fatalf("copy saved despite SaveCopies=false: %q", path)
	}
	if len(printer.labels) != 1 {
		t.Fatalf("printer received %d labels", len(printer.labels))
	}

	printer.err = errors.New("out of paper")
	if _, err := r.Print(context.Background(), 5, printer); err == nil || !strings.Contains(err.Error(), "out of paper") {
		t.Fatalf("expected printer error, got %v", err)
	}
}
