package detect_test

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	xdraw "golang.org/x/image/draw"

	"shelfscan/internal/detect"
)

type fakeDecoder struct {
	symbols []detect.Symbol
	err     error
}

func (f fakeDecoder) DecodeSymbols(image.Image) ([]detect.Symbol, error) {
	return f.symbols, f.err
}

func whiteFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func square(x, y, size int) []image.Point {
	return []image.Point{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}
}

func TestDetectNoMarkers(t *testing.T) {
	frame := whiteFrame(64, 48)
	d := detect.New(detect.WithDecoder(fakeDecoder{}))

	result := d.Detect(frame)
	if result.Found || result.Count != 0 || len(result.Payloads) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Annotated == nil || result.Annotated.Bounds() != frame.Bounds() {
		t.Fatalf("annotated frame must match input bounds")
	}
}

func TestDetectSingleMarkerDrawsOnCopy(t *testing.T) {
	frame := whiteFrame(64, 48)
	d := detect.New(detect.WithDecoder(fakeDecoder{symbols: []detect.Symbol{
		{Points: square(10, 10, 20), Text: "bigml2;id;42"},
	}}))

	result := d.Detect(frame)
	if !result.Found || result.Count != 1 {
		t.Fatalf("expected one marker, got %+v", result)
	}
	if result.Payloads[0] != "bigml2;id;42" {
		t.Fatalf("unexpected payload %q", result.Payloads[0])
	}
	if got := result.Annotated.RGBAAt(10, 10); got != detect.MarkerColor {
		t.Fatalf("expected outline pixel, got %v", got)
	}
	if got := frame.RGBAAt(10, 10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("input frame was modified: %v", got)
	}
	if got := result.Annotated.RGBAAt(20, 20); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("polygon interior should be untouched, got %v", got)
	}
}

func TestDetectDropsInvalidUTF8(t *testing.T) {
	d := detect.New(detect.WithDecoder(fakeDecoder{symbols: []detect.Symbol{
		{Points: square(1, 1, 5), Text: string([]byte{0xff, 0xfe})},
		{Points: square(20, 1, 5), Text: "bigml2;id;1"},
	}}))

	result := d.Detect(whiteFrame(40, 20))
	if result.Count != 1 || result.Payloads[0] != "bigml2;id;1" {
		t.Fatalf("expected only the valid symbol, got %+v", result.Payloads)
	}
}

func TestDetectMultipleMarkers(t *testing.T) {
	d := detect.New(detect.WithDecoder(fakeDecoder{symbols: []detect.Symbol{
		{Points: square(1, 1, 5), Text: "bigml2;id;1"},
		{Points: square(20, 1, 5), Text: "bigml2;id;2"},
	}}))

	result := d.Detect(whiteFrame(40, 20))
	if result.Count != 2 || len(result.Markers) != 2 {
		t.Fatalf("expected two markers, got %+v", result)
	}
}

func TestDetectDecoderErrorYieldsEmptyResult(t *testing.T) {
	d := detect.New(detect.WithDecoder(fakeDecoder{err: errors.New("boom")}))
	result := d.Detect(whiteFrame(8, 8))
	if result.Found || result.Annotated == nil {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDetectClampsOutOfBoundsPoints(t *testing.T) {
	d := detect.New(
		detect.WithAnnotateText(true),
		detect.WithDecoder(fakeDecoder{symbols: []detect.Symbol{
			{Points: []image.Point{{-50, -50}, {500, -20}, {500, 500}, {-10, 400}}, Text: "edge"},
		}}),
	)
	result := d.Detect(whiteFrame(32, 32))
	if result.Count != 1 {
		t.Fatalf("expected marker, got %+v", result)
	}
	if got := result.Annotated.RGBAAt(0, 0); got != detect.MarkerColor {
		t.Fatalf("expected clamped corner to be drawn, got %v", got)
	}
}

func TestDetectNilFrame(t *testing.T) {
	result := detect.New(detect.WithDecoder(fakeDecoder{})).Detect(nil)
	if result.Found || result.Annotated == nil {
		t.Fatalf("unexpected result for nil frame %+v", result)
	}
}

func TestQRDecoderReadsRenderedSymbol(t *testing.T) {
	matrix, err := qrcode.NewQRCodeWriter().Encode("bigml2;id;42", gozxing.BarcodeFormat_QR_CODE, 300, 300, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame := whiteFrame(400, 400)
	xdraw.Copy(frame, image.Pt(50, 50), matrix, matrix.Bounds(), xdraw.Src, nil)

	result := detect.New().Detect(frame)
	if result.Count != 1 {
		t.Fatalf("expected one decoded symbol, got %d", result.Count)
	}
	if result.Payloads[0] != "bigml2;id;42" {
		t.Fatalf("unexpected payload %q", result.Payloads[0])
	}
	if len(result.Markers[0].Polygon) != 4 {
		t.Fatalf("expected quadrilateral outline, got %v", result.Markers[0].Polygon)
	}
}
