package detect

import (
	"image"
	"image/color"
	"log/slog"
	"unicode/utf8"

	xdraw "golang.org/x/image/draw"

	"shelfscan/internal/logging"
)

// MarkerColor is the outline colour drawn around detected markers.
var MarkerColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Symbol is one raw decoder hit.
type Symbol struct {
	Points []image.Point
	Text   string
}

// SymbolDecoder finds and decodes every QR symbol in an image.
type SymbolDecoder interface {
	DecodeSymbols(img image.Image) ([]Symbol, error)
}

// Marker is a located symbol with a valid UTF-8 payload.
type Marker struct {
	Polygon []image.Point
	Payload string
}

// Result is the outcome of scanning one frame.
type Result struct {
	Annotated *image.RGBA
	Found     bool
	Count     int
	Payloads  []string
	Markers   []Marker
}

// Detector scans frames for QR markers.
type Detector struct {
	decoder      SymbolDecoder
	annotateText bool
	logger       *slog.Logger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithDecoder replaces the default gozxing decoder.
func WithDecoder(decoder SymbolDecoder) Option {
	return func(d *Detector) {
		if decoder != nil {
			d.decoder = decoder
		}
	}
}

// WithAnnotateText draws each payload next to its marker outline.
func WithAnnotateText(enabled bool) Option {
	return func(d *Detector) { d.annotateText = enabled }
}

// WithLogger sets the detector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logging.NewComponentLogger(logger, "detect")
	}
}

// New constructs a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		decoder: NewQRDecoder(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect scans img. It never fails: decoder errors yield a result with no markers.
func (d *Detector) Detect(img image.Image) Result {
	result := Result{Annotated: cloneRGBA(img)}
	if img == nil {
		return result
	}

	symbols, err := d.decoder.DecodeSymbols(img)
	if err != nil {
		d.logger.Debug("symbol decode failed", logging.Error(err))
	}
	for _, sym := range symbols {
		if !utf8.ValidString(sym.Text) {
			d.logger.Debug("dropping symbol with non-UTF-8 payload", logging.Int("points", len(sym.Points)))
			continue
		}
		marker := Marker{
			Polygon: append([]image.Point(nil), sym.Points...),
			Payload: sym.Text,
		}
		result.Markers = append(result.Markers, marker)
		result.Payloads = append(result.Payloads, marker.Payload)
	}
	result.Count = len(result.Markers)
	result.Found = result.Count > 0

	for _, marker := range result.Markers {
		drawPolygon(result.Annotated, marker.Polygon, MarkerColor)
		if d.annotateText {
			drawLabel(result.Annotated, marker.Polygon, marker.Payload, MarkerColor)
		}
	}
	return result
}

// cloneRGBA returns an RGBA copy of img; a nil image yields an empty canvas.
func cloneRGBA(img image.Image) *image.RGBA {
	if img == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	xdraw.Copy(dst, bounds.Min, img, bounds, xdraw.Src, nil)
	return dst
}
