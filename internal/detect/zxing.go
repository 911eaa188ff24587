package detect

import (
	"errors"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
)

// QRDecoder is the default SymbolDecoder backed by gozxing.
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder returns a decoder that tries hard on every frame.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeSymbols implements SymbolDecoder. A frame without symbols is not an error.
func (q *QRDecoder) DecodeSymbols(img image.Image) ([]Symbol, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}
	results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, q.hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	symbols := make([]Symbol, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		symbols = append(symbols, Symbol{
			Points: outline(res.GetResultPoints()),
			Text:   res.GetText(),
		})
	}
	return symbols, nil
}

// outline turns QR finder pattern centres (bottom-left, top-left, top-right)
// into a closed quadrilateral by completing the parallelogram.
func outline(points []gozxing.ResultPoint) []image.Point {
	if len(points) < 3 {
		out := make([]image.Point, 0, len(points))
		for _, p := range points {
			out = append(out, toPoint(p.GetX(), p.GetY()))
		}
		return out
	}
	bl, tl, tr := points[0], points[1], points[2]
	brX := tr.GetX() + bl.GetX() - tl.GetX()
	brY := tr.GetY() + bl.GetY() - tl.GetY()
	return []image.Point{
		toPoint(tl.GetX(), tl.GetY()),
		toPoint(tr.GetX(), tr.GetY()),
		toPoint(brX, brY),
		toPoint(bl.GetX(), bl.GetY()),
	}
}

func toPoint(x, y float64) image.Point {
	return image.Point{X: int(math.Round(x)), Y: int(math.Round(y))}
}
