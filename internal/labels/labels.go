// Package labels renders printable QR labels for inventory items.
package labels

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"

	"shelfscan/internal/fileutil"
	"shelfscan/internal/imaging"
	"shelfscan/internal/logging"
	"shelfscan/internal/qrmsg"
)

// topBarRatio is the height of the blank bar above the code, relative to the
// code itself, so the code sits centred on the printer's label stock.
const topBarRatio = 0.3

// Printer is the label printer collaborator. It receives fully rendered labels.
type Printer interface {
	PrintLabel(ctx context.Context, label image.Image) error
}

// Renderer draws and stores QR labels.
type Renderer struct {
	Codec      qrmsg.Codec
	Width      int
	Height     int
	Dir        string
	SaveCopies bool
	Logger     *slog.Logger
	Now        func() time.Time
}

// Render returns a Width x Height label encoding id.
func (r *Renderer) Render(id int64) (*image.RGBA, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("invalid label size %dx%d", r.Width, r.Height)
	}
	message, err := r.Codec.EncodeChecked(id)
	if err != nil {
		return nil, err
	}

	side := min(r.Width, int(float64(r.Height)/(1+topBarRatio)))
	if side <= 0 {
		return nil, errors.New("label too small for a QR code")
	}
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_MARGIN:           1,
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(message, gozxing.BarcodeFormat_QR_CODE, side, side, hints)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	return imaging.Fit(withTopBar(matrix), r.Width, r.Height), nil
}

// withTopBar copies the module matrix onto a white image with a blank strip above it.
func withTopBar(matrix *gozxing.BitMatrix) *image.Gray {
	w, h := matrix.GetWidth(), matrix.GetHeight()
	bar := int(float64(h) * topBarRatio)
	img := image.NewGray(image.Rect(0, 0, w, h+bar))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if matrix.Get(x, y) {
				img.SetGray(x, y+bar, color.Gray{Y: 0})
			}
		}
	}
	return img
}

// Save renders the label for id and writes it as a timestamped PNG in Dir.
func (r *Renderer) Save(id int64) (string, image.Image, error) {
	label, err := r.Render(id)
	if err != nil {
		return "", nil, err
	}
	path, err := r.write(id, label)
	if err != nil {
		return "", nil, err
	}
	return path, label, nil
}

// Print renders the label, keeps a copy when SaveCopies is set and hands it
// to printer. A nil printer only renders and saves.
func (r *Renderer) Print(ctx context.Context, id int64, printer Printer) (string, error) {
	label, err := r.Render(id)
	if err != nil {
		return "", err
	}
	logger := r.logger()
	var path string
	if r.SaveCopies || printer == nil {
		if path, err = r.write(id, label); err != nil {
			return "", err
		}
	}
	if printer != nil {
		if err := printer.PrintLabel(ctx, label); err != nil {
			logging.ErrorWithContext(logger, "label print failed", "label_print_failed",
				logging.ItemID(id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "no label printed"),
				logging.String(logging.FieldErrorHint, "check the printer connection and retry"),
			)
			return path, fmt.Errorf("print label: %w", err)
		}
	}
	logger.Info("label ready",
		logging.String(logging.FieldEventType, "label_rendered"),
		logging.ItemID(id),
		logging.String("message", r.Codec.Encode(id)),
		logging.String("path", path),
	)
	return path, nil
}

func (r *Renderer) write(id int64, label image.Image) (string, error) {
	data, err := imaging.EncodePNG(label)
	if err != nil {
		return "", fmt.Errorf("encode label: %w", err)
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	name := fmt.Sprintf("%s_item-%d_label.png", now().Format("2006_01_02__15_04_05"), id)
	path := filepath.Join(r.Dir, name)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write label: %w", err)
	}
	return path, nil
}

func (r *Renderer) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(r.Logger, "labels")
}
