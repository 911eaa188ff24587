package capture

import (
	"image"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame is one captured image. Seq increases monotonically for the lifetime
// of a Loop.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      image.Image
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image == nil || f.Image.Bounds().Empty()
}

// Clone returns a deep copy whose pixels share nothing with f.
func (f Frame) Clone() Frame {
	out := f
	if f.Image == nil {
		return out
	}
	bounds := f.Image.Bounds()
	dst := image.NewRGBA(bounds)
	xdraw.Copy(dst, bounds.Min, f.Image, bounds, xdraw.Src, nil)
	out.Image = dst
	return out
}
